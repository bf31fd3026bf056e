package feature

import (
	"fmt"
	"strings"
)

// Op is the change code prefixed to a raw diff record id.
type Op string

const (
	OpInsert    Op = "I"
	OpDelete    Op = "D"
	OpUpdateOld Op = "U-"
	OpUpdateNew Op = "U+"
)

const opSeparator = "::"

// RawChange is one record of the backend's flat diff listing, e.g. id
// "U-::42" for the before image of feature 42.
type RawChange struct {
	ID      string
	Feature Feature
}

// RecordID builds the raw id for an op and feature id.
func RecordID(op Op, featureID string) string {
	return string(op) + opSeparator + featureID
}

// ParseOp splits a raw diff record id into its op code and feature id.
func ParseOp(id string) (Op, string, error) {
	code, fid, ok := strings.Cut(id, opSeparator)
	if !ok {
		return "", "", fmt.Errorf("%w: record id %q has no %q separator", ErrMalformedDiff, id, opSeparator)
	}
	if fid == "" {
		return "", "", fmt.Errorf("%w: record id %q has an empty feature id", ErrMalformedDiff, id)
	}
	switch op := Op(code); op {
	case OpInsert, OpDelete, OpUpdateOld, OpUpdateNew:
		return op, fid, nil
	default:
		return "", "", fmt.Errorf("%w: unknown op %q in record id %q", ErrMalformedDiff, code, id)
	}
}
