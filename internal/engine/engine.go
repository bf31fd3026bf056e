// Package engine turns per-feature decisions into a resolution payload the
// backend can apply, and tracks a resolution session until it is submitted.
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/chojs23/kartkit/internal/backend"
	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/feature"
)

var (
	ErrMissingVersion  = errors.New("conflict version not present")
	ErrUnknownStrategy = errors.New("unknown resolution strategy")
	ErrNotMergeable    = errors.New("conflicts are not all resolved")
)

type strategyKind int

const (
	kindOurs strategyKind = iota + 1
	kindTheirs
	kindAncestor
	kindManual
	kindDelete
	kindModified
)

// Strategy is how a single conflict gets resolved.
type Strategy struct {
	kind   strategyKind
	manual feature.Feature
}

var (
	UseOurs     = Strategy{kind: kindOurs}
	UseTheirs   = Strategy{kind: kindTheirs}
	UseAncestor = Strategy{kind: kindAncestor}
	Delete      = Strategy{kind: kindDelete}
	// UseModified keeps whichever side still has the feature when the other
	// side deleted it.
	UseModified = Strategy{kind: kindModified}
)

// UseManual resolves to a caller-built feature.
func UseManual(f feature.Feature) Strategy {
	return Strategy{kind: kindManual, manual: f.Clone()}
}

// StrategyNames lists the strategies that can be named on the command line.
var StrategyNames = []string{"ours", "theirs", "ancestor", "delete", "modified"}

func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ours":
		return UseOurs, nil
	case "theirs":
		return UseTheirs, nil
	case "ancestor", "base":
		return UseAncestor, nil
	case "delete":
		return Delete, nil
	case "modified":
		return UseModified, nil
	default:
		return Strategy{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

func (s Strategy) String() string {
	switch s.kind {
	case kindOurs:
		return "ours"
	case kindTheirs:
		return "theirs"
	case kindAncestor:
		return "ancestor"
	case kindManual:
		return "manual"
	case kindDelete:
		return "delete"
	case kindModified:
		return "modified"
	default:
		return "unknown"
	}
}

func (s Strategy) version() (conflict.Version, bool) {
	switch s.kind {
	case kindOurs:
		return conflict.Ours, true
	case kindTheirs:
		return conflict.Theirs, true
	case kindAncestor:
		return conflict.Ancestor, true
	default:
		return "", false
	}
}

// Outcome is the result of a resolution.
type Outcome int

const (
	Unresolved Outcome = iota
	KeepFeature
	DeleteFeature
)

func (o Outcome) String() string {
	switch o {
	case KeepFeature:
		return "keep"
	case DeleteFeature:
		return "delete"
	default:
		return "unresolved"
	}
}

// Resolution is the decision for one conflicted feature. Feature is set
// only when Outcome is KeepFeature.
type Resolution struct {
	Key      conflict.Key
	Outcome  Outcome
	Feature  *feature.Feature
	Strategy Strategy
}

// Pending returns the unresolved placeholder for key.
func Pending(key conflict.Key) Resolution {
	return Resolution{Key: key}
}

func (r Resolution) Resolved() bool {
	return r.Outcome != Unresolved
}

func keep(key conflict.Key, f feature.Feature, s Strategy) Resolution {
	clone := f.Clone()
	return Resolution{Key: key, Outcome: KeepFeature, Feature: &clone, Strategy: s}
}

// ResolveWith applies s to entry. Strategies that pick a side fail with
// ErrMissingVersion when that side has no feature.
func ResolveWith(entry conflict.Entry, s Strategy) (Resolution, error) {
	key := entry.Key()
	switch s.kind {
	case kindOurs, kindTheirs, kindAncestor:
		v, _ := s.version()
		f := entry.Version(v)
		if f == nil {
			return Resolution{}, fmt.Errorf("%w: %s has no %s version", ErrMissingVersion, key, v)
		}
		return keep(key, *f, s), nil
	case kindModified:
		switch {
		case entry.Ours != nil && entry.Theirs == nil:
			return keep(key, *entry.Ours, s), nil
		case entry.Theirs != nil && entry.Ours == nil:
			return keep(key, *entry.Theirs, s), nil
		default:
			return Resolution{}, fmt.Errorf("%w: %s was not deleted on one side only", ErrMissingVersion, key)
		}
	case kindManual:
		return keep(key, s.manual, s), nil
	case kindDelete:
		return Resolution{Key: key, Outcome: DeleteFeature, Strategy: s}, nil
	default:
		return Resolution{}, fmt.Errorf("%w: %d", ErrUnknownStrategy, s.kind)
	}
}

// Available returns the named strategies that can resolve entry.
func Available(entry conflict.Entry) []Strategy {
	out := make([]Strategy, 0, len(StrategyNames))
	for _, name := range StrategyNames {
		s, _ := ParseStrategy(name)
		if _, err := ResolveWith(entry, s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports every reason resolutions cannot be submitted for set.
func Validate(set *conflict.Set, resolutions []Resolution) error {
	var result *multierror.Error
	seen := make(map[conflict.Key]bool, len(resolutions))

	for _, r := range resolutions {
		switch {
		case !set.Contains(r.Key):
			result = multierror.Append(result, fmt.Errorf("%w: %s is not a conflict", ErrNotMergeable, r.Key))
		case seen[r.Key]:
			result = multierror.Append(result, fmt.Errorf("%w: %s resolved twice", ErrNotMergeable, r.Key))
		case !r.Resolved():
			result = multierror.Append(result, fmt.Errorf("%w: %s is unresolved", ErrNotMergeable, r.Key))
		case r.Outcome == KeepFeature && r.Feature == nil:
			result = multierror.Append(result, fmt.Errorf("%w: %s keeps no feature", ErrNotMergeable, r.Key))
		}
		seen[r.Key] = true
	}
	for _, entry := range set.Entries() {
		if !seen[entry.Key()] {
			result = multierror.Append(result, fmt.Errorf("%w: %s has no resolution", ErrNotMergeable, entry.Key()))
		}
	}
	return result.ErrorOrNil()
}

// IsMergeable reports whether resolutions cover every entry in set and
// none is unresolved.
func IsMergeable(set *conflict.Set, resolutions []Resolution) bool {
	return Validate(set, resolutions) == nil
}

// ToBackendPayload converts a complete resolution set into backend commands,
// in the set's entry order. It refuses anything that is not mergeable.
func ToBackendPayload(set *conflict.Set, resolutions []Resolution) ([]backend.ResolveCommand, error) {
	if err := Validate(set, resolutions); err != nil {
		return nil, err
	}
	byKey := make(map[conflict.Key]Resolution, len(resolutions))
	for _, r := range resolutions {
		byKey[r.Key] = r
	}

	cmds := make([]backend.ResolveCommand, 0, len(resolutions))
	for _, entry := range set.Entries() {
		r := byKey[entry.Key()]
		cmd := backend.ResolveCommand{Key: r.Key}
		if r.Outcome == DeleteFeature {
			cmd.Delete = true
		} else {
			f := r.Feature.Clone()
			cmd.Feature = &f
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}
