// Package conflict holds the per-feature three-way conflicts reported by the
// backend after a merge or pull.
package conflict

import (
	"fmt"

	"github.com/chojs23/kartkit/internal/feature"
)

// Version names one side of a three-way conflict.
type Version string

const (
	Ancestor Version = "ancestor"
	Ours     Version = "ours"
	Theirs   Version = "theirs"
)

// Versions lists the conflict sides in display order.
var Versions = []Version{Ancestor, Ours, Theirs}

func parseVersion(s string) (Version, bool) {
	switch v := Version(s); v {
	case Ancestor, Ours, Theirs:
		return v, true
	default:
		return "", false
	}
}

// Key identifies a conflict entry.
type Key struct {
	Dataset   string
	FeatureID string
}

// String renders the key the way the backend addresses a feature,
// "<dataset>:feature:<featureId>".
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Dataset, elementFeature, k.FeatureID)
}

// Kind describes which sides of a conflict are present.
type Kind string

const (
	KindModifyModify Kind = "modify/modify"
	KindDeleteModify Kind = "delete/modify" // we deleted, they modified
	KindModifyDelete Kind = "modify/delete" // we modified, they deleted
	KindAddAdd       Kind = "add/add"
)

// Entry is a single feature conflict. A nil slot means the feature does not
// exist on that side.
type Entry struct {
	Dataset   string
	FeatureID string
	Ancestor  *feature.Feature
	Ours      *feature.Feature
	Theirs    *feature.Feature
}

func (e Entry) Key() Key {
	return Key{Dataset: e.Dataset, FeatureID: e.FeatureID}
}

// Version returns the feature stored for one side, or nil.
func (e Entry) Version(v Version) *feature.Feature {
	switch v {
	case Ancestor:
		return e.Ancestor
	case Ours:
		return e.Ours
	case Theirs:
		return e.Theirs
	default:
		return nil
	}
}

// HasDeletion reports whether one side removed the feature.
func (e Entry) HasDeletion() bool {
	return e.Ancestor != nil && (e.Ours == nil || e.Theirs == nil)
}

func (e Entry) Kind() Kind {
	switch {
	case e.Ancestor == nil:
		return KindAddAdd
	case e.Ours == nil:
		return KindDeleteModify
	case e.Theirs == nil:
		return KindModifyDelete
	default:
		return KindModifyModify
	}
}

func (e *Entry) set(v Version, f *feature.Feature) {
	switch v {
	case Ancestor:
		e.Ancestor = f
	case Ours:
		e.Ours = f
	case Theirs:
		e.Theirs = f
	}
}
