package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/samber/lo"

	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/feature"
)

var (
	ErrUndecidedField = errors.New("field needs an explicit decision")
	ErrUnknownField   = errors.New("field is not part of the conflict")
)

// FieldSuggestion compares one attribute (or the geometry) across the three
// versions of a conflict.
type FieldSuggestion struct {
	Name     string
	Ancestor any
	Ours     any
	Theirs   any
	// Default is the value to use when the caller does not decide. It is
	// only meaningful when HasDefault is set.
	Default    any
	HasDefault bool
}

// Conflicted reports whether ours and theirs disagree on the field.
func (s FieldSuggestion) Conflicted() bool {
	return !feature.ValuesEqual(s.Ours, s.Theirs)
}

// SuggestFields lines up every attribute of the three versions, geometry
// first. When only one side moved away from the ancestor, that side's value
// is the default. When all three differ there is no default.
func SuggestFields(entry conflict.Entry) ([]FieldSuggestion, error) {
	for _, v := range conflict.Versions {
		if entry.Version(v) == nil {
			return nil, fmt.Errorf("%w: %s has no %s version, field merge needs all three", ErrMissingVersion, entry.Key(), v)
		}
	}

	names := lo.Uniq(append(append(entry.Ancestor.Names(), entry.Ours.Names()...), entry.Theirs.Names()...))
	names = lo.Without(names, feature.GeometryField)
	sort.Strings(names)
	names = append([]string{feature.GeometryField}, names...)

	out := make([]FieldSuggestion, 0, len(names))
	for _, name := range names {
		s := FieldSuggestion{
			Name:     name,
			Ancestor: value(*entry.Ancestor, name),
			Ours:     value(*entry.Ours, name),
			Theirs:   value(*entry.Theirs, name),
		}
		switch {
		case feature.ValuesEqual(s.Ours, s.Theirs), feature.ValuesEqual(s.Ancestor, s.Theirs):
			s.Default, s.HasDefault = s.Ours, true
		case feature.ValuesEqual(s.Ancestor, s.Ours):
			s.Default, s.HasDefault = s.Theirs, true
		}
		out = append(out, s)
	}
	return out, nil
}

func value(f feature.Feature, name string) any {
	if name == feature.GeometryField {
		if f.Geometry == nil {
			return nil
		}
		return f.Geometry
	}
	v, _ := f.Value(name)
	return v
}

// FieldDecisions are the caller's explicit picks for a field-by-field merge.
// Geometry is only used when GeometryChosen is set, so a nil geometry can be
// chosen deliberately.
type FieldDecisions struct {
	Fields         map[string]any
	Geometry       orb.Geometry
	GeometryChosen bool
}

// BuildFeature merges entry field by field. Fields without a decision take
// their suggested default; a field with neither fails with
// ErrUndecidedField.
func BuildFeature(entry conflict.Entry, d FieldDecisions) (Resolution, error) {
	suggestions, err := SuggestFields(entry)
	if err != nil {
		return Resolution{}, err
	}

	known := lo.SliceToMap(suggestions, func(s FieldSuggestion) (string, bool) { return s.Name, true })
	for name := range d.Fields {
		if !known[name] || name == feature.GeometryField {
			return Resolution{}, fmt.Errorf("%w: %q in %s", ErrUnknownField, name, entry.Key())
		}
	}

	merged := feature.Feature{Properties: geojson.Properties{}}
	var undecided []string
	for _, s := range suggestions {
		if s.Name == feature.GeometryField {
			switch {
			case d.GeometryChosen:
				merged.Geometry = d.Geometry
			case s.HasDefault:
				merged.Geometry, _ = s.Default.(orb.Geometry)
			default:
				undecided = append(undecided, s.Name)
			}
			continue
		}
		if v, ok := d.Fields[s.Name]; ok {
			merged.Properties[s.Name] = v
			continue
		}
		if !s.HasDefault {
			undecided = append(undecided, s.Name)
			continue
		}
		merged.Properties[s.Name] = s.Default
	}
	if len(undecided) > 0 {
		return Resolution{}, fmt.Errorf("%w: %s in %s", ErrUndecidedField, strings.Join(undecided, ", "), entry.Key())
	}
	return ResolveWith(entry, UseManual(merged))
}
