package conflict

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chojs23/kartkit/internal/feature"
)

var (
	ErrUnsupportedConflictKind = errors.New("unsupported conflict kind")
	ErrMalformedConflict       = errors.New("malformed conflict")
)

const elementFeature = "feature"

// RawConflict is one version of a conflicted element as listed by the
// backend. ID has the form "<dataset>:<elementType>:<featureId>:<version>".
type RawConflict struct {
	ID      string
	Feature feature.Feature
}

// RawID builds the backend id for one side of a feature conflict.
func RawID(dataset, featureID string, v Version) string {
	return strings.Join([]string{dataset, elementFeature, featureID, string(v)}, ":")
}

// Set aggregates feature conflicts across datasets. It is immutable once
// built.
type Set struct {
	datasets []string
	order    map[string][]string
	entries  map[Key]*Entry
}

// FromRaw builds a set from the backend listing. It either returns a fully
// populated set or an error; a non-feature element aborts construction.
func FromRaw(records []RawConflict) (*Set, error) {
	s := &Set{
		order:   make(map[string][]string),
		entries: make(map[Key]*Entry),
	}
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		key, version, err := parseID(rec.ID)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate conflict record %q", ErrMalformedConflict, rec.ID)
		}
		seen[rec.ID] = struct{}{}

		e, ok := s.entries[key]
		if !ok {
			if _, known := s.order[key.Dataset]; !known {
				s.datasets = append(s.datasets, key.Dataset)
			}
			s.order[key.Dataset] = append(s.order[key.Dataset], key.FeatureID)
			e = &Entry{Dataset: key.Dataset, FeatureID: key.FeatureID}
			s.entries[key] = e
		}
		f := rec.Feature.Clone()
		e.set(version, &f)
	}
	return s, nil
}

func parseID(id string) (Key, Version, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 4 {
		return Key{}, "", fmt.Errorf("%w: id %q is not <dataset>:<type>:<id>:<version>", ErrMalformedConflict, id)
	}
	dataset, element, fid, ver := parts[0], parts[1], parts[2], parts[3]
	if element != elementFeature {
		return Key{}, "", fmt.Errorf("%w: %q conflict in dataset %q", ErrUnsupportedConflictKind, element, dataset)
	}
	if dataset == "" || fid == "" {
		return Key{}, "", fmt.Errorf("%w: id %q has an empty dataset or feature id", ErrMalformedConflict, id)
	}
	v, ok := parseVersion(ver)
	if !ok {
		return Key{}, "", fmt.Errorf("%w: unknown version %q in id %q", ErrMalformedConflict, ver, id)
	}
	return Key{Dataset: dataset, FeatureID: fid}, v, nil
}

func (s *Set) IsEmpty() bool {
	return s == nil || len(s.entries) == 0
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Datasets returns dataset names in order of first appearance.
func (s *Set) Datasets() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.datasets...)
}

// Entries returns every entry grouped by dataset, each group in order of
// first appearance.
func (s *Set) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, 0, len(s.entries))
	for _, ds := range s.datasets {
		out = append(out, s.DatasetEntries(ds)...)
	}
	return out
}

func (s *Set) DatasetEntries(dataset string) []Entry {
	if s == nil {
		return nil
	}
	fids := s.order[dataset]
	out := make([]Entry, 0, len(fids))
	for _, fid := range fids {
		out = append(out, *s.entries[Key{Dataset: dataset, FeatureID: fid}])
	}
	return out
}

func (s *Set) Lookup(key Key) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Contains reports whether the key belongs to the set.
func (s *Set) Contains(key Key) bool {
	_, ok := s.Lookup(key)
	return ok
}
