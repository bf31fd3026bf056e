package feature

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

var ErrMalformedDiff = errors.New("malformed diff")

// ChangeKind classifies a feature change between two refs.
type ChangeKind int

const (
	Added ChangeKind = iota + 1
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is one added, modified or removed feature.
type Change struct {
	Dataset   string
	FeatureID string
	Kind      ChangeKind
	Old       *Feature
	New       *Feature
}

// Validate checks that the populated sides match the change kind.
func (c Change) Validate() error {
	switch c.Kind {
	case Added:
		if c.Old != nil || c.New == nil {
			return fmt.Errorf("added change %s:%s must only carry the new feature", c.Dataset, c.FeatureID)
		}
	case Removed:
		if c.Old == nil || c.New != nil {
			return fmt.Errorf("removed change %s:%s must only carry the old feature", c.Dataset, c.FeatureID)
		}
	case Modified:
		if c.Old == nil || c.New == nil {
			return fmt.Errorf("modified change %s:%s must carry both features", c.Dataset, c.FeatureID)
		}
	default:
		return fmt.Errorf("change %s:%s has unknown kind %d", c.Dataset, c.FeatureID, int(c.Kind))
	}
	return nil
}

// Classify derives the change kind from which sides are present. It never
// compares contents: the backend decides which features changed.
func Classify(old, new *Feature) ChangeKind {
	switch {
	case old == nil && new != nil:
		return Added
	case old != nil && new == nil:
		return Removed
	default:
		return Modified
	}
}

// DatasetChanges holds the grouped changes of one dataset.
type DatasetChanges struct {
	Dataset string
	Changes []Change
}

// GroupDiff groups the raw records of every dataset. Datasets are returned in
// name order. Any malformed dataset fails the whole diff.
func GroupDiff(raw map[string][]RawChange) ([]DatasetChanges, error) {
	datasets := lo.Keys(raw)
	sort.Strings(datasets)

	out := make([]DatasetChanges, 0, len(datasets))
	for _, ds := range datasets {
		changes, err := GroupByFeature(ds, raw[ds])
		if err != nil {
			return nil, err
		}
		out = append(out, DatasetChanges{Dataset: ds, Changes: changes})
	}
	return out, nil
}

type pendingChange struct {
	ops map[Op]*Feature
}

// GroupByFeature pairs update-before/update-after records and converts
// standalone inserts and deletes. Changes are returned in order of first
// appearance of their feature id.
func GroupByFeature(dataset string, raw []RawChange) ([]Change, error) {
	var order []string
	pending := make(map[string]*pendingChange)

	for _, rec := range raw {
		op, fid, err := ParseOp(rec.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dataset, err)
		}
		p, ok := pending[fid]
		if !ok {
			p = &pendingChange{ops: make(map[Op]*Feature, 2)}
			pending[fid] = p
			order = append(order, fid)
		}
		if _, dup := p.ops[op]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate %q record for feature %q", ErrMalformedDiff, dataset, op, fid)
		}
		f := rec.Feature.Clone()
		p.ops[op] = &f
	}

	changes := make([]Change, 0, len(order))
	for _, fid := range order {
		c, err := pending[fid].change(dataset, fid)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func (p *pendingChange) change(dataset, fid string) (Change, error) {
	ins, hasIns := p.ops[OpInsert]
	del, hasDel := p.ops[OpDelete]
	before, hasBefore := p.ops[OpUpdateOld]
	after, hasAfter := p.ops[OpUpdateNew]

	c := Change{Dataset: dataset, FeatureID: fid}
	switch {
	case len(p.ops) == 1 && hasIns:
		c.New = ins
	case len(p.ops) == 1 && hasDel:
		c.Old = del
	case len(p.ops) == 2 && hasBefore && hasAfter:
		c.Old, c.New = before, after
	case len(p.ops) == 1 && hasBefore:
		return Change{}, fmt.Errorf("%w: %s: %q record for feature %q has no matching %q", ErrMalformedDiff, dataset, OpUpdateOld, fid, OpUpdateNew)
	case len(p.ops) == 1 && hasAfter:
		return Change{}, fmt.Errorf("%w: %s: %q record for feature %q has no matching %q", ErrMalformedDiff, dataset, OpUpdateNew, fid, OpUpdateOld)
	default:
		ops := lo.Keys(p.ops)
		sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
		return Change{}, fmt.Errorf("%w: %s: feature %q has incompatible records %s", ErrMalformedDiff, dataset, fid, joinOps(ops))
	}
	c.Kind = Classify(c.Old, c.New)
	return c, nil
}

func joinOps(ops []Op) string {
	parts := lo.Map(ops, func(op Op, _ int) string { return string(op) })
	return strings.Join(parts, ",")
}

// Summary counts changes per kind.
type Summary struct {
	Added    int
	Modified int
	Removed  int
}

// Total is the number of changed features.
func (s Summary) Total() int {
	return s.Added + s.Modified + s.Removed
}

func Summarize(changes []Change) Summary {
	counts := lo.CountValuesBy(changes, func(c Change) ChangeKind { return c.Kind })
	return Summary{
		Added:    counts[Added],
		Modified: counts[Modified],
		Removed:  counts[Removed],
	}
}
