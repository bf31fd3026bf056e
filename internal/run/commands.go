package run

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/chojs23/kartkit/internal/backend"
	"github.com/chojs23/kartkit/internal/cli"
	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/feature"
	"github.com/chojs23/kartkit/internal/graph"
)

func status(ctx context.Context, opts cli.Options, env Env) error {
	state := env.State
	if err := state.Refresh(ctx); err != nil {
		return err
	}
	st, err := state.Backend().Status(ctx)
	if err != nil {
		return err
	}

	w := env.Stdout
	if title := state.Title(); title != "" {
		fmt.Fprintln(w, title)
	}
	fmt.Fprintf(w, "On branch %s\n", state.Branch())
	if state.IsMerging() {
		fmt.Fprintf(w, "Merging: %s\n", conflictSummary(state.Conflicts()))
	}

	if st.Clean() {
		fmt.Fprintln(w, "Nothing to commit, working copy clean")
		return nil
	}
	fmt.Fprintln(w, "Changes in working copy:")
	datasets := lo.Keys(st.Changes)
	sort.Strings(datasets)
	for _, ds := range datasets {
		if summary := st.Changes[ds]; summary.Total() > 0 {
			fmt.Fprintf(w, "  %s: %s\n", ds, summaryText(summary))
		}
	}
	return nil
}

func summaryText(s feature.Summary) string {
	return fmt.Sprintf("%s added, %s modified, %s removed",
		humanize.Comma(int64(s.Added)), humanize.Comma(int64(s.Modified)), humanize.Comma(int64(s.Removed)))
}

func conflictSummary(set *conflict.Set) string {
	if set.IsEmpty() {
		return "all conflicts resolved"
	}
	parts := lo.Map(set.Datasets(), func(ds string, _ int) string {
		return fmt.Sprintf("%s: %d", ds, len(set.DatasetEntries(ds)))
	})
	noun := "conflicts"
	if set.Len() == 1 {
		noun = "conflict"
	}
	return fmt.Sprintf("%d %s (%s)", set.Len(), noun, strings.Join(parts, ", "))
}

func kindSymbol(k feature.ChangeKind) string {
	switch k {
	case feature.Added:
		return "+"
	case feature.Removed:
		return "-"
	default:
		return "~"
	}
}

func diff(ctx context.Context, opts cli.Options, env Env) error {
	changes, err := env.State.Diff(ctx, backend.DiffRequest{
		RefA:      opts.RefA,
		RefB:      opts.RefB,
		Dataset:   opts.Dataset,
		FeatureID: opts.FeatureID,
	})
	if err != nil {
		return err
	}

	w := env.Stdout
	total := 0
	for _, ds := range changes {
		if len(ds.Changes) == 0 {
			continue
		}
		total += len(ds.Changes)
		fmt.Fprintf(w, "%s: %s\n", ds.Dataset, summaryText(feature.Summarize(ds.Changes)))
		for _, c := range ds.Changes {
			fmt.Fprintf(w, "  %s %s\n", kindSymbol(c.Kind), c.FeatureID)
			if c.Kind == feature.Modified {
				writeModifiedFields(w, c)
			}
		}
	}
	if total == 0 {
		fmt.Fprintln(w, "No changes")
	}
	return nil
}

// writeModifiedFields lists the attributes that differ between the old and
// new feature of a modification.
func writeModifiedFields(w io.Writer, c feature.Change) {
	names := lo.Uniq(append(c.Old.Names(), c.New.Names()...))
	sort.Strings(names)
	if !feature.GeometryEqual(c.Old.Geometry, c.New.Geometry) {
		fmt.Fprintf(w, "      %s changed\n", feature.GeometryField)
	}
	for _, name := range names {
		before, _ := c.Old.Value(name)
		after, _ := c.New.Value(name)
		if !feature.ValuesEqual(before, after) {
			fmt.Fprintf(w, "      %s: %v -> %v\n", name, before, after)
		}
	}
}

func conflicts(ctx context.Context, opts cli.Options, env Env) error {
	state := env.State
	if err := state.Refresh(ctx); err != nil {
		return err
	}

	w := env.Stdout
	if !state.IsMerging() {
		fmt.Fprintln(w, "No merge in progress")
		return nil
	}
	set := state.Conflicts()
	if set.IsEmpty() {
		fmt.Fprintln(w, "No conflicts remain. Run `kartkit merge --continue` to finish the merge.")
		return nil
	}

	if !opts.Check {
		for _, entry := range set.Entries() {
			fmt.Fprintf(w, "%-13s %s\n", entry.Kind(), entry.Key())
		}
	}
	return fmt.Errorf("%w: %s", ErrConflicts, conflictSummary(set))
}

func history(ctx context.Context, opts cli.Options, env Env) error {
	layout, err := env.State.History(ctx, backend.LogRequest{
		Ref:       opts.RefA,
		Dataset:   opts.Dataset,
		FeatureID: opts.FeatureID,
	}, graph.DefaultPalette)
	if err != nil {
		return err
	}
	if layout.Len() == 0 {
		fmt.Fprintln(env.Stdout, "No commits")
		return nil
	}
	fmt.Fprint(env.Stdout, graph.Render(layout, time.Now()))
	return nil
}

func merge(ctx context.Context, opts cli.Options, env Env) error {
	state := env.State
	if err := state.Refresh(ctx); err != nil {
		return err
	}
	w := env.Stdout

	switch {
	case opts.Abort:
		if err := state.AbortMerge(ctx); err != nil {
			return err
		}
		fmt.Fprintln(w, "Merge aborted")
		return nil

	case opts.Continue:
		session, err := state.NewSession(env.MaxUndo)
		if err != nil {
			return err
		}
		if err := state.ContinueMerge(ctx, session, opts.Message); err != nil {
			return err
		}
		fmt.Fprintln(w, "Merge completed")
		return nil
	}

	result, err := state.Merge(ctx, backend.MergeRequest{
		Branch:  opts.Branch,
		Message: opts.Message,
		NoFF:    opts.NoFF,
		FFOnly:  opts.FFOnly,
	})
	if err != nil {
		return err
	}
	switch {
	case result.Conflicted():
		return fmt.Errorf("%w: merging %s produced %s; run `kartkit resolve`", ErrConflicts, opts.Branch, mergeConflictText(result.Conflicts))
	case result.NoOp:
		fmt.Fprintln(w, "Already up to date")
	case result.FastForward:
		fmt.Fprintf(w, "Fast-forwarded to %s\n", result.Commit)
	default:
		fmt.Fprintf(w, "Merged %s as %s\n", opts.Branch, result.Commit)
	}
	return nil
}

func mergeConflictText(counts map[string]int) string {
	datasets := lo.Keys(counts)
	sort.Strings(datasets)
	total := 0
	parts := make([]string, 0, len(datasets))
	for _, ds := range datasets {
		total += counts[ds]
		parts = append(parts, fmt.Sprintf("%s: %d", ds, counts[ds]))
	}
	return fmt.Sprintf("%d conflicts (%s)", total, strings.Join(parts, ", "))
}

func commit(ctx context.Context, opts cli.Options, env Env) error {
	if err := env.State.Commit(ctx, opts.Message, opts.Datasets...); err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout, "Changes committed")
	return nil
}

func restore(ctx context.Context, opts cli.Options, env Env) error {
	if err := env.State.Restore(ctx, opts.RefA, opts.Datasets...); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "Working copy restored from %s\n", opts.RefA)
	return nil
}

func checkout(ctx context.Context, opts cli.Options, env Env) error {
	if err := env.State.Checkout(ctx, opts.Branch, opts.Force); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "Switched to branch %s\n", opts.Branch)
	return nil
}

func pull(ctx context.Context, opts cli.Options, env Env) error {
	progress := func(p backend.Progress) {
		if p.Percent >= 0 {
			fmt.Fprintf(env.Stderr, "\r%s: %d%%", p.Text, p.Percent)
			return
		}
		fmt.Fprintf(env.Stderr, "\r%s", p.Text)
	}
	ok, err := env.State.Pull(ctx, opts.Remote, opts.Branch, progress)
	fmt.Fprintln(env.Stderr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: pulling from %s produced conflicts; run `kartkit resolve`", ErrConflicts, opts.Remote)
	}
	fmt.Fprintf(env.Stdout, "Pulled from %s\n", opts.Remote)
	return nil
}
