package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/feature"
	"github.com/chojs23/kartkit/internal/gitutil"
	"github.com/chojs23/kartkit/internal/graph"
)

// Memory is an in-process Backend for tests. Fields may be set directly
// before use; calls are recorded in Calls.
type Memory struct {
	Branch    string
	Merging   bool
	MergeMsg  string
	Changes   map[string]feature.Summary
	DiffData  map[string][]feature.RawChange
	Commits   []graph.Commit
	GraphText string

	// ConflictRecords is what Conflicts returns while merging.
	ConflictRecords []conflict.RawConflict
	SchemaConflicts bool
	// MergeConflicts is installed as ConflictRecords by the next Merge.
	MergeConflicts []conflict.RawConflict

	Resolved []ResolveCommand
	Calls    []string
	// Fail makes the named operation return the error.
	Fail map[string]error
}

func NewMemory() *Memory {
	return &Memory{Branch: "main", Changes: map[string]feature.Summary{}}
}

var _ Backend = (*Memory)(nil)

func (m *Memory) call(op string) error {
	m.Calls = append(m.Calls, op)
	if err, ok := m.Fail[op]; ok {
		return err
	}
	return nil
}

func (m *Memory) Diff(_ context.Context, req DiffRequest) (map[string][]feature.RawChange, error) {
	if err := m.call("diff"); err != nil {
		return nil, err
	}
	out := make(map[string][]feature.RawChange)
	for dataset, records := range m.DiffData {
		if req.Dataset != "" && dataset != req.Dataset {
			continue
		}
		if req.FeatureID != "" {
			records = lo.Filter(records, func(r feature.RawChange, _ int) bool {
				_, fid, err := feature.ParseOp(r.ID)
				return err == nil && fid == req.FeatureID
			})
		}
		out[dataset] = append([]feature.RawChange(nil), records...)
	}
	return out, nil
}

func (m *Memory) Conflicts(context.Context) ([]conflict.RawConflict, error) {
	if err := m.call("conflicts"); err != nil {
		return nil, err
	}
	return append([]conflict.RawConflict(nil), m.ConflictRecords...), nil
}

func (m *Memory) ConflictsHaveSchemaChanges(context.Context) (bool, error) {
	if err := m.call("conflicts-schema"); err != nil {
		return false, err
	}
	return m.SchemaConflicts, nil
}

func (m *Memory) Resolve(_ context.Context, cmd ResolveCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := m.call("resolve"); err != nil {
		return err
	}
	prefix := cmd.Key.String() + ":"
	before := len(m.ConflictRecords)
	m.ConflictRecords = lo.Reject(m.ConflictRecords, func(r conflict.RawConflict, _ int) bool {
		return strings.HasPrefix(r.ID, prefix)
	})
	if len(m.ConflictRecords) == before {
		return &Error{Args: []string{"resolve", cmd.Key.String()}, ExitCode: 1, Stderr: "no conflict for " + cmd.Key.String()}
	}
	m.Resolved = append(m.Resolved, cmd)
	return nil
}

func (m *Memory) Log(_ context.Context, _ LogRequest) ([]graph.Commit, string, error) {
	if err := m.call("log"); err != nil {
		return nil, "", err
	}
	return append([]graph.Commit(nil), m.Commits...), m.GraphText, nil
}

func (m *Memory) Status(context.Context) (Status, error) {
	if err := m.call("status"); err != nil {
		return Status{}, err
	}
	changes := make(map[string]feature.Summary, len(m.Changes))
	for k, v := range m.Changes {
		changes[k] = v
	}
	return Status{Branch: m.Branch, Changes: changes}, nil
}

func (m *Memory) CurrentBranch(context.Context) (string, error) {
	if err := m.call("branch"); err != nil {
		return "", err
	}
	return m.Branch, nil
}

func (m *Memory) IsMerging(context.Context) (bool, error) {
	if err := m.call("is-merging"); err != nil {
		return false, err
	}
	return m.Merging, nil
}

func (m *Memory) MergeMessage(context.Context) (string, error) {
	if err := m.call("merge-message"); err != nil {
		return "", err
	}
	if m.MergeMsg == "" {
		return gitutil.DefaultMergeMessage, nil
	}
	return m.MergeMsg, nil
}

func (m *Memory) Merge(_ context.Context, req MergeRequest) (MergeResult, error) {
	if err := m.call("merge"); err != nil {
		return MergeResult{}, err
	}
	if len(m.MergeConflicts) == 0 {
		return MergeResult{Commit: "merged-" + req.Branch}, nil
	}
	m.Merging = true
	m.MergeMsg = req.Message
	if m.MergeMsg == "" {
		m.MergeMsg = fmt.Sprintf("Merge branch '%s' into %s", req.Branch, m.Branch)
	}
	m.ConflictRecords, m.MergeConflicts = m.MergeConflicts, nil

	counts := make(map[string]int)
	seen := make(map[string]bool)
	for _, r := range m.ConflictRecords {
		ds, key := conflictTarget(r.ID)
		if !seen[key] {
			seen[key] = true
			counts[ds]++
		}
	}
	return MergeResult{Conflicts: counts}, nil
}

func conflictTarget(id string) (dataset, key string) {
	parts := strings.SplitN(id, ":", 4)
	if len(parts) < 4 {
		return "", id
	}
	return parts[0], strings.Join(parts[:3], ":")
}

func (m *Memory) AbortMerge(context.Context) error {
	if err := m.call("merge-abort"); err != nil {
		return err
	}
	m.Merging, m.MergeMsg, m.ConflictRecords = false, "", nil
	return nil
}

func (m *Memory) ContinueMerge(_ context.Context, message string) error {
	if err := m.call("merge-continue"); err != nil {
		return err
	}
	if len(m.ConflictRecords) > 0 {
		return &Error{Args: []string{"merge", "--continue"}, ExitCode: 1, Stderr: "Merge conflicts remain"}
	}
	if message == "" {
		message = m.MergeMsg
	}
	m.Commits = append([]graph.Commit{{ID: fmt.Sprintf("commit-%d", len(m.Commits)+1), Message: message}}, m.Commits...)
	m.Merging, m.MergeMsg = false, ""
	return nil
}

func (m *Memory) Commit(_ context.Context, message string, datasets ...string) error {
	if err := m.call("commit"); err != nil {
		return err
	}
	if len(datasets) == 0 {
		datasets = lo.Keys(m.Changes)
	}
	sort.Strings(datasets)
	for _, ds := range datasets {
		delete(m.Changes, ds)
	}
	m.Commits = append([]graph.Commit{{ID: fmt.Sprintf("commit-%d", len(m.Commits)+1), Message: message}}, m.Commits...)
	return nil
}

func (m *Memory) Restore(_ context.Context, _ string, datasets ...string) error {
	if err := m.call("restore"); err != nil {
		return err
	}
	if len(datasets) == 0 {
		m.Changes = map[string]feature.Summary{}
		return nil
	}
	for _, ds := range datasets {
		delete(m.Changes, ds)
	}
	return nil
}

func (m *Memory) Checkout(_ context.Context, branch string, force bool) error {
	if err := m.call("checkout"); err != nil {
		return err
	}
	if !force && !(Status{Changes: m.Changes}).Clean() {
		return &Error{Args: []string{"checkout", branch}, ExitCode: 1, Stderr: "You have uncommitted changes in your working copy."}
	}
	m.Branch = branch
	m.Changes = map[string]feature.Summary{}
	return nil
}

func (m *Memory) Pull(_ context.Context, _, _ string, progress func(Progress)) (bool, error) {
	if err := m.call("pull"); err != nil {
		return false, err
	}
	if progress != nil {
		progress(Progress{Text: "Receiving objects", Percent: 100})
	}
	if len(m.MergeConflicts) > 0 {
		m.Merging = true
		m.ConflictRecords, m.MergeConflicts = m.MergeConflicts, nil
		return false, nil
	}
	return true, nil
}
