// Package repostate tracks the session state of one working copy: its
// branch, whether a merge is in progress and, if so, the open conflicts.
package repostate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chojs23/kartkit/internal/backend"
	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/engine"
	"github.com/chojs23/kartkit/internal/feature"
	"github.com/chojs23/kartkit/internal/gitutil"
	"github.com/chojs23/kartkit/internal/graph"
)

var (
	ErrNotMerging       = errors.New("no merge in progress")
	ErrDirtyWorkingTree = errors.New("working copy has uncommitted changes")
)

// State is owned by one caller at a time; it does no locking. Merge state
// is re-read from the backend on every Refresh, and the clean-tree flag is
// dropped after every mutating call.
type State struct {
	path    string
	backend backend.Backend
	logger  *zap.Logger

	branch    string
	merging   bool
	conflicts *conflict.Set
	clean     *bool
}

func New(path string, b backend.Backend, logger *zap.Logger) *State {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &State{path: path, backend: b, logger: logger}
}

func (s *State) Path() string             { return s.path }
func (s *State) Title() string            { return gitutil.Title(s.path) }
func (s *State) Branch() string           { return s.branch }
func (s *State) IsMerging() bool          { return s.merging }
func (s *State) Conflicts() *conflict.Set { return s.conflicts }
func (s *State) Backend() backend.Backend { return s.backend }

// Refresh re-reads branch and merge state. On failure the previous state
// is kept.
func (s *State) Refresh(ctx context.Context) error {
	branch, err := s.backend.CurrentBranch(ctx)
	if err != nil {
		return fmt.Errorf("read branch: %w", err)
	}
	merging, err := s.backend.IsMerging(ctx)
	if err != nil {
		return fmt.Errorf("read merge state: %w", err)
	}

	var set *conflict.Set
	if merging {
		set, err = s.loadConflicts(ctx)
		if err != nil {
			return err
		}
	}

	s.branch, s.merging, s.conflicts = branch, merging, set
	s.logger.Debug("refreshed repository state",
		zap.String("path", s.path),
		zap.String("branch", branch),
		zap.Bool("merging", merging),
		zap.Int("conflicts", set.Len()),
	)
	return nil
}

func (s *State) loadConflicts(ctx context.Context) (*conflict.Set, error) {
	schema, err := s.backend.ConflictsHaveSchemaChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("read conflicts: %w", err)
	}
	if schema {
		return nil, fmt.Errorf("%w: schema conflicts must be resolved with the backend directly", conflict.ErrUnsupportedConflictKind)
	}
	records, err := s.backend.Conflicts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read conflicts: %w", err)
	}
	return conflict.FromRaw(records)
}

// IsWorkingTreeClean reports whether the working copy has no uncommitted
// changes, using the last answer until something mutates the repository.
func (s *State) IsWorkingTreeClean(ctx context.Context) (bool, error) {
	if s.clean != nil {
		return *s.clean, nil
	}
	status, err := s.backend.Status(ctx)
	if err != nil {
		return false, err
	}
	clean := status.Clean()
	s.clean = &clean
	return clean, nil
}

func (s *State) invalidate() {
	s.clean = nil
}

// Diff returns the grouped feature changes for req.
func (s *State) Diff(ctx context.Context, req backend.DiffRequest) ([]feature.DatasetChanges, error) {
	raw, err := s.backend.Diff(ctx, req)
	if err != nil {
		return nil, err
	}
	return feature.GroupDiff(raw)
}

// History lays out the commit graph for req.
func (s *State) History(ctx context.Context, req backend.LogRequest, palette graph.Palette) (*graph.Layout, error) {
	commits, text, err := s.backend.Log(ctx, req)
	if err != nil {
		return nil, err
	}
	return graph.Build(commits, text, palette)
}

// NewSession starts resolving the current conflicts.
func (s *State) NewSession(maxUndo int) (*engine.Session, error) {
	if !s.merging {
		return nil, ErrNotMerging
	}
	return engine.NewSession(s.conflicts, maxUndo)
}

// mutate runs op, then drops cached status and re-reads merge state.
func (s *State) mutate(ctx context.Context, name string, op func() error) error {
	s.logger.Debug("mutating repository", zap.String("op", name), zap.String("path", s.path))
	err := op()
	s.invalidate()
	if refreshErr := s.Refresh(ctx); refreshErr != nil && err == nil {
		return refreshErr
	}
	return err
}

func (s *State) Commit(ctx context.Context, message string, datasets ...string) error {
	return s.mutate(ctx, "commit", func() error {
		return s.backend.Commit(ctx, message, datasets...)
	})
}

func (s *State) Restore(ctx context.Context, ref string, datasets ...string) error {
	return s.mutate(ctx, "restore", func() error {
		return s.backend.Restore(ctx, ref, datasets...)
	})
}

func (s *State) Checkout(ctx context.Context, branch string, force bool) error {
	return s.mutate(ctx, "checkout", func() error {
		return s.backend.Checkout(ctx, branch, force)
	})
}

// Merge refuses to start on a dirty working copy.
func (s *State) Merge(ctx context.Context, req backend.MergeRequest) (backend.MergeResult, error) {
	clean, err := s.IsWorkingTreeClean(ctx)
	if err != nil {
		return backend.MergeResult{}, err
	}
	if !clean {
		return backend.MergeResult{}, ErrDirtyWorkingTree
	}

	var result backend.MergeResult
	err = s.mutate(ctx, "merge", func() error {
		var err error
		result, err = s.backend.Merge(ctx, req)
		return err
	})
	return result, err
}

func (s *State) Pull(ctx context.Context, remote, branch string, progress func(backend.Progress)) (bool, error) {
	var ok bool
	err := s.mutate(ctx, "pull", func() error {
		var err error
		ok, err = s.backend.Pull(ctx, remote, branch, progress)
		return err
	})
	return ok, err
}

func (s *State) AbortMerge(ctx context.Context) error {
	if !s.merging {
		return ErrNotMerging
	}
	return s.mutate(ctx, "merge-abort", func() error {
		return s.backend.AbortMerge(ctx)
	})
}

// ContinueMerge submits every resolution in session and completes the
// merge. An empty message uses the one the merge recorded.
func (s *State) ContinueMerge(ctx context.Context, session *engine.Session, message string) error {
	if !s.merging {
		return ErrNotMerging
	}
	return s.mutate(ctx, "merge-continue", func() error {
		if session.Phase() < engine.Submitted {
			if err := session.Submit(ctx, s.backend); err != nil {
				return err
			}
		}
		return session.Close(ctx, s.backend, message)
	})
}
