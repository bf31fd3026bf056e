// Package backend talks to the version-control executable that owns the
// on-disk repository. Everything it returns is already parsed into typed
// values; raw output never leaves this package.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/feature"
	"github.com/chojs23/kartkit/internal/graph"
)

var (
	ErrBackend            = errors.New("backend command failed")
	ErrParse              = errors.New("unparseable backend output")
	ErrNotInstalled       = errors.New("backend executable not found")
	ErrUnsupportedVersion = errors.New("unsupported backend version")
)

// Backend is the set of repository operations the client relies on.
type Backend interface {
	Diff(ctx context.Context, req DiffRequest) (map[string][]feature.RawChange, error)
	Conflicts(ctx context.Context) ([]conflict.RawConflict, error)
	ConflictsHaveSchemaChanges(ctx context.Context) (bool, error)
	Resolve(ctx context.Context, cmd ResolveCommand) error
	Log(ctx context.Context, req LogRequest) ([]graph.Commit, string, error)
	Status(ctx context.Context) (Status, error)
	CurrentBranch(ctx context.Context) (string, error)
	IsMerging(ctx context.Context) (bool, error)
	MergeMessage(ctx context.Context) (string, error)
	Merge(ctx context.Context, req MergeRequest) (MergeResult, error)
	AbortMerge(ctx context.Context) error
	ContinueMerge(ctx context.Context, message string) error
	Commit(ctx context.Context, message string, datasets ...string) error
	Restore(ctx context.Context, ref string, datasets ...string) error
	Checkout(ctx context.Context, branch string, force bool) error
	Pull(ctx context.Context, remote, branch string, progress func(Progress)) (bool, error)
}

// DiffRequest selects what to compare. With no refs the working copy is
// compared against HEAD; with RefA only, the working copy against RefA.
type DiffRequest struct {
	RefA      string
	RefB      string
	Dataset   string
	FeatureID string
}

// Refspec returns the revision argument for the request.
func (r DiffRequest) Refspec() string {
	switch {
	case r.RefA != "" && r.RefB != "":
		return r.RefB + "..." + r.RefA
	case r.RefA != "":
		return r.RefA
	default:
		return "HEAD"
	}
}

// Filter returns the dataset filter argument, or "" for the whole repo.
func (r DiffRequest) Filter() string {
	switch {
	case r.Dataset != "" && r.FeatureID != "":
		return r.Dataset + ":" + r.FeatureID
	default:
		return r.Dataset
	}
}

type LogRequest struct {
	Ref       string
	Dataset   string
	FeatureID string
}

func (r LogRequest) ref() string {
	if r.Ref == "" {
		return "HEAD"
	}
	return r.Ref
}

// ResolveCommand settles one conflicted feature. A nil Feature with
// Delete unset is invalid.
type ResolveCommand struct {
	Key     conflict.Key
	Delete  bool
	Feature *feature.Feature
}

func (c ResolveCommand) Validate() error {
	if c.Key.Dataset == "" || c.Key.FeatureID == "" {
		return fmt.Errorf("resolve command without target")
	}
	if c.Delete == (c.Feature != nil) {
		return fmt.Errorf("resolve command for %s must either delete or carry a feature", c.Key)
	}
	return nil
}

func (c ResolveCommand) String() string {
	if c.Delete {
		return "delete " + c.Key.String()
	}
	return "replace " + c.Key.String()
}

// Status summarizes the working copy.
type Status struct {
	Branch  string
	Commit  string
	Changes map[string]feature.Summary
}

// Clean reports whether the working copy has no uncommitted feature changes.
func (s Status) Clean() bool {
	for _, summary := range s.Changes {
		if summary.Total() > 0 {
			return false
		}
	}
	return true
}

type MergeRequest struct {
	Branch  string
	Message string
	NoFF    bool
	FFOnly  bool
}

type MergeResult struct {
	Commit      string
	FastForward bool
	NoOp        bool
	// Conflicts maps dataset names to the number of conflicted features.
	Conflicts map[string]int
}

func (r MergeResult) Conflicted() bool {
	return len(r.Conflicts) > 0
}

// Error is a failed backend invocation. Stderr is passed through untouched.
type Error struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message()
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s (exit %d): %s", ErrBackend, strings.Join(e.Args, " "), e.ExitCode, msg)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBackend}
	}
	return []error{ErrBackend, e.Err}
}

var noiseLines = []string{
	"ERROR 1: Can't load",
	"The specified procedure could not be found",
}

// Message returns stderr without the library loader noise some platforms
// print on every invocation.
func (e *Error) Message() string {
	lines := strings.Split(e.Stderr, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimRight(line, "\r ")
		if line == "" || isNoise(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// NeedsCleanTree reports whether the command refused to run because of
// uncommitted changes.
func (e *Error) NeedsCleanTree() bool {
	return strings.Contains(e.Stderr, "You have uncommitted changes")
}

func isNoise(line string) bool {
	for _, noise := range noiseLines {
		if strings.Contains(line, noise) {
			return true
		}
	}
	return false
}
