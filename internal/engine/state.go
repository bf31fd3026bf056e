package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/chojs23/kartkit/internal/backend"
	"github.com/chojs23/kartkit/internal/conflict"
)

var ErrSessionSubmitted = errors.New("resolution session already submitted")

// Phase is where a session is in its lifecycle. Phases only move forward,
// one step at a time, except that clearing a decision moves AllResolved
// back to Open.
type Phase int

const (
	Open Phase = iota
	AllResolved
	Submitted
	Closed
)

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case AllResolved:
		return "all-resolved"
	case Submitted:
		return "submitted"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

type decisions map[conflict.Key]Resolution

func (d decisions) clone() decisions {
	out := make(decisions, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Session collects decisions for one conflict set with undo support and
// submits them to the backend as one batch.
type Session struct {
	set         *conflict.Set
	current     decisions
	undoStack   []decisions
	redoStack   []decisions
	maxUndoSize int
	phase       Phase
	sent        map[conflict.Key]bool
}

// NewSession starts resolving set. maxUndoSize controls how many undo
// operations to retain (must be >= 1).
func NewSession(set *conflict.Set, maxUndoSize int) (*Session, error) {
	if maxUndoSize < 1 {
		return nil, fmt.Errorf("maxUndoSize must be >= 1, got %d", maxUndoSize)
	}
	s := &Session{
		set:         set,
		current:     decisions{},
		undoStack:   make([]decisions, 0, maxUndoSize),
		redoStack:   make([]decisions, 0, maxUndoSize),
		maxUndoSize: maxUndoSize,
		sent:        map[conflict.Key]bool{},
	}
	s.updatePhase()
	return s, nil
}

func (s *Session) Set() *conflict.Set { return s.set }
func (s *Session) Phase() Phase       { return s.phase }

func (s *Session) Entries() []conflict.Entry {
	return s.set.Entries()
}

// Resolution returns the decision for key, or a pending one.
func (s *Session) Resolution(key conflict.Key) Resolution {
	if r, ok := s.current[key]; ok {
		return r
	}
	return Pending(key)
}

// Resolutions returns one resolution per entry, in entry order. Entries
// without a decision are reported as unresolved.
func (s *Session) Resolutions() []Resolution {
	entries := s.set.Entries()
	out := make([]Resolution, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.Resolution(e.Key()))
	}
	return out
}

// Remaining counts entries still unresolved.
func (s *Session) Remaining() int {
	n := 0
	for _, r := range s.Resolutions() {
		if !r.Resolved() {
			n++
		}
	}
	return n
}

// Apply resolves one entry with strategy. A failing strategy leaves the
// session untouched.
func (s *Session) Apply(key conflict.Key, strategy Strategy) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	entry, ok := s.set.Lookup(key)
	if !ok {
		return fmt.Errorf("%s is not a conflict", key)
	}
	res, err := ResolveWith(entry, strategy)
	if err != nil {
		return err
	}

	s.beginMutation()
	s.current[key] = res
	s.updatePhase()
	return nil
}

// ApplyResolution records a resolution built elsewhere, such as by
// BuildFeature.
func (s *Session) ApplyResolution(res Resolution) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	if !s.set.Contains(res.Key) {
		return fmt.Errorf("%s is not a conflict", res.Key)
	}

	s.beginMutation()
	if res.Resolved() {
		s.current[res.Key] = res
	} else {
		delete(s.current, res.Key)
	}
	s.updatePhase()
	return nil
}

// Clear drops the decision for key.
func (s *Session) Clear(key conflict.Key) error {
	return s.ApplyResolution(Pending(key))
}

// ApplyAll resolves every entry with strategy. Either every entry accepts
// the strategy or nothing changes; the error lists each entry that refused.
func (s *Session) ApplyAll(strategy Strategy) error {
	if err := s.checkMutable(); err != nil {
		return err
	}

	next := s.current.clone()
	var result *multierror.Error
	for _, entry := range s.set.Entries() {
		res, err := ResolveWith(entry, strategy)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		next[entry.Key()] = res
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	s.beginMutation()
	s.current = next
	s.updatePhase()
	return nil
}

// Undo restores the previous decisions.
func (s *Session) Undo() error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	if len(s.undoStack) == 0 {
		return fmt.Errorf("no undo history available")
	}

	s.pushWithLimit(&s.redoStack, s.current)

	lastIdx := len(s.undoStack) - 1
	s.current = s.undoStack[lastIdx]
	s.undoStack = s.undoStack[:lastIdx]
	s.updatePhase()
	return nil
}

// Redo reapplies previously undone decisions.
func (s *Session) Redo() error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	if len(s.redoStack) == 0 {
		return fmt.Errorf("no redo history available")
	}

	s.pushWithLimit(&s.undoStack, s.current)

	lastIdx := len(s.redoStack) - 1
	s.current = s.redoStack[lastIdx]
	s.redoStack = s.redoStack[:lastIdx]
	s.updatePhase()
	return nil
}

func (s *Session) UndoDepth() int { return len(s.undoStack) }
func (s *Session) RedoDepth() int { return len(s.redoStack) }

// Submit sends every resolution to b. It refuses unless all entries are
// resolved. If the backend fails part way, the session stays AllResolved
// and a later Submit only sends what has not been accepted yet.
func (s *Session) Submit(ctx context.Context, b backend.Backend) error {
	if s.phase >= Submitted {
		return ErrSessionSubmitted
	}
	cmds, err := ToBackendPayload(s.set, s.Resolutions())
	if err != nil {
		return err
	}
	for _, cmd := range cmds {
		if s.sent[cmd.Key] {
			continue
		}
		if err := b.Resolve(ctx, cmd); err != nil {
			return fmt.Errorf("submit %s: %w", cmd, err)
		}
		s.sent[cmd.Key] = true
	}
	s.phase = Submitted
	return nil
}

// Close finishes the merge once the resolutions are in.
func (s *Session) Close(ctx context.Context, b backend.Backend, message string) error {
	switch s.phase {
	case Closed:
		return ErrSessionSubmitted
	case Submitted:
	default:
		return fmt.Errorf("%w: session is %s", ErrNotMergeable, s.phase)
	}
	if err := b.ContinueMerge(ctx, message); err != nil {
		return err
	}
	s.phase = Closed
	return nil
}

func (s *Session) checkMutable() error {
	if s.phase >= Submitted || len(s.sent) > 0 {
		return ErrSessionSubmitted
	}
	return nil
}

func (s *Session) updatePhase() {
	if s.Remaining() == 0 {
		s.phase = AllResolved
	} else {
		s.phase = Open
	}
}

// beginMutation saves the current decisions to undo and clears redo history.
func (s *Session) beginMutation() {
	s.pushWithLimit(&s.undoStack, s.current)
	s.current = s.current.clone()
	s.redoStack = s.redoStack[:0]
}

// pushWithLimit saves a snapshot into the stack and enforces max size.
func (s *Session) pushWithLimit(stack *[]decisions, d decisions) {
	*stack = append(*stack, d.clone())
	if len(*stack) > s.maxUndoSize {
		*stack = (*stack)[1:]
	}
}
