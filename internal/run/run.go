package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/chojs23/kartkit/internal/cli"
	"github.com/chojs23/kartkit/internal/repostate"
)

var (
	// ErrConflicts means the command finished but left conflicts to resolve.
	ErrConflicts = errors.New("conflicts need resolving")
	errDeclined  = errors.New("resolutions not submitted")
)

// Env is everything a command needs besides its flags.
type Env struct {
	State       *repostate.State
	Logger      *zap.Logger
	Stdout      io.Writer
	Stderr      io.Writer
	Stdin       io.Reader
	Interactive bool
	MaxUndo     int
	// Confirm asks a yes/no question. Nil answers yes.
	Confirm func(prompt string) (bool, error)
}

func (e Env) withDefaults() Env {
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.Stderr == nil {
		e.Stderr = os.Stderr
	}
	if e.Stdin == nil {
		e.Stdin = os.Stdin
	}
	if e.MaxUndo < 1 {
		e.MaxUndo = 100
	}
	return e
}

// Run executes cmd and returns the process exit code: 0 on success, 1 when
// conflicts remain or the user declined, 2 on errors.
func Run(ctx context.Context, cmd cli.Command, opts cli.Options, env Env) int {
	env = env.withDefaults()
	env.Logger.Debug("running command", zap.String("command", string(cmd)), zap.String("repo", opts.RepoPath))
	return Exit(env.Stderr, dispatch(ctx, cmd, opts, env))
}

func dispatch(ctx context.Context, cmd cli.Command, opts cli.Options, env Env) error {
	if env.State == nil {
		return fmt.Errorf("%w: no repository opened", repostate.ErrNotRepository)
	}

	switch cmd {
	case cli.CmdStatus:
		return status(ctx, opts, env)
	case cli.CmdDiff:
		return diff(ctx, opts, env)
	case cli.CmdConflicts:
		return conflicts(ctx, opts, env)
	case cli.CmdResolve:
		return resolve(ctx, opts, env)
	case cli.CmdLog:
		return history(ctx, opts, env)
	case cli.CmdMerge:
		return merge(ctx, opts, env)
	case cli.CmdCommit:
		return commit(ctx, opts, env)
	case cli.CmdRestore:
		return restore(ctx, opts, env)
	case cli.CmdCheckout:
		return checkout(ctx, opts, env)
	case cli.CmdPull:
		return pull(ctx, opts, env)
	default:
		return fmt.Errorf("%w: unknown command %q", cli.ErrUsage, cmd)
	}
}

// Exit reports err on w and maps it to an exit code.
func Exit(w io.Writer, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrConflicts), errors.Is(err, errDeclined):
		fmt.Fprintln(w, err)
		return 1
	default:
		fmt.Fprintln(w, Describe(err))
		return 2
	}
}
