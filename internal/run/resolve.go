package run

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chojs23/kartkit/internal/cli"
	"github.com/chojs23/kartkit/internal/engine"
)

func resolve(ctx context.Context, opts cli.Options, env Env) error {
	state := env.State
	if err := state.Refresh(ctx); err != nil {
		return err
	}
	session, err := state.NewSession(env.MaxUndo)
	if err != nil {
		return err
	}

	w := env.Stdout
	if session.Set().IsEmpty() {
		fmt.Fprintln(w, "No conflicts to resolve")
		if !opts.Continue {
			return nil
		}
		return finish(ctx, opts, env, session)
	}

	switch {
	case opts.ApplyAll != "":
		strategy, err := engine.ParseStrategy(opts.ApplyAll)
		if err != nil {
			return fmt.Errorf("%w: %v", cli.ErrUsage, err)
		}
		if err := session.ApplyAll(strategy); err != nil {
			return err
		}
	case env.Interactive:
		if err := resolveInteractive(ctx, session); err != nil {
			return err
		}
	default:
		if err := promptResolutions(env.Stdin, w, session); err != nil {
			return err
		}
	}

	if env.Confirm != nil && !opts.AssumeYes {
		prompt := fmt.Sprintf("Submit %d resolutions?", session.Set().Len())
		if opts.Continue {
			prompt = fmt.Sprintf("Submit %d resolutions and complete the merge?", session.Set().Len())
		}
		ok, err := env.Confirm(prompt)
		if err != nil {
			return err
		}
		if !ok {
			return errDeclined
		}
	}
	return finish(ctx, opts, env, session)
}

// finish sends the session's resolutions and, with --continue, commits the
// merge.
func finish(ctx context.Context, opts cli.Options, env Env, session *engine.Session) error {
	state := env.State
	n := session.Set().Len()
	env.Logger.Debug("submitting resolutions", zap.Int("count", n), zap.Bool("continue", opts.Continue))

	if opts.Continue {
		if err := state.ContinueMerge(ctx, session, opts.Message); err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, "Merge completed")
		return nil
	}

	if err := session.Submit(ctx, state.Backend()); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "Resolved %d conflicts. Run `kartkit merge --continue` to complete the merge.\n", n)
	return nil
}
