package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chojs23/kartkit/internal/backend"
	"github.com/chojs23/kartkit/internal/cli"
	"github.com/chojs23/kartkit/internal/config"
	"github.com/chojs23/kartkit/internal/gitutil"
	"github.com/chojs23/kartkit/internal/logging"
	"github.com/chojs23/kartkit/internal/repostate"
	"github.com/chojs23/kartkit/internal/run"
	"github.com/chojs23/kartkit/internal/tui"
)

// app holds the flag values and streams of one invocation.
type app struct {
	opts   cli.Options
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	exit   int

	open        func(ctx context.Context, cfg config.Config, logger *zap.Logger, repoPath string) (backend.Backend, error)
	interactive func() bool
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		open:        openKart,
		interactive: run.IsInteractiveTTY,
	}
}

func openKart(ctx context.Context, cfg config.Config, logger *zap.Logger, repoPath string) (backend.Backend, error) {
	if !gitutil.IsInitialized(repoPath) {
		abs, _ := filepath.Abs(repoPath)
		return nil, fmt.Errorf("%w: %s", repostate.ErrNotRepository, abs)
	}
	locator := &backend.Locator{Folder: cfg.BackendPath, Supported: cfg.SupportedVersion, Logger: logger}
	return locator.Open(ctx, repoPath)
}

// execute runs args and returns the process exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		return run.Exit(a.stderr, fmt.Errorf("%w: %v", cli.ErrUsage, err))
	}
	return a.exit
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "kartkit",
		Short:         "Inspect and resolve merges in kart repositories",
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("kartkit {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVarP(&a.opts.RepoPath, "repo", "C", ".", "repository to work on")
	pf.StringVar(&a.opts.ConfigPath, "config", "", "config file")
	pf.BoolVarP(&a.opts.Verbose, "verbose", "v", false, "verbose logging")

	status := a.command(cli.CmdStatus, "status", "Show branch, merge state and uncommitted changes")

	diff := a.command(cli.CmdDiff, "diff [refA [refB]]", "List changed features, grouped by dataset")
	a.filterFlags(diff)

	conflicts := a.command(cli.CmdConflicts, "conflicts", "List merge conflicts")
	conflicts.Flags().BoolVar(&a.opts.Check, "check", false, "print nothing; exit 1 while conflicts remain")

	resolve := a.command(cli.CmdResolve, "resolve", "Resolve merge conflicts")
	resolve.Flags().StringVar(&a.opts.ApplyAll, "apply-all", "", "resolve every conflict with one strategy")
	resolve.Flags().BoolVar(&a.opts.Continue, "continue", false, "complete the merge after submitting")
	resolve.Flags().StringVarP(&a.opts.Message, "message", "m", "", "merge commit message (with --continue)")
	resolve.Flags().BoolVarP(&a.opts.AssumeYes, "yes", "y", false, "submit without asking")

	log := a.command(cli.CmdLog, "log [ref]", "Draw the commit graph")
	a.filterFlags(log)

	merge := a.command(cli.CmdMerge, "merge <branch>", "Merge a branch into the current one")
	merge.Flags().BoolVar(&a.opts.Abort, "abort", false, "abandon the merge in progress")
	merge.Flags().BoolVar(&a.opts.Continue, "continue", false, "complete the merge in progress")
	merge.Flags().BoolVar(&a.opts.NoFF, "no-ff", false, "always create a merge commit")
	merge.Flags().BoolVar(&a.opts.FFOnly, "ff-only", false, "refuse anything but a fast-forward")
	merge.Flags().StringVarP(&a.opts.Message, "message", "m", "", "merge commit message")

	commit := a.command(cli.CmdCommit, "commit [dataset...]", "Commit working copy changes")
	commit.Flags().StringVarP(&a.opts.Message, "message", "m", "", "commit message")

	restore := a.command(cli.CmdRestore, "restore [dataset...]", "Discard working copy changes")
	restore.Flags().StringVarP(&a.opts.Source, "source", "s", "HEAD", "ref to restore from")

	checkout := a.command(cli.CmdCheckout, "checkout <branch>", "Switch branches")
	checkout.Flags().BoolVarP(&a.opts.Force, "force", "f", false, "discard working copy changes")

	pull := a.command(cli.CmdPull, "pull [remote [branch]]", "Fetch and merge from a remote")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			fmt.Fprintf(c.OutOrStdout(), "kartkit %s\n", versionString())
		},
	}

	root.AddCommand(status, diff, conflicts, resolve, log, merge, commit, restore, checkout, pull, a.reposCommand(), versionCmd)
	return root
}

func (a *app) filterFlags(c *cobra.Command) {
	c.Flags().StringVar(&a.opts.Dataset, "dataset", "", "only this dataset")
	c.Flags().StringVar(&a.opts.FeatureID, "feature", "", "only this feature (needs --dataset)")
}

func (a *app) command(name cli.Command, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(c *cobra.Command, args []string) error {
			a.exit = a.runCommand(c.Context(), name, args)
			return nil
		},
	}
}

func (a *app) runCommand(ctx context.Context, name cli.Command, args []string) int {
	opts, err := cli.Normalize(name, a.opts, args)
	if err != nil {
		return run.Exit(a.stderr, err)
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return run.Exit(a.stderr, err)
	}
	logger := logging.New(a.stderr, cfg.Verbose || opts.Verbose)
	defer logger.Sync() //nolint:errcheck

	if dir, err := config.Dir(); err == nil {
		tui.Configure(dir, cfg.Theme)
	}

	b, err := a.open(ctx, cfg, logger, opts.RepoPath)
	if err != nil {
		return run.Exit(a.stderr, err)
	}
	env := run.Env{
		State:       repostate.New(opts.RepoPath, b, logger),
		Logger:      logger,
		Stdout:      a.stdout,
		Stderr:      a.stderr,
		Stdin:       a.stdin,
		Interactive: a.interactive(),
		MaxUndo:     cfg.MaxUndo,
	}
	if env.Interactive {
		env.Confirm = run.HuhConfirm
	}
	return run.Run(ctx, name, opts, env)
}

func (a *app) reposCommand() *cobra.Command {
	repos := &cobra.Command{
		Use:   "repos",
		Short: "Manage the list of known repositories",
	}
	repos.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List known repositories",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				a.exit = a.withRegistry(false, func(r *repostate.Registry) error {
					for _, p := range r.Repos() {
						fmt.Fprintln(a.stdout, p)
					}
					return nil
				})
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <path>",
			Short: "Remember a repository",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				a.exit = a.withRegistry(true, func(r *repostate.Registry) error {
					return r.Add(args[0])
				})
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <path>",
			Short: "Forget a repository",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				a.exit = a.withRegistry(true, func(r *repostate.Registry) error {
					if !r.Remove(args[0]) {
						return fmt.Errorf("%s is not registered", args[0])
					}
					return nil
				})
				return nil
			},
		},
	)
	return repos
}

// withRegistry loads the registry named by the config, runs fn and, when
// save is set, writes the result back.
func (a *app) withRegistry(save bool, fn func(*repostate.Registry) error) int {
	cfg, err := config.Load(a.opts.ConfigPath)
	if err != nil {
		return run.Exit(a.stderr, err)
	}
	r, err := repostate.LoadRegistry(cfg.RegistryFile)
	if err != nil {
		return run.Exit(a.stderr, err)
	}
	if err := fn(r); err != nil {
		return run.Exit(a.stderr, err)
	}
	if save {
		return run.Exit(a.stderr, r.Save())
	}
	return 0
}
