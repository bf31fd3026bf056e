package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chojs23/kartkit/internal/engine"
)

// ErrUsage marks flag combinations that cannot be run.
var ErrUsage = errors.New("invalid usage")

// Command names a subcommand.
type Command string

const (
	CmdStatus    Command = "status"
	CmdDiff      Command = "diff"
	CmdConflicts Command = "conflicts"
	CmdResolve   Command = "resolve"
	CmdLog       Command = "log"
	CmdMerge     Command = "merge"
	CmdCommit    Command = "commit"
	CmdRestore   Command = "restore"
	CmdCheckout  Command = "checkout"
	CmdPull      Command = "pull"
)

// Normalize trims and lower-cases flag values and rejects combinations cmd
// cannot honor. positional holds the arguments left after flag parsing.
func Normalize(cmd Command, opts Options, positional []string) (Options, error) {
	opts.RepoPath = strings.TrimSpace(opts.RepoPath)
	if opts.RepoPath == "" {
		opts.RepoPath = "."
	}
	opts.Dataset = strings.TrimSpace(opts.Dataset)
	opts.FeatureID = strings.TrimSpace(opts.FeatureID)
	if opts.FeatureID != "" && opts.Dataset == "" {
		return Options{}, fmt.Errorf("%w: --feature requires --dataset", ErrUsage)
	}

	switch cmd {
	case CmdStatus, CmdConflicts:
		if len(positional) > 0 {
			return Options{}, fmt.Errorf("%w: %s takes no arguments", ErrUsage, cmd)
		}
	case CmdDiff:
		if len(positional) > 2 {
			return Options{}, fmt.Errorf("%w: diff takes at most two refs", ErrUsage)
		}
		if len(positional) > 0 {
			opts.RefA = positional[0]
		}
		if len(positional) > 1 {
			opts.RefB = positional[1]
		}
	case CmdLog:
		if len(positional) > 1 {
			return Options{}, fmt.Errorf("%w: log takes at most one ref", ErrUsage)
		}
		if len(positional) == 1 {
			opts.RefA = positional[0]
		}
	case CmdResolve:
		return normalizeResolve(opts, positional)
	case CmdMerge:
		return normalizeMerge(opts, positional)
	case CmdCommit:
		opts.Message = strings.TrimSpace(opts.Message)
		if opts.Message == "" {
			return Options{}, fmt.Errorf("%w: commit needs a message (-m)", ErrUsage)
		}
		opts.Datasets = positional
	case CmdRestore:
		opts.RefA = strings.TrimSpace(opts.Source)
		if opts.RefA == "" {
			opts.RefA = "HEAD"
		}
		opts.Datasets = positional
	case CmdCheckout:
		if len(positional) != 1 || strings.TrimSpace(positional[0]) == "" {
			return Options{}, fmt.Errorf("%w: checkout needs exactly one branch", ErrUsage)
		}
		opts.Branch = strings.TrimSpace(positional[0])
	case CmdPull:
		if len(positional) > 2 {
			return Options{}, fmt.Errorf("%w: pull takes at most a remote and a branch", ErrUsage)
		}
		opts.Remote = "origin"
		if len(positional) > 0 {
			opts.Remote = positional[0]
		}
		if len(positional) > 1 {
			opts.Branch = positional[1]
		}
	default:
		return Options{}, fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
	return opts, nil
}

func normalizeResolve(opts Options, positional []string) (Options, error) {
	if len(positional) > 0 {
		return Options{}, fmt.Errorf("%w: resolve takes no arguments", ErrUsage)
	}
	opts.ApplyAll = strings.ToLower(strings.TrimSpace(opts.ApplyAll))
	if opts.ApplyAll != "" {
		if _, err := engine.ParseStrategy(opts.ApplyAll); err != nil {
			return Options{}, fmt.Errorf("%w: invalid --apply-all: %q (expected %s)", ErrUsage, opts.ApplyAll, strings.Join(engine.StrategyNames, "|"))
		}
	}
	if opts.Message != "" && !opts.Continue {
		return Options{}, fmt.Errorf("%w: --message requires --continue", ErrUsage)
	}
	return opts, nil
}

func normalizeMerge(opts Options, positional []string) (Options, error) {
	if opts.Abort && opts.Continue {
		return Options{}, fmt.Errorf("%w: --abort and --continue are exclusive", ErrUsage)
	}
	if opts.NoFF && opts.FFOnly {
		return Options{}, fmt.Errorf("%w: --no-ff and --ff-only are exclusive", ErrUsage)
	}
	if opts.Abort || opts.Continue {
		if len(positional) > 0 {
			return Options{}, fmt.Errorf("%w: --abort and --continue take no branch", ErrUsage)
		}
		return opts, nil
	}
	if len(positional) != 1 {
		return Options{}, fmt.Errorf("%w: merge needs exactly one branch", ErrUsage)
	}
	opts.Branch = strings.TrimSpace(positional[0])
	if opts.Branch == "" {
		return Options{}, fmt.Errorf("%w: empty branch name", ErrUsage)
	}
	return opts, nil
}

func Usage() string {
	return strings.TrimSpace(`Usage:
	  kartkit [--repo <path>] <command>

Commands:
	  status                      Show branch, merge state and uncommitted changes
	  diff [refA [refB]]          List changed features, grouped by dataset
	  conflicts [--check]         List merge conflicts; --check exits 1 while any remain
	  resolve                     Resolve conflicts interactively
	  resolve --apply-all ours|theirs|ancestor|delete|modified
	                              Resolve every conflict with one strategy (all or nothing)
	  log [ref]                   Draw the commit graph
	  merge <branch>              Merge a branch into the current one
	  merge --abort|--continue    Abandon or complete the merge in progress
	  commit -m <message> [dataset...]
	                              Commit working copy changes
	  restore [--source <ref>] [dataset...]
	                              Discard working copy changes
	  checkout [--force] <branch> Switch branches
	  pull [remote [branch]]      Fetch and merge from a remote
	  repos list|add|remove       Manage the list of known repositories

Options:
	  --repo <path>               Repository to work on (default: current directory)
	  --config <file>             Config file (default: $XDG_CONFIG_HOME/kartkit/config.yaml)
	  -v                          Verbose logging
`)
}
