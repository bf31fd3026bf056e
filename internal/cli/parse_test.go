package cli

import (
	"errors"
	"testing"
)

func TestNormalizeDefaultsRepoPath(t *testing.T) {
	opts, err := Normalize(CmdStatus, Options{}, nil)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if opts.RepoPath != "." {
		t.Fatalf("RepoPath = %q, want %q", opts.RepoPath, ".")
	}
}

func TestNormalizeApplyAll(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{name: "empty", value: "", want: ""},
		{name: "ours", value: "ours", want: "ours"},
		{name: "case and space", value: "  Theirs ", want: "theirs"},
		{name: "base alias", value: "base", want: "base"},
		{name: "delete", value: "delete", want: "delete"},
		{name: "modified", value: "modified", want: "modified"},
		{name: "unknown", value: "both", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := Normalize(CmdResolve, Options{ApplyAll: tt.value}, nil)
			if tt.wantErr {
				if !errors.Is(err, ErrUsage) {
					t.Fatalf("Normalize() error = %v, want ErrUsage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if opts.ApplyAll != tt.want {
				t.Fatalf("ApplyAll = %q, want %q", opts.ApplyAll, tt.want)
			}
		})
	}
}

func TestNormalizeRefs(t *testing.T) {
	opts, err := Normalize(CmdDiff, Options{}, []string{"HEAD", "main"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if opts.RefA != "HEAD" || opts.RefB != "main" {
		t.Fatalf("refs = %q %q, want HEAD main", opts.RefA, opts.RefB)
	}

	if _, err := Normalize(CmdDiff, Options{}, []string{"a", "b", "c"}); !errors.Is(err, ErrUsage) {
		t.Fatalf("three refs error = %v, want ErrUsage", err)
	}

	opts, err = Normalize(CmdLog, Options{}, []string{"feature"})
	if err != nil {
		t.Fatalf("Normalize(log) error = %v", err)
	}
	if opts.RefA != "feature" {
		t.Fatalf("log ref = %q, want feature", opts.RefA)
	}
}

func TestNormalizeFeatureNeedsDataset(t *testing.T) {
	_, err := Normalize(CmdLog, Options{FeatureID: "3"}, nil)
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("Normalize() error = %v, want ErrUsage", err)
	}
}

func TestNormalizeMerge(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		positional []string
		wantErr    bool
	}{
		{name: "branch", positional: []string{"feature"}},
		{name: "abort", opts: Options{Abort: true}},
		{name: "continue", opts: Options{Continue: true}},
		{name: "no branch", wantErr: true},
		{name: "two branches", positional: []string{"a", "b"}, wantErr: true},
		{name: "abort with branch", opts: Options{Abort: true}, positional: []string{"a"}, wantErr: true},
		{name: "abort and continue", opts: Options{Abort: true, Continue: true}, wantErr: true},
		{name: "ff flags", opts: Options{NoFF: true, FFOnly: true}, positional: []string{"a"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := Normalize(CmdMerge, tt.opts, tt.positional)
			if tt.wantErr {
				if !errors.Is(err, ErrUsage) {
					t.Fatalf("Normalize() error = %v, want ErrUsage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if len(tt.positional) == 1 && opts.Branch != tt.positional[0] {
				t.Fatalf("Branch = %q, want %q", opts.Branch, tt.positional[0])
			}
		})
	}
}

func TestNormalizeMessageRequiresContinue(t *testing.T) {
	if _, err := Normalize(CmdResolve, Options{Message: "done"}, nil); !errors.Is(err, ErrUsage) {
		t.Fatalf("Normalize() error = %v, want ErrUsage", err)
	}
	if _, err := Normalize(CmdResolve, Options{Message: "done", Continue: true}, nil); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
}

func TestNormalizeWorkingCopyCommands(t *testing.T) {
	if _, err := Normalize(CmdCommit, Options{Message: "  "}, nil); !errors.Is(err, ErrUsage) {
		t.Fatalf("commit without message error = %v, want ErrUsage", err)
	}
	opts, err := Normalize(CmdCommit, Options{Message: "edit roads"}, []string{"roads"})
	if err != nil {
		t.Fatalf("Normalize(commit) error = %v", err)
	}
	if len(opts.Datasets) != 1 || opts.Datasets[0] != "roads" {
		t.Fatalf("Datasets = %v, want [roads]", opts.Datasets)
	}

	opts, err = Normalize(CmdRestore, Options{}, nil)
	if err != nil {
		t.Fatalf("Normalize(restore) error = %v", err)
	}
	if opts.RefA != "HEAD" {
		t.Fatalf("restore source = %q, want HEAD", opts.RefA)
	}

	opts, err = Normalize(CmdRestore, Options{Source: " edits "}, []string{"roads"})
	if err != nil {
		t.Fatalf("Normalize(restore --source) error = %v", err)
	}
	if opts.RefA != "edits" {
		t.Fatalf("restore source = %q, want edits", opts.RefA)
	}

	opts, err = Normalize(CmdDiff, Options{Source: "HEAD"}, nil)
	if err != nil {
		t.Fatalf("Normalize(diff) error = %v", err)
	}
	if opts.RefA != "" {
		t.Fatalf("diff RefA = %q, want empty", opts.RefA)
	}

	if _, err := Normalize(CmdCheckout, Options{}, nil); !errors.Is(err, ErrUsage) {
		t.Fatalf("checkout without branch error = %v, want ErrUsage", err)
	}

	opts, err = Normalize(CmdPull, Options{}, nil)
	if err != nil {
		t.Fatalf("Normalize(pull) error = %v", err)
	}
	if opts.Remote != "origin" || opts.Branch != "" {
		t.Fatalf("pull target = %q %q, want origin and no branch", opts.Remote, opts.Branch)
	}
}
