package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFindExecutable(t *testing.T) {
	dir := t.TempDir()
	if got := FindExecutable(dir); got != filepath.Join(dir, "kart") {
		t.Fatalf("FindExecutable on empty dir = %q", got)
	}

	cli := filepath.Join(dir, "kart_cli")
	if err := os.WriteFile(cli, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := FindExecutable(dir); got != cli {
		t.Fatalf("FindExecutable = %q, want %q", got, cli)
	}
	if got := FindExecutable(cli); got != cli {
		t.Fatalf("FindExecutable on file = %q", got)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "Kart v0.10.8, Copyright (c) Kart Contributors", want: "0.10.8"},
		{in: "Kart v0.11.0", want: "0.11.0"},
		{in: "kart 0.10.8", wantErr: true},
		{in: "Kart vX", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrNotInstalled) {
				t.Fatalf("ParseVersion(%q) error = %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseVersion(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		installed string
		ok        bool
	}{
		{"0.10.8", true},
		{"0.10.9", true},
		{"0.11.0", true},
		{"0.10.7", false},
		{"0.9.12", false},
		{"1.0.0", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		err := CheckVersion(tt.installed, DefaultSupportedVersion)
		if tt.ok && err != nil {
			t.Fatalf("CheckVersion(%s) error: %v", tt.installed, err)
		}
		if !tt.ok && !errors.Is(err, ErrUnsupportedVersion) {
			t.Fatalf("CheckVersion(%s) = %v, want ErrUnsupportedVersion", tt.installed, err)
		}
	}
}

func TestLocatorCachesVersion(t *testing.T) {
	dir := t.TempDir()
	counter := filepath.Join(t.TempDir(), "calls")
	t.Setenv("KARTKIT_CAPTURE", counter)
	script := "#!/bin/sh\necho x >> \"$KARTKIT_CAPTURE\"\necho 'Kart v0.10.9, Copyright (c) Kart Contributors'\n"
	if err := os.WriteFile(filepath.Join(dir, "kart"), []byte(script), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}

	l := &Locator{Folder: dir}
	for i := 0; i < 3; i++ {
		v, err := l.Version(context.Background())
		if err != nil || v != "0.10.9" {
			t.Fatalf("Version = %q, %v", v, err)
		}
	}
	if calls := countLines(t, counter); calls != 1 {
		t.Fatalf("executable ran %d times, want 1", calls)
	}

	l.Invalidate()
	if _, err := l.Version(context.Background()); err != nil {
		t.Fatalf("Version error: %v", err)
	}
	if calls := countLines(t, counter); calls != 2 {
		t.Fatalf("executable ran %d times after Invalidate, want 2", calls)
	}

	k, err := l.Open(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if k.RepoPath() != "/repo" {
		t.Fatalf("RepoPath = %q", k.RepoPath())
	}
}

func TestLocatorRejectsOldVersion(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "kart"), []byte("#!/bin/sh\necho 'Kart v0.9.0'\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	l := &Locator{Folder: dir}
	if _, err := l.Open(context.Background(), t.TempDir()); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestLocatorMissingExecutable(t *testing.T) {
	l := &Locator{Folder: t.TempDir()}
	if _, err := l.Version(context.Background()); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Count(string(data), "\n")
}
