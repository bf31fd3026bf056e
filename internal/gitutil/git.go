// Package gitutil reads repository metadata straight from the git directory
// kept under .kart without spawning the backend executable.
package gitutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// DirName is the metadata directory inside a working copy.
const DirName = ".kart"

// DefaultMergeMessage is used when a merge left no MERGE_MSG behind.
const DefaultMergeMessage = "Merge branch"

var ErrDetachedHead = errors.New("HEAD is detached")

// Dir returns the metadata directory for a working copy.
func Dir(repoPath string) string {
	return filepath.Join(repoPath, DirName)
}

// IsInitialized reports whether repoPath holds an openable repository.
func IsInitialized(repoPath string) bool {
	info, err := os.Stat(Dir(repoPath))
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = open(repoPath)
	return err == nil
}

// CurrentBranch returns the short name of the branch HEAD points at.
func CurrentBranch(repoPath string) (string, error) {
	repo, err := open(repoPath)
	if err != nil {
		return "", err
	}
	ref, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	if ref.Type() != plumbing.SymbolicReference {
		return "", ErrDetachedHead
	}
	return ref.Target().Short(), nil
}

// MergeHead returns the commit being merged in, if a merge is in progress.
func MergeHead(repoPath string) (string, bool, error) {
	repo, err := open(repoPath)
	if err != nil {
		return "", false, err
	}
	ref, err := repo.Reference(plumbing.ReferenceName("MERGE_HEAD"), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read MERGE_HEAD: %w", err)
	}
	return ref.Hash().String(), true, nil
}

// IsMerging reports whether an interrupted merge left its message file or
// a MERGE_HEAD ref.
func IsMerging(repoPath string) bool {
	if _, err := os.Stat(filepath.Join(Dir(repoPath), "MERGE_MSG")); err == nil {
		return true
	}
	_, ok, err := MergeHead(repoPath)
	return err == nil && ok
}

// MergeMessage returns the pending merge message, falling back to
// DefaultMergeMessage when none was recorded.
func MergeMessage(repoPath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(Dir(repoPath), "MERGE_MSG"))
	if errors.Is(err, os.ErrNotExist) {
		return DefaultMergeMessage, nil
	}
	if err != nil {
		return "", fmt.Errorf("read MERGE_MSG: %w", err)
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return DefaultMergeMessage, nil
	}
	return msg, nil
}

// Title returns the first line of the repository description, or "" when it
// is missing or still the placeholder git writes on init.
func Title(repoPath string) string {
	data, err := os.ReadFile(filepath.Join(Dir(repoPath), "description"))
	if err != nil {
		return ""
	}
	if strings.Contains(strings.ToLower(string(data)), "unnamed") {
		return ""
	}
	title, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	return strings.TrimSpace(title)
}

func open(repoPath string) (*git.Repository, error) {
	repo, err := git.PlainOpen(Dir(repoPath))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", Dir(repoPath), err)
	}
	return repo, nil
}
