package repostate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/chojs23/kartkit/internal/gitutil"
)

var ErrNotRepository = errors.New("not a repository")

type registryFile struct {
	Repositories []string `yaml:"repositories"`
}

// Registry is the list of working copies the user has opened. It is owned
// by the caller and persisted to a YAML file.
type Registry struct {
	path  string
	repos []string
}

// LoadRegistry reads the registry at path. A missing file is an empty
// registry.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	r.repos = lo.Uniq(lo.Compact(file.Repositories))
	return r, nil
}

// Repos returns the registered paths that still hold a repository.
func (r *Registry) Repos() []string {
	return lo.Filter(r.repos, func(p string, _ int) bool {
		return gitutil.IsInitialized(p)
	})
}

// Add registers repoPath. Adding a path twice is a no-op.
func (r *Registry) Add(repoPath string) error {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return err
	}
	if !gitutil.IsInitialized(abs) {
		return fmt.Errorf("%w: %s", ErrNotRepository, abs)
	}
	if !slices.Contains(r.repos, abs) {
		r.repos = append(r.repos, abs)
	}
	return nil
}

// Remove unregisters repoPath and reports whether it was present.
func (r *Registry) Remove(repoPath string) bool {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		abs = repoPath
	}
	before := len(r.repos)
	r.repos = lo.Without(r.repos, abs, repoPath)
	return len(r.repos) != before
}

// Save writes the registry back to its file.
func (r *Registry) Save() error {
	data, err := yaml.Marshal(registryFile{Repositories: r.repos})
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}
