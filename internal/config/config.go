// Package config loads user settings from the config file and KARTKIT_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/chojs23/kartkit/internal/backend"
)

const (
	keyBackendPath      = "backend.path"
	keySupportedVersion = "backend.supported_version"
	keyVerbose          = "log.verbose"
	keyMaxUndo          = "resolve.max_undo"
	keyTheme            = "theme"
	keyRegistryFile     = "registry.file"
)

type Config struct {
	// BackendPath is a folder holding the executable, or the executable
	// itself. Empty means the platform default.
	BackendPath      string
	SupportedVersion string
	Verbose          bool
	MaxUndo          int
	Theme            string
	RegistryFile     string
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "kartkit"), nil
}

// Load reads path, or config.yaml in Dir when path is empty. A missing
// file leaves every setting at its default.
func Load(path string) (Config, error) {
	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetDefault(keyBackendPath, "")
	v.SetDefault(keySupportedVersion, backend.DefaultSupportedVersion)
	v.SetDefault(keyVerbose, false)
	v.SetDefault(keyMaxUndo, 100)
	v.SetDefault(keyTheme, "")
	v.SetDefault(keyRegistryFile, filepath.Join(dir, "repos.yaml"))

	v.SetEnvPrefix("KARTKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		BackendPath:      v.GetString(keyBackendPath),
		SupportedVersion: v.GetString(keySupportedVersion),
		Verbose:          v.GetBool(keyVerbose),
		MaxUndo:          v.GetInt(keyMaxUndo),
		Theme:            v.GetString(keyTheme),
		RegistryFile:     v.GetString(keyRegistryFile),
	}
	if cfg.MaxUndo < 1 {
		return Config{}, fmt.Errorf("%s must be >= 1, got %d", keyMaxUndo, cfg.MaxUndo)
	}
	return cfg, nil
}
