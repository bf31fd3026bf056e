package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-version"
	"go.uber.org/zap"
)

// DefaultSupportedVersion is the oldest backend release this client speaks to.
const DefaultSupportedVersion = "0.10.8"

const versionPrefix = "Kart v"

var executableNames = []string{"kart.exe", "kart_cli", "kart"}

// DefaultFolder is where the platform installer puts the executable.
func DefaultFolder() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("PROGRAMFILES"), "Kart")
	case "darwin":
		return "/Applications/Kart.app/Contents/MacOS/"
	default:
		return "/opt/kart"
	}
}

// FindExecutable returns the first known executable name present in
// folder. When none is, it returns the last candidate so error messages
// still name a concrete path. folder may also name the executable itself.
func FindExecutable(folder string) string {
	if folder == "" {
		folder = DefaultFolder()
	}
	if info, err := os.Stat(folder); err == nil && !info.IsDir() {
		return folder
	}
	var path string
	for _, name := range executableNames {
		path = filepath.Join(folder, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return path
}

// ParseVersion extracts the dotted release number from `kart --version`.
func ParseVersion(output string) (string, error) {
	if !strings.HasPrefix(output, versionPrefix) {
		return "", fmt.Errorf("%w: unexpected version output %q", ErrNotInstalled, output)
	}
	fields := strings.Fields(output)
	num := strings.Map(func(r rune) rune {
		if r == '.' || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, fields[1])
	num = strings.Trim(num, ".")
	if num == "" {
		return "", fmt.Errorf("%w: unexpected version output %q", ErrNotInstalled, output)
	}
	return num, nil
}

// CheckVersion reports ErrUnsupportedVersion unless installed shares the
// major release of supported and is not older than it.
func CheckVersion(installed, supported string) error {
	want, err := version.NewVersion(supported)
	if err != nil {
		return fmt.Errorf("supported version %q: %w", supported, err)
	}
	have, err := version.NewVersion(installed)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, installed)
	}
	constraint, err := version.NewConstraint(fmt.Sprintf(">= %s, < %d.0.0", want, want.Segments()[0]+1))
	if err != nil {
		return err
	}
	if !constraint.Check(have) {
		return fmt.Errorf("%w: installed %s, supported %s", ErrUnsupportedVersion, have, want)
	}
	return nil
}

// Locator finds the backend executable and remembers the version it
// reported, until the configured location changes or Invalidate is called.
type Locator struct {
	Folder    string
	Supported string
	Logger    *zap.Logger

	cachedPath    string
	cachedVersion string
}

func (l *Locator) Executable() string {
	return FindExecutable(l.Folder)
}

// Version returns the installed release number.
func (l *Locator) Version(ctx context.Context) (string, error) {
	exe := l.Executable()
	if l.cachedPath == exe && l.cachedVersion != "" {
		return l.cachedVersion, nil
	}
	l.Invalidate()

	out, err := NewKart(exe, os.TempDir(), l.logger()).Version(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotInstalled, exe, err)
	}
	num, err := ParseVersion(out)
	if err != nil {
		return "", err
	}
	l.cachedPath, l.cachedVersion = exe, num
	return num, nil
}

func (l *Locator) Invalidate() {
	l.cachedPath, l.cachedVersion = "", ""
}

// Open checks the installation and returns a backend bound to repoPath.
func (l *Locator) Open(ctx context.Context, repoPath string) (*Kart, error) {
	installed, err := l.Version(ctx)
	if err != nil {
		return nil, err
	}
	supported := l.Supported
	if supported == "" {
		supported = DefaultSupportedVersion
	}
	if err := CheckVersion(installed, supported); err != nil {
		return nil, err
	}
	return NewKart(l.Executable(), repoPath, l.logger()), nil
}

func (l *Locator) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
