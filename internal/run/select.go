package run

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/samber/lo"
	"golang.org/x/term"

	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/engine"
	"github.com/chojs23/kartkit/internal/feature"
	"github.com/chojs23/kartkit/internal/tui"
)

const maxAttempts = 3

// resolveInteractive alternates between the conflict selector and the
// resolution view until the user submits or quits.
func resolveInteractive(ctx context.Context, session *engine.Session) error {
	for {
		key, err := tui.SelectEntry(ctx, tui.Candidates(session))
		if err != nil {
			switch {
			case errors.Is(err, tui.ErrSubmit):
				if session.Remaining() == 0 {
					return nil
				}
				continue
			case errors.Is(err, tui.ErrSelectorQuit):
				return errDeclined
			}
			return err
		}

		err = tui.Resolve(ctx, session, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, tui.ErrBackToSelector):
			continue
		case errors.Is(err, tui.ErrAborted):
			return errDeclined
		default:
			return err
		}
	}
}

// promptResolutions asks for a strategy for every unresolved entry on a
// plain line-oriented terminal.
func promptResolutions(r io.Reader, w io.Writer, session *engine.Session) error {
	reader := bufio.NewReader(r)
	for _, entry := range session.Entries() {
		if session.Resolution(entry.Key()).Resolved() {
			continue
		}
		if err := promptEntry(reader, w, session, entry); err != nil {
			return err
		}
	}
	return nil
}

func promptEntry(reader *bufio.Reader, w io.Writer, session *engine.Session, entry conflict.Entry) error {
	options := lo.Map(engine.Available(entry), func(s engine.Strategy, _ int) string { return s.String() })

	fmt.Fprintf(w, "%s (%s)\n", entry.Key(), entry.Kind())
	for _, v := range conflict.Versions {
		fmt.Fprintf(w, "  %-9s %s\n", v+":", describeVersion(entry.Version(v)))
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		fmt.Fprintf(w, "Resolve with [%s]: ", strings.Join(options, "/"))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read selection: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		strategy, err := engine.ParseStrategy(line)
		if err != nil {
			fmt.Fprintln(w, "Invalid choice.")
			continue
		}
		if err := session.Apply(entry.Key(), strategy); err != nil {
			fmt.Fprintf(w, "Cannot use %s: %v\n", strategy, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("invalid selection for %s", entry.Key())
}

func describeVersion(f *feature.Feature) string {
	if f == nil {
		return "(absent)"
	}
	parts := lo.Map(f.Names(), func(name string, _ int) string {
		v, _ := f.Value(name)
		return fmt.Sprintf("%s=%v", name, v)
	})
	if f.Geometry != nil {
		parts = append([]string{f.Geometry.GeoJSONType()}, parts...)
	}
	if len(parts) == 0 {
		return "(no attributes)"
	}
	return strings.Join(parts, ", ")
}

// IsInteractiveTTY reports whether both stdin and stdout are terminals.
func IsInteractiveTTY() bool {
	return isTTY(os.Stdin) && isTTY(os.Stdout)
}

func isTTY(file *os.File) bool {
	return term.IsTerminal(int(file.Fd()))
}

// HuhConfirm asks prompt on the terminal. Aborting the form answers no.
func HuhConfirm(prompt string) (bool, error) {
	ok := true
	err := huh.NewConfirm().
		Title(prompt).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}
