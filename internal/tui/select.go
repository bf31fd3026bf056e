package tui

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/engine"
)

// EntryCandidate is one row of the conflict selector.
type EntryCandidate struct {
	Key      conflict.Key
	Kind     conflict.Kind
	Resolved bool
	// Strategy names how the entry was resolved, if it was.
	Strategy string
}

// Candidates lists the session's conflicts in entry order.
func Candidates(session *engine.Session) []EntryCandidate {
	entries := session.Entries()
	out := make([]EntryCandidate, 0, len(entries))
	for _, entry := range entries {
		res := session.Resolution(entry.Key())
		c := EntryCandidate{Key: entry.Key(), Kind: entry.Kind(), Resolved: res.Resolved()}
		if c.Resolved {
			c.Strategy = res.Strategy.String()
		}
		out = append(out, c)
	}
	return out
}

type entryItem struct {
	candidate EntryCandidate
}

func (e entryItem) Title() string {
	return e.candidate.Key.String()
}

func (e entryItem) Description() string {
	return string(e.candidate.Kind)
}

func (e entryItem) FilterValue() string {
	return e.candidate.Key.String()
}

type entryItemDelegate struct{}

var (
	resolvedLabelStyle   lipgloss.Style
	unresolvedLabelStyle lipgloss.Style
)

func (d entryItemDelegate) Height() int {
	return 1
}

func (d entryItemDelegate) Spacing() int {
	return 0
}

func (d entryItemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd {
	return nil
}

func (d entryItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	entry, ok := item.(entryItem)
	if !ok {
		return
	}
	cursor := "  "
	if index == m.Index() {
		cursor = "> "
	}
	label := "unresolved"
	labelStyle := unresolvedLabelStyle
	if entry.candidate.Resolved {
		label = entry.candidate.Strategy
		labelStyle = resolvedLabelStyle
	}
	labelWidth := len("unresolved")
	labelText := fmt.Sprintf("%*s", labelWidth, label)
	kind := fmt.Sprintf("%-13s", entry.candidate.Kind)
	fmt.Fprint(w, cursor+labelStyle.Render(labelText)+"  "+kind+"  "+entry.candidate.Key.String())
}

type entrySelectModel struct {
	list     list.Model
	selected conflict.Key
	chosen   bool
	err      error
}

var (
	ErrSelectorQuit = errors.New("selector quit")
	// ErrSubmit is returned when the user asks to send the resolutions.
	ErrSubmit = errors.New("submit requested")
)

// SelectEntry opens the conflict selector and returns the chosen entry.
func SelectEntry(ctx context.Context, candidates []EntryCandidate) (conflict.Key, error) {
	if err := ensureThemeLoaded(); err != nil {
		return conflict.Key{}, err
	}

	program := tea.NewProgram(newEntrySelectModel(candidates), tea.WithAltScreen(), tea.WithContext(ctx))
	finalModel, err := program.Run()
	if err != nil {
		return conflict.Key{}, fmt.Errorf("conflict selector TUI error: %w", err)
	}

	result, ok := finalModel.(entrySelectModel)
	if !ok {
		return conflict.Key{}, fmt.Errorf("conflict selector returned unexpected model")
	}
	if result.err != nil {
		return conflict.Key{}, result.err
	}
	if !result.chosen {
		return conflict.Key{}, fmt.Errorf("no conflict selected")
	}
	return result.selected, nil
}

func newEntrySelectModel(candidates []EntryCandidate) entrySelectModel {
	items := make([]list.Item, 0, len(candidates))
	for _, candidate := range candidates {
		items = append(items, entryItem{candidate: candidate})
	}

	resolved := 0
	for _, c := range candidates {
		if c.Resolved {
			resolved++
		}
	}

	model := entrySelectModel{list: list.New(items, entryItemDelegate{}, 0, 0)}
	model.list.Title = fmt.Sprintf("Select conflict (%d/%d resolved)", resolved, len(candidates))
	model.list.SetShowHelp(false)
	model.list.SetShowStatusBar(false)
	model.list.SetShowPagination(false)
	model.list.SetFilteringEnabled(false)
	return model
}

func (m entrySelectModel) Init() tea.Cmd {
	return nil
}

func (m entrySelectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.err = ErrSelectorQuit
			return m, tea.Quit
		case "w":
			m.err = ErrSubmit
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(entryItem); ok {
				m.selected = item.candidate.Key
				m.chosen = true
				return m, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		width := msg.Width
		height := msg.Height
		if height < 5 {
			height = 5
		}
		m.list.SetSize(width, height-2)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m entrySelectModel) View() string {
	return m.list.View() + "\n" + "up/down: move, enter: resolve, w: submit, q: quit"
}
