package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/engine"
	"github.com/chojs23/kartkit/internal/feature"
)

var (
	ErrBackToSelector = errors.New("back to selector")
	ErrAborted        = errors.New("resolution aborted")
)

const toastSeconds = 2

type model struct {
	ctx     context.Context
	session *engine.Session
	entries []conflict.Entry
	current int
	field   int
	// picks holds per-field version choices for a field merge, per entry.
	picks map[conflict.Key]map[string]conflict.Version

	viewport     viewport.Model
	ready        bool
	width        int
	height       int
	quitting     bool
	toastMessage string
	toastSeq     int
	err          error
}

// Resolve runs the resolution view starting at start. It returns nil when
// the user asks to submit with every conflict resolved, ErrBackToSelector
// on q and ErrAborted on ctrl+c.
func Resolve(ctx context.Context, session *engine.Session, start conflict.Key) error {
	if err := ensureThemeLoaded(); err != nil {
		return err
	}

	m := newModel(ctx, session, start)
	if len(m.entries) == 0 {
		return nil
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	if m, ok := finalModel.(model); ok {
		return m.err
	}
	return nil
}

func newModel(ctx context.Context, session *engine.Session, start conflict.Key) model {
	m := model{
		ctx:     ctx,
		session: session,
		entries: session.Entries(),
		picks:   map[conflict.Key]map[string]conflict.Version{},
	}
	for i, entry := range m.entries {
		if entry.Key() == start {
			m.current = i
			break
		}
	}
	return m
}

func (m model) Init() tea.Cmd {
	return nil
}

type toastExpiredMsg struct {
	id int
}

func (m *model) showToast(message string, duration time.Duration) tea.Cmd {
	m.toastMessage = message
	m.toastSeq++
	seq := m.toastSeq
	return tea.Tick(duration*time.Second, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: seq}
	})
}

func (m model) entry() conflict.Entry {
	return m.entries[m.current]
}

func (m model) fieldCount() int {
	return len(fieldNames(m.entry()))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case toastExpiredMsg:
		if msg.id == m.toastSeq {
			m.toastMessage = ""
		}
		return m, nil

	case tea.KeyMsg:
		if handled, cmd := m.handleKey(msg.String()); handled {
			m.updateViewport()
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 2
		footerHeight := 3
		contentHeight := m.height - headerHeight - footerHeight - 4
		if contentHeight < 1 {
			contentHeight = 1
		}
		paneWidth := m.width - 6

		if !m.ready {
			m.viewport = viewport.New(paneWidth, contentHeight)
			m.ready = true
		} else {
			m.viewport.Width = paneWidth
			m.viewport.Height = contentHeight
		}
		m.updateViewport()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) handleKey(key string) (bool, tea.Cmd) {
	if len(m.entries) == 0 {
		m.err = ErrBackToSelector
		m.quitting = true
		return true, tea.Quit
	}
	current := m.entry().Key()

	switch key {
	case "q":
		m.err = ErrBackToSelector
		m.quitting = true
		return true, tea.Quit

	case "ctrl+c":
		m.err = ErrAborted
		m.quitting = true
		return true, tea.Quit

	case "n":
		if m.current < len(m.entries)-1 {
			m.current++
			m.field = 0
		}
	case "p":
		if m.current > 0 {
			m.current--
			m.field = 0
		}

	case "j", "down":
		if m.field < m.fieldCount()-1 {
			m.field++
		}
	case "k", "up":
		if m.field > 0 {
			m.field--
		}

	case "o":
		return true, m.apply(current, engine.UseOurs)
	case "t":
		return true, m.apply(current, engine.UseTheirs)
	case "a":
		return true, m.apply(current, engine.UseAncestor)
	case "d":
		return true, m.apply(current, engine.Delete)
	case "m":
		return true, m.apply(current, engine.UseModified)

	case "h":
		m.pick(conflict.Ours)
	case "l":
		m.pick(conflict.Theirs)
	case "b":
		m.pick(conflict.Ancestor)
	case "x":
		m.pick("")

	case "f":
		res, err := engine.BuildFeature(m.entry(), fieldDecisions(m.entry(), m.picks[current]))
		if err != nil {
			return true, m.showToast(err.Error(), toastSeconds)
		}
		if err := m.session.ApplyResolution(res); err != nil {
			return true, m.showToast(err.Error(), toastSeconds)
		}

	case "c":
		if err := m.session.Clear(current); err != nil {
			return true, m.showToast(err.Error(), toastSeconds)
		}

	case "u":
		if err := m.session.Undo(); err != nil {
			return true, m.showToast("Nothing to undo", toastSeconds)
		}
	case "ctrl+r":
		if err := m.session.Redo(); err != nil {
			return true, m.showToast("Nothing to redo", toastSeconds)
		}

	case "w":
		if remaining := m.session.Remaining(); remaining > 0 {
			return true, m.showToast(fmt.Sprintf("%d conflicts still unresolved", remaining), toastSeconds)
		}
		m.err = nil
		m.quitting = true
		return true, tea.Quit

	default:
		return false, nil
	}
	return true, nil
}

func (m *model) apply(key conflict.Key, s engine.Strategy) tea.Cmd {
	if err := m.session.Apply(key, s); err != nil {
		return m.showToast(err.Error(), toastSeconds)
	}
	if m.current < len(m.entries)-1 && m.session.Remaining() > 0 {
		m.current++
		m.field = 0
	}
	return nil
}

// pick records which version the selected field takes in a field merge.
// An empty version drops the pick.
func (m *model) pick(v conflict.Version) {
	key := m.entry().Key()
	names := fieldNames(m.entry())
	if m.field >= len(names) {
		return
	}
	name := names[m.field]
	if v == "" {
		delete(m.picks[key], name)
		return
	}
	if m.picks[key] == nil {
		m.picks[key] = map[string]conflict.Version{}
	}
	m.picks[key][name] = v
}

func (m *model) updateViewport() {
	if !m.ready || len(m.entries) == 0 {
		return
	}
	entry := m.entry()
	rows := buildFieldRows(entry, m.session.Resolution(entry.Key()), m.picks[entry.Key()])
	m.viewport.SetContent(renderFieldTable(rows, m.field, m.viewport.Width))
	ensureVisible(&m.viewport, m.field+1, len(rows)+1)
}

func ensureVisible(viewportModel *viewport.Model, start int, total int) {
	if viewportModel.Height <= 0 {
		return
	}
	if total <= 0 {
		viewportModel.YOffset = 0
		return
	}

	maxOffset := total - viewportModel.Height
	if maxOffset < 0 {
		maxOffset = 0
	}

	margin := 2
	target := start - margin
	if target < 0 {
		target = 0
	}
	if target > maxOffset {
		target = maxOffset
	}
	viewportModel.YOffset = target
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	if m.quitting {
		if m.err != nil {
			if errors.Is(m.err, ErrBackToSelector) {
				return "\n  Returning to selector...\n"
			}
			return fmt.Sprintf("\n  %v\n", m.err)
		}
		return "\n  All conflicts resolved.\n"
	}

	if len(m.entries) == 0 {
		return "\n  No conflicts found.\n"
	}

	entry := m.entry()
	header := headerStyle.Render(fmt.Sprintf("%s - Conflict %d/%d - %s",
		entry.Key(), m.current+1, len(m.entries), entry.Kind()))

	res := m.session.Resolution(entry.Key())
	status, statusStyle := statusText(res)
	paneStyle := resultUnresolvedPaneStyle
	if m.session.Remaining() == 0 {
		paneStyle = resultResolvedPaneStyle
	}
	title := titleStyle.Render(entry.Dataset) + " " + statusStyle.Render("("+status+")")
	pane := paneStyle.Render(title + "\n" + m.viewport.View())

	undoInfo := ""
	if m.session.UndoDepth() > 0 {
		undoInfo = fmt.Sprintf(" | Undo available: %d", m.session.UndoDepth())
	}
	help := "n/p: entry | j/k: field | o: ours | t: theirs | a: ancestor | d: delete | m: modified | h/l/b: pick field | f: merge fields | c: clear | u: undo | ctrl+r: redo | w: submit | q: back"
	if hasGeometryOnly(entry) {
		help += " | " + lipgloss.NewStyle().Foreground(dimForegroundMuted).Render("no attributes")
	}
	footerText := footerStyle.Width(m.width).Render(help + undoInfo)
	footer := lipgloss.JoinVertical(lipgloss.Left, footerText, m.renderToastLine())

	return lipgloss.JoinVertical(lipgloss.Left, header, pane, footer)
}

func (m model) renderToastLine() string {
	content := ""
	if m.toastMessage != "" {
		content = toastStyle.Render(m.toastMessage)
	}
	return toastLineStyle.Width(m.width).Render(content)
}

func hasGeometryOnly(entry conflict.Entry) bool {
	names := fieldNames(entry)
	return len(names) == 1 && names[0] == feature.GeometryField
}
