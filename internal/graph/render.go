package graph

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	refStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffa600")).Bold(true)
	timeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// Render draws the layout as text, one commit per line with the connector
// line toward its parents underneath. Times are shown relative to now.
func Render(l *Layout, now time.Time) string {
	if l.Len() == 0 {
		return ""
	}

	var b strings.Builder
	for i, node := range l.nodes {
		b.WriteString(l.renderRow(node))
		b.WriteString(" ")
		b.WriteString(describe(node.commit, now))
		b.WriteString("\n")

		if i < len(l.nodes)-1 && !node.away.Empty() {
			b.WriteString(strings.TrimRight(l.renderBand(node.away), " "))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (l *Layout) renderRow(node Node) string {
	cells := l.cells(node.through)
	cells[node.column*ColumnSpacing] = cell{'*', node.color}
	return joinCells(cells)
}

func (l *Layout) renderBand(band Band) string {
	return joinCells(l.cells(band))
}

type cell struct {
	glyph byte
	color lipgloss.Color
}

func (l *Layout) cells(band Band) []cell {
	cells := make([]cell, l.columns*ColumnSpacing)
	for i := range cells {
		cells[i].glyph = ' '
	}
	for _, c := range band.Connectors() {
		pos := c.Column * ColumnSpacing
		if c.Kind != Vertical {
			pos++
		}
		if pos < len(cells) {
			cells[pos] = cell{c.Kind.glyph(), l.palette.Color(c.Column)}
		}
	}
	return cells
}

func joinCells(cells []cell) string {
	var b strings.Builder
	for _, c := range cells {
		if c.glyph == ' ' {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(lipgloss.NewStyle().Foreground(c.color).Render(string(c.glyph)))
	}
	return b.String()
}

func describe(c Commit, now time.Time) string {
	parts := make([]string, 0, 4)
	id := c.AbbrevID
	if id == "" && len(c.ID) > 7 {
		id = c.ID[:7]
	} else if id == "" {
		id = c.ID
	}
	parts = append(parts, id)
	if len(c.Refs) > 0 {
		parts = append(parts, refStyle.Render("("+strings.Join(c.Refs, ", ")+")"))
	}
	parts = append(parts, firstLine(c.Message))
	if !c.Time.IsZero() {
		parts = append(parts, timeStyle.Render(c.Author+", "+humanize.RelTime(c.Time, now, "ago", "from now")))
	}
	return strings.Join(parts, " ")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
