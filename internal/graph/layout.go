// Package graph turns the backend's text rendering of commit ancestry into
// per-commit columns and connectors that a renderer can draw.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
)

// ColumnSpacing is the number of text cells between two graph columns in the
// backend's --graph output. It is part of the wire format.
const ColumnSpacing = 2

var ErrGraphSync = errors.New("commit graph out of sync with commit list")

const commitMarker = '*'

// Commit is the metadata the backend reports for one log entry.
type Commit struct {
	ID          string
	AbbrevID    string
	Message     string
	Author      string
	AuthorEmail string
	Time        time.Time
	Refs        []string
	Parents     []string
}

// IsRoot reports whether the commit starts the history.
func (c Commit) IsRoot() bool {
	return len(c.Parents) == 0
}

// ConnectorKind is the shape of one ancestry line segment.
type ConnectorKind int

const (
	Vertical ConnectorKind = iota + 1
	DiagonalUp
	DiagonalDown
)

func (k ConnectorKind) String() string {
	switch k {
	case Vertical:
		return "vertical"
	case DiagonalUp:
		return "diagonal-up"
	case DiagonalDown:
		return "diagonal-down"
	default:
		return "unknown"
	}
}

func (k ConnectorKind) glyph() byte {
	switch k {
	case Vertical:
		return '|'
	case DiagonalUp:
		return '/'
	case DiagonalDown:
		return '\\'
	default:
		return ' '
	}
}

func connectorKind(c byte) (ConnectorKind, bool) {
	switch c {
	case '|':
		return Vertical, true
	case '/':
		return DiagonalUp, true
	case '\\':
		return DiagonalDown, true
	default:
		return 0, false
	}
}

// Connector is a line segment anchored at a graph column.
type Connector struct {
	Kind   ConnectorKind
	Column int
}

func (c Connector) String() string {
	return fmt.Sprintf("%s(%d)", c.Kind, c.Column)
}

// Band holds the connectors of one text line, bucketed by kind.
type Band struct {
	Vertical     []int
	DiagonalUp   []int
	DiagonalDown []int
}

func scanBand(line string) Band {
	var band Band
	for i := 0; i < len(line); i++ {
		kind, ok := connectorKind(line[i])
		if !ok {
			continue
		}
		col := i / ColumnSpacing
		switch kind {
		case Vertical:
			band.Vertical = append(band.Vertical, col)
		case DiagonalUp:
			band.DiagonalUp = append(band.DiagonalUp, col)
		case DiagonalDown:
			band.DiagonalDown = append(band.DiagonalDown, col)
		}
	}
	return band
}

// Empty reports whether the band carries no connectors.
func (b Band) Empty() bool {
	return b.Len() == 0
}

func (b Band) Len() int {
	return len(b.Vertical) + len(b.DiagonalUp) + len(b.DiagonalDown)
}

// Connectors flattens the band in kind order.
func (b Band) Connectors() []Connector {
	out := make([]Connector, 0, b.Len())
	out = append(out, lo.Map(b.Vertical, func(col int, _ int) Connector { return Connector{Vertical, col} })...)
	out = append(out, lo.Map(b.DiagonalUp, func(col int, _ int) Connector { return Connector{DiagonalUp, col} })...)
	out = append(out, lo.Map(b.DiagonalDown, func(col int, _ int) Connector { return Connector{DiagonalDown, col} })...)
	return out
}

func (b Band) maxColumn() int {
	return lo.Max(append(append(append([]int{-1}, b.Vertical...), b.DiagonalUp...), b.DiagonalDown...))
}

// Node is one laid-out commit. It is immutable once built.
type Node struct {
	commit  Commit
	row     int
	column  int
	color   lipgloss.Color
	toward  Band
	through Band
	away    Band
}

func (n Node) Commit() Commit        { return n.commit }
func (n Node) ID() string            { return n.commit.ID }
func (n Node) Row() int              { return n.row }
func (n Node) Column() int           { return n.column }
func (n Node) Color() lipgloss.Color { return n.color }
func (n Node) Parents() []string     { return append([]string(nil), n.commit.Parents...) }
func (n Node) Refs() []string        { return append([]string(nil), n.commit.Refs...) }

// ChildEdges are the connectors on the line before the commit, running
// toward newer commits.
func (n Node) ChildEdges() Band { return n.toward }

// ParentEdges are the connectors on the line after the commit, running
// toward its ancestors. Empty for a root commit drawn last.
func (n Node) ParentEdges() Band { return n.away }

// Through are the connectors of other branches passing the commit's row.
func (n Node) Through() Band { return n.through }

// Layout is the structured form of a commit graph.
type Layout struct {
	nodes   []Node
	columns int
	palette Palette
}

// Build lays out commits against the graph text the backend rendered for
// them. commits must be in the order the backend printed them.
func Build(commits []Commit, graphText string, palette Palette) (*Layout, error) {
	if len(palette) == 0 {
		palette = DefaultPalette
	}

	lines := strings.Split(strings.ReplaceAll(graphText, "\r\n", "\n"), "\n")
	lines = append(append([]string{""}, lines...), "")

	rows := make([]int, 0, len(commits))
	for i, line := range lines {
		if strings.IndexByte(line, commitMarker) >= 0 {
			rows = append(rows, i)
		}
	}
	if len(rows) != len(commits) {
		return nil, fmt.Errorf("%w: %d commits, %d graph rows", ErrGraphSync, len(commits), len(rows))
	}

	layout := &Layout{nodes: make([]Node, 0, len(commits)), palette: palette}
	for i, idx := range rows {
		line := lines[idx]
		if id := lineCommitID(line); id != "" && !matchesID(commits[i].ID, id) {
			return nil, fmt.Errorf("%w: row %d shows %s, expected %s", ErrGraphSync, i, id, commits[i].ID)
		}

		column := strings.IndexByte(line, commitMarker) / ColumnSpacing
		node := Node{
			commit:  commits[i],
			row:     i,
			column:  column,
			color:   palette.Color(column),
			toward:  scanBand(lines[idx-1]),
			through: scanBand(line),
			away:    scanBand(lines[idx+1]),
		}
		layout.nodes = append(layout.nodes, node)
		layout.columns = lo.Max([]int{
			layout.columns,
			column + 1,
			node.toward.maxColumn() + 1,
			node.through.maxColumn() + 1,
			node.away.maxColumn() + 1,
		})
	}
	return layout, nil
}

func lineCommitID(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	last := fields[len(fields)-1]
	if strings.ContainsAny(last, "*|/\\") {
		return ""
	}
	return last
}

func matchesID(full, shown string) bool {
	return full == shown || strings.HasPrefix(full, shown)
}

// Nodes returns the laid-out commits in input order.
func (l *Layout) Nodes() []Node {
	if l == nil {
		return nil
	}
	return append([]Node(nil), l.nodes...)
}

func (l *Layout) Len() int {
	if l == nil {
		return 0
	}
	return len(l.nodes)
}

// Columns is the width of the graph in columns.
func (l *Layout) Columns() int {
	if l == nil {
		return 0
	}
	return l.columns
}

// Find returns the node for a commit id.
func (l *Layout) Find(id string) (Node, bool) {
	if l == nil {
		return Node{}, false
	}
	return lo.Find(l.nodes, func(n Node) bool { return n.commit.ID == id })
}

// ColumnColors maps every occupied column to its color.
func (l *Layout) ColumnColors() map[int]lipgloss.Color {
	colors := make(map[int]lipgloss.Color)
	if l == nil {
		return colors
	}
	for col := 0; col < l.columns; col++ {
		colors[col] = l.palette.Color(col)
	}
	return colors
}
