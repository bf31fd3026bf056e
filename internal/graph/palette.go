package graph

import "github.com/charmbracelet/lipgloss"

// Palette assigns colors to graph columns, cycling when the graph is wider
// than the palette.
type Palette []lipgloss.Color

var DefaultPalette = Palette{
	lipgloss.Color("#ff0000"),
	lipgloss.Color("#00ff00"),
	lipgloss.Color("#0000ff"),
	lipgloss.Color("#000000"),
	lipgloss.Color("#ffa600"),
	lipgloss.Color("#008000"),
	lipgloss.Color("#000080"),
	lipgloss.Color("#00ffff"),
	lipgloss.Color("#ff00ff"),
}

func (p Palette) Color(column int) lipgloss.Color {
	if len(p) == 0 {
		p = DefaultPalette
	}
	if column < 0 {
		column = -column
	}
	return p[column%len(p)]
}
