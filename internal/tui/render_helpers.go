package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/samber/lo"

	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/engine"
	"github.com/chojs23/kartkit/internal/feature"
)

const (
	absentText  = "(absent)"
	deletedText = "(deleted)"
	nullText    = "NULL"
	ellipsis    = "…"

	minColumnWidth = 8
)

// fieldRow is one attribute lined up across the three versions and the
// current result.
type fieldRow struct {
	name       string
	ancestor   string
	ours       string
	theirs     string
	result     string
	conflicted bool
	pick       conflict.Version
}

// fieldNames returns every attribute present in any version, geometry first.
func fieldNames(entry conflict.Entry) []string {
	var names []string
	for _, v := range conflict.Versions {
		if f := entry.Version(v); f != nil {
			names = append(names, f.Names()...)
		}
	}
	names = lo.Without(lo.Uniq(names), feature.GeometryField)
	sort.Strings(names)
	return append([]string{feature.GeometryField}, names...)
}

func buildFieldRows(entry conflict.Entry, res engine.Resolution, picks map[string]conflict.Version) []fieldRow {
	names := fieldNames(entry)
	rows := make([]fieldRow, 0, len(names))
	for _, name := range names {
		ours, oursOK := rawValue(entry.Ours, name)
		theirs, theirsOK := rawValue(entry.Theirs, name)
		row := fieldRow{
			name:       name,
			ancestor:   cellText(entry.Ancestor, name),
			ours:       cellText(entry.Ours, name),
			theirs:     cellText(entry.Theirs, name),
			conflicted: oursOK != theirsOK || !feature.ValuesEqual(ours, theirs),
			pick:       picks[name],
		}
		switch res.Outcome {
		case engine.KeepFeature:
			row.result = cellText(res.Feature, name)
		case engine.DeleteFeature:
			row.result = deletedText
		}
		rows = append(rows, row)
	}
	return rows
}

func rawValue(f *feature.Feature, name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	if name == feature.GeometryField {
		if f.Geometry == nil {
			return nil, true
		}
		return f.Geometry, true
	}
	return f.Value(name)
}

func cellText(f *feature.Feature, name string) string {
	if f == nil {
		return absentText
	}
	v, ok := rawValue(f, name)
	if !ok {
		return ""
	}
	return formatValue(v)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return nullText
	case orb.Geometry:
		return wkt.MarshalString(t)
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// fitCell cuts s to width runes and pads it on the right.
func fitCell(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if utf8.RuneCountInString(s) > width {
		runes := []rune(s)
		s = string(runes[:width-1]) + ellipsis
	}
	return s + strings.Repeat(" ", width-utf8.RuneCountInString(s))
}

func columnWidth(total int) int {
	// name + three versions + result, one space between columns
	w := (total - 4) / 5
	if w < minColumnWidth {
		return minColumnWidth
	}
	return w
}

func renderFieldTable(rows []fieldRow, selected int, totalWidth int) string {
	w := columnWidth(totalWidth)
	var b strings.Builder

	headers := []string{"FIELD", "ANCESTOR", "OURS", "THEIRS", "RESULT"}
	cells := lo.Map(headers, func(h string, _ int) string { return columnHeaderStyle.Render(fitCell(h, w)) })
	b.WriteString(strings.Join(cells, " "))

	for i, row := range rows {
		b.WriteByte('\n')
		b.WriteString(renderFieldRow(row, i == selected, w))
	}
	return b.String()
}

func renderFieldRow(row fieldRow, selected bool, w int) string {
	nameStyle := fieldNameStyle
	if row.conflicted {
		nameStyle = conflictedStyle
	}
	marker := " "
	if selected {
		marker = ">"
	}

	cells := []string{
		nameStyle.Render(fitCell(marker+row.name, w)),
		pickStyle(row.pick, conflict.Ancestor).Render(fitCell(row.ancestor, w)),
		pickStyle(row.pick, conflict.Ours).Render(fitCell(row.ours, w)),
		pickStyle(row.pick, conflict.Theirs).Render(fitCell(row.theirs, w)),
		lipgloss.NewStyle().Render(fitCell(row.result, w)),
	}
	line := strings.Join(cells, " ")
	if selected {
		return lipgloss.NewStyle().Background(selectedRowBackground).Render(line)
	}
	return line
}

func pickStyle(pick, column conflict.Version) lipgloss.Style {
	if pick != column {
		return lipgloss.NewStyle()
	}
	switch column {
	case conflict.Ours:
		return oursHighlightStyle
	case conflict.Theirs:
		return theirsHighlightStyle
	default:
		return ancestorHighlightStyle
	}
}

// fieldDecisions turns per-field version picks into decisions for a field
// merge. A pick of a version that lacks the attribute selects NULL.
func fieldDecisions(entry conflict.Entry, picks map[string]conflict.Version) engine.FieldDecisions {
	d := engine.FieldDecisions{Fields: map[string]any{}}
	for name, v := range picks {
		f := entry.Version(v)
		if f == nil {
			continue
		}
		if name == feature.GeometryField {
			d.Geometry = f.Geometry
			d.GeometryChosen = true
			continue
		}
		value, _ := f.Value(name)
		d.Fields[name] = value
	}
	return d
}

func statusText(res engine.Resolution) (string, lipgloss.Style) {
	if !res.Resolved() {
		return "Unresolved", statusUnresolvedStyle
	}
	if res.Outcome == engine.DeleteFeature {
		return "Resolved: delete", statusResolvedStyle
	}
	return "Resolved: " + res.Strategy.String(), statusResolvedStyle
}
