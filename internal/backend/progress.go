package backend

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Progress is one parsed progress report from a long-running command.
// Percent is -1 when the line carried only a status text.
type Progress struct {
	Text    string
	Percent int
}

var percentNumber = regexp.MustCompile(`\d+(\.\d+)?`)

// ParseProgress interprets a stderr line printed during clone or pull.
func ParseProgress(line string) (Progress, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Progress{}, false
	}

	if strings.Contains(line, "Writing dataset") {
		parts := strings.Split(line, ":")
		name := strings.TrimSpace(parts[len(parts)-1])
		return Progress{Text: "Checking out layer '" + name + "'", Percent: -1}, true
	}

	if strings.HasPrefix(line, "Receiving objects: ") || strings.HasPrefix(line, "Writing objects: ") {
		label, rest, _ := strings.Cut(line, ": ")
		pct, ok := leadingPercent(rest)
		if !ok {
			return Progress{Text: label, Percent: -1}, true
		}
		return Progress{Text: label, Percent: pct}, true
	}

	msg := line
	if i := strings.LastIndex(line, " - "); i >= 0 {
		msg = line[i+3:]
	}
	if !strings.Contains(msg, "%") {
		return Progress{}, false
	}
	match := percentNumber.FindString(msg)
	if match == "" {
		return Progress{}, false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return Progress{}, false
	}
	return Progress{Percent: int(math.Floor(value)), Text: ""}, true
}

func leadingPercent(s string) (int, bool) {
	head, _, found := strings.Cut(s, "%")
	if !found {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(head), 64)
	if err != nil {
		return 0, false
	}
	return int(math.Floor(value)), true
}
