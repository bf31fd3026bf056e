package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLevels(t *testing.T) {
	var quiet bytes.Buffer
	New(&quiet, false).Debug("hidden")
	assert.Empty(t, quiet.String())

	var verbose bytes.Buffer
	logger := New(&verbose, true)
	logger.Debug("shown")
	_ = logger.Sync()
	assert.Contains(t, verbose.String(), "DEBUG")
	assert.Contains(t, verbose.String(), "shown")
}

func TestTruncate(t *testing.T) {
	short := "a\nb\n"
	assert.Equal(t, "a\nb", Truncate(short, 5))

	lines := make([]string, 25)
	for i := range lines {
		lines[i] = "line"
	}
	got := Truncate(strings.Join(lines, "\n"), MaxLines)
	assert.Equal(t, MaxLines+1, strings.Count(got, "\n")+1)
	assert.True(t, strings.HasSuffix(got, "... (5 more lines)"))

	assert.Equal(t, "x\ny", Truncate("x\ny", 0))
}
