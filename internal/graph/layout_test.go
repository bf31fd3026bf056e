package graph

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

func linearHistory(n int) ([]Commit, string) {
	commits := make([]Commit, n)
	var b strings.Builder
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%040d", i+1)
		commits[i] = Commit{ID: id, Message: fmt.Sprintf("commit %d", i+1)}
		if i < n-1 {
			commits[i].Parents = []string{fmt.Sprintf("%040d", i+2)}
		}
		fmt.Fprintf(&b, "* %s\n", id)
		if i < n-1 {
			b.WriteString("|  \n")
		} else {
			b.WriteString("   \n")
		}
	}
	return commits, b.String()
}

func TestBuildLinearHistory(t *testing.T) {
	commits, text := linearHistory(5)
	layout, err := Build(commits, text, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if layout.Len() != 5 {
		t.Fatalf("Len = %d, want 5", layout.Len())
	}
	if layout.Columns() != 1 {
		t.Fatalf("Columns = %d, want 1", layout.Columns())
	}

	want := []Connector{{Vertical, 0}}
	for i, node := range layout.Nodes() {
		if node.Column() != 0 {
			t.Fatalf("node %d column = %d", i, node.Column())
		}
		if node.Row() != i || node.ID() != commits[i].ID {
			t.Fatalf("node %d = row %d id %s", i, node.Row(), node.ID())
		}
		if i == 0 || i == 4 {
			continue
		}
		if got := node.ChildEdges().Connectors(); !reflect.DeepEqual(got, want) {
			t.Fatalf("node %d child edges = %v", i, got)
		}
		if got := node.ParentEdges().Connectors(); !reflect.DeepEqual(got, want) {
			t.Fatalf("node %d parent edges = %v", i, got)
		}
		if !node.Through().Empty() {
			t.Fatalf("node %d through = %v", i, node.Through().Connectors())
		}
	}
}

func TestBuildRootHasNoParentEdges(t *testing.T) {
	commits, text := linearHistory(3)
	layout, err := Build(commits, text, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	nodes := layout.Nodes()
	root := nodes[len(nodes)-1]
	if !root.Commit().IsRoot() {
		t.Fatalf("expected root commit")
	}
	if !root.ParentEdges().Empty() {
		t.Fatalf("root parent edges = %v", root.ParentEdges().Connectors())
	}
	if !nodes[0].ChildEdges().Empty() {
		t.Fatalf("head child edges = %v", nodes[0].ChildEdges().Connectors())
	}
}

func TestBuildSingleRootCommit(t *testing.T) {
	layout, err := Build([]Commit{{ID: "abc"}}, "* abc\n", nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if layout.Len() != 1 || layout.Nodes()[0].Column() != 0 {
		t.Fatalf("unexpected layout: %+v", layout.Nodes())
	}
}

func TestBuildMergeHistory(t *testing.T) {
	commits := []Commit{
		{ID: "m", Parents: []string{"a", "b"}},
		{ID: "b", Parents: []string{"c"}},
		{ID: "a", Parents: []string{"c"}},
		{ID: "c"},
	}
	text := strings.Join([]string{
		"*   m",
		"|\\  ",
		"| * b",
		"* | a",
		"|/  ",
		"* c",
		"   ",
	}, "\n")

	layout, err := Build(commits, text, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	nodes := layout.Nodes()

	columns := []int{nodes[0].Column(), nodes[1].Column(), nodes[2].Column(), nodes[3].Column()}
	if !reflect.DeepEqual(columns, []int{0, 1, 0, 0}) {
		t.Fatalf("columns = %v", columns)
	}
	if layout.Columns() != 2 {
		t.Fatalf("Columns = %d, want 2", layout.Columns())
	}

	merge := nodes[0].ParentEdges()
	if !reflect.DeepEqual(merge.Vertical, []int{0}) || !reflect.DeepEqual(merge.DiagonalDown, []int{0}) {
		t.Fatalf("merge parent edges = %+v", merge)
	}
	if got := nodes[1].Through().Vertical; !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("b through = %v", got)
	}
	if got := nodes[3].ChildEdges().DiagonalUp; !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("c child diagonal-up = %v", got)
	}
	if nodes[1].Color() != DefaultPalette[1] {
		t.Fatalf("b color = %v", nodes[1].Color())
	}
}

func TestBuildCountMismatch(t *testing.T) {
	commits, _ := linearHistory(5)
	_, text := linearHistory(4)
	_, err := Build(commits, text, nil)
	if !errors.Is(err, ErrGraphSync) {
		t.Fatalf("expected ErrGraphSync, got %v", err)
	}
}

func TestBuildCommitIDMismatch(t *testing.T) {
	commits := []Commit{{ID: "aaaa"}, {ID: "bbbb"}}
	text := "* bbbb\n|\n* aaaa\n"
	if _, err := Build(commits, text, nil); !errors.Is(err, ErrGraphSync) {
		t.Fatalf("expected ErrGraphSync, got %v", err)
	}
}

func TestBuildAcceptsAbbreviatedIDs(t *testing.T) {
	commits := []Commit{{ID: "abcdef1234"}}
	if _, err := Build(commits, "* abcdef1\n", nil); err != nil {
		t.Fatalf("Build error: %v", err)
	}
}

func TestColorDeterminism(t *testing.T) {
	commits := []Commit{{ID: "m"}, {ID: "b"}, {ID: "a"}, {ID: "c"}}
	text := "*   m\n|\\  \n| * b\n* | a\n|/  \n* c\n"

	first, err := Build(commits, text, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	second, err := Build(commits, text, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if !reflect.DeepEqual(first.ColumnColors(), second.ColumnColors()) {
		t.Fatalf("colors differ: %v vs %v", first.ColumnColors(), second.ColumnColors())
	}
	for i, node := range first.Nodes() {
		if node.Color() != second.Nodes()[i].Color() {
			t.Fatalf("node %d color differs", i)
		}
	}
}

func TestPaletteWraps(t *testing.T) {
	if len(DefaultPalette) < 9 {
		t.Fatalf("palette has %d colors", len(DefaultPalette))
	}
	n := len(DefaultPalette)
	if DefaultPalette.Color(n) != DefaultPalette.Color(0) {
		t.Fatalf("palette does not wrap")
	}
	if DefaultPalette.Color(n+3) != DefaultPalette[3] {
		t.Fatalf("palette wrap offset wrong")
	}
	custom := Palette{"1", "2"}
	if custom.Color(5) != "2" {
		t.Fatalf("custom palette color = %v", custom.Color(5))
	}
}

func TestFind(t *testing.T) {
	commits, text := linearHistory(3)
	layout, err := Build(commits, text, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	node, ok := layout.Find(commits[1].ID)
	if !ok || node.Row() != 1 {
		t.Fatalf("Find = %+v, %v", node, ok)
	}
	if _, ok := layout.Find("missing"); ok {
		t.Fatalf("expected missing commit")
	}
}

func TestRender(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	commits, text := linearHistory(2)
	commits[0].Refs = []string{"HEAD -> main"}
	commits[0].Author = "Robin"
	commits[0].Time = now.Add(-2 * time.Hour)

	layout, err := Build(commits, text, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	out := Render(layout, now)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], commits[0].ID[:7]) || !strings.Contains(lines[0], "commit 1") {
		t.Fatalf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[0], "HEAD -> main") || !strings.Contains(lines[0], "2 hours ago") {
		t.Fatalf("first line missing refs or time: %q", lines[0])
	}
	if !strings.Contains(lines[1], "|") {
		t.Fatalf("band line = %q", lines[1])
	}
	if Render(nil, now) != "" {
		t.Fatalf("expected empty render for nil layout")
	}
}
