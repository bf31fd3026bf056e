package tui

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/engine"
	"github.com/chojs23/kartkit/internal/feature"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, "NULL"},
		{"string", "main st", "main st"},
		{"integral float", 3.0, "3"},
		{"float", 1.5, "1.5"},
		{"bool", true, "true"},
		{"point", orb.Point{1, 2}, "POINT(1 2)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(tt.value); got != tt.want {
				t.Fatalf("formatValue(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestFitCell(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"ab", 4, "ab  "},
		{"abcd", 4, "abcd"},
		{"abcdefghij", 5, "abcd…"},
		{"a\nb", 3, "a b"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := fitCell(tt.in, tt.width); got != tt.want {
			t.Fatalf("fitCell(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestColumnWidth(t *testing.T) {
	if got := columnWidth(10); got != minColumnWidth {
		t.Fatalf("columnWidth(10) = %d, want %d", got, minColumnWidth)
	}
	if got := columnWidth(104); got != 20 {
		t.Fatalf("columnWidth(104) = %d, want 20", got)
	}
}

func TestFieldNamesGeometryFirst(t *testing.T) {
	ours := feature.Feature{Properties: map[string]any{"zeta": 1.0, "alpha": 2.0}}
	theirs := feature.Feature{Properties: map[string]any{"beta": 3.0}}
	entry := conflict.Entry{Dataset: "roads", FeatureID: "1", Ours: &ours, Theirs: &theirs}

	got := strings.Join(fieldNames(entry), ",")
	if got != "geometry,alpha,beta,zeta" {
		t.Fatalf("fieldNames = %q", got)
	}
}

func TestBuildFieldRows(t *testing.T) {
	session := testSession(t)
	entry, _ := session.Set().Lookup(roads2)

	rows := buildFieldRows(entry, engine.Pending(roads2), nil)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	name := rows[1]
	if name.name != "name" || name.ancestor != "x" || name.ours != absentText || name.theirs != "y" {
		t.Fatalf("name row = %+v", name)
	}
	if !name.conflicted {
		t.Fatalf("name row should be conflicted when ours is absent")
	}
	if name.result != "" {
		t.Fatalf("result = %q, want empty while unresolved", name.result)
	}

	res, err := engine.ResolveWith(entry, engine.Delete)
	if err != nil {
		t.Fatalf("ResolveWith error = %v", err)
	}
	rows = buildFieldRows(entry, res, nil)
	if rows[0].result != deletedText {
		t.Fatalf("result = %q, want %q", rows[0].result, deletedText)
	}
}

func TestBuildFieldRowsAgreeingSides(t *testing.T) {
	session := testSession(t)
	entry, _ := session.Set().Lookup(roads1)

	res, err := engine.ResolveWith(entry, engine.UseTheirs)
	if err != nil {
		t.Fatalf("ResolveWith error = %v", err)
	}
	rows := buildFieldRows(entry, res, map[string]conflict.Version{"name": conflict.Ours})
	geometry := rows[0]
	if geometry.ours != "POINT(0 0)" || geometry.theirs != "POINT(1 1)" || geometry.result != "POINT(1 1)" {
		t.Fatalf("geometry row = %+v", geometry)
	}
	if rows[1].pick != conflict.Ours {
		t.Fatalf("pick = %q, want ours", rows[1].pick)
	}
}

func TestRenderFieldTable(t *testing.T) {
	rows := []fieldRow{
		{name: "geometry", ancestor: "POINT(0 0)", ours: "POINT(0 0)", theirs: "POINT(1 1)"},
		{name: "name", ancestor: "a", ours: "b", theirs: "c", conflicted: true},
	}
	out := renderFieldTable(rows, 1, 80)
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "ANCESTOR") || !strings.Contains(lines[0], "RESULT") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], ">name") {
		t.Fatalf("selected row = %q, want cursor", lines[2])
	}
	if strings.Contains(lines[1], ">") {
		t.Fatalf("unselected row has cursor: %q", lines[1])
	}
}

func TestFieldDecisions(t *testing.T) {
	session := testSession(t)
	entry, _ := session.Set().Lookup(roads1)

	d := fieldDecisions(entry, map[string]conflict.Version{
		feature.GeometryField: conflict.Ours,
		"name":                conflict.Theirs,
	})
	if !d.GeometryChosen || !feature.GeometryEqual(d.Geometry, orb.Point{0, 0}) {
		t.Fatalf("geometry decision = %v %v", d.GeometryChosen, d.Geometry)
	}
	if d.Fields["name"] != "c" {
		t.Fatalf("name decision = %v, want c", d.Fields["name"])
	}
}

func TestStatusText(t *testing.T) {
	if text, _ := statusText(engine.Pending(roads1)); text != "Unresolved" {
		t.Fatalf("pending status = %q", text)
	}
	if text, _ := statusText(engine.Resolution{Key: roads1, Outcome: engine.DeleteFeature, Strategy: engine.Delete}); text != "Resolved: delete" {
		t.Fatalf("delete status = %q", text)
	}
}
