package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/feature"
)

func TestKartStatus(t *testing.T) {
	k := fakeKart(t, `#!/bin/sh
if [ "$1" = "status" ] && [ "$2" = "-ojson" ]; then
  cat <<'JSON'
{"kart.status/v1": {"commit": "abc123", "branch": "main", "workingCopy": {"path": "wc.gpkg", "changes": {"roads": {"feature": {"inserts": 1, "updates": 2, "deletes": 0}}}}}}
JSON
  exit 0
fi
exit 1
`)

	status, err := k.Status(context.Background())
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if status.Branch != "main" || status.Commit != "abc123" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if got := status.Changes["roads"]; got != (feature.Summary{Added: 1, Modified: 2}) {
		t.Fatalf("roads summary = %+v", got)
	}
	if status.Clean() {
		t.Fatalf("expected dirty working copy")
	}
}

func TestKartStatusClean(t *testing.T) {
	k := fakeKart(t, `#!/bin/sh
echo '{"kart.status/v1": {"commit": "abc123", "branch": "main", "workingCopy": {"path": "wc.gpkg", "changes": null}}}'
`)
	status, err := k.Status(context.Background())
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if !status.Clean() {
		t.Fatalf("expected clean working copy, got %+v", status.Changes)
	}
}

func TestKartMalformedOutput(t *testing.T) {
	k := fakeKart(t, "#!/bin/sh\necho '{\"kart.status/v1\": {\"commit\": '\n")
	if _, err := k.Status(context.Background()); !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}

	k = fakeKart(t, "#!/bin/sh\necho '{\"type\": \"FeatureCollection\", \"features\": [{\"type\": \"Feature\", \"geometry\": null, \"properties\": {}}]}'\n")
	if _, err := k.Conflicts(context.Background()); !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse for missing id, got %v", err)
	}
}

func TestKartFailure(t *testing.T) {
	k := fakeKart(t, `#!/bin/sh
echo "ERROR 1: Can't load libsomething.so" 1>&2
echo "You have uncommitted changes in your working copy." 1>&2
exit 3
`)

	err := k.Checkout(context.Background(), "other", false)
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	var berr *Error
	if !errors.As(err, &berr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if berr.ExitCode != 3 {
		t.Fatalf("ExitCode = %d", berr.ExitCode)
	}
	if berr.Message() != "You have uncommitted changes in your working copy." {
		t.Fatalf("Message = %q", berr.Message())
	}
	if !berr.NeedsCleanTree() {
		t.Fatalf("expected NeedsCleanTree")
	}
	if strings.Join(berr.Args, " ") != "checkout other" {
		t.Fatalf("Args = %v", berr.Args)
	}
}

func TestKartConflicts(t *testing.T) {
	k := fakeKart(t, `#!/bin/sh
if [ "$1" = "conflicts" ] && [ "$2" = "-ogeojson" ]; then
  cat <<'JSON'
{"type": "FeatureCollection", "features": [
 {"type": "Feature", "id": "roads:feature:7:ancestor", "geometry": {"type": "Point", "coordinates": [1, 2]}, "properties": {"name": "a"}},
 {"type": "Feature", "id": "roads:feature:7:ours", "geometry": {"type": "Point", "coordinates": [1, 3]}, "properties": {"name": "b"}},
 {"type": "Feature", "id": "roads:feature:7:theirs", "geometry": {"type": "Point", "coordinates": [1, 2]}, "properties": {"name": "c"}}
]}
JSON
  exit 0
fi
exit 1
`)

	records, err := k.Conflicts(context.Background())
	if err != nil {
		t.Fatalf("Conflicts error: %v", err)
	}
	set, err := conflict.FromRaw(records)
	if err != nil {
		t.Fatalf("FromRaw error: %v", err)
	}
	entry, ok := set.Lookup(conflict.Key{Dataset: "roads", FeatureID: "7"})
	if !ok {
		t.Fatalf("missing conflict entry")
	}
	if entry.Ours.Properties["name"] != "b" {
		t.Fatalf("ours name = %v", entry.Ours.Properties["name"])
	}
	if !orb.Equal(entry.Ours.Geometry, orb.Point{1, 3}) {
		t.Fatalf("ours geometry = %v", entry.Ours.Geometry)
	}
}

func TestKartConflictsHaveSchemaChanges(t *testing.T) {
	k := fakeKart(t, `#!/bin/sh
echo '{"kart.conflicts/v1": {"roads": {"meta": {"schema.json": 1}, "feature": {"7": 1}}}}'
`)
	got, err := k.ConflictsHaveSchemaChanges(context.Background())
	if err != nil {
		t.Fatalf("ConflictsHaveSchemaChanges error: %v", err)
	}
	if !got {
		t.Fatalf("expected schema conflicts")
	}

	k = fakeKart(t, `#!/bin/sh
echo '{"kart.conflicts/v1": {"roads": {"feature": {"7": 1}}}}'
`)
	got, err = k.ConflictsHaveSchemaChanges(context.Background())
	if err != nil || got {
		t.Fatalf("ConflictsHaveSchemaChanges = %v, %v", got, err)
	}
}

func TestKartDiffOutputDir(t *testing.T) {
	k := fakeKart(t, `#!/bin/sh
[ "$1" = "diff" ] || exit 1
[ "$5" = "main...edits" ] || { echo "refspec $5" 1>&2; exit 1; }
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"
done
cat > "$out/roads.geojson" <<'JSON'
{"type": "FeatureCollection", "features": [
 {"type": "Feature", "id": "U-::f1", "geometry": null, "properties": {"vel": 1}},
 {"type": "Feature", "id": "U+::f1", "geometry": null, "properties": {"vel": 2}},
 {"type": "Feature", "id": "I::f2", "geometry": null, "properties": {"vel": 3}}
]}
JSON
`)

	raw, err := k.Diff(context.Background(), DiffRequest{RefA: "edits", RefB: "main"})
	if err != nil {
		t.Fatalf("Diff error: %v", err)
	}
	grouped, err := feature.GroupDiff(raw)
	if err != nil {
		t.Fatalf("GroupDiff error: %v", err)
	}
	if len(grouped) != 1 || grouped[0].Dataset != "roads" {
		t.Fatalf("unexpected datasets: %+v", grouped)
	}
	changes := grouped[0].Changes
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].Kind != feature.Modified || changes[0].New.Properties["vel"] != 2.0 {
		t.Fatalf("first change = %+v", changes[0])
	}
	if changes[1].Kind != feature.Added {
		t.Fatalf("second change kind = %v", changes[1].Kind)
	}
}

func TestKartDiffSingleFeature(t *testing.T) {
	k := fakeKart(t, `#!/bin/sh
[ "$6" = "roads:f1" ] || exit 1
echo '{"type": "FeatureCollection", "features": [{"type": "Feature", "id": "D::f1", "geometry": null, "properties": {"vel": 1}}]}'
`)
	raw, err := k.Diff(context.Background(), DiffRequest{Dataset: "roads", FeatureID: "f1"})
	if err != nil {
		t.Fatalf("Diff error: %v", err)
	}
	if len(raw["roads"]) != 1 || raw["roads"][0].ID != "D::f1" {
		t.Fatalf("unexpected diff: %+v", raw)
	}
}

func TestKartResolve(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "resolution.geojson")
	t.Setenv("KARTKIT_CAPTURE", capture)
	k := fakeKart(t, `#!/bin/sh
if [ "$1" = "resolve" ] && [ "$2" = "--with-file" ]; then
  cp "$3" "$KARTKIT_CAPTURE"
  echo "$4" > "$KARTKIT_CAPTURE.target"
  exit 0
fi
if [ "$1" = "resolve" ] && [ "$2" = "--with" ] && [ "$3" = "delete" ]; then
  echo "$4" > "$KARTKIT_CAPTURE.deleted"
  exit 0
fi
exit 1
`)

	key := conflict.Key{Dataset: "roads", FeatureID: "7"}
	f := feature.Feature{Geometry: orb.Point{1, 2}, Properties: geojson.Properties{"name": "merged"}}
	if err := k.Resolve(context.Background(), ResolveCommand{Key: key, Feature: &f}); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	data, err := os.ReadFile(capture)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatalf("decode capture: %v", err)
	}
	if len(fc.Features) != 1 || fc.Features[0].ID != "roads:feature:7" {
		t.Fatalf("unexpected resolution file: %s", data)
	}
	if fc.Features[0].Properties["name"] != "merged" {
		t.Fatalf("resolution properties = %v", fc.Features[0].Properties)
	}
	target, _ := os.ReadFile(capture + ".target")
	if strings.TrimSpace(string(target)) != "roads:feature:7" {
		t.Fatalf("target = %q", target)
	}

	if err := k.Resolve(context.Background(), ResolveCommand{Key: key, Delete: true}); err != nil {
		t.Fatalf("Resolve delete error: %v", err)
	}
	deleted, _ := os.ReadFile(capture + ".deleted")
	if strings.TrimSpace(string(deleted)) != "roads:feature:7" {
		t.Fatalf("deleted = %q", deleted)
	}

	if err := k.Resolve(context.Background(), ResolveCommand{Key: key}); err == nil {
		t.Fatalf("expected invalid command error")
	}
}

func TestKartLog(t *testing.T) {
	k := fakeKart(t, `#!/bin/sh
if [ "$1" = "log" ] && [ "$2" = "-ojson" ]; then
  cat <<'JSON'
[{"commit": "bbbb", "abbrevCommit": "bb", "message": "second", "refs": ["HEAD -> main"], "authorName": "Ana", "authorEmail": "ana@example.com", "authorTime": "2024-03-01T10:00:00Z", "parents": ["aaaa"]},
 {"commit": "aaaa", "abbrevCommit": "aa", "message": "first", "refs": [], "authorName": "Ana", "authorEmail": "ana@example.com", "authorTime": "2024-02-01T10:00:00Z", "parents": []}]
JSON
  exit 0
fi
if [ "$1" = "log" ] && [ "$3" = "--graph" ]; then
  printf '* bbbb\n|  \n* aaaa\n   \n'
  exit 0
fi
exit 1
`)

	commits, text, err := k.Log(context.Background(), LogRequest{})
	if err != nil {
		t.Fatalf("Log error: %v", err)
	}
	if len(commits) != 2 || commits[0].ID != "bbbb" || !commits[1].IsRoot() {
		t.Fatalf("unexpected commits: %+v", commits)
	}
	if commits[0].Time.Year() != 2024 || commits[0].Author != "Ana" {
		t.Fatalf("unexpected metadata: %+v", commits[0])
	}
	if strings.Count(text, "*") != 2 {
		t.Fatalf("graph text = %q", text)
	}
}

func TestKartMerge(t *testing.T) {
	k := fakeKart(t, `#!/bin/sh
if [ "$1" = "merge" ] && [ "$2" = "edits" ] && [ "$4" = "msg" ] && [ "$5" = "-ojson" ]; then
  echo '{"kart.merge/v1": {"commit": null, "fastForward": false, "conflicts": {"roads": {"feature": 2}, "parks": {"feature": 1}}}}'
  exit 0
fi
exit 1
`)
	res, err := k.Merge(context.Background(), MergeRequest{Branch: "edits", Message: "msg"})
	if err != nil {
		t.Fatalf("Merge error: %v", err)
	}
	if !res.Conflicted() || res.Conflicts["roads"] != 2 || res.Conflicts["parks"] != 1 {
		t.Fatalf("unexpected merge result: %+v", res)
	}
}

func TestKartMergeClean(t *testing.T) {
	k := fakeKart(t, `#!/bin/sh
echo '{"kart.merge/v1": {"commit": "cccc", "fastForward": true}}'
`)
	res, err := k.Merge(context.Background(), MergeRequest{Branch: "edits", Message: "msg"})
	if err != nil {
		t.Fatalf("Merge error: %v", err)
	}
	if res.Conflicted() || !res.FastForward || res.Commit != "cccc" {
		t.Fatalf("unexpected merge result: %+v", res)
	}
}

func TestKartPull(t *testing.T) {
	k := fakeKart(t, `#!/bin/sh
printf 'Receiving objects:  45%% (9/20)\rReceiving objects: 100%% (20/20)\n' 1>&2
printf 'Writing dataset: roads\n' 1>&2
echo "Conflicts found, run kart conflicts to see them"
`)

	var seen []Progress
	ok, err := k.Pull(context.Background(), "origin", "main", func(p Progress) {
		seen = append(seen, p)
	})
	if err != nil {
		t.Fatalf("Pull error: %v", err)
	}
	if ok {
		t.Fatalf("expected conflicted pull")
	}
	if len(seen) != 3 {
		t.Fatalf("progress = %+v", seen)
	}
	if seen[0].Percent != 45 || seen[1].Percent != 100 {
		t.Fatalf("percent = %+v", seen)
	}
	if seen[2].Text != "Checking out layer 'roads'" {
		t.Fatalf("dataset progress = %+v", seen[2])
	}
}

func TestKartContinueMergeUsesStoredMessage(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "args")
	t.Setenv("KARTKIT_CAPTURE", capture)
	k := fakeKart(t, `#!/bin/sh
echo "$@" > "$KARTKIT_CAPTURE"
`)
	if err := os.MkdirAll(filepath.Join(k.RepoPath(), ".kart"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(k.RepoPath(), ".kart", "MERGE_MSG"), []byte("Merge branch 'x'\n"), 0o644); err != nil {
		t.Fatalf("write MERGE_MSG: %v", err)
	}

	merging, err := k.IsMerging(context.Background())
	if err != nil || !merging {
		t.Fatalf("IsMerging = %v, %v", merging, err)
	}
	if err := k.ContinueMerge(context.Background(), ""); err != nil {
		t.Fatalf("ContinueMerge error: %v", err)
	}
	args, _ := os.ReadFile(capture)
	if strings.TrimSpace(string(args)) != "merge --continue -m Merge branch 'x'" {
		t.Fatalf("args = %q", args)
	}
}

func TestDropsPythonHome(t *testing.T) {
	t.Setenv("PYTHONHOME", "/somewhere")
	for _, kv := range environ() {
		if strings.HasPrefix(kv, "PYTHONHOME=") {
			t.Fatalf("PYTHONHOME leaked into backend environment")
		}
	}
}

func TestKartPullArgs(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		branch string
		want   string
	}{
		{"remote only", "origin", "", "[pull][origin]"},
		{"remote and branch", "origin", "main", "[pull][origin][main]"},
		{"defaults", "", "", "[pull]"},
		{"branch without remote", "", "main", "[pull]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			argsFile := filepath.Join(t.TempDir(), "args")
			k := fakeKart(t, "#!/bin/sh\nfor a in \"$@\"; do printf '[%s]' \"$a\"; done > '"+argsFile+"'\n")
			if _, err := k.Pull(context.Background(), tt.remote, tt.branch, nil); err != nil {
				t.Fatalf("Pull error: %v", err)
			}
			got, err := os.ReadFile(argsFile)
			if err != nil {
				t.Fatalf("read args: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("argv = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestKartPullDrainsLongStderr(t *testing.T) {
	k := fakeKart(t, `#!/bin/sh
head -c 300000 /dev/zero | tr '\0' 'x' 1>&2
printf '\nReceiving objects: 100%% (1/1)\n' 1>&2
echo done
`)

	done := make(chan error, 1)
	go func() {
		_, err := k.Pull(context.Background(), "origin", "", nil)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Pull error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Pull did not return after an oversized stderr line")
	}
}

func fakeKart(t *testing.T, script string) *Kart {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "kart")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake kart: %v", err)
	}
	return NewKart(path, t.TempDir(), nil)
}
