package backend

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/chojs23/kartkit/internal/conflict"
	"github.com/chojs23/kartkit/internal/feature"
	"github.com/chojs23/kartkit/internal/gitutil"
	"github.com/chojs23/kartkit/internal/graph"
	"github.com/chojs23/kartkit/internal/logging"
)

// Kart runs the kart executable against one working copy.
type Kart struct {
	executable string
	repoPath   string
	logger     *zap.Logger
}

func NewKart(executable, repoPath string, logger *zap.Logger) *Kart {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kart{executable: executable, repoPath: repoPath, logger: logger}
}

func (k *Kart) RepoPath() string { return k.repoPath }

var _ Backend = (*Kart)(nil)

func (k *Kart) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, k.executable, args...)
	cmd.Dir = k.repoPath
	cmd.Env = environ()
	return cmd
}

// environ drops PYTHONHOME, which breaks the bundled interpreter when it
// leaks in from a host application.
func environ() []string {
	env := os.Environ()
	out := env[:0:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "PYTHONHOME=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func (k *Kart) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := k.command(ctx, args)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	k.logger.Debug("running kart", zap.Strings("args", args), zap.String("repo", k.repoPath))
	if err := cmd.Run(); err != nil {
		return nil, k.failure(args, err, stderr.String())
	}
	k.logger.Debug("kart output", zap.String("stdout", logging.Truncate(stdout.String(), logging.MaxLines)))
	return stdout.Bytes(), nil
}

func (k *Kart) failure(args []string, err error, stderr string) error {
	berr := &Error{Args: args, ExitCode: -1, Stderr: stderr}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		berr.ExitCode = ee.ExitCode()
	} else {
		berr.Err = err
	}
	k.logger.Error("kart command failed",
		zap.Strings("args", args),
		zap.Int("exit", berr.ExitCode),
		zap.String("stderr", logging.Truncate(berr.Message(), logging.MaxLines)),
	)
	return berr
}

// Version returns the raw first line of `kart --version`.
func (k *Kart) Version(ctx context.Context) (string, error) {
	out, err := k.run(ctx, "--version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

func (k *Kart) Diff(ctx context.Context, req DiffRequest) (map[string][]feature.RawChange, error) {
	args := []string{"diff", "-ogeojson", "--json-style", "extracompact", req.Refspec()}

	if req.Dataset != "" && req.FeatureID != "" {
		out, err := k.run(ctx, append(args, req.Filter())...)
		if err != nil {
			return nil, err
		}
		records, err := rawChanges(out, "diff "+req.Filter())
		if err != nil {
			return nil, err
		}
		return map[string][]feature.RawChange{req.Dataset: records}, nil
	}

	dir, err := os.MkdirTemp("", "kartkit-diff-")
	if err != nil {
		return nil, fmt.Errorf("create diff dir: %w", err)
	}
	defer os.RemoveAll(dir)

	args = append(args, "--output", dir)
	if filter := req.Filter(); filter != "" {
		args = append(args, filter)
	}
	if _, err := k.run(ctx, args...); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read diff dir: %w", err)
	}
	changes := make(map[string][]feature.RawChange, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read diff output %s: %w", name, err)
		}
		dataset := strings.TrimSuffix(name, filepath.Ext(name))
		records, err := rawChanges(data, "diff "+dataset)
		if err != nil {
			return nil, err
		}
		changes[dataset] = records
	}
	return changes, nil
}

func rawChanges(data []byte, what string) ([]feature.RawChange, error) {
	features, err := decodeFeatures(data, what)
	if err != nil {
		return nil, err
	}
	records := make([]feature.RawChange, 0, len(features))
	for _, gf := range features {
		id, err := featureID(gf, what)
		if err != nil {
			return nil, err
		}
		records = append(records, feature.RawChange{ID: id, Feature: feature.FromGeoJSON(gf)})
	}
	return records, nil
}

func (k *Kart) Conflicts(ctx context.Context) ([]conflict.RawConflict, error) {
	out, err := k.run(ctx, "conflicts", "-ogeojson", "--json-style", "extracompact")
	if err != nil {
		return nil, err
	}
	features, err := decodeFeatures(out, "conflicts")
	if err != nil {
		return nil, err
	}
	records := make([]conflict.RawConflict, 0, len(features))
	for _, gf := range features {
		id, err := featureID(gf, "conflicts")
		if err != nil {
			return nil, err
		}
		records = append(records, conflict.RawConflict{ID: id, Feature: feature.FromGeoJSON(gf)})
	}
	return records, nil
}

func (k *Kart) ConflictsHaveSchemaChanges(ctx context.Context) (bool, error) {
	out, err := k.run(ctx, "conflicts", "-ojson")
	if err != nil {
		return false, err
	}
	payload, err := unwrap(out, "conflicts")
	if err != nil {
		return false, err
	}
	var datasets map[string]map[string]json.RawMessage
	if err := decode(payload, &datasets, "conflicts"); err != nil {
		return false, err
	}
	for _, kinds := range datasets {
		if _, ok := kinds["meta"]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (k *Kart) Resolve(ctx context.Context, cmd ResolveCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	target := cmd.Key.String()
	if cmd.Delete {
		_, err := k.run(ctx, "resolve", "--with", "delete", target)
		return err
	}

	fc := geojson.NewFeatureCollection()
	fc.Append(cmd.Feature.GeoJSON(target))
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode resolution for %s: %w", target, err)
	}

	tmp, err := os.CreateTemp("", "kartkit-resolve-*.geojson")
	if err != nil {
		return fmt.Errorf("create resolution file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write resolution file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write resolution file: %w", err)
	}

	_, err = k.run(ctx, "resolve", "--with-file", tmp.Name(), target)
	return err
}

func (k *Kart) Log(ctx context.Context, req LogRequest) ([]graph.Commit, string, error) {
	var filter []string
	if req.Dataset != "" {
		f := req.Dataset
		if req.FeatureID != "" {
			f += ":" + req.FeatureID
		}
		filter = []string{"--", "--", f}
	}

	out, err := k.run(ctx, append([]string{"log", "-ojson", req.ref()}, filter...)...)
	if err != nil {
		return nil, "", err
	}
	var entries []logEntry
	if err := decode(out, &entries, "log"); err != nil {
		return nil, "", err
	}
	commits := make([]graph.Commit, 0, len(entries))
	for _, e := range entries {
		c, err := e.commit()
		if err != nil {
			return nil, "", err
		}
		commits = append(commits, c)
	}

	text, err := k.run(ctx, append([]string{"log", req.ref(), "--graph", "--format=format:%H%n "}, filter...)...)
	if err != nil {
		return nil, "", err
	}
	return commits, string(text), nil
}

func (k *Kart) Status(ctx context.Context) (Status, error) {
	out, err := k.run(ctx, "status", "-ojson")
	if err != nil {
		return Status{}, err
	}
	payload, err := unwrap(out, "status")
	if err != nil {
		return Status{}, err
	}
	var st statusPayload
	if err := decode(payload, &st, "status"); err != nil {
		return Status{}, err
	}

	status := Status{Branch: st.Branch, Commit: st.Commit, Changes: map[string]feature.Summary{}}
	if st.WorkingCopy == nil {
		return status, nil
	}
	for dataset, changes := range st.WorkingCopy.Changes {
		if changes.Feature == nil {
			// schema-only changes still dirty the tree
			status.Changes[dataset] = feature.Summary{Modified: 1}
			continue
		}
		status.Changes[dataset] = feature.Summary{
			Added:    changes.Feature.Inserts,
			Modified: changes.Feature.Updates,
			Removed:  changes.Feature.Deletes,
		}
	}
	return status, nil
}

// CurrentBranch reads HEAD from the repository directly and only asks the
// executable when that fails.
func (k *Kart) CurrentBranch(ctx context.Context) (string, error) {
	if branch, err := gitutil.CurrentBranch(k.repoPath); err == nil {
		return branch, nil
	}
	out, err := k.run(ctx, "branch", "-ojson")
	if err != nil {
		return "", err
	}
	payload, err := unwrap(out, "branch")
	if err != nil {
		return "", err
	}
	var br branchPayload
	if err := decode(payload, &br, "branch"); err != nil {
		return "", err
	}
	return br.Current, nil
}

func (k *Kart) IsMerging(context.Context) (bool, error) {
	return gitutil.IsMerging(k.repoPath), nil
}

func (k *Kart) MergeMessage(context.Context) (string, error) {
	return gitutil.MergeMessage(k.repoPath)
}

func (k *Kart) Merge(ctx context.Context, req MergeRequest) (MergeResult, error) {
	msg := req.Message
	if msg == "" {
		current, err := k.CurrentBranch(ctx)
		if err != nil {
			return MergeResult{}, err
		}
		msg = fmt.Sprintf("Merge branch '%s' into %s", req.Branch, current)
	}

	args := []string{"merge", req.Branch, "--message", msg}
	if req.NoFF {
		args = append(args, "--no-ff")
	}
	if req.FFOnly {
		args = append(args, "--ff-only")
	}
	out, err := k.run(ctx, append(args, "-ojson")...)
	if err != nil {
		return MergeResult{}, err
	}
	payload, err := unwrap(out, "merge")
	if err != nil {
		return MergeResult{}, err
	}
	var mp mergePayload
	if err := decode(payload, &mp, "merge"); err != nil {
		return MergeResult{}, err
	}
	counts, err := mp.conflicts()
	if err != nil {
		return MergeResult{}, err
	}
	return MergeResult{Commit: mp.Commit, FastForward: mp.FastForward, NoOp: mp.NoOp, Conflicts: counts}, nil
}

func (k *Kart) AbortMerge(ctx context.Context) error {
	_, err := k.run(ctx, "merge", "--abort")
	return err
}

func (k *Kart) ContinueMerge(ctx context.Context, message string) error {
	if message == "" {
		msg, err := k.MergeMessage(ctx)
		if err != nil {
			return err
		}
		message = msg
	}
	_, err := k.run(ctx, "merge", "--continue", "-m", message)
	return err
}

func (k *Kart) Commit(ctx context.Context, message string, datasets ...string) error {
	_, err := k.run(ctx, append([]string{"commit", "-m", message}, datasets...)...)
	return err
}

func (k *Kart) Restore(ctx context.Context, ref string, datasets ...string) error {
	if ref == "" {
		ref = "HEAD"
	}
	_, err := k.run(ctx, append([]string{"restore", "-s", ref}, datasets...)...)
	return err
}

func (k *Kart) Checkout(ctx context.Context, branch string, force bool) error {
	args := []string{"checkout"}
	if force {
		args = append(args, "--force")
	}
	_, err := k.run(ctx, append(args, branch)...)
	return err
}

// Pull fetches and merges, streaming stderr progress to the callback. It
// reports whether the pull finished without conflicts.
func (k *Kart) Pull(ctx context.Context, remote, branch string, progress func(Progress)) (bool, error) {
	args := []string{"pull"}
	if remote != "" {
		args = append(args, remote)
		if branch != "" {
			args = append(args, branch)
		}
	}
	cmd := k.command(ctx, args)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	pipe, err := cmd.StderrPipe()
	if err != nil {
		return false, fmt.Errorf("pull stderr: %w", err)
	}

	k.logger.Debug("running kart", zap.Strings("args", args), zap.String("repo", k.repoPath))
	if err := cmd.Start(); err != nil {
		return false, k.failure(args, err, "")
	}
	streamProgress(io.TeeReader(pipe, &stderr), progress)
	if err := cmd.Wait(); err != nil {
		return false, k.failure(args, err, stderr.String())
	}
	return !strings.Contains(stdout.String(), "kart conflicts"), nil
}

func streamProgress(r io.Reader, progress func(Progress)) {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		if progress == nil {
			continue
		}
		if p, ok := ParseProgress(scanner.Text()); ok {
			progress(p)
		}
	}
	// a line too long for the scanner stops it; keep draining so kart never
	// blocks writing stderr.
	_, _ = io.Copy(io.Discard, r)
}

// scanProgressLines splits on both \n and the \r that progress meters use
// to redraw a line.
func scanProgressLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
