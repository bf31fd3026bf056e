package backend

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"

	"github.com/chojs23/kartkit/internal/graph"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func init() {
	geojson.CustomJSONMarshaler = jsonCodec{}
	geojson.CustomJSONUnmarshaler = jsonCodec{}
}

func decode(data []byte, v any, what string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParse, what, err)
	}
	return nil
}

func decodeFeatures(data []byte, what string) ([]*geojson.Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, what, err)
	}
	return fc.Features, nil
}

func featureID(gf *geojson.Feature, what string) (string, error) {
	id, ok := gf.ID.(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %s: feature without string id (%v)", ErrParse, what, gf.ID)
	}
	return id, nil
}

// unwrap returns the single versioned payload ("kart.status/v1" and the
// like) that JSON commands print.
func unwrap(data []byte, what string) (json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := decode(data, &envelope, what); err != nil {
		return nil, err
	}
	if len(envelope) != 1 {
		return nil, fmt.Errorf("%w: %s: expected one payload, got %d", ErrParse, what, len(envelope))
	}
	for _, payload := range envelope {
		return payload, nil
	}
	return nil, nil
}

type statusPayload struct {
	Commit      string `json:"commit"`
	Branch      string `json:"branch"`
	WorkingCopy *struct {
		Changes map[string]struct {
			Feature *struct {
				Inserts int `json:"inserts"`
				Updates int `json:"updates"`
				Deletes int `json:"deletes"`
			} `json:"feature"`
		} `json:"changes"`
	} `json:"workingCopy"`
}

type branchPayload struct {
	Current string `json:"current"`
}

type mergePayload struct {
	Commit      string          `json:"commit"`
	FastForward bool            `json:"fastForward"`
	NoOp        bool            `json:"noOp"`
	Conflicts   json.RawMessage `json:"conflicts"`
}

func (p mergePayload) conflicts() (map[string]int, error) {
	raw := strings.TrimSpace(string(p.Conflicts))
	if raw == "" || raw == "null" || raw == "[]" || raw == "{}" {
		return nil, nil
	}
	var byDataset map[string]map[string]int
	if err := decode(p.Conflicts, &byDataset, "merge conflicts"); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(byDataset))
	for dataset, kinds := range byDataset {
		for _, n := range kinds {
			counts[dataset] += n
		}
	}
	return counts, nil
}

type logEntry struct {
	Commit       string   `json:"commit"`
	AbbrevCommit string   `json:"abbrevCommit"`
	Message      string   `json:"message"`
	Refs         []string `json:"refs"`
	AuthorName   string   `json:"authorName"`
	AuthorEmail  string   `json:"authorEmail"`
	AuthorTime   string   `json:"authorTime"`
	Parents      []string `json:"parents"`
}

func (e logEntry) commit() (graph.Commit, error) {
	if e.Commit == "" {
		return graph.Commit{}, fmt.Errorf("%w: log entry without commit id", ErrParse)
	}
	c := graph.Commit{
		ID:          e.Commit,
		AbbrevID:    e.AbbrevCommit,
		Message:     e.Message,
		Author:      e.AuthorName,
		AuthorEmail: e.AuthorEmail,
		Refs:        e.Refs,
		Parents:     e.Parents,
	}
	if e.AuthorTime != "" {
		t, err := time.Parse(time.RFC3339, e.AuthorTime)
		if err != nil {
			return graph.Commit{}, fmt.Errorf("%w: commit %s time %q", ErrParse, e.Commit, e.AuthorTime)
		}
		c.Time = t
	}
	return c, nil
}
