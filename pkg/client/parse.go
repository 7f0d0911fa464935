package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/safevision/safevision/pkg/labels"
	"github.com/safevision/safevision/pkg/types"
)

// ErrMalformedResponse is returned alongside an empty object list when the
// model's reply holds no usable JSON.
var ErrMalformedResponse = errors.New("malformed model response")

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)\s//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

type objectsEnvelope struct {
	Objects json.RawMessage `json:"objects"`
}

// ParseObjects extracts the object list from a model reply. Both
// {"objects":[...]} and a bare [...] are accepted. List entries are either
// objects with a label and box, or numeric rows [class, cx, cy, w, h] with an
// optional sixth confidence field; a row's label is its class id.
func ParseObjects(raw string) ([]types.RawObject, error) {
	raw = SanitizeModelJSON(raw)
	if raw == "" {
		return []types.RawObject{}, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}

	if strings.HasPrefix(raw, "[") {
		return parseList([]byte(raw))
	}

	if !strings.HasPrefix(raw, "{") {
		return []types.RawObject{}, fmt.Errorf("%w: no JSON found", ErrMalformedResponse)
	}
	var env objectsEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return []types.RawObject{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(env.Objects) == 0 || string(env.Objects) == "null" {
		return []types.RawObject{}, nil
	}
	return parseList(env.Objects)
}

func parseList(data []byte) ([]types.RawObject, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return []types.RawObject{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(items) == 0 {
		return []types.RawObject{}, nil
	}

	first := strings.TrimSpace(string(items[0]))
	if !strings.HasPrefix(first, "[") {
		objs := []types.RawObject{}
		if err := json.Unmarshal(data, &objs); err != nil {
			return []types.RawObject{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return objs, nil
	}

	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return []types.RawObject{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	set, err := labels.FromTuples(rows)
	if err != nil {
		return []types.RawObject{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	objs := make([]types.RawObject, len(set))
	for i, d := range set {
		objs[i] = types.RawObject{Label: strconv.Itoa(d.ClassID), Confidence: d.Confidence, Box: d.Box}
	}
	return objs, nil
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from
// a model reply and trims it to the outermost JSON value.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	obj := strings.Index(raw, "{")
	arr := strings.Index(raw, "[")
	switch {
	case arr >= 0 && (obj < 0 || arr < obj):
		if end := strings.LastIndex(raw, "]"); end > arr {
			raw = raw[arr : end+1]
		}
	case obj >= 0:
		if end := strings.LastIndex(raw, "}"); end > obj {
			raw = raw[obj : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
