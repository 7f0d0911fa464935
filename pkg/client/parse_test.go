package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/safevision/safevision/pkg/types"
)

func TestParseObjects(t *testing.T) {
	raw := "```json\n{\n  \"objects\": [\n    {\"label\": \"helmet\", \"confidence\": 0.9, \"box\": {\"cx\": 0.5, \"cy\": 0.4, \"w\": 0.2, \"h\": 0.1}}, // hard hat\n  ]\n}\n```"
	objs, err := ParseObjects(raw)
	require.NoError(t, err)
	require.Equal(t, []types.RawObject{
		{Label: "helmet", Confidence: 0.9, Box: types.Box{CX: 0.5, CY: 0.4, W: 0.2, H: 0.1}},
	}, objs)
}

func TestParseObjectsBareArray(t *testing.T) {
	objs, err := ParseObjects(`Here you go: [{"label":"vest","box":{"cx":0.1,"cy":0.2,"w":0.3,"h":0.4}}]`)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, "vest", objs[0].Label)
	require.Zero(t, objs[0].Confidence)
}

func TestParseObjectsEmpty(t *testing.T) {
	objs, err := ParseObjects(`{"objects": []}`)
	require.NoError(t, err)
	require.Empty(t, objs)

	objs, err = ParseObjects(`{"something": "else"}`)
	require.NoError(t, err)
	require.NotNil(t, objs)
	require.Empty(t, objs)
}

func TestParseObjectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "I see a cat.", `{"objects": [ {"label": }`} {
		objs, err := ParseObjects(raw)
		require.ErrorIs(t, err, ErrMalformedResponse, "reply %q", raw)
		require.NotNil(t, objs)
		require.Empty(t, objs)
	}
}

func TestParseObjectsRows(t *testing.T) {
	objs, err := ParseObjects("```json\n{\"objects\": [[2, 0.5, 0.4, 0.2, 0.1, 0.8], [0, 0.1, 0.2, 0.3, 0.4]]}\n```")
	require.NoError(t, err)
	require.Equal(t, []types.RawObject{
		{Label: "2", Confidence: 0.8, Box: types.Box{CX: 0.5, CY: 0.4, W: 0.2, H: 0.1}},
		{Label: "0", Box: types.Box{CX: 0.1, CY: 0.2, W: 0.3, H: 0.4}},
	}, objs)

	objs, err = ParseObjects(`[[1, 0.5, 0.5, 0.1, 0.1]]`)
	require.NoError(t, err)
	require.Equal(t, "1", objs[0].Label)
}

func TestParseObjectsBadRows(t *testing.T) {
	for _, raw := range []string{
		`[[1, 0.5, 0.5]]`,
		`{"objects": [[1.5, 0.5, 0.5, 0.1, 0.1]]}`,
		`[[-1, 0.5, 0.5, 0.1, 0.1]]`,
		`[[0, 0.5, 0.5, 0.1, 0.1, 0.9, 7]]`,
	} {
		objs, err := ParseObjects(raw)
		require.ErrorIs(t, err, ErrMalformedResponse, "reply %q", raw)
		require.ErrorIs(t, err, types.ErrInvalidInput, "reply %q", raw)
		require.NotNil(t, objs)
		require.Empty(t, objs)
	}
}

func TestSanitizeModelJSON(t *testing.T) {
	require.Equal(t, `{"a": 1}`, SanitizeModelJSON("/* note */ {\"a\": 1,}"))
	require.Equal(t, `{"url": "http://x"}`, SanitizeModelJSON(`{"url": "http://x"}`))
}
