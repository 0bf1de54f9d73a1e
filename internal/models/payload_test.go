package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobPayloadRoundTripPreservesUnknownKeys(t *testing.T) {
	in := []byte(`{
		"storage_key": "tenant-a/abc123/manual.pdf",
		"title": "Centrifuge X200",
		"attempt": 2,
		"ocr_language": "de",
		"priority": 7
	}`)

	var p JobPayload
	require.NoError(t, json.Unmarshal(in, &p))

	assert.Equal(t, "tenant-a/abc123/manual.pdf", p.StorageKey)
	assert.Equal(t, "Centrifuge X200", p.Title)
	assert.Equal(t, 2, p.Attempt)
	require.Contains(t, p.Extra, "ocr_language")
	require.Contains(t, p.Extra, "priority")

	out, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.JSONEq(t, `"de"`, string(decoded["ocr_language"]))
	assert.JSONEq(t, `7`, string(decoded["priority"]))
	assert.JSONEq(t, `"Centrifuge X200"`, string(decoded["title"]))
}

func TestJobPayloadKnownKeysWinOverExtra(t *testing.T) {
	p := JobPayload{
		Title: "real title",
		Extra: map[string]json.RawMessage{"title": json.RawMessage(`"stale title"`)},
	}
	out, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.JSONEq(t, `"real title"`, string(decoded["title"]))
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal(JobDone))
	assert.True(t, Terminal(JobNeedsReview))
	assert.True(t, Terminal(JobFailed))
	assert.False(t, Terminal(JobPending))
	assert.False(t, Terminal(JobProcessing))
	assert.False(t, Terminal(JobRetrying))
}
