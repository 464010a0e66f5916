package json_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwojciec/relay"
	relayjson "github.com/fwojciec/relay/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHistory() *relay.History {
	h := relay.NewHistory(3)
	h.Push(relay.Message{Role: relay.RoleUser, Content: "hello", Timestamp: time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC)})
	h.Push(relay.Message{Role: relay.RoleAssistant, Content: "hi there", Timestamp: time.Date(2026, 2, 18, 12, 0, 5, 0, time.UTC)})
	return h
}

func TestMarshalHistory_RoundTrip(t *testing.T) {
	t.Parallel()
	h := sampleHistory()

	data, err := relayjson.MarshalHistory(h)
	require.NoError(t, err)
	got, err := relayjson.UnmarshalHistory(data)
	require.NoError(t, err)

	assert.Equal(t, h.Items(), got.Items())
	assert.Equal(t, 3, got.Capacity)
}

func TestMarshalHistory_V1Envelope(t *testing.T) {
	t.Parallel()

	data, err := relayjson.MarshalHistory(sampleHistory())
	require.NoError(t, err)

	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &envelope))

	var version int
	require.NoError(t, json.Unmarshal(envelope["version"], &version))
	assert.Equal(t, 1, version)

	var msgs []map[string]any
	require.NoError(t, json.Unmarshal(envelope["messages"], &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0]["role"])
	assert.Equal(t, "hello", msgs[0]["content"])
	assert.Contains(t, msgs[0], "timestamp")
	assert.Contains(t, envelope, "updated_at")
}

func TestMarshalHistory_Empty(t *testing.T) {
	t.Parallel()

	data, err := relayjson.MarshalHistory(relay.NewHistory(0))
	require.NoError(t, err)
	got, err := relayjson.UnmarshalHistory(data)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestUnmarshalHistory_EvictsPastCapacity(t *testing.T) {
	t.Parallel()
	data := []byte(`{"version":1,"capacity":2,"messages":[
		{"role":"user","content":"one"},
		{"role":"assistant","content":"two"},
		{"role":"user","content":"three"}
	]}`)

	got, err := relayjson.UnmarshalHistory(data)
	require.NoError(t, err)
	items := got.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "two", items[0].Content)
	assert.Equal(t, "three", items[1].Content)
}

func TestUnmarshalHistory_UnknownRole(t *testing.T) {
	t.Parallel()
	data := []byte(`{"version":1,"messages":[{"role":"tool","content":"x"}]}`)
	_, err := relayjson.UnmarshalHistory(data)
	assert.ErrorIs(t, err, relay.ErrValidation)
}

func TestUnmarshalHistory_UnsupportedVersion(t *testing.T) {
	t.Parallel()
	_, err := relayjson.UnmarshalHistory([]byte(`{"version":2,"messages":[]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported envelope version")
}

func TestSave_And_Load(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "deep", "history.json")

	require.NoError(t, relayjson.Save(path, sampleHistory()))

	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file left behind")

	got, err := relayjson.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
}

func TestLoad_NonexistentFile(t *testing.T) {
	t.Parallel()
	_, err := relayjson.Load("/nonexistent/path/history.json")
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	t.Parallel()

	t.Run("missing key yields empty history", func(t *testing.T) {
		t.Parallel()
		s := relayjson.NewStore(t.TempDir(), 4)
		h, err := s.Load("123456789")
		require.NoError(t, err)
		assert.Equal(t, 0, h.Len())
		assert.Equal(t, 4, h.Capacity)
	})

	t.Run("save then load", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		s := relayjson.NewStore(dir, 5)
		require.NoError(t, s.Save("chan-1", sampleHistory()))

		_, err := os.Stat(filepath.Join(dir, "chan-1.json"))
		require.NoError(t, err)

		h, err := s.Load("chan-1")
		require.NoError(t, err)
		assert.Equal(t, sampleHistory().Items(), h.Items())
	})

	t.Run("keys stay inside the directory", func(t *testing.T) {
		t.Parallel()
		s := relayjson.NewStore(t.TempDir(), 5)
		for _, key := range []string{"", "..", "../escape", `a\b`} {
			_, err := s.Load(key)
			assert.ErrorIs(t, err, relay.ErrValidation, key)
			assert.ErrorIs(t, s.Save(key, relay.NewHistory(1)), relay.ErrValidation, key)
		}
	})

	t.Run("corrupt file is an error", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o600))
		_, err := relayjson.NewStore(dir, 5).Load("bad")
		assert.Error(t, err)
	})
}
