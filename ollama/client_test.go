package ollama_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatStream = `{"model":"llama3","message":{"role":"assistant","content":"Hel"},"done":false}
{"model":"llama3","message":{"role":"assistant","content":"lo"},"done":false}

{"model":"llama3","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":12,"eval_count":2}
`

func serve(t *testing.T, h http.HandlerFunc) *ollama.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return ollama.New(ollama.WithBaseURL(srv.URL))
}

func drain(t *testing.T, s relay.Stream) []string {
	t.Helper()
	var deltas []string
	for {
		evt, err := s.Next()
		if err == io.EOF {
			return deltas
		}
		require.NoError(t, err)
		deltas = append(deltas, evt.(relay.EventTextDelta).Delta)
	}
}

func TestClient_RequestFormat(t *testing.T) {
	t.Parallel()

	var body map[string]any
	client := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, chatStream)
	})

	temp := 0.2
	s, err := client.Stream(context.Background(), relay.Request{
		Model:        "mistral",
		SystemPrompt: "Be brief.",
		Messages: []relay.Message{
			{Role: relay.RoleUser, Content: "Hi"},
			{Role: relay.RoleAssistant, Content: "Hello"},
			{Role: relay.RoleUser, Content: "Again"},
		},
		MaxTokens:   64,
		Temperature: &temp,
	})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "mistral", body["model"])
	assert.Equal(t, true, body["stream"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, map[string]any{"role": "system", "content": "Be brief."}, msgs[0])
	assert.Equal(t, map[string]any{"role": "assistant", "content": "Hello"}, msgs[2])
	opts := body["options"].(map[string]any)
	assert.Equal(t, 0.2, opts["temperature"])
	assert.Equal(t, float64(64), opts["num_predict"])
}

func TestClient_DefaultModel(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, chatStream)
	}))
	defer srv.Close()

	client := ollama.New(ollama.WithBaseURL(srv.URL+"/"), ollama.WithModel("qwen2.5"))
	s, err := client.Stream(context.Background(), relay.Request{})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "qwen2.5", body["model"])
	assert.NotContains(t, body, "options")
}

func TestClient_Stream(t *testing.T) {
	t.Parallel()

	client := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, chatStream)
	})

	s, err := client.Stream(context.Background(), relay.Request{})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []string{"Hel", "lo"}, drain(t, s))
	assert.Equal(t, relay.StreamStateComplete, s.State())

	reply, err := s.Reply()
	require.NoError(t, err)
	assert.Equal(t, "Hello", reply.Text)
	assert.Equal(t, relay.StopEndTurn, reply.StopReason)
	assert.Equal(t, relay.Usage{InputTokens: 12, OutputTokens: 2}, reply.Usage)
}

func TestClient_StreamErrorLine(t *testing.T) {
	t.Parallel()

	client := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"par"},"done":false}
{"error":"model runner has unexpectedly stopped"}
`)
	})

	s, err := client.Stream(context.Background(), relay.Request{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpectedly stopped")
	assert.Equal(t, relay.StreamStateError, s.State())

	reply, err := s.Reply()
	require.NoError(t, err)
	assert.Equal(t, "par", reply.Text)
	assert.Equal(t, relay.StopError, reply.StopReason)
}

func TestClient_StreamTruncated(t *testing.T) {
	t.Parallel()

	client := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"cut"},"done":false}`+"\n")
	})

	s, err := client.Stream(context.Background(), relay.Request{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	assert.ErrorContains(t, err, "unexpected end of stream")
}

func TestClient_ModelNotFound(t *testing.T) {
	t.Parallel()

	client := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model \"llama9\" not found, try pulling it first"}`)
	})

	_, err := client.Stream(context.Background(), relay.Request{Model: "llama9"})
	require.Error(t, err)

	var rerr *relay.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, relay.KindModelUnavailable, rerr.Kind)
	assert.Contains(t, rerr.Raw, "try pulling it first")
}

func TestClient_NotFoundClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   relay.ErrorKind
	}{
		{"missing model without hint", http.StatusNotFound, `{"error":"model 'qwen2:7b' not found"}`, relay.KindModelUnavailable},
		{"pull hint alone", http.StatusBadRequest, `{"error":"try pulling it first"}`, relay.KindModelUnavailable},
		{"wrong path", http.StatusNotFound, "404 page not found", relay.KindUnknown},
		{"other missing resource", http.StatusInternalServerError, `{"error":"blob sha256:abc not found"}`, relay.KindUnknown},
		{"empty 404", http.StatusNotFound, "", relay.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.Stream(context.Background(), relay.Request{})
			require.Error(t, err)
			assert.Equal(t, tt.want, relay.Normalize(err).Kind)
		})
	}
}

func TestClient_StreamErrorLineMissingModel(t *testing.T) {
	t.Parallel()

	client := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"model \"llama9\" not found, try pulling it first"}`+"\n")
	})

	s, err := client.Stream(context.Background(), relay.Request{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Next()
	assert.Equal(t, relay.KindModelUnavailable, relay.Normalize(err).Kind)
}

func TestClient_ServerError(t *testing.T) {
	t.Parallel()

	client := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "out of memory")
	})

	_, err := client.Stream(context.Background(), relay.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, relay.KindUnknown, relay.Normalize(err).Kind)
}

func TestClient_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := ollama.New(ollama.WithBaseURL(url))
	_, err := client.Stream(context.Background(), relay.Request{})
	require.Error(t, err)

	got := relay.Normalize(err)
	assert.Equal(t, relay.KindConnectivity, got.Kind)
	assert.Equal(t, relay.MessageConnectivity, got.Message)
}

func TestClient_Complete(t *testing.T) {
	t.Parallel()

	var body map[string]any
	client := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"All done."},"done":true,"done_reason":"length","prompt_eval_count":3,"eval_count":9}`)
	})

	reply, err := client.Complete(context.Background(), relay.Request{
		Messages: []relay.Message{{Role: relay.RoleUser, Content: "go"}},
	})
	require.NoError(t, err)

	assert.Equal(t, false, body["stream"])
	assert.Equal(t, "All done.", reply.Text)
	assert.Equal(t, relay.StopLength, reply.StopReason)
	assert.Equal(t, "length", reply.RawStopReason)
	assert.Equal(t, 12, reply.Usage.Total())
}

func TestClient_ListModels(t *testing.T) {
	t.Parallel()

	client := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = io.WriteString(w, `{"models":[
			{"name":"llama3:latest","size":4661224676,"modified_at":"2024-05-01T10:00:00Z"},
			{"name":"mistral:7b","size":4109865159,"modified_at":"2024-04-02T08:30:00Z"}
		]}`)
	})

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3:latest", models[0].Name)
	assert.Equal(t, int64(4661224676), models[0].Size)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), models[0].ModifiedAt.UTC())
}

func TestClient_ListModelsUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := ollama.New(ollama.WithBaseURL(url)).ListModels(context.Background())
	assert.Equal(t, relay.KindConnectivity, relay.Normalize(err).Kind)
}

func TestStream_Close(t *testing.T) {
	t.Parallel()

	client := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, chatStream)
	})

	s, err := client.Stream(context.Background(), relay.Request{})
	require.NoError(t, err)

	_, err = s.Next()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, relay.StreamStateClosed, s.State())
	_, err = s.Next()
	assert.ErrorIs(t, err, relay.ErrStreamClosed)
	reply, err := s.Reply()
	require.NoError(t, err)
	assert.Equal(t, relay.StopAborted, reply.StopReason)
}
