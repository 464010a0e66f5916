package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ansiSeq = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// syncBuffer is a bytes.Buffer safe for the logger and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writerLogger(w io.Writer) func(bool) (*zap.Logger, error) {
	return func(verbose bool) (*zap.Logger, error) {
		level := zapcore.InfoLevel
		if verbose {
			level = zapcore.DebugLevel
		}
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level)), nil
	}
}

type result struct {
	out  string
	logs string
	err  error
}

// execute runs the root command with a config file pointing at an Ollama
// host and captures its output and logs.
func execute(t *testing.T, host, stdin string, args ...string) result {
	t.Helper()
	path := writeConfig(t, fmt.Sprintf("backend = \"ollama\"\n[ollama]\nhost = %q\n", host))
	var out bytes.Buffer
	logs := &syncBuffer{}
	a := &app{newLogger: writerLogger(logs)}
	cmd := a.rootCmd()
	cmd.SetArgs(append([]string{"--config", path}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return result{out: ansiSeq.ReplaceAllString(out.String(), ""), logs: logs.String(), err: err}
}

func ollamaServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func chatHandler(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}
}

func TestChat_Stream(t *testing.T) {
	t.Parallel()
	srv := ollamaServer(t, chatHandler(
		`{"model":"llama3","message":{"role":"assistant","content":"Hello, "},"done":false}`,
		`{"model":"llama3","message":{"role":"assistant","content":"world!"},"done":false}`,
		`{"model":"llama3","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":3,"eval_count":2}`,
	))

	res := execute(t, srv.URL, "", "chat", "--compact", "say", "hello")

	require.NoError(t, res.err)
	assert.Equal(t, "+ m1 Generating Response . . .\n~ m1 Hello,\n~ m1 Hello, world!\n", res.out)
}

func TestChat_BlockFromStdin(t *testing.T) {
	t.Parallel()
	bodies := make(chan string, 1)
	srv := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		bodies <- string(data)
		chatHandler(`{"model":"llama3","message":{"role":"assistant","content":"All done."},"done":true,"done_reason":"stop"}`)(w, r)
	})

	res := execute(t, srv.URL, "  what now?\n", "chat", "--compact", "--mode", "block")

	require.NoError(t, res.err)
	body := <-bodies
	assert.Contains(t, body, `"content":"what now?"`)
	assert.Contains(t, body, `"stream":false`)
	assert.Equal(t, "+ m1 Generating Response . . .\n~ m1 All done.\n", res.out)
}

func TestChat_BackendFailure(t *testing.T) {
	t.Parallel()
	srv := ollamaServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model \"llama3\" not found, try pulling it first"}`)
	})

	res := execute(t, srv.URL, "", "chat", "--plain", "--width", "200", "hi")

	require.Error(t, res.err)
	assert.Contains(t, res.out, "Response generation failed.")
	assert.Contains(t, res.out, "requested model not available locally")
	assert.Contains(t, res.logs, "response generation failed")
}

func TestChat_Interactive(t *testing.T) {
	t.Parallel()

	t.Run("redraws the message until done", func(t *testing.T) {
		t.Parallel()
		srv := ollamaServer(t, chatHandler(
			`{"model":"llama3","message":{"role":"assistant","content":"Hello, "},"done":false}`,
			`{"model":"llama3","message":{"role":"assistant","content":"world!"},"done":false}`,
			`{"model":"llama3","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`,
		))

		res := execute(t, srv.URL, "", "chat", "say", "hello")

		require.NoError(t, res.err)
		assert.Contains(t, res.out, "Hello, world!")
		assert.Contains(t, res.out, "Done: 1 message(s), 13 runes")
	})

	t.Run("prompt from stdin leaves keys unread", func(t *testing.T) {
		t.Parallel()
		srv := ollamaServer(t, chatHandler(
			`{"model":"llama3","message":{"role":"assistant","content":"Sure thing."},"done":true,"done_reason":"stop"}`,
		))

		res := execute(t, srv.URL, "help me\n", "chat", "--mode", "block")

		require.NoError(t, res.err)
		assert.Contains(t, res.out, "Sure thing.")
	})

	t.Run("failure is returned after the notice is drawn", func(t *testing.T) {
		t.Parallel()
		srv := ollamaServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"model \"llama3\" not found, try pulling it first"}`)
		})

		res := execute(t, srv.URL, "", "chat", "hi")

		require.Error(t, res.err)
		assert.Contains(t, res.out, "Response generation failed.")
		assert.Contains(t, res.out, "Failed (model_unavailable)")
	})
}

func TestChat_EmptyPrompt(t *testing.T) {
	t.Parallel()
	res := execute(t, "http://127.0.0.1:1", "   ", "chat")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "empty prompt")
}

func TestChat_BadMode(t *testing.T) {
	t.Parallel()
	res := execute(t, "http://127.0.0.1:1", "", "chat", "--mode", "fast", "hi")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "unknown mode")
}

func TestModels(t *testing.T) {
	t.Parallel()
	srv := ollamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[{"name":"llama3:latest","size":4661224676,"modified_at":"2024-05-01T10:00:00Z"},{"name":"tiny:1b","size":512}]}`)
	})

	res := execute(t, srv.URL, "", "models")

	require.NoError(t, res.err)
	assert.Contains(t, res.out, "NAME")
	assert.Contains(t, res.out, "llama3:latest")
	assert.Contains(t, res.out, "4.3 GiB")
	assert.Contains(t, res.out, "2024-05-01 10:00:00")
	assert.Contains(t, res.out, "tiny:1b")
	assert.Contains(t, res.out, "512 B")
}

func TestModels_Unreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := execute(t, url, "", "models")

	require.NoError(t, res.err)
	assert.Contains(t, res.out, "NAME")
	assert.NotContains(t, res.out, "llama3")
	assert.Contains(t, res.logs, "list models")
}

func TestServe_MissingToken(t *testing.T) {
	t.Parallel()
	res := execute(t, "http://127.0.0.1:1", "", "serve")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "DISCORD_TOKEN not set")
}

func TestFormatSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0 B", formatSize(0))
	assert.Equal(t, "1.0 KiB", formatSize(1024))
	assert.Equal(t, "1.5 MiB", formatSize(3*512*1024))
}
