// Package ollama implements [relay.Backend] for a local Ollama server.
//
// Chat responses are read as newline-delimited JSON from /api/chat. Failures
// are classified at the HTTP boundary: dial errors become connectivity errors
// and missing models become model-unavailable errors, so the relay never has
// to guess from error text.
package ollama

import "time"

const (
	defaultBaseURL = "http://127.0.0.1:11434"
	defaultModel   = "llama3"
	chatPath       = "/api/chat"
	tagsPath       = "/api/tags"
)

type apiRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
	Stream   bool         `json:"stream"`
	Options  *apiOptions  `json:"options,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

// apiChunk is one line of a /api/chat response. A non-streaming response is a
// single chunk with Done set.
type apiChunk struct {
	Model           string     `json:"model"`
	Message         apiMessage `json:"message"`
	Done            bool       `json:"done"`
	DoneReason      string     `json:"done_reason,omitempty"`
	PromptEvalCount int        `json:"prompt_eval_count,omitempty"`
	EvalCount       int        `json:"eval_count,omitempty"`
	Error           string     `json:"error,omitempty"`
}

type apiTags struct {
	Models []apiModel `json:"models"`
}

type apiModel struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// apiError is the JSON body returned on non-200 responses.
type apiError struct {
	Error string `json:"error"`
}
