package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/fwojciec/relay"
)

// Interface compliance checks.
var (
	_ relay.Backend     = (*Client)(nil)
	_ relay.Completer   = (*Client)(nil)
	_ relay.ModelLister = (*Client)(nil)
)

// Client talks to the Ollama HTTP API.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the server URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// New creates a [Client] for the server at http://127.0.0.1:11434 unless
// overridden.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream starts a streaming chat and returns a [relay.Stream] of text deltas.
func (c *Client) Stream(ctx context.Context, req relay.Request) (relay.Stream, error) {
	resp, err := c.chat(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return newStream(ctx, resp.Body), nil
}

// Complete runs a non-streaming chat and returns the finished reply.
func (c *Client) Complete(ctx context.Context, req relay.Request) (relay.Reply, error) {
	resp, err := c.chat(ctx, req, false)
	if err != nil {
		return relay.Reply{}, err
	}
	defer resp.Body.Close()

	var chunk apiChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return relay.Reply{}, fmt.Errorf("ollama: failed to decode response: %w", err)
	}
	if chunk.Error != "" {
		return relay.Reply{}, classifyMessage(chunk.Error)
	}
	return relay.Reply{
		Text:          chunk.Message.Content,
		StopReason:    mapStopReason(chunk.DoneReason),
		RawStopReason: chunk.DoneReason,
		Usage: relay.Usage{
			InputTokens:  chunk.PromptEvalCount,
			OutputTokens: chunk.EvalCount,
		},
	}, nil
}

// ListModels returns the models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]relay.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tagsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp)
	}

	var tags apiTags
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama: failed to decode model list: %w", err)
	}
	models := make([]relay.Model, len(tags.Models))
	for i, m := range tags.Models {
		models[i] = relay.Model{Name: m.Name, Size: m.Size, ModifiedAt: m.ModifiedAt}
	}
	return models, nil
}

// chat posts to /api/chat and returns the response once its status is OK.
// The caller owns the body.
func (c *Client) chat(ctx context.Context, req relay.Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(c.buildRequest(req, stream))
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	return resp, nil
}

func (c *Client) buildRequest(req relay.Request, stream bool) apiRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	apiReq := apiRequest{
		Model:    model,
		Messages: convertMessages(req.SystemPrompt, req.Messages),
		Stream:   stream,
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		apiReq.Options = &apiOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}
	return apiReq
}

func convertMessages(system string, msgs []relay.Message) []apiMessage {
	result := make([]apiMessage, 0, len(msgs)+1)
	if system != "" {
		result = append(result, apiMessage{Role: "system", Content: system})
	}
	for _, m := range msgs {
		result = append(result, apiMessage{Role: string(m.Role), Content: m.Content})
	}
	return result
}

// classifyTransport marks dial and DNS failures as connectivity errors.
// Context errors pass through unchanged.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("ollama: %w", err)
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return relay.Classify(relay.KindConnectivity, fmt.Errorf("ollama: %w", err))
	}
	return fmt.Errorf("ollama: %w", err)
}

// modelNotFound matches the server's missing-model report, e.g.
// model "llama3" not found, try pulling it first.
var modelNotFound = regexp.MustCompile(`\bmodel\s+["']?[^"'\s]+["']?\s+not found`)

// classifyMessage maps an error reported by the server itself. Only reports
// naming a missing model are classified; other "not found" texts stay unknown.
func classifyMessage(msg string) error {
	err := fmt.Errorf("ollama: %s", msg)
	if strings.Contains(msg, "try pulling it first") || modelNotFound.MatchString(msg) {
		return relay.Classify(relay.KindModelUnavailable, err)
	}
	return err
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ollama: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	msg := strings.TrimSpace(string(body))
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	if msg == "" {
		return fmt.Errorf("ollama: HTTP %d", resp.StatusCode)
	}
	return classifyMessage(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg))
}

func mapStopReason(raw string) relay.StopReason {
	switch raw {
	case "stop", "":
		return relay.StopEndTurn
	case "length":
		return relay.StopLength
	default:
		return relay.StopUnknown
	}
}
