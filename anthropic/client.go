package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/fwojciec/relay"
)

// Interface compliance check.
var _ relay.Backend = (*Client)(nil)

// Client implements [relay.Backend] for the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// New creates a new Anthropic [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream sends a streaming request to the Anthropic Messages API and returns
// a [relay.Stream] that emits semantic events.
func (c *Client) Stream(ctx context.Context, req relay.Request) (relay.Stream, error) {
	body, err := c.buildRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return nil, relay.Classify(relay.KindConnectivity, fmt.Errorf("anthropic: %w", err))
		}
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}

	return newStream(ctx, resp.Body), nil
}

func (c *Client) buildRequestBody(req relay.Request) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	system, messages := convertMessages(req.SystemPrompt, req.Messages)
	return json.Marshal(apiRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Stream:      true,
		System:      system,
		Messages:    messages,
		Temperature: req.Temperature,
	})
}

// convertMessages splits history into system blocks and user/assistant turns.
// System messages in the history are appended after the system prompt, since
// the API only accepts them at the top level.
func convertMessages(prompt string, msgs []relay.Message) ([]apiContentBlock, []apiMessage) {
	var system []apiContentBlock
	if prompt != "" {
		system = append(system, apiContentBlock{Type: "text", Text: prompt})
	}
	var result []apiMessage
	for _, m := range msgs {
		block := apiContentBlock{Type: "text", Text: m.Content}
		switch m.Role {
		case relay.RoleSystem:
			system = append(system, block)
		case relay.RoleAssistant, relay.RoleUser:
			result = append(result, apiMessage{Role: string(m.Role), Content: []apiContentBlock{block}})
		}
	}
	return system, result
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("anthropic: HTTP %d (failed to read body: %w)", resp.StatusCode, err)
	}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return fmt.Errorf("anthropic: HTTP %d: %s", resp.StatusCode, string(body))
	}
	return apiError(apiErr.Error)
}
