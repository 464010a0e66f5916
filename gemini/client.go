package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fwojciec/relay"
	"google.golang.org/genai"
)

// Interface compliance checks.
var (
	_ relay.Backend   = (*Client)(nil)
	_ relay.Completer = (*Client)(nil)
)

// Client implements [relay.Backend] for the Google Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model ID used when a request names none.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// New creates a new Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c := &Client{
		client: gc,
		model:  defaultModel,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Stream sends a streaming request to the Gemini API and returns a
// [relay.Stream] of text and thinking deltas.
func (c *Client) Stream(ctx context.Context, req relay.Request) (relay.Stream, error) {
	iter := c.client.Models.GenerateContentStream(ctx, c.modelFor(req), ConvertMessages(req.Messages), buildConfig(req))
	return NewStreamFromIter(ctx, iter), nil
}

// Complete sends a single request and returns the finished reply.
func (c *Client) Complete(ctx context.Context, req relay.Request) (relay.Reply, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.modelFor(req), ConvertMessages(req.Messages), buildConfig(req))
	if err != nil {
		return relay.Reply{}, classify(err)
	}
	reply := relay.Reply{Text: resp.Text(), StopReason: relay.StopEndTurn}
	applyMetadata(&reply, resp)
	return reply, nil
}

func (c *Client) modelFor(req relay.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.model
}

func buildConfig(req relay.Request) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	}

	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		config.Temperature = &temp
	}

	return config
}

// ConvertMessages converts relay Messages to genai Contents. System messages
// in the history are sent as user turns; the system prompt travels in the
// request config.
// Exported for testing.
func ConvertMessages(msgs []relay.Message) []*genai.Content {
	var result []*genai.Content
	for _, m := range msgs {
		role := "user"
		if m.Role == relay.RoleAssistant {
			role = "model"
		}
		result = append(result, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return result
}

// classify wraps SDK errors, marking an unknown model as unavailable.
func classify(err error) error {
	wrapped := fmt.Errorf("gemini: %w", err)
	if code := apiErrorCode(err); code == http.StatusNotFound {
		return relay.Classify(relay.KindModelUnavailable, wrapped)
	}
	return wrapped
}

func apiErrorCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}

// applyMetadata copies finish reason and token counts from resp into reply.
func applyMetadata(reply *relay.Reply, resp *genai.GenerateContentResponse) {
	if resp == nil {
		return
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil && resp.Candidates[0].FinishReason != "" {
		raw := string(resp.Candidates[0].FinishReason)
		reply.RawStopReason = raw
		reply.StopReason = mapStopReason(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		reply.Usage.InputTokens = int(u.PromptTokenCount)
		reply.Usage.OutputTokens = int(u.CandidatesTokenCount)
	}
}

func mapStopReason(r genai.FinishReason) relay.StopReason {
	switch r {
	case genai.FinishReasonStop:
		return relay.StopEndTurn
	case genai.FinishReasonMaxTokens:
		return relay.StopLength
	default:
		return relay.StopUnknown
	}
}
