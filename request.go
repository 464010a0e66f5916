package relay

// Request carries model selection and generation parameters.
// The backend uses its own defaults when fields are zero/nil.
type Request struct {
	Model        string // model ID, backend-specific; empty = backend default
	SystemPrompt string
	Messages     []Message
	MaxTokens    int      // 0 = backend default
	Temperature  *float64 // nil = backend default
}
