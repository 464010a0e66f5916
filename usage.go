package relay

// Usage tracks token consumption as reported by the backend.
// Backends that do not report usage leave it zero.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns the sum of input and output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}
