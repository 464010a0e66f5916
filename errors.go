package relay

import (
	"errors"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrStreamNotReady indicates Reply() was called before Next().
	ErrStreamNotReady = errors.New("stream not ready: call Next() first")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrEmptyPlaceholder indicates a sink returned no handle for a sent message.
	ErrEmptyPlaceholder = errors.New("sink returned an empty message id")
)

// ErrorKind is the normalized category of a delivery failure.
type ErrorKind int

const (
	KindUnknown          ErrorKind = iota // Anything else, including sink failures.
	KindConnectivity                      // Backend unreachable.
	KindModelUnavailable                  // Requested model not present on the backend.
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindModelUnavailable:
		return "model_unavailable"
	default:
		return "unknown"
	}
}

// User-facing reasons for the known kinds.
const (
	MessageConnectivity     = "backend service unreachable on host machine"
	MessageModelUnavailable = "requested model not available locally; an operator must fetch it first"
)

// FailureHeadline prefixes every failure notice shown in the channel.
const FailureHeadline = "**Response generation failed.**"

// Error is a classified delivery failure. Backend adapters return it directly
// when they can tell what went wrong; Normalize builds one otherwise.
type Error struct {
	Kind    ErrorKind
	Raw     string // Original failure text.
	Message string // Rendered reason, safe to show to users.
	Err     error
}

func (e *Error) Error() string {
	if e.Raw != "" {
		return e.Raw
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Notice renders the two-part failure notice edited into the open placeholder.
func (e *Error) Notice() string {
	return FailureHeadline + "\n\nReason: " + e.Message
}

// Classify wraps err as an *Error of the given kind. Adapters use it at the
// boundary where the failure is still structured (status codes, dial errors).
func Classify(kind ErrorKind, err error) *Error {
	e := &Error{Kind: kind, Err: err}
	if err != nil {
		e.Raw = err.Error()
	}
	e.Message = reason(kind, e.Raw)
	return e
}

// Rule maps a substring of raw failure text to a kind.
type Rule struct {
	Pattern string
	Kind    ErrorKind
}

// DefaultRules is the ordered fallback used when a failure carries no
// structured classification. The first matching rule wins.
var DefaultRules = []Rule{
	{Pattern: "fetch failed", Kind: KindConnectivity},
	{Pattern: "connection refused", Kind: KindConnectivity},
	{Pattern: "no such host", Kind: KindConnectivity},
	{Pattern: "try pulling it first", Kind: KindModelUnavailable},
	{Pattern: "model not found", Kind: KindModelUnavailable},
}

// Normalize classifies err. A classification already present in the chain is
// kept; otherwise DefaultRules are matched against the raw text. It returns nil
// only for a nil error.
func Normalize(err error) *Error {
	return NormalizeWith(err, DefaultRules)
}

// NormalizeWith is Normalize with an explicit rule list.
func NormalizeWith(err error, rules []Rule) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Message == "" {
			e.Message = reason(e.Kind, e.Error())
		}
		return e
	}
	raw := err.Error()
	kind := KindUnknown
	for _, r := range rules {
		if r.Pattern != "" && strings.Contains(raw, r.Pattern) {
			kind = r.Kind
			break
		}
	}
	return &Error{Kind: kind, Raw: raw, Message: reason(kind, raw), Err: err}
}

func reason(kind ErrorKind, raw string) string {
	switch kind {
	case KindConnectivity:
		return MessageConnectivity
	case KindModelUnavailable:
		return MessageModelUnavailable
	default:
		return raw
	}
}
