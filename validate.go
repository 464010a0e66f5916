package relay

import "fmt"

// Validate checks universal constraints on Request.
// Backend implementations may apply additional backend-specific validation.
func (r Request) Validate() error {
	if r.Temperature != nil {
		if *r.Temperature < 0 || *r.Temperature > 2 {
			return fmt.Errorf("temperature must be in [0, 2], got %g: %w", *r.Temperature, ErrValidation)
		}
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d: %w", r.MaxTokens, ErrValidation)
	}
	for i, m := range r.Messages {
		if err := ValidateMessage(m); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// ValidateMessage checks that a message has a known role.
func ValidateMessage(msg Message) error {
	switch msg.Role {
	case RoleSystem, RoleUser, RoleAssistant:
		return nil
	case "":
		return fmt.Errorf("missing role: %w", ErrValidation)
	default:
		return fmt.Errorf("unknown role %q: %w", msg.Role, ErrValidation)
	}
}
