package relay

import "time"

// Message is one turn of a conversation.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// Reply is the assistant text produced for one request.
type Reply struct {
	Text          string
	StopReason    StopReason
	RawStopReason string
	Usage         Usage
}

// Message converts the reply into an assistant history entry.
func (r Reply) Message(ts time.Time) Message {
	return Message{Role: RoleAssistant, Content: r.Text, Timestamp: ts}
}
