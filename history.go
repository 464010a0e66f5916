package relay

// DefaultHistoryCapacity bounds the messages kept per conversation.
const DefaultHistoryCapacity = 5

// History is a bounded FIFO of conversation messages. When full, pushing a new
// message evicts the oldest one. The zero value has DefaultHistoryCapacity.
type History struct {
	Capacity int
	items    []Message
}

// NewHistory returns an empty History holding at most capacity messages.
// A non-positive capacity falls back to DefaultHistoryCapacity.
func NewHistory(capacity int) *History {
	return &History{Capacity: capacity}
}

func (h *History) capacity() int {
	if h.Capacity <= 0 {
		return DefaultHistoryCapacity
	}
	return h.Capacity
}

// Push appends msg, evicting from the front to stay within capacity.
func (h *History) Push(msg Message) {
	h.items = append(h.items, msg)
	if over := len(h.items) - h.capacity(); over > 0 {
		h.items = append(h.items[:0:0], h.items[over:]...)
	}
}

// Pop removes and returns the newest message. It reports false when empty.
func (h *History) Pop() (Message, bool) {
	if len(h.items) == 0 {
		return Message{}, false
	}
	last := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return last, true
}

// Items returns a copy of the messages, oldest first.
func (h *History) Items() []Message {
	if len(h.items) == 0 {
		return nil
	}
	out := make([]Message, len(h.items))
	copy(out, h.items)
	return out
}

// Len returns the number of stored messages.
func (h *History) Len() int { return len(h.items) }

// Full reports whether the next Push will evict a message.
func (h *History) Full() bool { return len(h.items) >= h.capacity() }

// Clear drops every message.
func (h *History) Clear() { h.items = nil }

// HistoryStore persists conversation histories by key, such as a channel id.
// Load returns an empty History for a key that was never saved.
type HistoryStore interface {
	Load(key string) (*History, error)
	Save(key string, h *History) error
}
