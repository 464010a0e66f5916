package mock

import "github.com/fwojciec/relay"

// Interface compliance check.
var _ relay.HistoryStore = (*HistoryStore)(nil)

// HistoryStore is a test double for relay.HistoryStore.
type HistoryStore struct {
	LoadFn func(key string) (*relay.History, error)
	SaveFn func(key string, h *relay.History) error
}

// Load delegates to LoadFn.
func (s *HistoryStore) Load(key string) (*relay.History, error) {
	return s.LoadFn(key)
}

// Save delegates to SaveFn.
func (s *HistoryStore) Save(key string, h *relay.History) error {
	return s.SaveFn(key, h)
}
