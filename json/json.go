// Package json persists conversation histories as JSON files.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/relay"
)

// envelope is the v1 wire format for a persisted history.
type envelope struct {
	Version   int          `json:"version"`
	Capacity  int          `json:"capacity"`
	UpdatedAt time.Time    `json:"updated_at"`
	Messages  []messageDTO `json:"messages"`
}

// messageDTO is the JSON representation of a Message.
type messageDTO struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalHistory serializes a History to JSON in v1 envelope format.
func MarshalHistory(h *relay.History) ([]byte, error) {
	items := h.Items()
	env := envelope{
		Version:   1,
		Capacity:  h.Capacity,
		UpdatedAt: time.Now().UTC(),
		Messages:  make([]messageDTO, len(items)),
	}
	for i, m := range items {
		if err := relay.ValidateMessage(m); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		env.Messages[i] = messageDTO{Role: string(m.Role), Content: m.Content, Timestamp: m.Timestamp}
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalHistory deserializes a History from JSON in v1 envelope format.
// Messages beyond the stored capacity are evicted oldest first.
func UnmarshalHistory(data []byte) (*relay.History, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 1 {
		return nil, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	h := relay.NewHistory(env.Capacity)
	for i, dto := range env.Messages {
		m := relay.Message{Role: relay.Role(dto.Role), Content: dto.Content, Timestamp: dto.Timestamp}
		if err := relay.ValidateMessage(m); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		h.Push(m)
	}
	return h, nil
}

// Save writes a History to a JSON file, creating parent directories as needed.
// The file is replaced atomically.
func Save(path string, h *relay.History) error {
	data, err := MarshalHistory(h)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads a History from a JSON file.
func Load(path string) (*relay.History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalHistory(data)
}

// Interface compliance check.
var _ relay.HistoryStore = (*Store)(nil)

// Store keeps one JSON file per key under a directory.
type Store struct {
	dir      string
	capacity int
	mu       sync.Mutex
}

// NewStore returns a Store rooted at dir. Histories that do not exist yet are
// created with the given capacity.
func NewStore(dir string, capacity int) *Store {
	return &Store{dir: dir, capacity: capacity}
}

// Load returns the history saved under key, or an empty one.
func (s *Store) Load(key string) (*relay.History, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return relay.NewHistory(s.capacity), nil
	}
	if err != nil {
		return nil, fmt.Errorf("json: load %q: %w", key, err)
	}
	return h, nil
}

// Save writes h under key.
func (s *Store) Save(key string, h *relay.History) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := Save(path, h); err != nil {
		return fmt.Errorf("json: save %q: %w", key, err)
	}
	return nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("json: invalid history key %q: %w", key, relay.ErrValidation)
	}
	return filepath.Join(s.dir, key+".json"), nil
}
