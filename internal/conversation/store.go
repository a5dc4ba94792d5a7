package conversation

import (
	"errors"
	"slices"

	"vist/pkg/protocol"
)

// ErrNotFound is returned when no message carries the requested identifier.
var ErrNotFound = errors.New("message not found")

// Store is the ordered chat log. It has a single owner (the assistant event
// loop) and does no locking of its own.
type Store struct {
	messages []Message
}

func NewStore(initial ...Message) *Store {
	return &Store{messages: append([]Message(nil), initial...)}
}

// Append adds m to the end of the log. An empty ID is filled in.
func (s *Store) Append(m Message) Message {
	if m.ID == "" {
		m.ID = NewID()
	}
	s.messages = append(s.messages, m)
	return m
}

// Replace applies patch to the message with the given id in place.
func (s *Store) Replace(id string, patch Patch) (Message, error) {
	i := s.index(id)
	if i < 0 {
		return Message{}, ErrNotFound
	}
	patch.apply(&s.messages[i])
	return s.messages[i], nil
}

// Remove deletes the message with the given id.
func (s *Store) Remove(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.messages = slices.Delete(s.messages, i, i+1)
	return true
}

// RemoveVariant deletes every message of the given variant and returns how many were removed.
func (s *Store) RemoveVariant(v Variant) int {
	before := len(s.messages)
	s.messages = slices.DeleteFunc(s.messages, func(m Message) bool {
		return m.Variant == v
	})
	return before - len(s.messages)
}

func (s *Store) Get(id string) (Message, bool) {
	i := s.index(id)
	if i < 0 {
		return Message{}, false
	}
	return s.messages[i], true
}

// Messages returns a copy of the log in display order.
func (s *Store) Messages() []Message {
	return slices.Clone(s.messages)
}

func (s *Store) Len() int {
	return len(s.messages)
}

// Reset replaces the whole log.
func (s *Store) Reset(messages []Message) {
	s.messages = slices.Clone(messages)
}

// LoadHistory maps backend history into messages, sorts and bounds them, and
// replaces the log. An empty mapping leaves the current log untouched.
func (s *Store) LoadHistory(entries []protocol.HistoryEntry, opts HistoryOptions) int {
	mapped := MapHistory(entries, opts)
	if len(mapped) == 0 {
		return 0
	}
	s.Reset(mapped)
	return len(mapped)
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.messages, func(m Message) bool {
		return m.ID == id
	})
}
