// Package session holds the token stores the registrar client reads from.
package session

import (
	"sync"

	"fasttrack/pkg/types"
)

// MemoryStore keeps tokens for a single process, such as the scan CLI.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens types.SessionTokens
}

func NewMemoryStore(tokens types.SessionTokens) *MemoryStore {
	return &MemoryStore{tokens: tokens}
}

func (s *MemoryStore) Get() types.SessionTokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

func (s *MemoryStore) Set(tokens types.SessionTokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = types.SessionTokens{}
}
