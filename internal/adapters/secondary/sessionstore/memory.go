package sessionstore

import (
	"sync"

	"github.com/lorrc/agent-console/internal/core/domain"
	"github.com/lorrc/agent-console/internal/core/ports"
)

// Memory keeps the session for the lifetime of the process only.
type Memory struct {
	mu         sync.RWMutex
	session    *domain.Session
	lastTicket string
}

var _ ports.SessionStore = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{}
}

func (s *Memory) Current() *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	session := *s.session
	return &session
}

func (s *Memory) Set(session domain.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.session = &session
	s.mu.Unlock()
	return nil
}

func (s *Memory) Clear() error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	return nil
}

func (s *Memory) LastViewedTicket() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTicket
}

func (s *Memory) SetLastViewedTicket(ticketID string) error {
	s.mu.Lock()
	s.lastTicket = ticketID
	s.mu.Unlock()
	return nil
}
