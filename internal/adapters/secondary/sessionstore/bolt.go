package sessionstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lorrc/agent-console/internal/core/domain"
	"github.com/lorrc/agent-console/internal/core/ports"
	"go.etcd.io/bbolt"
)

var (
	bucketConsole = []byte("console")

	keySession          = []byte("session")
	keyLastViewedTicket = []byte("lastViewedTicketId")
)

// lockTimeout bounds the wait for another process's file lock.
const lockTimeout = time.Second

var errStoreClosed = errors.New("session store closed")

// Bolt persists the session in a bbolt file. Values are JSON. Reads are
// served from memory; Reload picks up changes made by another process.
// The file is opened per operation, so several consoles can share one
// path: bbolt's lock is only held for the length of a transaction.
type Bolt struct {
	path   string
	logger *slog.Logger

	mu         sync.RWMutex
	session    *domain.Session
	lastTicket string
	closed     bool
}

// Ensure Bolt implements the SessionStore interface.
var _ ports.SessionStore = (*Bolt)(nil)

// OpenBolt opens (or creates) the store at path and loads its contents.
func OpenBolt(path string, logger *slog.Logger) (*Bolt, error) {
	s := &Bolt{
		path:   path,
		logger: logger.With("component", "session_store"),
	}

	db, err := s.open(false)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketConsole)
		return err
	})
	_ = db.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close stops further disk access. The cached values stay readable.
func (s *Bolt) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Bolt) open(readOnly bool) (*bbolt.DB, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, errStoreClosed
	}

	db, err := bbolt.Open(s.path, 0600, &bbolt.Options{Timeout: lockTimeout, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}
	return db, nil
}

// view runs fn against the console bucket in a read transaction.
func (s *Bolt) view(fn func(b *bbolt.Bucket) error) error {
	db, err := s.open(true)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConsole)
		if b == nil {
			return errors.New("console bucket missing")
		}
		return fn(b)
	})
}

// update runs fn against the console bucket in a write transaction.
func (s *Bolt) update(fn func(b *bbolt.Bucket) error) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketConsole)
		if err != nil {
			return err
		}
		return fn(b)
	})
}

// Reload re-reads both keys from disk. A session that no longer decodes or
// validates is dropped, the same as being signed out.
func (s *Bolt) Reload() error {
	var rawSession, rawTicket []byte
	err := s.view(func(b *bbolt.Bucket) error {
		// bbolt values are only valid inside the transaction
		rawSession = append([]byte(nil), b.Get(keySession)...)
		rawTicket = append([]byte(nil), b.Get(keyLastViewedTicket)...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read session db: %w", err)
	}

	session := s.decodeSession(rawSession)

	var lastTicket string
	if len(rawTicket) > 0 {
		if err := json.Unmarshal(rawTicket, &lastTicket); err != nil {
			s.logger.Warn("discarding unreadable last viewed ticket", "error", err)
			lastTicket = ""
		}
	}

	s.mu.Lock()
	s.session = session
	s.lastTicket = lastTicket
	s.mu.Unlock()
	return nil
}

func (s *Bolt) decodeSession(raw []byte) *domain.Session {
	if len(raw) == 0 {
		return nil
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		s.logger.Warn("discarding unreadable session", "error", err)
		return nil
	}
	if err := session.Validate(); err != nil {
		s.logger.Warn("discarding invalid session", "error", err)
		return nil
	}
	return &session
}

// Current returns a copy of the session, or nil.
func (s *Bolt) Current() *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	session := *s.session
	return &session
}

// Set validates and persists session.
func (s *Bolt) Set(session domain.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := s.put(keySession, data); err != nil {
		return err
	}

	s.mu.Lock()
	s.session = &session
	s.mu.Unlock()
	return nil
}

// Clear removes the session. The last viewed ticket is kept.
func (s *Bolt) Clear() error {
	err := s.update(func(b *bbolt.Bucket) error {
		return b.Delete(keySession)
	})
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	return nil
}

// LastViewedTicket returns the ticket the agent had open last, or "".
func (s *Bolt) LastViewedTicket() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTicket
}

// SetLastViewedTicket persists ticketID. An empty id removes the key.
func (s *Bolt) SetLastViewedTicket(ticketID string) error {
	var err error
	if ticketID == "" {
		err = s.update(func(b *bbolt.Bucket) error {
			return b.Delete(keyLastViewedTicket)
		})
	} else {
		var data []byte
		data, err = json.Marshal(ticketID)
		if err == nil {
			err = s.put(keyLastViewedTicket, data)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to save last viewed ticket: %w", err)
	}

	s.mu.Lock()
	s.lastTicket = ticketID
	s.mu.Unlock()
	return nil
}

func (s *Bolt) put(key, value []byte) error {
	err := s.update(func(b *bbolt.Bucket) error {
		return b.Put(key, value)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
