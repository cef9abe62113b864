package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/ports"
	"github.com/lorrc/agent-console/internal/core/subscription"
	"github.com/lorrc/agent-console/internal/infrastructure/logging"
)

// ChatState is the load state of the selected ticket's transcript.
type ChatState string

const (
	ChatIdle    ChatState = "idle"
	ChatLoading ChatState = "loading"
	ChatReady   ChatState = "ready"
)

// DefaultReconcileWindow bounds how old an optimistic message may be and
// still be matched with the server copy.
const DefaultReconcileWindow = 2 * time.Minute

// ChatSnapshot is a copy of the transcript state at one point in time.
type ChatSnapshot struct {
	TicketID string
	State    ChatState
	Messages []domain.Message
	// Err is set when the last history fetch failed. Messages is then empty.
	Err error
}

// Failed reports whether the transcript is showing the fetch error state.
func (s ChatSnapshot) Failed() bool {
	return s.Err != nil
}

// ChatSync keeps the transcript of the selected ticket in step with the
// history endpoint and the live message stream.
type ChatSync struct {
	api             ports.SupportAPI
	realtime        ports.Realtime
	sessions        ports.SessionStore
	logger          *slog.Logger
	now             func() time.Time
	reconcileWindow time.Duration

	mu         sync.Mutex
	ticketID   string
	state      ChatState
	messages   []domain.Message
	fetchErr   error
	generation uint64
	closed     bool

	changes     *subscription.Registry[ChatSnapshot]
	unsubscribe []func()
}

// ChatSyncOption configures a ChatSync.
type ChatSyncOption func(*ChatSync)

// WithReconcileWindow sets how long an optimistic message waits for its
// server copy.
func WithReconcileWindow(window time.Duration) ChatSyncOption {
	return func(s *ChatSync) {
		if window > 0 {
			s.reconcileWindow = window
		}
	}
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) ChatSyncOption {
	return func(s *ChatSync) {
		s.now = now
	}
}

// NewChatSync creates a ChatSync and subscribes it to the live stream.
// Call Close to release the subscriptions.
func NewChatSync(
	api ports.SupportAPI,
	realtime ports.Realtime,
	sessions ports.SessionStore,
	logger *slog.Logger,
	opts ...ChatSyncOption,
) *ChatSync {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &ChatSync{
		api:             api,
		realtime:        realtime,
		sessions:        sessions,
		logger:          logger.With("component", "chat_sync"),
		now:             time.Now,
		reconcileWindow: DefaultReconcileWindow,
		state:           ChatIdle,
		changes:         subscription.NewRegistry[ChatSnapshot]("chat-change", logger),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.unsubscribe = []func(){
		realtime.OnMessage(s.ingest),
		realtime.OnMessageDelivered(s.ingest),
	}
	return s
}

// Select switches to ticketID and loads its history. The previous room is
// left and the new one joined. An empty id clears the transcript without a
// network call. A response that arrives after another Select is dropped.
func (s *ChatSync) Select(ctx context.Context, ticketID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.ErrConnectionClosed
	}
	previous := s.ticketID
	if ticketID == previous && s.state != ChatIdle {
		s.mu.Unlock()
		return nil
	}

	s.generation++
	gen := s.generation
	s.ticketID = ticketID
	s.messages = nil
	s.fetchErr = nil
	if ticketID == "" {
		s.state = ChatIdle
	} else {
		s.state = ChatLoading
	}
	s.mu.Unlock()

	if previous != "" && previous != ticketID {
		if err := s.realtime.LeaveTicketRoom(previous); err != nil {
			s.logger.Warn("failed to leave chat room", "ticket_id", previous, "error", err)
		}
	}

	if ticketID == "" {
		s.publish()
		return nil
	}

	if err := s.realtime.JoinTicketRoom(ticketID); err != nil {
		s.logger.Warn("failed to join chat room", "ticket_id", ticketID, "error", err)
	}
	if err := s.sessions.SetLastViewedTicket(ticketID); err != nil {
		s.logger.Warn("failed to remember last viewed ticket", "ticket_id", ticketID, "error", err)
	}

	s.publish()
	return s.load(ctx, gen, ticketID)
}

// Restore selects the ticket that was open when the console last ran.
func (s *ChatSync) Restore(ctx context.Context) error {
	ticketID := s.sessions.LastViewedTicket()
	if ticketID == "" {
		return nil
	}
	return s.Select(ctx, ticketID)
}

// Retry fetches the history of the selected ticket again.
func (s *ChatSync) Retry(ctx context.Context) error {
	s.mu.Lock()
	ticketID := s.ticketID
	if ticketID == "" {
		s.mu.Unlock()
		return apperrors.ErrNoTicketSelected
	}
	s.generation++
	gen := s.generation
	s.state = ChatLoading
	s.fetchErr = nil
	s.mu.Unlock()

	s.publish()
	return s.load(ctx, gen, ticketID)
}

func (s *ChatSync) load(ctx context.Context, gen uint64, ticketID string) error {
	ctx = logging.WithTicketID(ctx, ticketID)
	logger := logging.LoggerFromContext(ctx, s.logger)

	history, err := s.api.MessagesByTicket(ctx, ticketID)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		logger.Debug("discarding superseded history response")
		return nil
	}

	if err != nil {
		s.messages = []domain.Message{}
		s.fetchErr = err
	} else {
		local := s.messages
		s.messages = make([]domain.Message, 0, len(history)+len(local))
		for _, m := range history {
			if !s.containsLocked(m.ID) {
				s.messages = append(s.messages, m)
			}
		}
		// sends made while loading may not be in the history yet
		claimed := make(map[int]bool)
		for _, m := range local {
			if s.containsLocked(m.ID) {
				continue
			}
			if m.IsOptimistic() {
				if i := s.confirmationLocked(m, claimed); i >= 0 {
					claimed[i] = true
					continue
				}
			}
			s.messages = append(s.messages, m)
		}
	}
	s.state = ChatReady
	s.mu.Unlock()

	s.publish()
	if err != nil {
		logger.Error("failed to load messages", "error", err)
		return fmt.Errorf("load messages for %s: %w", ticketID, err)
	}
	logger.Debug("messages loaded", "count", len(history))
	return nil
}

// ingest handles a live message from either the received or the delivered
// stream.
func (s *ChatSync) ingest(m domain.Message) {
	s.mu.Lock()
	if s.closed || s.ticketID == "" || m.TicketID != s.ticketID || m.IsStatusChange() {
		s.mu.Unlock()
		return
	}
	// the same server message arrives on both streams
	if s.containsLocked(m.ID) {
		s.mu.Unlock()
		return
	}
	if !m.IsOptimistic() && s.reconcileLocked(m) {
		s.mu.Unlock()
		s.publish()
		return
	}
	s.messages = append(s.messages, m)
	s.mu.Unlock()

	s.publish()
}

// reconcileLocked replaces the oldest optimistic entry that m confirms. It
// reports whether one was found.
func (s *ChatSync) reconcileLocked(m domain.Message) bool {
	now := s.now()
	for i, local := range s.messages {
		if !local.IsOptimistic() {
			continue
		}
		if local.TicketID != m.TicketID || local.SenderID != m.SenderID || local.Content != m.Content {
			continue
		}
		if sentAt, ok := domain.ParseTimestamp(local.Timestamp); ok && now.Sub(sentAt) > s.reconcileWindow {
			continue
		}

		s.messages[i] = m
		return true
	}
	return false
}

// confirmationLocked returns the index of an unclaimed server message that
// confirms the optimistic entry local, or -1.
func (s *ChatSync) confirmationLocked(local domain.Message, claimed map[int]bool) int {
	for i, m := range s.messages {
		if claimed[i] || m.IsOptimistic() {
			continue
		}
		if m.TicketID == local.TicketID && m.SenderID == local.SenderID && m.Content == local.Content {
			return i
		}
	}
	return -1
}

func (s *ChatSync) containsLocked(id string) bool {
	if id == "" {
		return false
	}
	for _, m := range s.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// SendMessage posts content to the selected ticket and appends an
// optimistic copy, which is returned. Nothing is appended when the send
// cannot be dispatched.
func (s *ChatSync) SendMessage(ctx context.Context, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)

	s.mu.Lock()
	ticketID := s.ticketID
	s.mu.Unlock()

	if ticketID == "" {
		return nil, apperrors.ErrNoTicketSelected
	}
	if content == "" {
		return nil, apperrors.ErrEmptyMessage
	}
	session := s.sessions.Current()
	if session == nil {
		return nil, apperrors.ErrNoSession
	}

	optimistic := domain.NewOptimisticMessage(ticketID, session.UserID, content, s.now())

	s.mu.Lock()
	if s.ticketID != ticketID {
		s.mu.Unlock()
		return nil, apperrors.ErrNoTicketSelected
	}
	s.messages = append(s.messages, optimistic)
	s.mu.Unlock()
	s.publish()

	if err := s.realtime.SendMessage(ctx, ticketID, content); err != nil {
		s.remove(optimistic.ID)
		s.logger.Warn("message not sent", "ticket_id", ticketID, "error", err)
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &optimistic, nil
}

func (s *ChatSync) remove(id string) {
	s.mu.Lock()
	removed := false
	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			removed = true
			break
		}
	}
	s.mu.Unlock()

	if removed {
		s.publish()
	}
}

// Snapshot returns a copy of the current state.
func (s *ChatSync) Snapshot() ChatSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ChatSnapshot{
		TicketID: s.ticketID,
		State:    s.state,
		Messages: append([]domain.Message(nil), s.messages...),
		Err:      s.fetchErr,
	}
}

// OnChange subscribes to state changes. The handler receives a snapshot.
func (s *ChatSync) OnChange(fn func(ChatSnapshot)) (unsubscribe func()) {
	return s.changes.Subscribe(fn)
}

func (s *ChatSync) publish() {
	s.changes.Publish(s.Snapshot())
}

// Close leaves the selected room and stops listening to the live stream.
func (s *ChatSync) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ticketID := s.ticketID
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	if ticketID != "" {
		if err := s.realtime.LeaveTicketRoom(ticketID); err != nil {
			s.logger.Warn("failed to leave chat room", "ticket_id", ticketID, "error", err)
		}
	}
}
