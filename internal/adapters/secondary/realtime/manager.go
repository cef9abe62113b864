package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/ports"
	"github.com/lorrc/agent-console/internal/core/subscription"
)

// ConnectFailedMessage is shown when a send finds no usable connection.
const ConnectFailedMessage = "Unable to connect to chat server. Please refresh the page."

// Config holds the connection settings.
type Config struct {
	URL               string
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	PingInterval      time.Duration
	PongWait          time.Duration
	// TokenInQuery also passes the token as ?token= for gateways that
	// cannot read handshake headers.
	TokenInQuery bool
}

// handle is the connection object. It exists from Connect until Disconnect
// or until transport reconnection gives up, across any number of links.
type handle struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	link   *link
	logger *slog.Logger
}

// Manager owns the single live connection to the gateway. It is safe for
// concurrent use and is shared by every consumer in the process.
type Manager struct {
	cfg      Config
	dialer   Dialer
	sessions ports.SessionStore
	notifier ports.Notifier
	router   *Router
	status   *subscription.Registry[domain.StatusChange]
	logger   *slog.Logger

	mu                 sync.Mutex
	state              domain.ConnectionState
	handle             *handle
	notificationJoined bool
	rooms              map[string]int
	// sendRooms are rooms joined by SendMessage without a reference.
	sendRooms map[string]bool
}

var _ ports.Realtime = (*Manager)(nil)

// NewManager creates a disconnected manager. A nil dialer uses gorilla.
func NewManager(cfg Config, dialer Dialer, sessions ports.SessionStore, notifier ports.Notifier, logger *slog.Logger) *Manager {
	if dialer == nil {
		dialer = NewGorillaDialer(cfg.ConnectTimeout)
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = (cfg.PongWait * 9) / 10
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	m := &Manager{
		cfg:       cfg,
		dialer:    dialer,
		sessions:  sessions,
		notifier:  notifier,
		status:    subscription.NewRegistry[domain.StatusChange]("status", logger),
		logger:    logger.With("component", "realtime"),
		state:     domain.StateDisconnected,
		rooms:     make(map[string]int),
		sendRooms: make(map[string]bool),
	}
	m.router = NewRouter(m.currentUserID, notifier, logger)
	return m
}

// Router exposes the inbound event router.
func (m *Manager) Router() *Router {
	return m.router
}

func (m *Manager) currentUserID() string {
	if session := m.sessions.Current(); session != nil {
		return session.UserID
	}
	return ""
}

// Connect opens the connection. It returns nil without doing anything when
// a connection object already exists, including one that is still
// connecting or reconnecting. Without a session it logs and returns
// ErrNoSession.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.handle != nil {
		m.mu.Unlock()
		return nil
	}

	session := m.sessions.Current()
	if session == nil || session.Validate() != nil {
		m.mu.Unlock()
		m.logger.Warn("connect skipped, no session")
		return apperrors.ErrNoSession
	}

	h := m.newHandle()
	m.handle = h
	changed := m.setStateLocked(domain.StateConnecting)
	m.mu.Unlock()

	if changed {
		m.status.Publish(domain.StatusChange{State: domain.StateConnecting})
	}

	conn, err := m.dial(ctx, h)
	if err != nil {
		// a cancelled handle means Disconnect ran during the dial
		torndown := h.ctx.Err() != nil
		h.logger.Error("connect failed", "error", err)
		m.release(h, err)
		if !torndown {
			m.notify(ports.ToastError, "Connection failed", "Unable to connect to chat server.")
		}
		return err
	}

	return m.attach(h, conn)
}

func (m *Manager) newHandle() *handle {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &handle{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		logger: m.logger.With("connection_id", id),
	}
}

// dial opens one transport connection, bounded by the connect timeout and
// by the lifetime of h.
func (m *Manager) dial(ctx context.Context, h *handle) (Conn, error) {
	session := m.sessions.Current()
	if session == nil || session.AuthToken == "" {
		return nil, apperrors.ErrNoSession
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	stop := context.AfterFunc(h.ctx, cancel)
	defer stop()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+session.AuthToken)

	conn, err := m.dialer.Dial(dialCtx, m.dialURL(session.AuthToken), header)
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s: %v", apperrors.ErrConnectTimeout, m.cfg.ConnectTimeout, err)
		}
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	return conn, nil
}

func (m *Manager) dialURL(token string) string {
	if !m.cfg.TokenInQuery {
		return m.cfg.URL
	}
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return m.cfg.URL
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// attach makes conn the live link of h and runs the on-open steps.
func (m *Manager) attach(h *handle, conn Conn) error {
	l := newLink(conn, h.logger)

	m.mu.Lock()
	if m.handle != h {
		m.mu.Unlock()
		_ = conn.Close()
		return apperrors.ErrConnectionClosed
	}
	h.link = l
	m.notificationJoined = false
	m.setStateLocked(domain.StateConnected)
	rooms := make([]string, 0, len(m.rooms)+len(m.sendRooms))
	for id := range m.rooms {
		rooms = append(rooms, id)
	}
	for id := range m.sendRooms {
		rooms = append(rooms, id)
	}
	m.mu.Unlock()

	// Connected goes out before the read pump can report a drop.
	h.logger.Info("connected to gateway")
	m.status.Publish(domain.StatusChange{State: domain.StateConnected})

	go l.writePump(m.cfg.PingInterval)
	go l.readPump(m.cfg.PongWait, m.onFrame, func(err error) { m.handleDrop(h, l, err) })

	if session := m.sessions.Current(); session != nil && session.IsAgent() {
		if err := m.JoinNotificationRoom(session.UserID); err != nil {
			h.logger.Warn("failed to join notification room", "error", err)
		}
	}

	for _, id := range rooms {
		if err := m.emitVia(l, domain.EventJoinChat, m.joinChatPayload(id)); err != nil {
			h.logger.Warn("failed to rejoin chat room", "ticket_id", id, "error", err)
		}
	}
	return nil
}

func (m *Manager) onFrame(frame []byte) {
	_ = m.router.Dispatch(frame)
}

// handleDrop runs when a link's read pump stops. Drops of links that are no
// longer current are ignored.
func (m *Manager) handleDrop(h *handle, l *link, cause error) {
	m.mu.Lock()
	if m.handle != h || h.link != l {
		m.mu.Unlock()
		return
	}
	h.link = nil
	m.notificationJoined = false
	m.setStateLocked(domain.StateDisconnected)
	m.mu.Unlock()

	h.logger.Warn("connection lost", "error", cause)
	m.status.Publish(domain.StatusChange{
		State: domain.StateDisconnected,
		Err:   fmt.Errorf("%w: %v", apperrors.ErrConnectionClosed, cause),
	})

	go m.reconnect(h)
}

// reconnect retries the transport with a fixed delay. When every attempt
// fails the handle is released and only an explicit Connect starts over.
func (m *Manager) reconnect(h *handle) {
	attempts := m.cfg.ReconnectAttempts
	if attempts <= 0 {
		m.giveUp(h)
		return
	}

	select {
	case <-h.ctx.Done():
		return
	case <-time.After(m.cfg.ReconnectDelay):
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.cfg.ReconnectDelay), uint64(attempts-1)),
		h.ctx,
	)

	attempt := 0
	operation := func() error {
		attempt++
		if !m.setHandleState(h, domain.StateConnecting) {
			return backoff.Permanent(apperrors.ErrConnectionClosed)
		}

		conn, err := m.dial(h.ctx, h)
		if err != nil {
			m.setHandleState(h, domain.StateDisconnected)
			if errors.Is(err, apperrors.ErrNoSession) {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := m.attach(h, conn); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		h.logger.Info("reconnect attempt failed", "attempt", attempt, "retry_in", next, "error", err)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if h.ctx.Err() != nil || errors.Is(err, apperrors.ErrConnectionClosed) {
			return
		}
		h.logger.Error("reconnect failed", "attempts", attempt, "error", err)
		m.giveUp(h)
		return
	}
	h.logger.Info("reconnected", "attempts", attempt)
}

func (m *Manager) giveUp(h *handle) {
	m.release(h, apperrors.ErrReconnectExhausted)
	m.notify(ports.ToastError, "Disconnected", "Lost connection to chat server.")
}

// setHandleState moves the state while h is still current. It reports
// whether h is current.
func (m *Manager) setHandleState(h *handle, state domain.ConnectionState) bool {
	m.mu.Lock()
	if m.handle != h {
		m.mu.Unlock()
		return false
	}
	changed := m.setStateLocked(state)
	m.mu.Unlock()

	if changed {
		m.status.Publish(domain.StatusChange{State: state})
	}
	return true
}

// release drops h if it is still current and closes its link.
func (m *Manager) release(h *handle, cause error) {
	m.mu.Lock()
	if m.handle != h {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	l := h.link
	h.link = nil
	m.notificationJoined = false
	changed := m.setStateLocked(domain.StateDisconnected)
	m.mu.Unlock()

	h.cancel()
	if l != nil {
		l.shutdown()
	}
	if changed || cause != nil {
		m.status.Publish(domain.StatusChange{State: domain.StateDisconnected, Err: cause})
	}
}

// Disconnect tears down the connection and forgets room membership. It is
// a no-op when nothing is connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	h := m.handle
	m.rooms = make(map[string]int)
	m.sendRooms = make(map[string]bool)
	m.mu.Unlock()

	if h == nil {
		return
	}
	h.logger.Info("disconnecting from gateway")
	m.release(h, nil)
}

func (m *Manager) setStateLocked(state domain.ConnectionState) bool {
	if m.state == state {
		return false
	}
	m.state = state
	return true
}

// IsConnected reports whether a link is open right now.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == domain.StateConnected
}

// State returns the current connection state.
func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// JoinNotificationRoom joins the agent's notification room. Only the first
// call per link is sent; the latch resets when the link drops.
func (m *Manager) JoinNotificationRoom(agentID string) error {
	m.mu.Lock()
	l := m.currentLinkLocked()
	if l == nil {
		m.mu.Unlock()
		return apperrors.ErrNotConnected
	}
	if m.notificationJoined {
		m.mu.Unlock()
		return nil
	}
	m.notificationJoined = true
	m.mu.Unlock()

	err := m.emitVia(l, domain.EventJoinNotification, agentID)
	if err == nil {
		err = m.emitVia(l, domain.EventJoinRoom, agentID)
	}
	if err != nil {
		m.mu.Lock()
		m.notificationJoined = false
		m.mu.Unlock()
		return err
	}
	return nil
}

// JoinTicketRoom adds one reference to a chat room. joinChat is sent on the
// first reference only. Membership taken while disconnected is sent when
// the link opens.
func (m *Manager) JoinTicketRoom(ticketID string) error {
	if ticketID == "" {
		return apperrors.ErrTicketIDRequired
	}

	m.mu.Lock()
	m.rooms[ticketID]++
	first := m.rooms[ticketID] == 1
	if first && m.sendRooms[ticketID] {
		// already joined by a send; the reference now owns it
		delete(m.sendRooms, ticketID)
		first = false
	}
	l := m.currentLinkLocked()
	m.mu.Unlock()

	if !first || l == nil {
		return nil
	}
	return m.emitVia(l, domain.EventJoinChat, m.joinChatPayload(ticketID))
}

// LeaveTicketRoom drops one reference. Leaving a room that is not held is a
// no-op.
func (m *Manager) LeaveTicketRoom(ticketID string) error {
	m.mu.Lock()
	count := m.rooms[ticketID]
	if count == 0 {
		m.mu.Unlock()
		return nil
	}
	last := count == 1
	if last {
		delete(m.rooms, ticketID)
	} else {
		m.rooms[ticketID] = count - 1
	}
	l := m.currentLinkLocked()
	m.mu.Unlock()

	if !last || l == nil {
		return nil
	}
	return m.emitVia(l, domain.EventLeaveChat, domain.LeaveChatPayload{ChatID: ticketID})
}

// SendMessage posts content to a chat. A disconnected manager gets one
// Connect attempt; if that does not produce a link the agent is told and
// ErrNotConnected is returned. Nothing is queued.
func (m *Manager) SendMessage(ctx context.Context, ticketID, content string) error {
	if ticketID == "" {
		return apperrors.ErrTicketIDRequired
	}
	if strings.TrimSpace(content) == "" {
		return apperrors.ErrEmptyMessage
	}

	if !m.IsConnected() {
		if err := m.Connect(ctx); err != nil {
			m.logger.Warn("reconnect before send failed", "error", err)
		}
	}

	m.mu.Lock()
	l := m.currentLinkLocked()
	join := l != nil && m.rooms[ticketID] == 0 && !m.sendRooms[ticketID]
	if join {
		m.sendRooms[ticketID] = true
	}
	m.mu.Unlock()

	if l == nil {
		m.notify(ports.ToastError, "Message not sent", ConnectFailedMessage)
		return apperrors.ErrNotConnected
	}

	if join {
		if err := m.emitVia(l, domain.EventJoinChat, m.joinChatPayload(ticketID)); err != nil {
			m.mu.Lock()
			delete(m.sendRooms, ticketID)
			m.mu.Unlock()
			return err
		}
	}
	return m.emitVia(l, domain.EventSendMessage, domain.SendMessagePayload{ChatID: ticketID, Message: content})
}

// MarkNotificationRead acknowledges one notification. The server does not
// answer.
func (m *Manager) MarkNotificationRead(notificationID string) error {
	return m.emit(domain.EventMarkNotificationRead, domain.MarkReadPayload{NotificationID: notificationID})
}

// MarkAllNotificationsRead acknowledges every notification.
func (m *Manager) MarkAllNotificationsRead() error {
	return m.emit(domain.EventMarkAllRead, nil)
}

func (m *Manager) joinChatPayload(ticketID string) domain.JoinChatPayload {
	role := domain.RoleAgent
	if session := m.sessions.Current(); session != nil {
		role = session.Role
	}
	return domain.JoinChatPayload{ChatID: ticketID, UserType: role}
}

func (m *Manager) currentLinkLocked() *link {
	if m.handle == nil || m.state != domain.StateConnected {
		return nil
	}
	return m.handle.link
}

func (m *Manager) emit(eventType domain.EventType, payload any) error {
	m.mu.Lock()
	l := m.currentLinkLocked()
	m.mu.Unlock()

	if l == nil {
		return apperrors.ErrNotConnected
	}
	return m.emitVia(l, eventType, payload)
}

func (m *Manager) emitVia(l *link, eventType domain.EventType, payload any) error {
	ev, err := domain.NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	if err := l.enqueue(frame); err != nil {
		return fmt.Errorf("send %s: %w", eventType, err)
	}
	return nil
}

func (m *Manager) notify(level ports.ToastLevel, title, message string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(context.Background(), ports.Toast{Level: level, Title: title, Message: message})
}

// OnMessage subscribes to messages posted in joined chat rooms.
func (m *Manager) OnMessage(fn func(domain.Message)) func() {
	return m.router.messages.Subscribe(fn)
}

// OnMessageDelivered subscribes to delivery confirmations of sent messages.
func (m *Manager) OnMessageDelivered(fn func(domain.Message)) func() {
	return m.router.delivered.Subscribe(fn)
}

// OnNotification subscribes to the generic notification feed, which also
// receives entries synthesized from every other inbound event.
func (m *Manager) OnNotification(fn func(domain.Notification)) func() {
	return m.router.notifications.Subscribe(fn)
}

// OnChatAssignment subscribes to chats assigned to the agent.
func (m *Manager) OnChatAssignment(fn func(domain.ChatAssignment)) func() {
	return m.router.assignments.Subscribe(fn)
}

// OnChatCreated subscribes to newly opened chats.
func (m *Manager) OnChatCreated(fn func(domain.Ticket)) func() {
	return m.router.created.Subscribe(fn)
}

// OnStatusChange subscribes to connection state changes.
func (m *Manager) OnStatusChange(fn func(domain.StatusChange)) func() {
	return m.status.Subscribe(fn)
}
