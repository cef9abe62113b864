package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/ports"
	"github.com/lorrc/agent-console/internal/core/subscription"
	"github.com/lorrc/agent-console/internal/infrastructure/logging"
)

// NotificationFeed is the agent's header feed: newest first, no duplicate
// ids. Read flags are changed locally and acknowledged to the server
// without waiting for an answer.
type NotificationFeed struct {
	realtime ports.Realtime
	sessions ports.SessionStore
	logger   *slog.Logger

	mu    sync.Mutex
	items []domain.Notification

	changes     *subscription.Registry[[]domain.Notification]
	unsubscribe func()
}

// NewNotificationFeed creates an empty feed subscribed to live
// notifications.
func NewNotificationFeed(realtime ports.Realtime, sessions ports.SessionStore, logger *slog.Logger) *NotificationFeed {
	if logger == nil {
		logger = logging.Discard()
	}
	f := &NotificationFeed{
		realtime: realtime,
		sessions: sessions,
		logger:   logger.With("component", "notification_feed"),
		items:    []domain.Notification{},
		changes:  subscription.NewRegistry[[]domain.Notification]("notification-change", logger),
	}
	f.unsubscribe = realtime.OnNotification(f.add)
	return f
}

// Start makes sure the connection is up and the agent is in the
// notification room.
func (f *NotificationFeed) Start(ctx context.Context) error {
	session := f.sessions.Current()
	if session == nil {
		return apperrors.ErrNoSession
	}
	if err := f.realtime.Connect(ctx); err != nil {
		return err
	}
	if !session.IsAgent() || !f.realtime.IsConnected() {
		return nil
	}
	return f.realtime.JoinNotificationRoom(session.UserID)
}

func (f *NotificationFeed) add(n domain.Notification) {
	f.mu.Lock()
	if f.indexLocked(n.ID) >= 0 {
		f.mu.Unlock()
		return
	}
	f.items = append([]domain.Notification{n}, f.items...)
	f.mu.Unlock()

	f.publish()
}

// Seed merges an existing list, for example one loaded over REST, behind
// the live entries. Ids already present are skipped.
func (f *NotificationFeed) Seed(list []domain.Notification) {
	f.mu.Lock()
	added := 0
	for _, n := range list {
		if f.indexLocked(n.ID) >= 0 {
			continue
		}
		f.items = append(f.items, n)
		added++
	}
	f.mu.Unlock()

	if added > 0 {
		f.publish()
	}
}

func (f *NotificationFeed) indexLocked(id string) int {
	for i, n := range f.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// MarkAsRead flags one entry as read and tells the server.
func (f *NotificationFeed) MarkAsRead(id string) {
	f.mu.Lock()
	changed := false
	if i := f.indexLocked(id); i >= 0 && !f.items[i].Read {
		f.items[i].Read = true
		changed = true
	}
	f.mu.Unlock()

	if changed {
		f.publish()
	}
	if err := f.realtime.MarkNotificationRead(id); err != nil {
		f.logger.Warn("failed to acknowledge notification", "notification_id", id, "error", err)
	}
}

// MarkAllAsRead flags every entry as read and tells the server.
func (f *NotificationFeed) MarkAllAsRead() {
	f.mu.Lock()
	changed := false
	for i := range f.items {
		if !f.items[i].Read {
			f.items[i].Read = true
			changed = true
		}
	}
	f.mu.Unlock()

	if changed {
		f.publish()
	}
	if err := f.realtime.MarkAllNotificationsRead(); err != nil {
		f.logger.Warn("failed to acknowledge notifications", "error", err)
	}
}

// Clear empties the feed locally. The server keeps its copies.
func (f *NotificationFeed) Clear() {
	f.mu.Lock()
	empty := len(f.items) == 0
	f.items = []domain.Notification{}
	f.mu.Unlock()

	if !empty {
		f.publish()
	}
}

// Notifications returns a copy of the feed, newest first.
func (f *NotificationFeed) Notifications() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Notification{}, f.items...)
}

// UnreadCount is the number of entries not yet read.
func (f *NotificationFeed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, n := range f.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// OnChange subscribes to feed changes. The handler receives a copy.
func (f *NotificationFeed) OnChange(fn func([]domain.Notification)) (unsubscribe func()) {
	return f.changes.Subscribe(fn)
}

func (f *NotificationFeed) publish() {
	f.changes.Publish(f.Notifications())
}

// Close stops listening to live notifications.
func (f *NotificationFeed) Close() {
	f.mu.Lock()
	unsubscribe := f.unsubscribe
	f.unsubscribe = nil
	f.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
