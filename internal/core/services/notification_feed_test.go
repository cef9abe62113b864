package services_test

import (
	"context"
	"testing"

	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/mocks"
	"github.com/lorrc/agent-console/internal/core/services"
	"github.com/lorrc/agent-console/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func notification(id string) domain.Notification {
	return domain.Notification{
		ID:           id,
		Title:        "New Message",
		Message:      "hello",
		RelativeTime: domain.JustNow,
		Type:         domain.NotificationMessage,
	}
}

func notificationIDs(list []domain.Notification) []string {
	out := make([]string, 0, len(list))
	for _, n := range list {
		out = append(out, n.ID)
	}
	return out
}

func newFeed(t *testing.T) (*services.NotificationFeed, *mocks.MockRealtime, *mocks.MockSessionStore) {
	t.Helper()
	rt := mocks.NewMockRealtime()
	sessions := mocks.NewMockSessionStore()
	feed := services.NewNotificationFeed(rt, sessions, logging.Discard())
	t.Cleanup(feed.Close)
	return feed, rt, sessions
}

func TestNotificationFeed_LiveEntries(t *testing.T) {
	feed, rt, _ := newFeed(t)
	assert.Empty(t, feed.Notifications())

	var changes int
	feed.OnChange(func([]domain.Notification) { changes++ })

	rt.EmitNotification(notification("n1"))
	rt.EmitNotification(notification("n2"))
	rt.EmitNotification(notification("n1"))

	assert.Equal(t, []string{"n2", "n1"}, notificationIDs(feed.Notifications()))
	assert.Equal(t, 2, feed.UnreadCount())
	assert.Equal(t, 2, changes)
}

func TestNotificationFeed_Seed(t *testing.T) {
	feed, rt, _ := newFeed(t)
	rt.EmitNotification(notification("n3"))

	feed.Seed([]domain.Notification{notification("n3"), notification("n2"), notification("n1")})

	assert.Equal(t, []string{"n3", "n2", "n1"}, notificationIDs(feed.Notifications()))
}

func TestNotificationFeed_MarkAsRead(t *testing.T) {
	t.Run("one entry", func(t *testing.T) {
		feed, rt, _ := newFeed(t)
		rt.On("MarkNotificationRead", "n1").Return(nil).Once()
		rt.EmitNotification(notification("n1"))
		rt.EmitNotification(notification("n2"))

		feed.MarkAsRead("n1")

		assert.Equal(t, 1, feed.UnreadCount())
		for _, n := range feed.Notifications() {
			assert.Equal(t, n.ID == "n1", n.Read)
		}
		rt.AssertExpectations(t)
	})

	t.Run("emit failure keeps the local flag", func(t *testing.T) {
		feed, rt, _ := newFeed(t)
		rt.On("MarkNotificationRead", "n1").Return(apperrors.ErrNotConnected).Once()
		rt.EmitNotification(notification("n1"))

		feed.MarkAsRead("n1")

		assert.Equal(t, 0, feed.UnreadCount())
	})

	t.Run("all entries", func(t *testing.T) {
		feed, rt, _ := newFeed(t)
		rt.On("MarkAllNotificationsRead").Return(nil).Once()
		rt.EmitNotification(notification("n1"))
		rt.EmitNotification(notification("n2"))

		feed.MarkAllAsRead()

		assert.Equal(t, 0, feed.UnreadCount())
		assert.Len(t, feed.Notifications(), 2)
		rt.AssertExpectations(t)
	})
}

func TestNotificationFeed_Clear(t *testing.T) {
	feed, rt, _ := newFeed(t)
	rt.EmitNotification(notification("n1"))

	feed.Clear()

	assert.Empty(t, feed.Notifications())
	assert.Equal(t, 0, feed.UnreadCount())
	rt.AssertNotCalled(t, "MarkAllNotificationsRead")
}

func TestNotificationFeed_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("no session", func(t *testing.T) {
		feed, rt, sessions := newFeed(t)
		sessions.On("Current").Return(nil)

		assert.ErrorIs(t, feed.Start(ctx), apperrors.ErrNoSession)
		rt.AssertNotCalled(t, "Connect", mock.Anything)
	})

	t.Run("agent joins the notification room", func(t *testing.T) {
		feed, rt, sessions := newFeed(t)
		sessions.On("Current").Return(testSession)
		rt.On("Connect", mock.Anything).Run(func(mock.Arguments) { rt.SetConnected(true) }).Return(nil).Once()
		rt.On("JoinNotificationRoom", "A1").Return(nil).Once()

		require.NoError(t, feed.Start(ctx))
		rt.AssertExpectations(t)
	})

	t.Run("customers have no notification room", func(t *testing.T) {
		feed, rt, sessions := newFeed(t)
		sessions.On("Current").Return(&domain.Session{UserID: "C1", Role: domain.RoleUser, AuthToken: "tok"})
		rt.On("Connect", mock.Anything).Run(func(mock.Arguments) { rt.SetConnected(true) }).Return(nil).Once()

		require.NoError(t, feed.Start(ctx))
		rt.AssertNotCalled(t, "JoinNotificationRoom", mock.Anything)
	})
}

func TestNotificationFeed_CloseStopsUpdates(t *testing.T) {
	feed, rt, _ := newFeed(t)
	feed.Close()

	rt.EmitNotification(notification("n1"))

	assert.Empty(t, feed.Notifications())
	assert.Equal(t, 0, rt.Subscribers())
}
