package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/mocks"
	"github.com/lorrc/agent-console/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var routerNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, notifier *recordingNotifier) *Router {
	t.Helper()
	r := NewRouter(func() string { return "A1" }, notifier, logging.Discard())
	r.now = func() time.Time { return routerNow }
	return r
}

func frame(t *testing.T, eventType domain.EventType, payload any) []byte {
	t.Helper()
	ev, err := domain.NewEvent(eventType, payload)
	require.NoError(t, err)
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return data
}

func TestRouter_ChatNotifiedReachesAssignmentAndFeed(t *testing.T) {
	notifier := &recordingNotifier{}
	r := newTestRouter(t, notifier)

	var assignments []domain.ChatAssignment
	var notifications []domain.Notification
	r.assignments.Subscribe(func(a domain.ChatAssignment) { assignments = append(assignments, a) })
	r.notifications.Subscribe(func(n domain.Notification) { notifications = append(notifications, n) })

	doc := map[string]any{
		"_id":       "n1",
		"title":     "Chat assigned",
		"content":   "Order #42 is late",
		"type":      "chat_assignment",
		"reference": map[string]any{"id": "T9", "model": "Chat"},
		"createdAt": "2026-03-02T11:58:00.000Z",
	}
	require.NoError(t, r.Dispatch(frame(t, domain.EventChatNotified, []any{doc})))

	require.Len(t, assignments, 1)
	assert.Equal(t, "T9", assignments[0].Notification.ReferenceID())

	require.Len(t, notifications, 1)
	assert.Equal(t, "n1", notifications[0].ID)
	assert.Equal(t, "T9", notifications[0].TicketID)
	assert.Equal(t, domain.NotificationChatAssignment, notifications[0].Type)
	assert.Equal(t, "2 minutes ago", notifications[0].RelativeTime)
	assert.False(t, notifications[0].Read)

	toasts := notifier.all()
	require.Len(t, toasts, 1)
	assert.Equal(t, "T9", toasts[0].TicketID)
}

func TestRouter_ChatNotifiedFallsBackToChatID(t *testing.T) {
	r := newTestRouter(t, nil)

	var got domain.Notification
	r.notifications.Subscribe(func(n domain.Notification) { got = n })

	doc := map[string]any{"_id": "n2"}
	chat := map[string]any{"_id": "T4", "title": "Refund"}
	require.NoError(t, r.Dispatch(frame(t, domain.EventChatNotified, []any{doc, chat})))

	assert.Equal(t, "T4", got.TicketID)
	assert.Equal(t, "New Chat Assigned", got.Title)
}

func TestRouter_MessageFromOthersAlsoNotifies(t *testing.T) {
	r := newTestRouter(t, nil)

	var messages []domain.Message
	var notifications []domain.Notification
	r.messages.Subscribe(func(m domain.Message) { messages = append(messages, m) })
	r.notifications.Subscribe(func(n domain.Notification) { notifications = append(notifications, n) })

	fromCustomer := map[string]any{"message": map[string]any{
		"_id": "m1", "chatId": "T1", "senderId": "C1", "content": "Where is my order?", "senderRole": "customer",
	}}
	fromSelf := map[string]any{
		"_id": "m2", "chatId": "T1", "senderId": map[string]any{"_id": "A1"}, "content": "Checking", "senderRole": "agent",
	}

	require.NoError(t, r.Dispatch(frame(t, domain.EventMessageReceived, fromCustomer)))
	require.NoError(t, r.Dispatch(frame(t, domain.EventMessageReceived, fromSelf)))

	require.Len(t, messages, 2)
	assert.Equal(t, "A1", messages[1].SenderID)

	require.Len(t, notifications, 1)
	assert.Equal(t, "message:m1", notifications[0].ID)
	assert.Equal(t, "T1", notifications[0].TicketID)
}

func TestRouter_MessageDelivered(t *testing.T) {
	r := newTestRouter(t, nil)

	var delivered []domain.Message
	r.delivered.Subscribe(func(m domain.Message) { delivered = append(delivered, m) })

	payload := map[string]any{"message": map[string]any{"_id": "m3", "chatId": "T1", "senderId": "A1", "content": "Hello"}}
	require.NoError(t, r.Dispatch(frame(t, domain.EventMessageDelivered, payload)))

	require.Len(t, delivered, 1)
	assert.Equal(t, "m3", delivered[0].ID)
}

func TestRouter_ChatCreated(t *testing.T) {
	r := newTestRouter(t, nil)

	var tickets []domain.Ticket
	var notifications []domain.Notification
	r.created.Subscribe(func(tk domain.Ticket) { tickets = append(tickets, tk) })
	r.notifications.Subscribe(func(n domain.Notification) { notifications = append(notifications, n) })

	require.NoError(t, r.Dispatch(frame(t, domain.EventChatCreated, map[string]any{"_id": "T7", "subject": "Broken zipper"})))

	require.Len(t, tickets, 1)
	assert.Equal(t, "T7", tickets[0].ID)
	require.Len(t, notifications, 1)
	assert.Equal(t, "New Chat Created", notifications[0].Title)
	assert.Equal(t, "Broken zipper", notifications[0].Message)
	assert.Equal(t, domain.JustNow, notifications[0].RelativeTime)
}

func TestRouter_JoinErrorsAreSuppressed(t *testing.T) {
	notifier := new(mocks.MockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Once()

	r := NewRouter(nil, notifier, logging.Discard())

	require.NoError(t, r.Dispatch(frame(t, domain.EventError, domain.ErrorPayload{Message: "Failed to join chat"})))
	notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)

	require.NoError(t, r.Dispatch(frame(t, domain.EventError, "Chat not found")))
	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestRouter_UnknownAndMalformed(t *testing.T) {
	r := newTestRouter(t, nil)

	err := r.Dispatch(frame(t, "typingIndicator", nil))
	assert.ErrorIs(t, err, apperrors.ErrUnknownEvent)

	err = r.Dispatch([]byte("{not json"))
	assert.ErrorIs(t, err, apperrors.ErrMalformedEvent)

	err = r.Dispatch(frame(t, domain.EventMessageReceived, nil))
	assert.ErrorIs(t, err, apperrors.ErrMalformedEvent)
}

func TestRouter_UnsubscribeStopsDelivery(t *testing.T) {
	r := newTestRouter(t, nil)

	var calls int
	unsubscribe := r.notifications.Subscribe(func(domain.Notification) { calls++ })

	doc := map[string]any{"_id": "n1", "content": "hello"}
	require.NoError(t, r.Dispatch(frame(t, domain.EventNotification, doc)))
	unsubscribe()
	unsubscribe()
	require.NoError(t, r.Dispatch(frame(t, domain.EventNotification, doc)))

	assert.Equal(t, 1, calls)
}
