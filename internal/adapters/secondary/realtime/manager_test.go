package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lorrc/agent-console/internal/adapters/secondary/sessionstore"
	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var agent = domain.Session{UserID: "A1", Role: domain.RoleAgent, DisplayName: "Sam", AuthToken: "tok"}

type testEnv struct {
	manager  *Manager
	dialer   *fakeDialer
	sessions *sessionstore.Memory
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()
	cfg := Config{
		URL:               "ws://gateway.test/socket",
		ConnectTimeout:    time.Second,
		ReconnectAttempts: 3,
		ReconnectDelay:    10 * time.Millisecond,
		PingInterval:      time.Hour,
		PongWait:          2 * time.Hour,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	env := &testEnv{
		dialer:   &fakeDialer{},
		sessions: sessionstore.NewMemory(),
		notifier: &recordingNotifier{},
	}
	env.manager = NewManager(cfg, env.dialer, env.sessions, env.notifier, logging.Discard())
	t.Cleanup(env.manager.Disconnect)
	return env
}

func (e *testEnv) signIn(t *testing.T, session domain.Session) {
	t.Helper()
	require.NoError(t, e.sessions.Set(session))
}

// flush sends a marker frame and waits for it, so every frame enqueued
// before it has been written.
func flush(t *testing.T, m *Manager, conn *fakeConn) {
	t.Helper()
	before := conn.count(domain.EventMarkAllRead)
	require.NoError(t, m.MarkAllNotificationsRead())
	require.Eventually(t, func() bool { return conn.count(domain.EventMarkAllRead) > before }, waitFor, tick)
}

func TestConnect_WithoutSessionFailsQuietly(t *testing.T) {
	env := newTestEnv(t)

	err := env.manager.Connect(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrNoSession)
	assert.Equal(t, 0, env.dialer.dialCount())
	assert.False(t, env.manager.IsConnected())
	assert.Equal(t, domain.StateDisconnected, env.manager.State())
}

func TestConnect_SendsBearerToken(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	env.dialer.push(newFakeConn())

	require.NoError(t, env.manager.Connect(context.Background()))

	assert.True(t, env.manager.IsConnected())
	assert.Equal(t, "Bearer tok", env.dialer.headers[0].Get("Authorization"))
	assert.Equal(t, "ws://gateway.test/socket", env.dialer.urls[0])
}

func TestConnect_TokenInQuery(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.TokenInQuery = true })
	env.signIn(t, agent)
	env.dialer.push(newFakeConn())

	require.NoError(t, env.manager.Connect(context.Background()))
	assert.Equal(t, "ws://gateway.test/socket?token=tok", env.dialer.urls[0])
}

func TestConnect_IsNoOpWhenConnected(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	env.dialer.push(newFakeConn())

	require.NoError(t, env.manager.Connect(context.Background()))
	require.NoError(t, env.manager.Connect(context.Background()))

	assert.Equal(t, 1, env.dialer.dialCount())
}

func TestConnect_ConnectingCountsAsExisting(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	env.dialer.block = make(chan struct{})
	env.dialer.push(newFakeConn())

	done := make(chan error, 1)
	go func() { done <- env.manager.Connect(context.Background()) }()

	require.Eventually(t, func() bool { return env.manager.State() == domain.StateConnecting }, waitFor, tick)
	require.NoError(t, env.manager.Connect(context.Background()))

	close(env.dialer.block)
	require.NoError(t, <-done)

	assert.Equal(t, 1, env.dialer.dialCount())
	assert.True(t, env.manager.IsConnected())
}

func TestConnect_Timeout(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ConnectTimeout = 30 * time.Millisecond })
	env.signIn(t, agent)
	env.dialer.block = make(chan struct{})

	err := env.manager.Connect(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrConnectTimeout)
	assert.Equal(t, domain.StateDisconnected, env.manager.State())
	assert.NotEmpty(t, env.notifier.all())

	// a failed attempt does not hold the connection object
	env.dialer.block = nil
	env.dialer.push(newFakeConn())
	require.NoError(t, env.manager.Connect(context.Background()))
	assert.True(t, env.manager.IsConnected())
}

func TestNotificationRoom_JoinedOncePerConnection(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	conn := env.dialer.push(newFakeConn())

	require.NoError(t, env.manager.Connect(context.Background()))
	require.NoError(t, env.manager.JoinNotificationRoom("A1"))
	require.NoError(t, env.manager.JoinNotificationRoom("A1"))
	flush(t, env.manager, conn)

	assert.Equal(t, 1, conn.count(domain.EventJoinNotification))
	assert.Equal(t, 1, conn.count(domain.EventJoinRoom))

	events := conn.events()
	assert.JSONEq(t, `"A1"`, string(events[0].Payload))
}

func TestNotificationRoom_NotJoinedForCustomers(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, domain.Session{UserID: "C1", Role: domain.RoleUser, AuthToken: "tok"})
	conn := env.dialer.push(newFakeConn())

	require.NoError(t, env.manager.Connect(context.Background()))
	flush(t, env.manager, conn)

	assert.Equal(t, 0, conn.count(domain.EventJoinNotification))
}

func TestNotificationRoom_RequiresConnection(t *testing.T) {
	env := newTestEnv(t)
	assert.ErrorIs(t, env.manager.JoinNotificationRoom("A1"), apperrors.ErrNotConnected)
}

func TestDrop_ResetsLatchAndRejoinsOnce(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	first := env.dialer.push(newFakeConn())
	second := env.dialer.push(newFakeConn())

	var mu sync.Mutex
	var states []domain.ConnectionState
	env.manager.OnStatusChange(func(c domain.StatusChange) {
		mu.Lock()
		states = append(states, c.State)
		mu.Unlock()
	})

	require.NoError(t, env.manager.Connect(context.Background()))
	require.NoError(t, env.manager.JoinTicketRoom("T1"))
	flush(t, env.manager, first)

	first.drop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range states {
			if s == domain.StateDisconnected {
				return true
			}
		}
		return false
	}, waitFor, tick)

	require.Eventually(t, env.manager.IsConnected, waitFor, tick)
	require.NoError(t, env.manager.JoinNotificationRoom("A1"))
	flush(t, env.manager, second)

	assert.Equal(t, 1, second.count(domain.EventJoinNotification))
	assert.Equal(t, 1, second.count(domain.EventJoinRoom))
	assert.Equal(t, 1, second.count(domain.EventJoinChat))
	assert.Equal(t, 2, env.dialer.dialCount())
}

func TestReconnect_GivesUpAfterBoundedAttempts(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ReconnectAttempts = 2 })
	env.signIn(t, agent)
	conn := env.dialer.push(newFakeConn())

	exhausted := make(chan struct{})
	var once sync.Once
	env.manager.OnStatusChange(func(c domain.StatusChange) {
		if errors.Is(c.Err, apperrors.ErrReconnectExhausted) {
			once.Do(func() { close(exhausted) })
		}
	})

	require.NoError(t, env.manager.Connect(context.Background()))
	conn.drop()

	select {
	case <-exhausted:
	case <-time.After(waitFor):
		t.Fatal("reconnection never gave up")
	}

	assert.Equal(t, 3, env.dialer.dialCount())
	assert.False(t, env.manager.IsConnected())
	assert.Never(t, func() bool { return env.dialer.dialCount() > 3 }, 60*time.Millisecond, tick)

	// only an explicit Connect starts over
	env.dialer.push(newFakeConn())
	require.NoError(t, env.manager.Connect(context.Background()))
	assert.True(t, env.manager.IsConnected())
}

func TestConnect_NoOpWhileReconnecting(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ReconnectDelay = 200 * time.Millisecond })
	env.signIn(t, agent)
	conn := env.dialer.push(newFakeConn())

	require.NoError(t, env.manager.Connect(context.Background()))
	conn.drop()
	require.Eventually(t, func() bool { return !env.manager.IsConnected() }, waitFor, tick)

	require.NoError(t, env.manager.Connect(context.Background()))
	assert.Equal(t, 1, env.dialer.dialCount())
}

func TestRooms_AreReferenceCounted(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	conn := env.dialer.push(newFakeConn())
	require.NoError(t, env.manager.Connect(context.Background()))

	require.NoError(t, env.manager.JoinTicketRoom("T1"))
	require.NoError(t, env.manager.JoinTicketRoom("T1"))
	require.NoError(t, env.manager.LeaveTicketRoom("T1"))
	flush(t, env.manager, conn)

	assert.Equal(t, 1, conn.count(domain.EventJoinChat))
	assert.Equal(t, 0, conn.count(domain.EventLeaveChat))

	require.NoError(t, env.manager.LeaveTicketRoom("T1"))
	require.NoError(t, env.manager.LeaveTicketRoom("T1"))
	require.NoError(t, env.manager.LeaveTicketRoom("never-joined"))
	flush(t, env.manager, conn)

	assert.Equal(t, 1, conn.count(domain.EventLeaveChat))

	var join domain.JoinChatPayload
	for _, ev := range conn.events() {
		if ev.Type == domain.EventJoinChat {
			require.NoError(t, json.Unmarshal(ev.Payload, &join))
		}
	}
	assert.Equal(t, domain.JoinChatPayload{ChatID: "T1", UserType: domain.RoleAgent}, join)
}

func TestRooms_HeldWhileDisconnectedAreJoinedOnConnect(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)

	require.NoError(t, env.manager.JoinTicketRoom("T1"))
	assert.ErrorIs(t, env.manager.JoinTicketRoom(""), apperrors.ErrTicketIDRequired)

	conn := env.dialer.push(newFakeConn())
	require.NoError(t, env.manager.Connect(context.Background()))
	flush(t, env.manager, conn)

	assert.Equal(t, 1, conn.count(domain.EventJoinChat))
}

func TestSendMessage_Connected(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	conn := env.dialer.push(newFakeConn())
	require.NoError(t, env.manager.Connect(context.Background()))
	require.NoError(t, env.manager.JoinTicketRoom("T1"))

	require.NoError(t, env.manager.SendMessage(context.Background(), "T1", "Hello"))
	flush(t, env.manager, conn)

	require.Equal(t, 1, conn.count(domain.EventSendMessage))
	assert.Equal(t, 1, conn.count(domain.EventJoinChat))
	for _, ev := range conn.events() {
		if ev.Type == domain.EventSendMessage {
			assert.JSONEq(t, `{"chatId":"T1","message":"Hello"}`, string(ev.Payload))
		}
	}
}

func TestSendMessage_JoinsRoomNotHeld(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	conn := env.dialer.push(newFakeConn())
	require.NoError(t, env.manager.Connect(context.Background()))

	require.NoError(t, env.manager.SendMessage(context.Background(), "T2", "Hi"))
	flush(t, env.manager, conn)

	events := conn.events()
	var order []domain.EventType
	for _, ev := range events {
		if ev.Type == domain.EventJoinChat || ev.Type == domain.EventSendMessage {
			order = append(order, ev.Type)
		}
	}
	assert.Equal(t, []domain.EventType{domain.EventJoinChat, domain.EventSendMessage}, order)
}

func TestSendMessage_ReconnectsOnceWhenDisconnected(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	conn := env.dialer.push(newFakeConn())

	require.NoError(t, env.manager.SendMessage(context.Background(), "T1", "Hello"))
	flush(t, env.manager, conn)

	assert.Equal(t, 1, env.dialer.dialCount())
	assert.Equal(t, 1, conn.count(domain.EventSendMessage))
}

func TestSendMessage_AbandonedWhenStillDisconnected(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	env.dialer.fail(errors.New("refused"))

	err := env.manager.SendMessage(context.Background(), "T1", "Hello")

	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
	assert.Equal(t, 1, env.dialer.dialCount())
	assert.True(t, env.notifier.hasMessage(ConnectFailedMessage))
}

func TestSendMessage_Validation(t *testing.T) {
	env := newTestEnv(t)
	assert.ErrorIs(t, env.manager.SendMessage(context.Background(), "", "x"), apperrors.ErrTicketIDRequired)
	assert.ErrorIs(t, env.manager.SendMessage(context.Background(), "T1", "   "), apperrors.ErrEmptyMessage)
	assert.Equal(t, 0, env.dialer.dialCount())
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t)
	env.manager.Disconnect()

	env.signIn(t, agent)
	conn := env.dialer.push(newFakeConn())
	require.NoError(t, env.manager.Connect(context.Background()))

	env.manager.Disconnect()
	env.manager.Disconnect()

	assert.False(t, env.manager.IsConnected())
	require.Eventually(t, conn.isClosed, waitFor, tick)
	assert.Never(t, func() bool { return env.dialer.dialCount() > 1 }, 60*time.Millisecond, tick)
	assert.ErrorIs(t, env.manager.MarkNotificationRead("n1"), apperrors.ErrNotConnected)
}

func TestInboundFrames_ReachSubscribers(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	conn := env.dialer.push(newFakeConn())

	received := make(chan domain.Message, 1)
	unsubscribe := env.manager.OnMessage(func(m domain.Message) { received <- m })
	defer unsubscribe()

	require.NoError(t, env.manager.Connect(context.Background()))
	conn.serverSend(t, domain.EventMessageReceived, map[string]any{
		"message": map[string]any{"_id": "m1", "chatId": "T1", "senderId": "C1", "content": "hi", "senderRole": "customer"},
	})

	select {
	case m := <-received:
		assert.Equal(t, "m1", m.ID)
		assert.Equal(t, "T1", m.TicketID)
	case <-time.After(waitFor):
		t.Fatal("message never delivered")
	}
}

func TestErrorFrames(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	conn := env.dialer.push(newFakeConn())
	require.NoError(t, env.manager.Connect(context.Background()))

	conn.serverSend(t, domain.EventError, domain.ErrorPayload{Message: "Failed to join chat"})
	conn.serverSend(t, domain.EventError, domain.ErrorPayload{Message: "Chat not found"})

	require.Eventually(t, func() bool { return env.notifier.hasMessage("Chat not found") }, waitFor, tick)
	assert.False(t, env.notifier.hasMessage("Failed to join chat"))
}

func TestMarkRead_Emits(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	conn := env.dialer.push(newFakeConn())
	require.NoError(t, env.manager.Connect(context.Background()))

	require.NoError(t, env.manager.MarkNotificationRead("n1"))
	flush(t, env.manager, conn)

	for _, ev := range conn.events() {
		if ev.Type == domain.EventMarkNotificationRead {
			assert.JSONEq(t, `{"notificationId":"n1"}`, string(ev.Payload))
		}
	}
	assert.Equal(t, 1, conn.count(domain.EventMarkNotificationRead))
}

func TestOnStatusChange_Unsubscribe(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	env.dialer.push(newFakeConn())

	var calls int
	unsubscribe := env.manager.OnStatusChange(func(domain.StatusChange) { calls++ })
	unsubscribe()

	require.NoError(t, env.manager.Connect(context.Background()))
	assert.Zero(t, calls)
}

func TestConnect_ImmediateDropReportsConnectedFirst(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ReconnectAttempts = 0 })
	env.signIn(t, agent)
	conn := env.dialer.push(newFakeConn())
	conn.drop()

	var mu sync.Mutex
	var states []domain.ConnectionState
	env.manager.OnStatusChange(func(c domain.StatusChange) {
		mu.Lock()
		states = append(states, c.State)
		mu.Unlock()
	})

	require.NoError(t, env.manager.Connect(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) >= 3
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.ConnectionState{
		domain.StateConnecting,
		domain.StateConnected,
		domain.StateDisconnected,
	}, states[:3])
	assert.Equal(t, domain.StateDisconnected, env.manager.State())
}

func TestConnect_DisconnectDuringDialIsSilent(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	env.dialer.block = make(chan struct{})
	env.dialer.push(newFakeConn())

	done := make(chan error, 1)
	go func() { done <- env.manager.Connect(context.Background()) }()

	require.Eventually(t, func() bool { return env.dialer.dialCount() == 1 }, waitFor, tick)
	env.manager.Disconnect()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(waitFor):
		t.Fatal("connect did not return after disconnect")
	}
	assert.Empty(t, env.notifier.all())
	assert.Equal(t, domain.StateDisconnected, env.manager.State())
}

func TestSendMessage_RoomJoinedBySendIsKept(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	first := env.dialer.push(newFakeConn())
	second := env.dialer.push(newFakeConn())
	require.NoError(t, env.manager.Connect(context.Background()))

	require.NoError(t, env.manager.SendMessage(context.Background(), "T2", "Hi"))
	require.NoError(t, env.manager.SendMessage(context.Background(), "T2", "Again"))
	require.NoError(t, env.manager.JoinTicketRoom("T2"))
	flush(t, env.manager, first)

	assert.Equal(t, 1, first.count(domain.EventJoinChat))

	first.drop()
	require.Eventually(t, func() bool { return env.dialer.dialCount() == 2 && env.manager.IsConnected() }, waitFor, tick)
	flush(t, env.manager, second)
	assert.Equal(t, 1, second.count(domain.EventJoinChat))

	require.NoError(t, env.manager.LeaveTicketRoom("T2"))
	flush(t, env.manager, second)
	assert.Equal(t, 1, second.count(domain.EventLeaveChat))
}

func TestSendMessage_SendOnlyRoomRejoinedAfterDrop(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, agent)
	first := env.dialer.push(newFakeConn())
	second := env.dialer.push(newFakeConn())
	require.NoError(t, env.manager.Connect(context.Background()))

	require.NoError(t, env.manager.SendMessage(context.Background(), "T3", "Hi"))
	flush(t, env.manager, first)

	first.drop()
	require.Eventually(t, func() bool { return env.dialer.dialCount() == 2 && env.manager.IsConnected() }, waitFor, tick)
	flush(t, env.manager, second)

	assert.Equal(t, 1, second.count(domain.EventJoinChat))
}
