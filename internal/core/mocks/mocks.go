package mocks

import (
	"context"
	"sync"

	"github.com/lorrc/agent-console/internal/core/domain"
	"github.com/lorrc/agent-console/internal/core/ports"
	"github.com/lorrc/agent-console/internal/core/subscription"
	"github.com/stretchr/testify/mock"
)

// MockSessionStore is a mock implementation of ports.SessionStore
type MockSessionStore struct {
	mock.Mock
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{}
}

func (m *MockSessionStore) Current() *domain.Session {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.Session)
}

func (m *MockSessionStore) Set(session domain.Session) error {
	args := m.Called(session)
	return args.Error(0)
}

func (m *MockSessionStore) Clear() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSessionStore) LastViewedTicket() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSessionStore) SetLastViewedTicket(ticketID string) error {
	args := m.Called(ticketID)
	return args.Error(0)
}

// MockSupportAPI is a mock implementation of ports.SupportAPI
type MockSupportAPI struct {
	mock.Mock
}

func NewMockSupportAPI() *MockSupportAPI {
	return &MockSupportAPI{}
}

func (m *MockSupportAPI) MessagesByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockSupportAPI) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Ticket), args.Error(1)
}

func (m *MockSupportAPI) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockSupportAPI) UpdateTicketStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	args := m.Called(ctx, ticketID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockSupportAPI) Profile(ctx context.Context) (*domain.WireUser, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WireUser), args.Error(1)
}

func (m *MockSupportAPI) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuthResponse), args.Error(1)
}

func (m *MockSupportAPI) Register(ctx context.Context, reg domain.Registration) (*domain.AuthResponse, error) {
	args := m.Called(ctx, reg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuthResponse), args.Error(1)
}

// MockCommerceAPI is a mock implementation of ports.CommerceAPI
type MockCommerceAPI struct {
	mock.Mock
}

func NewMockCommerceAPI() *MockCommerceAPI {
	return &MockCommerceAPI{}
}

func (m *MockCommerceAPI) Customer(ctx context.Context, customerID string) (*domain.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Customer), args.Error(1)
}

func (m *MockCommerceAPI) Orders(ctx context.Context, customerID string) ([]domain.Order, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}

// MockNotifier is a mock implementation of ports.Notifier
type MockNotifier struct {
	mock.Mock
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(ctx context.Context, toast ports.Toast) {
	m.Called(ctx, toast)
}

// MockTokenInspector is a mock implementation of ports.TokenInspector
type MockTokenInspector struct {
	mock.Mock
}

func NewMockTokenInspector() *MockTokenInspector {
	return &MockTokenInspector{}
}

func (m *MockTokenInspector) Expired(token string) bool {
	args := m.Called(token)
	return args.Bool(0)
}

// MockRealtime is a mock implementation of ports.Realtime. Commands go
// through mock.Mock; subscriptions are real so tests can push events with
// the Emit helpers.
type MockRealtime struct {
	mock.Mock

	mu        sync.Mutex
	connected bool

	messages      *subscription.Registry[domain.Message]
	delivered     *subscription.Registry[domain.Message]
	notifications *subscription.Registry[domain.Notification]
	assignments   *subscription.Registry[domain.ChatAssignment]
	created       *subscription.Registry[domain.Ticket]
	status        *subscription.Registry[domain.StatusChange]
}

func NewMockRealtime() *MockRealtime {
	return &MockRealtime{
		messages:      subscription.NewRegistry[domain.Message]("message", nil),
		delivered:     subscription.NewRegistry[domain.Message]("delivered", nil),
		notifications: subscription.NewRegistry[domain.Notification]("notification", nil),
		assignments:   subscription.NewRegistry[domain.ChatAssignment]("chat-assignment", nil),
		created:       subscription.NewRegistry[domain.Ticket]("chat-created", nil),
		status:        subscription.NewRegistry[domain.StatusChange]("status", nil),
	}
}

// SetConnected changes what IsConnected and State report.
func (m *MockRealtime) SetConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	m.mu.Unlock()
}

func (m *MockRealtime) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRealtime) Disconnect() {
	m.Called()
}

func (m *MockRealtime) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockRealtime) State() domain.ConnectionState {
	if m.IsConnected() {
		return domain.StateConnected
	}
	return domain.StateDisconnected
}

func (m *MockRealtime) JoinNotificationRoom(agentID string) error {
	args := m.Called(agentID)
	return args.Error(0)
}

func (m *MockRealtime) JoinTicketRoom(ticketID string) error {
	args := m.Called(ticketID)
	return args.Error(0)
}

func (m *MockRealtime) LeaveTicketRoom(ticketID string) error {
	args := m.Called(ticketID)
	return args.Error(0)
}

func (m *MockRealtime) SendMessage(ctx context.Context, ticketID, content string) error {
	args := m.Called(ctx, ticketID, content)
	return args.Error(0)
}

func (m *MockRealtime) MarkNotificationRead(notificationID string) error {
	args := m.Called(notificationID)
	return args.Error(0)
}

func (m *MockRealtime) MarkAllNotificationsRead() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRealtime) OnMessage(fn func(domain.Message)) func() {
	return m.messages.Subscribe(fn)
}

func (m *MockRealtime) OnMessageDelivered(fn func(domain.Message)) func() {
	return m.delivered.Subscribe(fn)
}

func (m *MockRealtime) OnNotification(fn func(domain.Notification)) func() {
	return m.notifications.Subscribe(fn)
}

func (m *MockRealtime) OnChatAssignment(fn func(domain.ChatAssignment)) func() {
	return m.assignments.Subscribe(fn)
}

func (m *MockRealtime) OnChatCreated(fn func(domain.Ticket)) func() {
	return m.created.Subscribe(fn)
}

func (m *MockRealtime) OnStatusChange(fn func(domain.StatusChange)) func() {
	return m.status.Subscribe(fn)
}

// EmitMessage delivers msg to message subscribers.
func (m *MockRealtime) EmitMessage(msg domain.Message) {
	m.messages.Publish(msg)
}

// EmitDelivered delivers msg to delivery subscribers.
func (m *MockRealtime) EmitDelivered(msg domain.Message) {
	m.delivered.Publish(msg)
}

// EmitNotification delivers n to notification subscribers.
func (m *MockRealtime) EmitNotification(n domain.Notification) {
	m.notifications.Publish(n)
}

// EmitStatus delivers a status change and updates IsConnected.
func (m *MockRealtime) EmitStatus(change domain.StatusChange) {
	m.SetConnected(change.Connected())
	m.status.Publish(change)
}

// Subscribers reports the number of live handlers per category.
func (m *MockRealtime) Subscribers() int {
	return m.messages.Len() + m.delivered.Len() + m.notifications.Len() +
		m.assignments.Len() + m.created.Len() + m.status.Len()
}

var (
	_ ports.SessionStore   = (*MockSessionStore)(nil)
	_ ports.SupportAPI     = (*MockSupportAPI)(nil)
	_ ports.CommerceAPI    = (*MockCommerceAPI)(nil)
	_ ports.Notifier       = (*MockNotifier)(nil)
	_ ports.TokenInspector = (*MockTokenInspector)(nil)
	_ ports.Realtime       = (*MockRealtime)(nil)
)
