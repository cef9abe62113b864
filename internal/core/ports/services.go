package ports

import (
	"context"

	"github.com/lorrc/agent-console/internal/core/domain"
)

// Realtime is the single live connection to the messaging gateway. One
// instance is shared by every consumer in the process.
type Realtime interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	State() domain.ConnectionState

	JoinNotificationRoom(agentID string) error
	JoinTicketRoom(ticketID string) error
	LeaveTicketRoom(ticketID string) error
	SendMessage(ctx context.Context, ticketID, content string) error
	MarkNotificationRead(notificationID string) error
	MarkAllNotificationsRead() error

	// Each On method returns a function that removes that one handler.
	OnMessage(fn func(domain.Message)) (unsubscribe func())
	OnMessageDelivered(fn func(domain.Message)) (unsubscribe func())
	OnNotification(fn func(domain.Notification)) (unsubscribe func())
	OnChatAssignment(fn func(domain.ChatAssignment)) (unsubscribe func())
	OnChatCreated(fn func(domain.Ticket)) (unsubscribe func())
	OnStatusChange(fn func(domain.StatusChange)) (unsubscribe func())
}

// ToastLevel is the severity of a user-facing notice.
type ToastLevel string

const (
	ToastInfo    ToastLevel = "info"
	ToastSuccess ToastLevel = "success"
	ToastError   ToastLevel = "error"
)

// Toast is a short notice shown to the agent.
type Toast struct {
	Level    ToastLevel
	Title    string
	Message  string
	TicketID string
}

// Notifier is the side channel for user-facing notices. Notify must not
// block the caller.
type Notifier interface {
	Notify(ctx context.Context, toast Toast)
}

// TokenInspector checks a bearer token locally without a network call.
type TokenInspector interface {
	Expired(token string) bool
}

// AuthService signs agents in and out and keeps the persisted session
// honest.
type AuthService interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error)
	Register(ctx context.Context, reg domain.Registration) (*domain.Session, error)
	Logout() error
	// Validate checks the persisted session against the backend. An
	// expired or rejected token clears the session.
	Validate(ctx context.Context) (*domain.Session, error)
}

// TicketService reads and updates tickets through the support API.
type TicketService interface {
	List(ctx context.Context) ([]domain.Ticket, error)
	Get(ctx context.Context, ticketID string) (*domain.Ticket, error)
	UpdateStatus(ctx context.Context, ticketID, status string) (*domain.Ticket, error)
}

// CustomerLookupService assembles what the console shows about a ticket's
// customer.
type CustomerLookupService interface {
	Overview(ctx context.Context, customerID string) (*domain.CustomerOverview, error)
}
