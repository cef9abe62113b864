package ports

import (
	"context"

	"github.com/lorrc/agent-console/internal/core/domain"
)

// SessionStore holds the signed-in identity between runs. Reads are local
// and synchronous; nothing here touches the network.
type SessionStore interface {
	// Current returns the persisted session, or nil when signed out.
	Current() *domain.Session
	Set(session domain.Session) error
	Clear() error

	LastViewedTicket() string
	SetLastViewedTicket(ticketID string) error
}

// SupportAPI is the REST backend for tickets, messages and identity.
type SupportAPI interface {
	// MessagesByTicket returns the transcript oldest first.
	MessagesByTicket(ctx context.Context, ticketID string) ([]domain.Message, error)
	ListTickets(ctx context.Context) ([]domain.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)
	UpdateTicketStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (*domain.Ticket, error)

	Profile(ctx context.Context) (*domain.WireUser, error)
	Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error)
	Register(ctx context.Context, reg domain.Registration) (*domain.AuthResponse, error)
}

// CommerceAPI is the e-commerce backend that owns customers and orders.
type CommerceAPI interface {
	Customer(ctx context.Context, customerID string) (*domain.Customer, error)
	Orders(ctx context.Context, customerID string) ([]domain.Order, error)
}
