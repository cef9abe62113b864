package services

import (
	"context"

	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/ports"
)

// TicketService implements ticket reads and status changes
type TicketService struct {
	api ports.SupportAPI
}

var _ ports.TicketService = (*TicketService)(nil)

// NewTicketService creates a new ticket service
func NewTicketService(api ports.SupportAPI) ports.TicketService {
	return &TicketService{api: api}
}

// List returns the tickets visible to the signed-in agent
func (s *TicketService) List(ctx context.Context) ([]domain.Ticket, error) {
	return s.api.ListTickets(ctx)
}

// Get returns one ticket
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if ticketID == "" {
		return nil, apperrors.ErrTicketIDRequired
	}
	return s.api.GetTicket(ctx, ticketID)
}

// UpdateStatus validates status before asking the backend to apply it
func (s *TicketService) UpdateStatus(ctx context.Context, ticketID, status string) (*domain.Ticket, error) {
	if ticketID == "" {
		return nil, apperrors.ErrTicketIDRequired
	}

	parsed, err := domain.ParseTicketStatus(status)
	if err != nil {
		return nil, err
	}

	return s.api.UpdateTicketStatus(ctx, ticketID, parsed)
}
