package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/ports"
)

// SupportClient talks to the support backend. The bearer token is read from
// the session store on every request.
type SupportClient struct {
	t   *transport
	now func() time.Time
}

var _ ports.SupportAPI = (*SupportClient)(nil)

// NewSupportClient creates a client for the support backend.
func NewSupportClient(cfg Config, sessions ports.SessionStore) (*SupportClient, error) {
	t, err := newTransport(cfg, sessions, "support_api")
	if err != nil {
		return nil, err
	}
	return &SupportClient{t: t, now: time.Now}, nil
}

// MessagesByTicket fetches the transcript of a ticket, oldest first. A body
// that is not a list is treated as an empty transcript.
func (c *SupportClient) MessagesByTicket(ctx context.Context, ticketID string) ([]domain.Message, error) {
	if ticketID == "" {
		return nil, apperrors.ErrTicketIDRequired
	}

	var raw json.RawMessage
	path := "/messages-by-ticket/" + escape(ticketID)
	if err := c.t.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var wire []domain.WireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		c.t.logger.Warn("unexpected messages response", "ticket_id", ticketID, "error", err)
		return []domain.Message{}, nil
	}
	return domain.NormalizeMessages(wire, c.now()), nil
}

// ListTickets fetches the chats assigned to the signed-in agent.
func (c *SupportClient) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	var wire []domain.WireChat
	if err := c.t.do(ctx, http.MethodGet, "/chats", nil, &wire); err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return domain.NormalizeTickets(wire), nil
}

// GetTicket fetches one chat.
func (c *SupportClient) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if ticketID == "" {
		return nil, apperrors.ErrTicketIDRequired
	}

	var wire domain.WireChat
	if err := c.t.do(ctx, http.MethodGet, "/chats/"+escape(ticketID), nil, &wire); err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	ticket := domain.NormalizeTicket(wire)
	return &ticket, nil
}

// UpdateTicketStatus moves a chat to status and returns the updated chat.
func (c *SupportClient) UpdateTicketStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	if ticketID == "" {
		return nil, apperrors.ErrTicketIDRequired
	}
	if !status.IsValid() {
		return nil, apperrors.ErrInvalidStatus
	}

	var wire domain.WireChat
	path := "/chats/" + escape(ticketID) + "/" + string(status)
	if err := c.t.do(ctx, http.MethodPut, path, nil, &wire); err != nil {
		return nil, fmt.Errorf("update ticket status: %w", err)
	}
	ticket := domain.NormalizeTicket(wire)
	return &ticket, nil
}

// Profile fetches the identity behind the current token. The backend
// returns either the bare user document or one wrapped in "user".
func (c *SupportClient) Profile(ctx context.Context) (*domain.WireUser, error) {
	var raw json.RawMessage
	if err := c.t.do(ctx, http.MethodGet, "/profile", nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	var wrapped struct {
		User *domain.WireUser `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil {
		return wrapped.User, nil
	}

	var user domain.WireUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return &user, nil
}

// Login exchanges credentials for a token.
func (c *SupportClient) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
	var resp domain.AuthResponse
	if err := c.t.do(ctx, http.MethodPost, "/auth/login", creds, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &resp, nil
}

// Register creates an account and returns its token.
func (c *SupportClient) Register(ctx context.Context, reg domain.Registration) (*domain.AuthResponse, error) {
	var resp domain.AuthResponse
	if err := c.t.do(ctx, http.MethodPost, "/auth/register", reg, &resp); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &resp, nil
}
