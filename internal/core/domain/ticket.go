package domain

import (
	"encoding/json"
	"strings"

	apperrors "github.com/lorrc/agent-console/internal/core/errors"
)

// TicketStatus represents the possible states of a ticket.
type TicketStatus string

const (
	StatusNew      TicketStatus = "new"
	StatusOpen     TicketStatus = "open"
	StatusPending  TicketStatus = "pending"
	StatusResolved TicketStatus = "resolved"
	StatusClosed   TicketStatus = "closed"
)

// IsValid reports whether s is a known status.
func (s TicketStatus) IsValid() bool {
	switch s {
	case StatusNew, StatusOpen, StatusPending, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// ParseTicketStatus validates user input before it is put into a URL.
func ParseTicketStatus(raw string) (TicketStatus, error) {
	status := TicketStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.IsValid() {
		return "", apperrors.ErrInvalidStatus
	}
	return status, nil
}

// TicketPriority represents the urgency of a ticket.
type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// IsValid reports whether p is a known priority.
func (p TicketPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Ticket is a support conversation (the backend calls it a chat).
type Ticket struct {
	ID             string         `json:"id"`
	Subject        string         `json:"subject"`
	Description    string         `json:"description"`
	Status         TicketStatus   `json:"status"`
	Priority       TicketPriority `json:"priority"`
	CustomerID     string         `json:"customerId"`
	AgentID        string         `json:"agentId,omitempty"`
	CustomerUnread int            `json:"customerUnreadCount"`
	AgentUnread    int            `json:"agentUnreadCount"`
	CreatedAt      string         `json:"createdAt"`
	UpdatedAt      string         `json:"updatedAt"`
}

// IsClosed reports whether no further replies are expected.
func (t Ticket) IsClosed() bool {
	return t.Status == StatusResolved || t.Status == StatusClosed
}

// WireChat is the chat document as the backend sends it.
type WireChat struct {
	ID                  string          `json:"id"`
	MongoID             string          `json:"_id"`
	AgentID             json.RawMessage `json:"agentId"`
	Title               string          `json:"title"`
	Subject             string          `json:"subject"`
	Description         string          `json:"description"`
	Status              string          `json:"status"`
	Priority            string          `json:"priority"`
	CustomerUnreadCount int             `json:"customerUnreadCount"`
	AgentUnreadCount    int             `json:"agentUnreadCount"`
	Customer            json.RawMessage `json:"customer"`
	CustomerID          json.RawMessage `json:"customerId"`
	CreatedAt           string          `json:"createdAt"`
	UpdatedAt           string          `json:"updatedAt"`
}

// Identifier returns whichever id field the backend populated.
func (c WireChat) Identifier() string {
	if c.MongoID != "" {
		return c.MongoID
	}
	return c.ID
}

// DisplaySubject prefers the subject and falls back to the title.
func (c WireChat) DisplaySubject() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.Title
}

// NormalizeTicket turns a wire chat into the view model.
func NormalizeTicket(c WireChat) Ticket {
	customer := ResolveReference(c.Customer)
	if customer == "" {
		customer = ResolveReference(c.CustomerID)
	}

	return Ticket{
		ID:             c.Identifier(),
		Subject:        c.DisplaySubject(),
		Description:    c.Description,
		Status:         TicketStatus(strings.ToLower(c.Status)),
		Priority:       TicketPriority(strings.ToLower(c.Priority)),
		CustomerID:     customer,
		AgentID:        ResolveReference(c.AgentID),
		CustomerUnread: c.CustomerUnreadCount,
		AgentUnread:    c.AgentUnreadCount,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// NormalizeTickets converts a ticket list, preserving order.
func NormalizeTickets(wire []WireChat) []Ticket {
	tickets := make([]Ticket, 0, len(wire))
	for _, c := range wire {
		tickets = append(tickets, NormalizeTicket(c))
	}
	return tickets
}
