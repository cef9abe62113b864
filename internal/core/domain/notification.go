package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NotificationType is the category shown in the header feed.
type NotificationType string

const (
	NotificationChatAssignment NotificationType = "chat_assignment"
	NotificationMessage        NotificationType = "message"
	NotificationStatusChange   NotificationType = "status_change"
	NotificationSystem         NotificationType = "system"
)

// Notification is one entry of the header feed. Read is the only field
// that changes after creation.
type Notification struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Message      string           `json:"message"`
	RelativeTime string           `json:"relativeTime"`
	Read         bool             `json:"read"`
	Type         NotificationType `json:"type"`
	TicketID     string           `json:"ticketId,omitempty"`
	CreatedAt    string           `json:"createdAt,omitempty"`
}

// WireReference points a notification at the document it is about.
type WireReference struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

// WireNotification is the notification document as the backend sends it.
type WireNotification struct {
	ID        string          `json:"id"`
	MongoID   string          `json:"_id"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	Type      string          `json:"type"`
	Read      bool            `json:"read"`
	IsRead    bool            `json:"isRead"`
	Reference *WireReference  `json:"reference"`
	UserID    json.RawMessage `json:"userId"`
	CreatedAt string          `json:"createdAt"`
}

// Identifier returns whichever id field the backend populated.
func (n WireNotification) Identifier() string {
	if n.ID != "" {
		return n.ID
	}
	return n.MongoID
}

// ReferenceID returns the referenced document id, or "".
func (n WireNotification) ReferenceID() string {
	if n.Reference == nil {
		return ""
	}
	return n.Reference.ID
}

// NormalizeNotificationType maps backend type names onto the feed types.
func NormalizeNotificationType(raw string) NotificationType {
	switch strings.ToLower(raw) {
	case "chat_assignment", "ticket_assigned", "chat_assigned", "new_chat", "chat_created":
		return NotificationChatAssignment
	case "message", "customer_reply", "new_message":
		return NotificationMessage
	case "status_change", "status_changed", "ticket_updated":
		return NotificationStatusChange
	default:
		return NotificationSystem
	}
}

// NormalizeNotification turns a wire document into a feed entry. The relative
// time is computed here once and not refreshed later.
func NormalizeNotification(doc WireNotification, now time.Time) Notification {
	createdAt := doc.CreatedAt
	if createdAt == "" {
		createdAt = FormatTimestamp(now)
	}

	id := doc.Identifier()
	if id == "" {
		id = uuid.NewString()
	}

	return Notification{
		ID:           id,
		Title:        doc.Title,
		Message:      doc.Content,
		RelativeTime: FormatRelativeTimestamp(createdAt, now),
		Read:         doc.Read || doc.IsRead,
		Type:         NormalizeNotificationType(doc.Type),
		TicketID:     doc.ReferenceID(),
		CreatedAt:    createdAt,
	}
}

// ChatAssignment is the payload of a chatNotified event.
type ChatAssignment struct {
	Notification WireNotification `json:"notification"`
	Ticket       Ticket           `json:"ticket"`
}

// NewChatAssignmentNotification is the feed entry for a chat assigned to
// the agent. The ticket id falls back to the chat itself.
func NewChatAssignmentNotification(a ChatAssignment, now time.Time) Notification {
	n := NormalizeNotification(a.Notification, now)
	n.Type = NotificationChatAssignment
	if n.Title == "" {
		n.Title = "New Chat Assigned"
	}
	if n.Message == "" {
		n.Message = "A new chat has been assigned to you"
	}
	if n.TicketID == "" {
		n.TicketID = a.Ticket.ID
	}
	return n
}

// NewChatCreatedNotification is the feed entry for a freshly opened chat.
func NewChatCreatedNotification(t Ticket, now time.Time) Notification {
	message := t.Subject
	if message == "" {
		message = "A new chat has been created"
	}
	return Notification{
		ID:           uuid.NewString(),
		Title:        "New Chat Created",
		Message:      message,
		RelativeTime: JustNow,
		Type:         NotificationChatAssignment,
		TicketID:     t.ID,
		CreatedAt:    FormatTimestamp(now),
	}
}

// NewMessageNotification is the feed entry for a message from someone else.
// The id is derived from the message so a redelivery does not duplicate it.
func NewMessageNotification(m Message, now time.Time) Notification {
	n := Notification{
		ID:           "message:" + m.ID,
		Title:        "New Message",
		Message:      m.Content,
		RelativeTime: FormatRelativeTimestamp(m.Timestamp, now),
		Type:         NotificationMessage,
		TicketID:     m.TicketID,
		CreatedAt:    m.Timestamp,
	}
	if m.IsStatusChange() {
		n.Title = "Status Changed"
		n.Type = NotificationStatusChange
	}
	return n
}
