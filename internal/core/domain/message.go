package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SenderType identifies who wrote a message.
type SenderType string

const (
	SenderAgent    SenderType = "agent"
	SenderCustomer SenderType = "customer"
	SenderSystem   SenderType = "system"
)

// MessageType separates transcript entries from status markers.
type MessageType string

const (
	MessageChat         MessageType = "chat"
	MessageStatusChange MessageType = "status_change"
)

// OptimisticIDPrefix marks ids generated locally before the server confirms.
const OptimisticIDPrefix = "temp-"

// Message is one transcript entry of a ticket.
type Message struct {
	ID          string      `json:"id"`
	TicketID    string      `json:"ticketId"`
	Content     string      `json:"content"`
	Timestamp   string      `json:"timestamp"`
	SenderID    string      `json:"senderId"`
	ReceiverID  string      `json:"receiverId,omitempty"`
	SenderType  SenderType  `json:"senderType"`
	MessageType MessageType `json:"messageType,omitempty"`
}

// IsOptimistic reports whether the message was created locally and has not
// been matched with the server copy yet.
func (m Message) IsOptimistic() bool {
	return strings.HasPrefix(m.ID, OptimisticIDPrefix)
}

// IsStatusChange reports whether the message only marks a status transition.
func (m Message) IsStatusChange() bool {
	return m.MessageType == MessageStatusChange
}

// NewOptimisticMessage builds the local echo of an agent's send.
func NewOptimisticMessage(ticketID, senderID, content string, now time.Time) Message {
	return Message{
		ID:          OptimisticIDPrefix + uuid.NewString(),
		TicketID:    ticketID,
		Content:     content,
		Timestamp:   FormatTimestamp(now),
		SenderID:    senderID,
		SenderType:  SenderAgent,
		MessageType: MessageChat,
	}
}

// WireMessage is the message document as the backend sends it.
type WireMessage struct {
	ID          string          `json:"id"`
	MongoID     string          `json:"_id"`
	ChatID      json.RawMessage `json:"chatId"`
	SenderID    json.RawMessage `json:"senderId"`
	ReceiverID  json.RawMessage `json:"receiverId"`
	Content     string          `json:"content"`
	Status      string          `json:"status"`
	SenderRole  string          `json:"senderRole"`
	MessageType string          `json:"messageType"`
	Type        string          `json:"type"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
}

// MessageEnvelope wraps the message in messageReceived/messageDelivered events.
type MessageEnvelope struct {
	Message WireMessage `json:"message"`
}

// NormalizeMessage turns a wire message into the view model. A missing
// timestamp is stamped with now.
func NormalizeMessage(w WireMessage, now time.Time) Message {
	id := w.ID
	if id == "" {
		id = w.MongoID
	}

	timestamp := w.CreatedAt
	if timestamp == "" {
		timestamp = FormatTimestamp(now)
	}

	return Message{
		ID:          id,
		TicketID:    ResolveReference(w.ChatID),
		Content:     w.Content,
		Timestamp:   timestamp,
		SenderID:    ResolveParticipant(w.SenderID),
		ReceiverID:  ResolveParticipant(w.ReceiverID),
		SenderType:  normalizeSenderType(w.SenderRole),
		MessageType: normalizeMessageType(w.MessageType, w.Type),
	}
}

// NormalizeMessages converts a history page, preserving order.
func NormalizeMessages(wire []WireMessage, now time.Time) []Message {
	messages := make([]Message, 0, len(wire))
	for _, w := range wire {
		messages = append(messages, NormalizeMessage(w, now))
	}
	return messages
}

func normalizeSenderType(role string) SenderType {
	switch SenderType(strings.ToLower(role)) {
	case SenderAgent:
		return SenderAgent
	case SenderCustomer, "user":
		return SenderCustomer
	default:
		return SenderSystem
	}
}

func normalizeMessageType(candidates ...string) MessageType {
	for _, c := range candidates {
		switch MessageType(strings.ToLower(c)) {
		case MessageStatusChange, "status_changed":
			return MessageStatusChange
		case MessageChat, "text":
			return MessageChat
		}
	}
	return ""
}
