package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "github.com/lorrc/agent-console/internal/core/errors"
)

// EventType is the name of a realtime gateway event.
type EventType string

// Inbound events.
const (
	EventError            EventType = "error"
	EventMessageReceived  EventType = "messageReceived"
	EventMessageDelivered EventType = "messageDelivered"
	EventNotification     EventType = "notification"
	EventChatNotified     EventType = "chatNotified"
	EventChatCreated      EventType = "chatCreated"
)

// Outbound events.
const (
	EventJoinNotification     EventType = "joinNotification"
	EventJoinRoom             EventType = "joinRoom"
	EventJoinChat             EventType = "joinChat"
	EventLeaveChat            EventType = "leaveChat"
	EventSendMessage          EventType = "sendMessage"
	EventMarkNotificationRead EventType = "markNotificationRead"
	EventMarkAllRead          EventType = "markAllNotificationsRead"
)

// Event is one frame on the realtime connection. Events with more than one
// argument carry a JSON array of the positional arguments.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent encodes payload into a frame. A nil payload sends no payload.
func NewEvent(eventType EventType, payload any) (Event, error) {
	if payload == nil {
		return Event{Type: eventType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: raw}, nil
}

// Args splits the payload into positional arguments. A payload that is not
// an array is a single argument.
func (e Event) Args() ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(e.Payload)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return []json.RawMessage{trimmed}, nil
	}

	var args []json.RawMessage
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrMalformedEvent, e.Type, err)
	}
	return args, nil
}

// Decode unmarshals the argument at index into v.
func (e Event) Decode(index int, v any) error {
	args, err := e.Args()
	if err != nil {
		return err
	}
	if index >= len(args) {
		return fmt.Errorf("%w: %s: missing argument %d", apperrors.ErrMalformedEvent, e.Type, index)
	}
	if err := json.Unmarshal(args[index], v); err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrMalformedEvent, e.Type, err)
	}
	return nil
}

// JoinChatPayload asks the gateway to deliver a chat's messages.
type JoinChatPayload struct {
	ChatID   string `json:"chatId"`
	UserType Role   `json:"userType"`
}

// LeaveChatPayload stops delivery of a chat's messages.
type LeaveChatPayload struct {
	ChatID string `json:"chatId"`
}

// SendMessagePayload posts a message to a chat.
type SendMessagePayload struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

// MarkReadPayload acknowledges one notification.
type MarkReadPayload struct {
	NotificationID string `json:"notificationId"`
}

// ErrorPayload is the body of an inbound error event.
type ErrorPayload struct {
	Message string `json:"message"`
}
