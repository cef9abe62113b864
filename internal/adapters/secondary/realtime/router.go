package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/ports"
	"github.com/lorrc/agent-console/internal/core/subscription"
)

// Router decodes inbound frames, normalizes their payloads and fans them out
// to the subscribers of each category.
type Router struct {
	messages      *subscription.Registry[domain.Message]
	delivered     *subscription.Registry[domain.Message]
	notifications *subscription.Registry[domain.Notification]
	assignments   *subscription.Registry[domain.ChatAssignment]
	created       *subscription.Registry[domain.Ticket]

	currentUser func() string
	notifier    ports.Notifier
	now         func() time.Time
	logger      *slog.Logger
}

// NewRouter creates a router. currentUser returns the signed-in user id and
// is used to skip notifications for the agent's own messages.
func NewRouter(currentUser func() string, notifier ports.Notifier, logger *slog.Logger) *Router {
	if currentUser == nil {
		currentUser = func() string { return "" }
	}
	return &Router{
		messages:      subscription.NewRegistry[domain.Message]("message", logger),
		delivered:     subscription.NewRegistry[domain.Message]("delivered", logger),
		notifications: subscription.NewRegistry[domain.Notification]("notification", logger),
		assignments:   subscription.NewRegistry[domain.ChatAssignment]("chat-assignment", logger),
		created:       subscription.NewRegistry[domain.Ticket]("chat-created", logger),
		currentUser:   currentUser,
		notifier:      notifier,
		now:           time.Now,
		logger:        logger.With("component", "event_router"),
	}
}

// Dispatch handles one raw frame.
func (r *Router) Dispatch(frame []byte) error {
	var ev domain.Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		r.logger.Warn("failed to unmarshal frame", "error", err)
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedEvent, err)
	}
	return r.Route(ev)
}

// Route handles one decoded event.
func (r *Router) Route(ev domain.Event) error {
	var err error
	switch ev.Type {
	case domain.EventMessageReceived:
		err = r.onMessageReceived(ev)
	case domain.EventMessageDelivered:
		err = r.onMessageDelivered(ev)
	case domain.EventNotification:
		err = r.onNotification(ev)
	case domain.EventChatNotified:
		err = r.onChatNotified(ev)
	case domain.EventChatCreated:
		err = r.onChatCreated(ev)
	case domain.EventError:
		err = r.onError(ev)
	default:
		r.logger.Debug("received unknown event type", "type", ev.Type)
		return fmt.Errorf("%w: %s", apperrors.ErrUnknownEvent, ev.Type)
	}

	if err != nil {
		r.logger.Warn("dropping event", "type", ev.Type, "error", err)
	}
	return err
}

func (r *Router) onMessageReceived(ev domain.Event) error {
	msg, err := r.decodeMessage(ev)
	if err != nil {
		return err
	}

	r.messages.Publish(msg)

	if msg.SenderID != r.currentUser() {
		r.notifications.Publish(domain.NewMessageNotification(msg, r.now()))
	}
	return nil
}

func (r *Router) onMessageDelivered(ev domain.Event) error {
	msg, err := r.decodeMessage(ev)
	if err != nil {
		return err
	}
	r.delivered.Publish(msg)
	return nil
}

// decodeMessage accepts the {message: {...}} envelope and a bare message.
func (r *Router) decodeMessage(ev domain.Event) (domain.Message, error) {
	args, err := ev.Args()
	if err != nil {
		return domain.Message{}, err
	}
	if len(args) == 0 {
		return domain.Message{}, fmt.Errorf("%w: %s: empty payload", apperrors.ErrMalformedEvent, ev.Type)
	}

	var envelope domain.MessageEnvelope
	if err := json.Unmarshal(args[0], &envelope); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %s: %v", apperrors.ErrMalformedEvent, ev.Type, err)
	}

	wire := envelope.Message
	if wire.ID == "" && wire.MongoID == "" {
		if err := json.Unmarshal(args[0], &wire); err != nil {
			return domain.Message{}, fmt.Errorf("%w: %s: %v", apperrors.ErrMalformedEvent, ev.Type, err)
		}
	}
	return domain.NormalizeMessage(wire, r.now()), nil
}

func (r *Router) onNotification(ev domain.Event) error {
	var doc domain.WireNotification
	if err := ev.Decode(0, &doc); err != nil {
		return err
	}

	n := domain.NormalizeNotification(doc, r.now())
	r.notifications.Publish(n)
	r.toast(n)
	return nil
}

func (r *Router) onChatNotified(ev domain.Event) error {
	var doc domain.WireNotification
	if err := ev.Decode(0, &doc); err != nil {
		return err
	}

	// the chat document is optional
	var chat domain.WireChat
	if args, _ := ev.Args(); len(args) > 1 {
		if err := json.Unmarshal(args[1], &chat); err != nil {
			r.logger.Debug("ignoring unreadable chat in chatNotified", "error", err)
		}
	}

	assignment := domain.ChatAssignment{
		Notification: doc,
		Ticket:       domain.NormalizeTicket(chat),
	}
	r.assignments.Publish(assignment)

	n := domain.NewChatAssignmentNotification(assignment, r.now())
	r.notifications.Publish(n)
	r.toast(n)
	return nil
}

func (r *Router) onChatCreated(ev domain.Event) error {
	var chat domain.WireChat
	if err := ev.Decode(0, &chat); err != nil {
		return err
	}

	ticket := domain.NormalizeTicket(chat)
	r.created.Publish(ticket)
	r.notifications.Publish(domain.NewChatCreatedNotification(ticket, r.now()))
	return nil
}

func (r *Router) onError(ev domain.Event) error {
	message := errorMessage(ev)

	// sent for late joins during room churn
	if strings.Contains(strings.ToLower(message), apperrors.ErrJoinChatUnavailable.Error()) {
		r.logger.Debug("suppressed gateway error", "message", message)
		return nil
	}

	r.logger.Warn("gateway error", "message", message)
	if r.notifier != nil {
		r.notifier.Notify(context.Background(), ports.Toast{
			Level:   ports.ToastError,
			Title:   "Chat server error",
			Message: message,
		})
	}
	return nil
}

// errorMessage reads an error payload sent as {message} or as a string.
func errorMessage(ev domain.Event) string {
	var payload domain.ErrorPayload
	if err := ev.Decode(0, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	var text string
	if err := ev.Decode(0, &text); err == nil && text != "" {
		return text
	}
	return "unknown error"
}

func (r *Router) toast(n domain.Notification) {
	if r.notifier == nil {
		return
	}
	r.notifier.Notify(context.Background(), ports.Toast{
		Level:    ports.ToastInfo,
		Title:    n.Title,
		Message:  n.Message,
		TicketID: n.TicketID,
	})
}
