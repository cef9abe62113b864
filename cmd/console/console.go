package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/lorrc/agent-console/internal/core/domain"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
	"github.com/lorrc/agent-console/internal/core/ports"
	"github.com/lorrc/agent-console/internal/core/services"
)

const helpText = `commands:
  /tickets              list tickets
  /ticket ID            open a ticket ("/ticket" alone closes it)
  /retry                reload the open ticket
  /history              print the open ticket's transcript
  /set-status STATUS    change the open ticket's status
  /customer             show the open ticket's customer and orders
  /notifications        list notifications
  /read ID              mark one notification read
  /readall              mark every notification read
  /clear                clear the notification list
  /status               connection and unread summary
  /logout               sign out and quit
  /quit                 quit
anything else is sent to the open ticket`

// errQuit ends the command loop.
var errQuit = errors.New("quit")

// console turns command lines into service calls and prints live events.
type console struct {
	out io.Writer
	mu  sync.Mutex

	realtime  ports.Realtime
	auth      ports.AuthService
	tickets   ports.TicketService
	customers ports.CustomerLookupService
	chat      *services.ChatSync
	feed      *services.NotificationFeed
	logger    *slog.Logger

	unsubscribe []func()
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

// watch prints live messages for the open ticket and connection changes.
func (c *console) watch() {
	c.unsubscribe = append(c.unsubscribe,
		c.realtime.OnMessage(func(m domain.Message) {
			if m.TicketID != c.chat.Snapshot().TicketID || m.IsStatusChange() {
				return
			}
			c.printf("%s", formatMessage(m))
		}),
		c.realtime.OnStatusChange(func(s domain.StatusChange) {
			if s.Err != nil {
				c.printf("* %s (%v)", s.State, s.Err)
				return
			}
			c.printf("* %s", s.State)
		}),
	)
}

func (c *console) close() {
	for _, fn := range c.unsubscribe {
		fn()
	}
	c.unsubscribe = nil
}

// handle runs one input line. It returns errQuit when the loop should end.
func (c *console) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return c.send(ctx, line)
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/help":
		c.printf("%s", helpText)
	case "/quit", "/exit":
		return errQuit
	case "/logout":
		if err := c.auth.Logout(); err != nil {
			return err
		}
		c.printf("signed out")
		return errQuit
	case "/tickets":
		return c.listTickets(ctx)
	case "/ticket":
		return c.openTicket(ctx, arg)
	case "/retry":
		if err := c.chat.Retry(ctx); err != nil {
			return err
		}
		c.printHistory()
	case "/history":
		c.printHistory()
	case "/set-status":
		return c.setStatus(ctx, arg)
	case "/customer":
		return c.showCustomer(ctx)
	case "/notifications":
		c.printNotifications()
	case "/read":
		if arg == "" {
			return fmt.Errorf("usage: /read ID")
		}
		c.feed.MarkAsRead(arg)
	case "/readall":
		c.feed.MarkAllAsRead()
	case "/clear":
		c.feed.Clear()
	case "/status":
		c.printStatus()
	default:
		return fmt.Errorf("unknown command %s, try /help", command)
	}
	return nil
}

func (c *console) send(ctx context.Context, content string) error {
	if _, err := c.chat.SendMessage(ctx, content); err != nil {
		if errors.Is(err, apperrors.ErrNoTicketSelected) {
			return fmt.Errorf("open a ticket first with /ticket ID")
		}
		return err
	}
	return nil
}

func (c *console) listTickets(ctx context.Context) error {
	tickets, err := c.tickets.List(ctx)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		c.printf("no tickets")
		return nil
	}
	for _, t := range tickets {
		c.printf("%-26s %-9s %-7s unread:%d  %s", t.ID, t.Status, t.Priority, t.AgentUnread, t.Subject)
	}
	return nil
}

func (c *console) openTicket(ctx context.Context, ticketID string) error {
	err := c.chat.Select(ctx, ticketID)
	if ticketID == "" {
		c.printf("ticket closed")
		return err
	}
	c.printHistory()
	return err
}

func (c *console) setStatus(ctx context.Context, status string) error {
	ticketID := c.chat.Snapshot().TicketID
	if ticketID == "" {
		return apperrors.ErrNoTicketSelected
	}
	ticket, err := c.tickets.UpdateStatus(ctx, ticketID, status)
	if err != nil {
		return err
	}
	c.printf("ticket %s is now %s", ticket.ID, ticket.Status)
	return nil
}

func (c *console) showCustomer(ctx context.Context) error {
	if c.customers == nil {
		return fmt.Errorf("no e-commerce backend configured")
	}
	ticketID := c.chat.Snapshot().TicketID
	if ticketID == "" {
		return apperrors.ErrNoTicketSelected
	}
	ticket, err := c.tickets.Get(ctx, ticketID)
	if err != nil {
		return err
	}

	overview, err := c.customers.Overview(ctx, ticket.CustomerID)
	if err != nil {
		return err
	}
	if overview.Customer == nil {
		c.printf("customer %s: profile unavailable", ticket.CustomerID)
	} else {
		c.printf("customer %s <%s>", overview.Customer.Username, overview.Customer.Email)
	}
	if len(overview.Orders) == 0 {
		c.printf("  no orders")
	}
	for _, o := range overview.Orders {
		c.printf("  order %s  %s  %.2f", o.ID, o.OrderStatus, o.TotalPrice)
	}
	return nil
}

func (c *console) printHistory() {
	snap := c.chat.Snapshot()
	switch {
	case snap.TicketID == "":
		c.printf("no ticket open")
	case snap.State == services.ChatLoading:
		c.printf("loading %s...", snap.TicketID)
	case snap.Failed():
		c.printf("could not load %s: %v (try /retry)", snap.TicketID, snap.Err)
	case len(snap.Messages) == 0:
		c.printf("-- %s: no messages --", snap.TicketID)
	default:
		c.printf("-- %s --", snap.TicketID)
		for _, m := range snap.Messages {
			c.printf("%s", formatMessage(m))
		}
	}
}

func (c *console) printNotifications() {
	list := c.feed.Notifications()
	if len(list) == 0 {
		c.printf("no notifications")
		return
	}
	for _, n := range list {
		mark := " "
		if !n.Read {
			mark = "*"
		}
		c.printf("%s %s  %s: %s (%s)", mark, n.ID, n.Title, n.Message, n.RelativeTime)
	}
}

func (c *console) printStatus() {
	snap := c.chat.Snapshot()
	ticket := snap.TicketID
	if ticket == "" {
		ticket = "none"
	}
	c.printf("connection: %s  unread: %d  ticket: %s (%s, %d messages)",
		c.realtime.State(), c.feed.UnreadCount(), ticket, snap.State, len(snap.Messages))
}

func formatMessage(m domain.Message) string {
	who := string(m.SenderType)
	if m.IsOptimistic() {
		who += ", sending"
	}
	return fmt.Sprintf("[%s] %s: %s", domain.FormatRelativeTimestamp(m.Timestamp, timeNow()), who, m.Content)
}
