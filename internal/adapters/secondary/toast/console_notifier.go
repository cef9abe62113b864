package toast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/lorrc/agent-console/internal/core/ports"
)

// ConsoleNotifier is a secondary adapter that shows toasts as lines on the
// console transcript. It implements the ports.Notifier interface.
type ConsoleNotifier struct {
	out    io.Writer
	mu     sync.Mutex
	logger *slog.Logger
}

// NewConsoleNotifier creates a notifier that writes to out.
func NewConsoleNotifier(out io.Writer) ports.Notifier {
	return NewConsoleNotifierWithLogger(out, slog.Default())
}

// NewConsoleNotifierWithLogger creates a notifier with a custom logger.
func NewConsoleNotifierWithLogger(out io.Writer, logger *slog.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{
		out:    out,
		logger: logger.With("component", "toast_notifier"),
	}
}

// Notify prints the toast and records it in the log. It never blocks on
// anything but the writer.
func (n *ConsoleNotifier) Notify(ctx context.Context, toast ports.Toast) {
	n.logger.DebugContext(ctx, "toast shown",
		"level", toast.Level,
		"title", toast.Title,
		"ticket_id", toast.TicketID,
	)

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := fmt.Fprintln(n.out, Format(toast)); err != nil {
		n.logger.Error("failed to write toast", "error", err)
	}
}

// Format renders a toast as a single line.
func Format(toast ports.Toast) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(strings.ToUpper(string(toast.Level)))
	b.WriteString("] ")
	if toast.Title != "" {
		b.WriteString(toast.Title)
		if toast.Message != "" {
			b.WriteString(": ")
		}
	}
	b.WriteString(toast.Message)
	if toast.TicketID != "" {
		b.WriteString(" (ticket ")
		b.WriteString(toast.TicketID)
		b.WriteString(")")
	}
	return b.String()
}
