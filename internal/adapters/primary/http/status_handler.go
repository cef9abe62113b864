package http

import (
	"net/http"

	"github.com/lorrc/agent-console/internal/core/domain"
	"github.com/lorrc/agent-console/internal/core/ports"
	"github.com/lorrc/agent-console/internal/core/services"
)

// UnreadCounter is the part of the notification feed the status page reads
type UnreadCounter interface {
	UnreadCount() int
}

// ChatSnapshotter is the part of ChatSync the status page reads
type ChatSnapshotter interface {
	Snapshot() services.ChatSnapshot
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Connection     domain.ConnectionState `json:"connection"`
	UserID         string                 `json:"userId,omitempty"`
	Role           domain.Role            `json:"role,omitempty"`
	UnreadCount    int                    `json:"unreadCount"`
	SelectedTicket string                 `json:"selectedTicket,omitempty"`
	ChatState      services.ChatState     `json:"chatState"`
	ChatError      string                 `json:"chatError,omitempty"`
	MessageCount   int                    `json:"messageCount"`
	PendingCount   int                    `json:"pendingCount"`
}

// StatusHandler serves a summary of the console's live state
type StatusHandler struct {
	conn     ConnectionChecker
	sessions ports.SessionStore
	feed     UnreadCounter
	chat     ChatSnapshotter
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(conn ConnectionChecker, sessions ports.SessionStore, feed UnreadCounter, chat ChatSnapshotter) *StatusHandler {
	return &StatusHandler{
		conn:     conn,
		sessions: sessions,
		feed:     feed,
		chat:     chat,
	}
}

// HandleStatus handles GET /status
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Connection:  h.conn.State(),
		UnreadCount: h.feed.UnreadCount(),
	}

	if session := h.sessions.Current(); session != nil {
		resp.UserID = session.UserID
		resp.Role = session.Role
	}

	snap := h.chat.Snapshot()
	resp.SelectedTicket = snap.TicketID
	resp.ChatState = snap.State
	resp.MessageCount = len(snap.Messages)
	if snap.Err != nil {
		resp.ChatError = snap.Err.Error()
	}
	for _, m := range snap.Messages {
		if m.IsOptimistic() {
			resp.PendingCount++
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}
