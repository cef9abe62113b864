package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	apperrors "github.com/lorrc/agent-console/internal/core/errors"
)

const (
	// Time allowed to write a frame to the gateway.
	writeWait = 10 * time.Second

	// Maximum frame size accepted from the gateway.
	maxMessageSize = 1 << 20

	// Outbound frames buffered per link.
	sendBufferSize = 256
)

// link is one transport connection. A manager handle goes through several
// links when the transport reconnects.
type link struct {
	conn   Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newLink(conn Conn, logger *slog.Logger) *link {
	return &link{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// enqueue hands a frame to the write pump without blocking.
func (l *link) enqueue(frame []byte) error {
	select {
	case <-l.done:
		return apperrors.ErrConnectionClosed
	default:
	}

	select {
	case l.send <- frame:
		return nil
	case <-l.done:
		return apperrors.ErrConnectionClosed
	default:
		return apperrors.ErrSendBufferFull
	}
}

// shutdown stops the write pump, which closes the connection.
func (l *link) shutdown() {
	l.once.Do(func() {
		close(l.done)
	})
}

// readPump hands inbound frames to onFrame until the connection fails, then
// reports the failure once through onClose.
func (l *link) readPump(pongWait time.Duration, onFrame func([]byte), onClose func(error)) {
	var err error
	defer func() {
		l.shutdown()
		onClose(err)
	}()

	l.conn.SetReadLimit(maxMessageSize)
	if err = l.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		l.logger.Error("failed to set read deadline", "error", err)
		return
	}

	l.conn.SetPongHandler(func(string) error {
		if err := l.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			l.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		var message []byte
		_, message, err = l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		onFrame(message)
	}
}

// writePump drains the send buffer and keeps the connection alive with
// pings.
func (l *link) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = l.conn.Close()
	}()

	for {
		select {
		case frame := <-l.send:
			if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				l.logger.Error("failed to set write deadline", "error", err)
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				l.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				l.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.logger.Debug("failed to send ping", "error", err)
				return
			}

		case <-l.done:
			_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := l.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
				l.logger.Debug("failed to send close message", "error", err)
			}
			return
		}
	}
}
