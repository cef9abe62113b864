package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lorrc/agent-console/internal/core/domain"
	"github.com/lorrc/agent-console/internal/core/ports"
	"github.com/stretchr/testify/require"
)

var errFakeClosed = errors.New("fake connection closed")

// fakeConn is an in-memory transport. Frames pushed with serverSend are
// read by the manager; frames the manager writes are recorded.
type fakeConn struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []domain.Event
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case frame := <-c.inbound:
		return websocket.TextMessage, frame, nil
	case <-c.closed:
		return 0, nil, errFakeClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	if messageType != websocket.TextMessage {
		return nil
	}

	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	c.mu.Lock()
	c.written = append(c.written, ev)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// drop simulates the network going away.
func (c *fakeConn) drop() { _ = c.Close() }

func (c *fakeConn) serverSend(t *testing.T, eventType domain.EventType, payload any) {
	t.Helper()
	ev, err := domain.NewEvent(eventType, payload)
	require.NoError(t, err)
	frame, err := json.Marshal(ev)
	require.NoError(t, err)
	c.inbound <- frame
}

func (c *fakeConn) events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Event(nil), c.written...)
}

func (c *fakeConn) count(eventType domain.EventType) int {
	n := 0
	for _, ev := range c.events() {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

// fakeDialer hands out queued connections or errors in order. When the
// queue is empty it fails.
type fakeDialer struct {
	mu      sync.Mutex
	results []dialResult
	dials   int
	headers []http.Header
	urls    []string
	block   chan struct{}
}

type dialResult struct {
	conn *fakeConn
	err  error
}

func (d *fakeDialer) push(conn *fakeConn) *fakeConn {
	d.mu.Lock()
	d.results = append(d.results, dialResult{conn: conn})
	d.mu.Unlock()
	return conn
}

func (d *fakeDialer) fail(err error) {
	d.mu.Lock()
	d.results = append(d.results, dialResult{err: err})
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.headers = append(d.headers, header.Clone())
	d.urls = append(d.urls, url)
	block := d.block
	var next dialResult
	if len(d.results) > 0 {
		next = d.results[0]
		d.results = d.results[1:]
	} else {
		next = dialResult{err: errors.New("gateway unreachable")}
	}
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if next.err != nil {
		return nil, next.err
	}
	return next.conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// recordingNotifier collects toasts.
type recordingNotifier struct {
	mu     sync.Mutex
	toasts []ports.Toast
}

func (n *recordingNotifier) Notify(_ context.Context, toast ports.Toast) {
	n.mu.Lock()
	n.toasts = append(n.toasts, toast)
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []ports.Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ports.Toast(nil), n.toasts...)
}

func (n *recordingNotifier) hasMessage(message string) bool {
	for _, toast := range n.all() {
		if toast.Message == message {
			return true
		}
	}
	return false
}
