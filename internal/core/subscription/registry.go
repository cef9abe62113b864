// Package subscription keeps ordered callback lists for realtime event
// categories.
package subscription

import (
	"log/slog"
	"sync"

	"github.com/lorrc/agent-console/internal/infrastructure/logging"
)

// Handler receives one published value.
type Handler[T any] func(T)

type entry[T any] struct {
	id      uint64
	handler Handler[T]
}

// Registry is an ordered set of handlers for one event category.
// It is safe for concurrent use.
type Registry[T any] struct {
	name    string
	logger  *slog.Logger
	mu      sync.RWMutex
	nextID  uint64
	entries []entry[T]
}

// NewRegistry creates an empty registry. name is used in log lines.
func NewRegistry[T any](name string, logger *slog.Logger) *Registry[T] {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry[T]{
		name:   name,
		logger: logger.With("component", "subscription", "category", name),
	}
}

// Subscribe appends fn and returns a function that removes exactly this
// registration. Calling the returned function more than once is harmless.
func (r *Registry[T]) Subscribe(fn Handler[T]) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, entry[T]{id: id, handler: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *Registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.id == id {
			// copy so a Publish holding the old snapshot is not affected
			next := make([]entry[T], 0, len(r.entries)-1)
			next = append(next, r.entries[:i]...)
			next = append(next, r.entries[i+1:]...)
			r.entries = next
			return
		}
	}
}

// Publish calls every handler in subscription order. A panicking handler is
// logged and skipped. Handlers added or removed during Publish take effect
// from the next call.
func (r *Registry[T]) Publish(v T) {
	r.mu.RLock()
	snapshot := r.entries
	r.mu.RUnlock()

	for _, e := range snapshot {
		r.invoke(e.handler, v)
	}
}

func (r *Registry[T]) invoke(fn Handler[T], v T) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.LogPanic(r.logger, rec)
		}
	}()
	fn(v)
}

// Len returns the number of live registrations.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Name returns the category name.
func (r *Registry[T]) Name() string {
	return r.name
}
