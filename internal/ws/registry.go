package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zradj/geets-backend/internal/models"
	"github.com/zradj/geets-backend/internal/observability"
)

// Sender is the registry's view of a live connection.
type Sender interface {
	Send(event any) error
	Close() error
}

// Registry tracks which users have open connections on this process,
// supporting multiple simultaneous connections per user. Cross-process
// visibility goes through the broker bridge, never through this registry.
type Registry struct {
	mu    sync.RWMutex
	users map[uuid.UUID]map[Sender]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[uuid.UUID]map[Sender]struct{})}
}

// Register adds a connection to the user's set.
func (r *Registry) Register(userID uuid.UUID, conn Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		r.users[userID] = make(map[Sender]struct{})
	}
	r.users[userID][conn] = struct{}{}
}

// Unregister removes a connection; the user entry is dropped when its set
// becomes empty. Safe to call more than once for the same connection.
func (r *Registry) Unregister(userID uuid.UUID, conn Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conns, ok := r.users[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(r.users, userID)
		}
	}
}

// Deliver pushes an event to every connection the user currently has. A
// failed connection is closed and unregistered without affecting the others;
// failures never propagate to the caller.
func (r *Registry) Deliver(userID uuid.UUID, event models.Event) {
	r.mu.RLock()
	conns := make([]Sender, 0, len(r.users[userID]))
	for conn := range r.users[userID] {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(event); err != nil {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("websocket write failed, dropping connection")
			observability.IncWSEvent("ws_write_error")
			_ = conn.Close()
			r.Unregister(userID, conn)
		}
	}
}

// Connections reports how many live connections the user has.
func (r *Registry) Connections(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}
