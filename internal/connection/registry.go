package connection

import (
	"sync"

	"github.com/victornm/quizroom/internal/domain"
	"github.com/victornm/quizroom/internal/errors"
)

// Registry maps live connections to the room and user they act for. Identity is never
// resolved by user ID alone: role and room are scoped to the connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]domain.ConnectionInfo
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]domain.ConnectionInfo),
	}
}

// Bind associates a connection with a room and user. Binding again to the same room
// replaces the user fields, binding to another room is rejected.
func (r *Registry) Bind(info domain.ConnectionInfo) error {
	if info.ConnectionID == "" || info.RoomCode == "" {
		return errors.InvalidArgument("connection and room are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[info.ConnectionID]; ok && prev.RoomCode != info.RoomCode {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("connection %s is already bound to room %s", info.ConnectionID, prev.RoomCode))
	}

	r.conns[info.ConnectionID] = info
	return nil
}

func (r *Registry) Lookup(connectionID string) (domain.ConnectionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.conns[connectionID]
	return info, ok
}

// Unbind removes the binding and returns it.
func (r *Registry) Unbind(connectionID string) (domain.ConnectionInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.conns[connectionID]
	if ok {
		delete(r.conns, connectionID)
	}
	return info, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
