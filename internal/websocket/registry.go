package websocket

import (
	"log"
	"sync"

	"coderoom/pkg/interfaces"
)

// Registry is the connection-binding table: connection → (room, user), plus
// the reverse index used for delivery. At most one live connection is bound
// to a given (room, user) pair; binding the pair again retires the previous
// connection.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]interfaces.Connection // connID -> connection
	bindings map[string]binding               // connID -> (roomID, userID)
	byUser   map[string]map[string]string     // roomID -> userID -> connID
}

type binding struct {
	roomID string
	userID string
}

func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]interfaces.Connection),
		bindings: make(map[string]binding),
		byUser:   make(map[string]map[string]string),
	}
}

// Bind associates conn with (roomID, userID), closing and dropping any older
// connection bound to the same pair. The close runs asynchronously so a
// reconnect is never blocked on tearing down its predecessor.
func (r *Registry) Bind(conn interfaces.Connection, roomID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if users, ok := r.byUser[roomID]; ok {
		if oldID, ok := users[userID]; ok && oldID != conn.ID() {
			if old, ok := r.conns[oldID]; ok {
				go func() {
					if err := old.Close(); err != nil {
						log.Printf("Failed to close replaced connection: %v", err)
					}
				}()
			}
			delete(r.conns, oldID)
			delete(r.bindings, oldID)
		}
	}

	r.conns[conn.ID()] = conn
	r.bindings[conn.ID()] = binding{roomID: roomID, userID: userID}
	if r.byUser[roomID] == nil {
		r.byUser[roomID] = make(map[string]string)
	}
	r.byUser[roomID][userID] = conn.ID()
}

// Unbind removes conn's binding and returns the pair it was bound to.
// Idempotent, and it only clears the pair's slot if this connection is still
// the one bound there, so a stale connection's cleanup never unbinds a newer
// reconnect.
func (r *Registry) Unbind(conn interfaces.Connection) (string, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[conn.ID()]
	if !ok {
		return "", "", false
	}

	delete(r.conns, conn.ID())
	delete(r.bindings, conn.ID())

	if users, ok := r.byUser[b.roomID]; ok {
		if users[b.userID] == conn.ID() {
			delete(users, b.userID)
			if len(users) == 0 {
				delete(r.byUser, b.roomID)
			}
		}
	}

	return b.roomID, b.userID, true
}

// BindingOf resolves a connection back to the (room, user) pair it is bound
// to, if any.
func (r *Registry) BindingOf(conn interfaces.Connection) (string, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bindings[conn.ID()]
	if !ok {
		return "", "", false
	}
	return b.roomID, b.userID, true
}

// Get returns the live connection bound to (roomID, userID).
func (r *Registry) Get(roomID, userID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users, ok := r.byUser[roomID]
	if !ok {
		return nil, false
	}
	connID, ok := users[userID]
	if !ok {
		return nil, false
	}
	conn, ok := r.conns[connID]
	return conn, ok
}

// Stats reports binding counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"bound_connections": len(r.bindings),
		"rooms_with_users":  len(r.byUser),
	}
}
