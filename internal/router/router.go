// Package router fans typed events out to an audience: the whole room, the
// teacher only, or a single user. Delivery is best effort; an unreachable
// target skips that one delivery and never fails the operation.
package router

import (
	"log"

	"github.com/samber/lo"

	"coderoom/pkg/interfaces"
	"coderoom/pkg/types"
)

// Router resolves audiences to live connections through the binding registry
// and writes event envelopes to them.
type Router struct {
	conns interfaces.ConnectionResolver
}

func New(conns interfaces.ConnectionResolver) *Router {
	return &Router{conns: conns}
}

// ToRoom delivers the event to every roster student plus the teacher,
// skipping any connection ids listed in exclude (used to avoid echoing an
// event back at its sender).
func (r *Router) ToRoom(rm *types.Room, eventType string, data any, exclude ...string) {
	out := types.NewOutbound(eventType, data)

	audience := lo.Map(rm.Students, func(s types.Student, _ int) string { return s.ID })
	if rm.Teacher.ID != "" {
		audience = append(audience, rm.Teacher.ID)
	}

	for _, userID := range audience {
		conn, ok := r.conns.Get(rm.ID, userID)
		if !ok || lo.Contains(exclude, conn.ID()) {
			continue
		}
		r.write(conn, out)
	}
}

// ToTeacher delivers the event to the room's teacher connection, if present.
func (r *Router) ToTeacher(rm *types.Room, eventType string, data any) {
	if rm.Teacher.ID == "" {
		return
	}
	conn, ok := r.conns.Get(rm.ID, rm.Teacher.ID)
	if !ok {
		return
	}
	r.write(conn, types.NewOutbound(eventType, data))
}

// ToUser delivers the event to one user's connection within a room. Returns
// whether a live connection was found.
func (r *Router) ToUser(roomID, userID, eventType string, data any) bool {
	conn, ok := r.conns.Get(roomID, userID)
	if !ok {
		return false
	}
	r.write(conn, types.NewOutbound(eventType, data))
	return true
}

// ToConn delivers the event to a specific connection, bound or not. Used for
// responses to the requester itself (errors, ban notices, snapshots).
func (r *Router) ToConn(conn interfaces.Connection, eventType string, data any) {
	r.write(conn, types.NewOutbound(eventType, data))
}

func (r *Router) write(conn interfaces.Connection, out *types.Outbound) {
	if err := conn.WriteJSON(out); err != nil {
		log.Printf("Failed to deliver %s to %s: %v", out.Type, conn.ID(), err)
	}
}
