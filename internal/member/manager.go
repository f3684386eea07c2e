// Package member implements the join state machine that binds connections to
// (room, user, role): Unknown → Pending → Active → Offline → Active on
// reconnect, with Active/Pending → Banned handled by the ban table.
package member

import (
	"time"

	"github.com/samber/lo"

	"coderoom/internal/room"
	"coderoom/pkg/interfaces"
	"coderoom/pkg/types"
)

// ConnTable is the connection-binding table: connection → (room, user), with
// at most one live connection per pair. Implemented by the websocket
// registry.
type ConnTable interface {
	// Bind associates the connection with the pair, retiring any previous
	// connection bound to the same pair.
	Bind(conn interfaces.Connection, roomID, userID string)
	// Unbind removes the connection's binding, if it is still current.
	Unbind(conn interfaces.Connection) (roomID, userID string, ok bool)
}

// JoinResult is the outcome of a validated join. Exactly one of the three
// shapes applies: banned (BannedUntil set), pending (Pending true), or active
// membership (neither).
type JoinResult struct {
	Room        types.Room
	Pending     bool
	BannedUntil *time.Time
}

// Manager owns membership transitions. It consults the room registry and the
// ban table, and keeps the connection-binding table consistent with the
// roster.
type Manager struct {
	rooms *room.Registry
	bans  *room.Bans
	conns ConnTable
}

func NewManager(rooms *room.Registry, bans *room.Bans, conns ConnTable) *Manager {
	return &Manager{rooms: rooms, bans: bans, conns: conns}
}

// Join runs the membership state machine for one join event.
//
// Order matters: the password check happens before any state mutation, and a
// banned student gets the ban response without the binding table or roster
// being touched.
func (m *Manager) Join(conn interfaces.Connection, p *types.JoinPayload) (JoinResult, error) {
	rm, err := m.rooms.GetRoom(p.RoomID)
	if err != nil {
		return JoinResult{}, err
	}

	if p.Role == types.RoleTeacher && rm.Config.Password != "" && p.Password != rm.Config.Password {
		return JoinResult{}, ErrWrongPassword
	}

	// Single lookup: checking and reading the ban separately could race with
	// lazy expiry and hand back a zero end time.
	if p.Role == types.RoleStudent {
		if until, ok := m.bans.Until(p.RoomID, p.UserID); ok {
			return JoinResult{BannedUntil: &until}, nil
		}
	}

	// Rebinding the same pair retires any stale connection, so a reconnect
	// leaves exactly one live connection for (room, user).
	m.conns.Bind(conn, p.RoomID, p.UserID)

	if p.Role == types.RoleTeacher {
		rm, err = m.rooms.SetTeacher(p.RoomID, p.UserID, conn.ID())
		if err != nil {
			return JoinResult{}, err
		}
		return JoinResult{Room: rm}, nil
	}

	alreadyApproved := lo.SomeBy(rm.Students, func(s types.Student) bool { return s.ID == p.UserID })
	if rm.Config.RequireApproval && !alreadyApproved {
		rm, err = m.rooms.AddPending(p.RoomID, p.UserID, conn.ID())
		if err != nil {
			return JoinResult{}, err
		}
		return JoinResult{Room: rm, Pending: true}, nil
	}

	// A student already in the roster of an approval-required room was
	// approved before; reconnects skip the pending queue.
	rm, err = m.rooms.UpsertStudent(p.RoomID, p.UserID, conn.ID())
	if err != nil {
		return JoinResult{}, err
	}
	return JoinResult{Room: rm}, nil
}

// Disconnect resolves a dropped connection back to its (room, user) binding,
// removes the binding and marks the student offline. The student stays in the
// roster; disconnect is not removal.
func (m *Manager) Disconnect(conn interfaces.Connection) (roomID, userID string, rm types.Room, ok bool) {
	roomID, userID, ok = m.conns.Unbind(conn)
	if !ok {
		return "", "", types.Room{}, false
	}

	rm, err := m.rooms.SetStudentOffline(roomID, userID)
	if err != nil {
		// Room already gone; the binding cleanup above is all that's left.
		return "", "", types.Room{}, false
	}
	return roomID, userID, rm, true
}

// Kick removes the student from the roster and records a ban, so a re-join
// within the penalty window is refused at the door. Returns ok=false when the
// user is not currently a student in the room.
func (m *Manager) Kick(roomID, userID string, d time.Duration) (types.Student, time.Time, bool, error) {
	st, removed, err := m.rooms.RemoveStudent(roomID, userID)
	if err != nil {
		return types.Student{}, time.Time{}, false, err
	}
	if !removed {
		return types.Student{}, time.Time{}, false, nil
	}

	until := m.bans.Ban(roomID, userID, d)
	return st, until, true, nil
}
