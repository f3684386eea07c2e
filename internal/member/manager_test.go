package member

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderoom/internal/room"
	"coderoom/pkg/interfaces"
	"coderoom/pkg/types"
)

type fakeConn struct {
	id string
}

func (c *fakeConn) ID() string            { return c.id }
func (c *fakeConn) WriteJSON(v any) error { return nil }
func (c *fakeConn) Close() error          { return nil }

// fakeConnTable records bindings keyed by connection id.
type fakeConnTable struct {
	bindings map[string][2]string // connID -> (roomID, userID)
}

func newFakeConnTable() *fakeConnTable {
	return &fakeConnTable{bindings: make(map[string][2]string)}
}

func (t *fakeConnTable) Bind(conn interfaces.Connection, roomID, userID string) {
	t.bindings[conn.ID()] = [2]string{roomID, userID}
}

func (t *fakeConnTable) Unbind(conn interfaces.Connection) (string, string, bool) {
	b, ok := t.bindings[conn.ID()]
	if !ok {
		return "", "", false
	}
	delete(t.bindings, conn.ID())
	return b[0], b[1], true
}

func newTestManager(t *testing.T) (*Manager, *room.Registry, *room.Bans, *fakeConnTable) {
	t.Helper()
	rooms := room.NewRegistry()
	bans := room.NewBans()
	conns := newFakeConnTable()
	return NewManager(rooms, bans, conns), rooms, bans, conns
}

func TestJoinRoomNotFound(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	_, err := m.Join(&fakeConn{id: "c1"}, &types.JoinPayload{
		RoomID: "missing", UserID: "alice", Role: types.RoleStudent,
	})
	require.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestJoinTeacherWrongPassword(t *testing.T) {
	m, rooms, _, conns := newTestManager(t)
	rm := rooms.CreateRoom("t1", types.RoomConfig{Password: "secret"})

	_, err := m.Join(&fakeConn{id: "c1"}, &types.JoinPayload{
		RoomID: rm.ID, UserID: "t1", Role: types.RoleTeacher, Password: "wrong",
	})
	require.ErrorIs(t, err, ErrWrongPassword)

	// The failed join must not have bound the connection.
	assert.Empty(t, conns.bindings)
}

func TestJoinTeacherBindsSeat(t *testing.T) {
	m, _, _, conns := newTestManager(t)
	rm := m.rooms.CreateRoom("t1", types.RoomConfig{Password: "secret"})

	res, err := m.Join(&fakeConn{id: "c1"}, &types.JoinPayload{
		RoomID: rm.ID, UserID: "t1", Role: types.RoleTeacher, Password: "secret",
	})
	require.NoError(t, err)

	assert.False(t, res.Pending)
	assert.Nil(t, res.BannedUntil)
	assert.Equal(t, "c1", res.Room.Teacher.ConnID)
	assert.Contains(t, conns.bindings, "c1")
}

func TestJoinStudentOpenRoom(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	rm := m.rooms.CreateRoom("t1", types.RoomConfig{})

	res, err := m.Join(&fakeConn{id: "c1"}, &types.JoinPayload{
		RoomID: rm.ID, UserID: "alice", Role: types.RoleStudent,
	})
	require.NoError(t, err)

	assert.False(t, res.Pending)
	require.Len(t, res.Room.Students, 1)
	assert.True(t, res.Room.Students[0].Online)
}

func TestJoinStudentRequiresApproval(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	rm := m.rooms.CreateRoom("t1", types.RoomConfig{RequireApproval: true})

	res, err := m.Join(&fakeConn{id: "c1"}, &types.JoinPayload{
		RoomID: rm.ID, UserID: "alice", Role: types.RoleStudent,
	})
	require.NoError(t, err)

	assert.True(t, res.Pending)
	assert.Empty(t, res.Room.Students)
	require.Len(t, res.Room.PendingStudents, 1)
	assert.Equal(t, "alice", res.Room.PendingStudents[0].ID)
}

func TestJoinApprovedStudentSkipsPendingOnReconnect(t *testing.T) {
	m, rooms, _, _ := newTestManager(t)
	rm := rooms.CreateRoom("t1", types.RoomConfig{RequireApproval: true})

	_, err := m.Join(&fakeConn{id: "c1"}, &types.JoinPayload{
		RoomID: rm.ID, UserID: "alice", Role: types.RoleStudent,
	})
	require.NoError(t, err)
	_, _, approved, err := rooms.ApproveStudent(rm.ID, "alice")
	require.NoError(t, err)
	require.True(t, approved)

	res, err := m.Join(&fakeConn{id: "c2"}, &types.JoinPayload{
		RoomID: rm.ID, UserID: "alice", Role: types.RoleStudent,
	})
	require.NoError(t, err)

	assert.False(t, res.Pending)
	assert.Empty(t, res.Room.PendingStudents)
	require.Len(t, res.Room.Students, 1)
	assert.Equal(t, "c2", res.Room.Students[0].ConnID)
}

func TestJoinBannedStudentRefusedWithoutMutation(t *testing.T) {
	m, rooms, bans, conns := newTestManager(t)
	rm := rooms.CreateRoom("t1", types.RoomConfig{})
	until := bans.Ban(rm.ID, "alice", time.Hour)

	res, err := m.Join(&fakeConn{id: "c1"}, &types.JoinPayload{
		RoomID: rm.ID, UserID: "alice", Role: types.RoleStudent,
	})
	require.NoError(t, err)

	require.NotNil(t, res.BannedUntil)
	assert.Equal(t, until, *res.BannedUntil)
	assert.Empty(t, conns.bindings)

	fresh, err := rooms.GetRoom(rm.ID)
	require.NoError(t, err)
	assert.Empty(t, fresh.Students)
	assert.Empty(t, fresh.PendingStudents)
}

func TestJoinExpiredBanAdmitsStudent(t *testing.T) {
	m, rooms, bans, _ := newTestManager(t)
	rm := rooms.CreateRoom("t1", types.RoomConfig{})
	bans.Ban(rm.ID, "alice", -time.Minute)

	res, err := m.Join(&fakeConn{id: "c1"}, &types.JoinPayload{
		RoomID: rm.ID, UserID: "alice", Role: types.RoleStudent,
	})
	require.NoError(t, err)

	// An elapsed ban must admit the student, never a notice with a zero
	// end time.
	assert.Nil(t, res.BannedUntil)
	require.Len(t, res.Room.Students, 1)
	assert.True(t, res.Room.Students[0].Online)
}

func TestDisconnectMarksOfflineKeepsRoster(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	rm := m.rooms.CreateRoom("t1", types.RoomConfig{})

	conn := &fakeConn{id: "c1"}
	_, err := m.Join(conn, &types.JoinPayload{RoomID: rm.ID, UserID: "alice", Role: types.RoleStudent})
	require.NoError(t, err)

	roomID, userID, updated, ok := m.Disconnect(conn)
	require.True(t, ok)
	assert.Equal(t, rm.ID, roomID)
	assert.Equal(t, "alice", userID)
	require.Len(t, updated.Students, 1)
	assert.False(t, updated.Students[0].Online)
}

func TestDisconnectUnboundConnIsNoOp(t *testing.T) {
	m, _, _, _ := newTestManager(t)

	_, _, _, ok := m.Disconnect(&fakeConn{id: "stray"})
	assert.False(t, ok)
}

func TestKickRemovesAndBans(t *testing.T) {
	m, rooms, bans, _ := newTestManager(t)
	rm := rooms.CreateRoom("t1", types.RoomConfig{})
	_, err := m.Join(&fakeConn{id: "c1"}, &types.JoinPayload{RoomID: rm.ID, UserID: "alice", Role: types.RoleStudent})
	require.NoError(t, err)

	st, until, kicked, err := m.Kick(rm.ID, "alice", time.Hour)
	require.NoError(t, err)
	require.True(t, kicked)
	assert.Equal(t, "alice", st.ID)
	assert.True(t, until.After(time.Now()))
	assert.True(t, bans.IsBanned(rm.ID, "alice"))

	fresh, err := rooms.GetRoom(rm.ID)
	require.NoError(t, err)
	assert.Empty(t, fresh.Students)
}

func TestKickUnknownStudent(t *testing.T) {
	m, rooms, bans, _ := newTestManager(t)
	rm := rooms.CreateRoom("t1", types.RoomConfig{})

	_, _, kicked, err := m.Kick(rm.ID, "ghost", time.Hour)
	require.NoError(t, err)
	assert.False(t, kicked)
	assert.False(t, bans.IsBanned(rm.ID, "ghost"))
}
