package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderoom/pkg/types"
)

func TestCreateRoomAppliesDefaults(t *testing.T) {
	r := NewRegistry()

	rm := r.CreateRoom("teacher1", types.RoomConfig{})

	assert.NotEmpty(t, rm.ID)
	assert.Equal(t, "teacher1", rm.Teacher.ID)
	assert.Equal(t, DefaultLanguage, rm.Config.Language)
	assert.Equal(t, DefaultAllowedLanguages, rm.Config.AllowedLanguages)
	assert.Empty(t, rm.Students)
	assert.Empty(t, rm.PendingStudents)
	assert.NotNil(t, rm.Submissions)
	assert.False(t, rm.CreatedAt.IsZero())
}

func TestCreateRoomKeepsExplicitConfig(t *testing.T) {
	r := NewRegistry()

	rm := r.CreateRoom("teacher1", types.RoomConfig{
		Language:         "go",
		AllowedLanguages: []string{"go"},
		Password:         "secret",
		RequireApproval:  true,
	})

	assert.Equal(t, "go", rm.Config.Language)
	assert.Equal(t, []string{"go"}, rm.Config.AllowedLanguages)
	assert.Equal(t, "secret", rm.Config.Password)
	assert.True(t, rm.Config.RequireApproval)
}

func TestGetRoomNotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.GetRoom("missing")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestListRoomsInsertionOrder(t *testing.T) {
	r := NewRegistry()

	first := r.CreateRoom("t1", types.RoomConfig{})
	second := r.CreateRoom("t2", types.RoomConfig{})
	third := r.CreateRoom("t3", types.RoomConfig{})

	rooms := r.ListRooms()
	require.Len(t, rooms, 3)
	assert.Equal(t, first.ID, rooms[0].ID)
	assert.Equal(t, second.ID, rooms[1].ID)
	assert.Equal(t, third.ID, rooms[2].ID)
	assert.Equal(t, 3, r.Count())
}

func TestSetCodeLanguageGating(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{})

	updated, err := r.SetCode(rm.ID, "print(1)", "go")
	require.NoError(t, err)
	assert.Equal(t, "print(1)", updated.Code)
	assert.Equal(t, "go", updated.Config.Language)

	// A language outside the allowed set leaves the current language alone
	// but still takes the code.
	updated, err = r.SetCode(rm.ID, "malicious", "brainfuck")
	require.NoError(t, err)
	assert.Equal(t, "malicious", updated.Code)
	assert.Equal(t, "go", updated.Config.Language)
}

func TestAddQuestionAssignsIdentity(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{})

	updated, q, err := r.AddQuestion(rm.ID, types.QuestionDraft{Title: "Sum", ExpectedOutput: "3"})
	require.NoError(t, err)

	assert.NotEmpty(t, q.ID)
	assert.False(t, q.CreatedAt.IsZero())
	assert.Equal(t, "Sum", q.Title)
	require.Len(t, updated.Questions, 1)
	assert.Equal(t, q.ID, updated.Questions[0].ID)
}

func TestSetQuestionsFillsMissingIdentity(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{})

	updated, err := r.SetQuestions(rm.ID, []types.Question{
		{ID: "q-fixed", Title: "Kept"},
		{Title: "Fresh"},
	})
	require.NoError(t, err)

	require.Len(t, updated.Questions, 2)
	assert.Equal(t, "q-fixed", updated.Questions[0].ID)
	assert.NotEmpty(t, updated.Questions[1].ID)
	assert.False(t, updated.Questions[1].CreatedAt.IsZero())
}

func TestSubmitAnswerLastWriteWins(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{})

	_, err := r.SubmitAnswer(rm.ID, "alice", "q1", "first")
	require.NoError(t, err)
	sub, err := r.SubmitAnswer(rm.ID, "alice", "q1", "second")
	require.NoError(t, err)
	assert.Equal(t, "second", sub.Answer)

	updated, err := r.GetRoom(rm.ID)
	require.NoError(t, err)
	require.Len(t, updated.Submissions, 1)
	assert.Equal(t, "second", updated.Submissions[types.SubmissionKey("alice", "q1")].Answer)
}

func TestSubmissionsDistinctPerQuestion(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{})

	_, err := r.SubmitAnswer(rm.ID, "alice", "q1", "a")
	require.NoError(t, err)
	_, err = r.SubmitAnswer(rm.ID, "alice", "q2", "b")
	require.NoError(t, err)

	updated, err := r.GetRoom(rm.ID)
	require.NoError(t, err)
	assert.Len(t, updated.Submissions, 2)
}

func TestUpdateStudentProgress(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{})
	_, err := r.UpsertStudent(rm.ID, "alice", "c1")
	require.NoError(t, err)

	st, err := r.UpdateStudentProgress(rm.ID, "alice", "q1", "x = 1")
	require.NoError(t, err)
	assert.Equal(t, "q1", st.CurrentQuestionID)
	assert.Equal(t, "x = 1", st.LastCode)

	_, err = r.UpdateStudentProgress(rm.ID, "ghost", "q1", "y = 2")
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestUpsertStudentReconnectRefreshes(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{})

	updated, err := r.UpsertStudent(rm.ID, "alice", "c1")
	require.NoError(t, err)
	require.Len(t, updated.Students, 1)
	joinedAt := updated.Students[0].JoinedAt

	_, err = r.SetStudentOffline(rm.ID, "alice")
	require.NoError(t, err)

	updated, err = r.UpsertStudent(rm.ID, "alice", "c2")
	require.NoError(t, err)
	require.Len(t, updated.Students, 1)
	assert.Equal(t, "c2", updated.Students[0].ConnID)
	assert.True(t, updated.Students[0].Online)
	assert.Equal(t, joinedAt, updated.Students[0].JoinedAt)
}

func TestAddPendingIdempotent(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{RequireApproval: true})

	updated, err := r.AddPending(rm.ID, "alice", "c1")
	require.NoError(t, err)
	require.Len(t, updated.PendingStudents, 1)

	// Re-joining while pending refreshes the connection, no duplicate entry.
	updated, err = r.AddPending(rm.ID, "alice", "c2")
	require.NoError(t, err)
	require.Len(t, updated.PendingStudents, 1)
	assert.Equal(t, "c2", updated.PendingStudents[0].ConnID)
}

func TestAddPendingSkipsActiveStudent(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{RequireApproval: true})

	_, err := r.UpsertStudent(rm.ID, "alice", "c1")
	require.NoError(t, err)

	updated, err := r.AddPending(rm.ID, "alice", "c2")
	require.NoError(t, err)
	assert.Empty(t, updated.PendingStudents)
	assert.Len(t, updated.Students, 1)
}

func TestApproveStudentMovesAtomically(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{RequireApproval: true})
	_, err := r.AddPending(rm.ID, "alice", "c1")
	require.NoError(t, err)

	updated, pending, approved, err := r.ApproveStudent(rm.ID, "alice")
	require.NoError(t, err)
	require.True(t, approved)
	assert.Equal(t, "alice", pending.ID)
	assert.Empty(t, updated.PendingStudents)
	require.Len(t, updated.Students, 1)
	assert.Equal(t, "c1", updated.Students[0].ConnID)
	assert.True(t, updated.Students[0].Online)
}

func TestApproveStudentNotPendingIsNoOp(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{RequireApproval: true})
	_, err := r.UpsertStudent(rm.ID, "alice", "c1")
	require.NoError(t, err)

	updated, _, approved, err := r.ApproveStudent(rm.ID, "alice")
	require.NoError(t, err)
	assert.False(t, approved)
	assert.Len(t, updated.Students, 1)
}

func TestRejectStudentLeavesRosterAlone(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{RequireApproval: true})
	_, err := r.UpsertStudent(rm.ID, "bob", "c1")
	require.NoError(t, err)
	_, err = r.AddPending(rm.ID, "alice", "c2")
	require.NoError(t, err)

	pending, rejected, err := r.RejectStudent(rm.ID, "alice")
	require.NoError(t, err)
	require.True(t, rejected)
	assert.Equal(t, "alice", pending.ID)

	updated, err := r.GetRoom(rm.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.PendingStudents)
	assert.Len(t, updated.Students, 1)

	_, rejected, err = r.RejectStudent(rm.ID, "alice")
	require.NoError(t, err)
	assert.False(t, rejected)
}

func TestRemoveStudent(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{})
	_, err := r.UpsertStudent(rm.ID, "alice", "c1")
	require.NoError(t, err)

	st, removed, err := r.RemoveStudent(rm.ID, "alice")
	require.NoError(t, err)
	require.True(t, removed)
	assert.Equal(t, "alice", st.ID)

	updated, err := r.GetRoom(rm.ID)
	require.NoError(t, err)
	assert.Empty(t, updated.Students)

	_, removed, err = r.RemoveStudent(rm.ID, "alice")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSnapshotIsolation(t *testing.T) {
	r := NewRegistry()
	rm := r.CreateRoom("t1", types.RoomConfig{})
	_, err := r.UpsertStudent(rm.ID, "alice", "c1")
	require.NoError(t, err)

	snap, err := r.GetRoom(rm.ID)
	require.NoError(t, err)

	// Mutating the snapshot must not leak back into registry state.
	snap.Students[0].ID = "mallory"
	snap.Submissions["x"] = types.Submission{UserID: "mallory"}

	fresh, err := r.GetRoom(rm.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", fresh.Students[0].ID)
	assert.Empty(t, fresh.Submissions)
}
