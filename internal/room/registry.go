package room

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"coderoom/pkg/types"
)

// Config defaults applied at room creation.
var (
	DefaultLanguage         = "python"
	DefaultAllowedLanguages = []string{"python", "go", "sql"}
)

// Registry owns the room table and is the single owner of room-state
// mutation ordering. Every operation runs under the target room's lock and
// returns snapshot copies, never live state; no caller can mutate a room
// except through these methods.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*entry
	order []string // room ids in insertion order, for listing
}

type entry struct {
	mu   sync.Mutex
	room *types.Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*entry)}
}

// CreateRoom allocates a fresh room with config defaults applied. It always
// succeeds.
func (r *Registry) CreateRoom(ownerID string, cfg types.RoomConfig) types.Room {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if len(cfg.AllowedLanguages) == 0 {
		cfg.AllowedLanguages = slices.Clone(DefaultAllowedLanguages)
	}

	rm := &types.Room{
		ID:              uuid.New().String(),
		Teacher:         types.Teacher{ID: ownerID},
		Students:        []types.Student{},
		PendingStudents: []types.PendingStudent{},
		Config:          cfg,
		Questions:       []types.Question{},
		Submissions:     make(map[string]types.Submission),
		CreatedAt:       time.Now(),
	}

	r.mu.Lock()
	r.rooms[rm.ID] = &entry{room: rm}
	r.order = append(r.order, rm.ID)
	r.mu.Unlock()

	return snapshot(rm)
}

// GetRoom returns a snapshot of the room, or ErrRoomNotFound.
func (r *Registry) GetRoom(roomID string) (types.Room, error) {
	e, err := r.lookup(roomID)
	if err != nil {
		return types.Room{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.room), nil
}

// ListRooms returns snapshots of all rooms in insertion order.
func (r *Registry) ListRooms() []types.Room {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.rooms[id])
	}
	r.mu.RUnlock()

	rooms := make([]types.Room, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		rooms = append(rooms, snapshot(e.room))
		e.mu.Unlock()
	}
	return rooms
}

// Count reports the number of rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// SetCode updates the shared code buffer. The room language only switches
// when the requested language is in the allowed set; otherwise the code still
// updates and the language stays put.
func (r *Registry) SetCode(roomID, code, language string) (types.Room, error) {
	return r.update(roomID, func(rm *types.Room) {
		rm.Code = code
		if language != "" && slices.Contains(rm.Config.AllowedLanguages, language) {
			rm.Config.Language = language
		}
	})
}

// AddQuestion appends a question built from the draft, assigning its id and
// creation time server-side.
func (r *Registry) AddQuestion(roomID string, draft types.QuestionDraft) (types.Room, types.Question, error) {
	q := types.Question{
		ID:             uuid.New().String(),
		Title:          draft.Title,
		Description:    draft.Description,
		TestCode:       draft.TestCode,
		ExpectedOutput: draft.ExpectedOutput,
		Stdin:          draft.Stdin,
		CreatedAt:      time.Now(),
	}

	rm, err := r.update(roomID, func(rm *types.Room) {
		rm.Questions = append(rm.Questions, q)
	})
	if err != nil {
		return types.Room{}, types.Question{}, err
	}
	return rm, q, nil
}

// SetQuestions replaces the whole exercise list (teacher-only bulk set).
// Questions arriving without an id or creation time get them filled in.
func (r *Registry) SetQuestions(roomID string, questions []types.Question) (types.Room, error) {
	now := time.Now()
	qs := lo.Map(questions, func(q types.Question, _ int) types.Question {
		if q.ID == "" {
			q.ID = uuid.New().String()
		}
		if q.CreatedAt.IsZero() {
			q.CreatedAt = now
		}
		return q
	})

	return r.update(roomID, func(rm *types.Room) {
		rm.Questions = qs
	})
}

// SubmitAnswer upserts the submission for (userID, questionID). Last write
// wins; no history is kept.
func (r *Registry) SubmitAnswer(roomID, userID, questionID, answer string) (types.Submission, error) {
	sub := types.Submission{
		UserID:      userID,
		QuestionID:  questionID,
		Answer:      answer,
		SubmittedAt: time.Now(),
	}

	_, err := r.update(roomID, func(rm *types.Room) {
		rm.Submissions[types.SubmissionKey(userID, questionID)] = sub
	})
	if err != nil {
		return types.Submission{}, err
	}
	return sub, nil
}

// UpdateStudentProgress records what a student is currently working on.
func (r *Registry) UpdateStudentProgress(roomID, userID, questionID, code string) (types.Student, error) {
	var st types.Student
	found := false

	_, err := r.update(roomID, func(rm *types.Room) {
		for i := range rm.Students {
			if rm.Students[i].ID == userID {
				rm.Students[i].CurrentQuestionID = questionID
				rm.Students[i].LastCode = code
				st = rm.Students[i]
				found = true
				return
			}
		}
	})
	if err != nil {
		return types.Student{}, err
	}
	if !found {
		return types.Student{}, ErrStudentNotFound
	}
	return st, nil
}

// SetTeacher binds the room's teacher seat to (userID, connID). A later
// teacher join wins.
func (r *Registry) SetTeacher(roomID, userID, connID string) (types.Room, error) {
	return r.update(roomID, func(rm *types.Room) {
		rm.Teacher = types.Teacher{ID: userID, ConnID: connID}
	})
}

// UpsertStudent inserts the student into the roster, or refreshes the
// connection reference and online flag if the student already exists.
func (r *Registry) UpsertStudent(roomID, userID, connID string) (types.Room, error) {
	return r.update(roomID, func(rm *types.Room) {
		upsertStudent(rm, userID, connID)
	})
}

// SetStudentOffline marks the student offline without removing it from the
// roster. A no-op if the user is not a student in the room.
func (r *Registry) SetStudentOffline(roomID, userID string) (types.Room, error) {
	return r.update(roomID, func(rm *types.Room) {
		for i := range rm.Students {
			if rm.Students[i].ID == userID {
				rm.Students[i].Online = false
				return
			}
		}
	})
}

// AddPending enqueues a student for teacher approval. Re-joining while still
// pending only refreshes the connection reference; a user already in the
// roster is never enqueued, preserving roster/pending disjointness.
func (r *Registry) AddPending(roomID, userID, connID string) (types.Room, error) {
	return r.update(roomID, func(rm *types.Room) {
		if lo.SomeBy(rm.Students, func(s types.Student) bool { return s.ID == userID }) {
			return
		}
		for i := range rm.PendingStudents {
			if rm.PendingStudents[i].ID == userID {
				rm.PendingStudents[i].ConnID = connID
				return
			}
		}
		rm.PendingStudents = append(rm.PendingStudents, types.PendingStudent{
			ID:          userID,
			ConnID:      connID,
			RequestedAt: time.Now(),
		})
	})
}

// ApproveStudent atomically moves a pending student into the roster. Both
// list edits happen under the room lock, so no caller can observe the user in
// neither or both lists. Returns approved=false when no pending entry exists;
// approving an already-active student is that same no-op and never duplicates
// the roster entry.
func (r *Registry) ApproveStudent(roomID, userID string) (types.Room, types.PendingStudent, bool, error) {
	var pending types.PendingStudent
	approved := false

	rm, err := r.update(roomID, func(rm *types.Room) {
		p, idx, ok := lo.FindIndexOf(rm.PendingStudents, func(p types.PendingStudent) bool {
			return p.ID == userID
		})
		if !ok {
			return
		}
		rm.PendingStudents = slices.Delete(rm.PendingStudents, idx, idx+1)
		upsertStudent(rm, userID, p.ConnID)
		pending = p
		approved = true
	})
	if err != nil {
		return types.Room{}, types.PendingStudent{}, false, err
	}
	return rm, pending, approved, nil
}

// RejectStudent removes the user from the pending queue. The roster is
// untouched. Returns the removed entry so the caller can notify it.
func (r *Registry) RejectStudent(roomID, userID string) (types.PendingStudent, bool, error) {
	var pending types.PendingStudent
	rejected := false

	_, err := r.update(roomID, func(rm *types.Room) {
		p, idx, ok := lo.FindIndexOf(rm.PendingStudents, func(p types.PendingStudent) bool {
			return p.ID == userID
		})
		if !ok {
			return
		}
		rm.PendingStudents = slices.Delete(rm.PendingStudents, idx, idx+1)
		pending = p
		rejected = true
	})
	if err != nil {
		return types.PendingStudent{}, false, err
	}
	return pending, rejected, nil
}

// RemoveStudent deletes the student from the roster entirely (kick path).
func (r *Registry) RemoveStudent(roomID, userID string) (types.Student, bool, error) {
	var st types.Student
	removed := false

	_, err := r.update(roomID, func(rm *types.Room) {
		s, idx, ok := lo.FindIndexOf(rm.Students, func(s types.Student) bool { return s.ID == userID })
		if !ok {
			return
		}
		rm.Students = slices.Delete(rm.Students, idx, idx+1)
		st = s
		removed = true
	})
	if err != nil {
		return types.Student{}, false, err
	}
	return st, removed, nil
}

func (r *Registry) lookup(roomID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return e, nil
}

// update applies fn under the room's lock and returns the resulting snapshot.
func (r *Registry) update(roomID string, fn func(rm *types.Room)) (types.Room, error) {
	e, err := r.lookup(roomID)
	if err != nil {
		return types.Room{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.room)
	return snapshot(e.room), nil
}

func upsertStudent(rm *types.Room, userID, connID string) {
	for i := range rm.Students {
		if rm.Students[i].ID == userID {
			rm.Students[i].ConnID = connID
			rm.Students[i].Online = true
			return
		}
	}
	rm.Students = append(rm.Students, types.Student{
		ID:       userID,
		ConnID:   connID,
		Online:   true,
		JoinedAt: time.Now(),
	})
}

// snapshot deep-copies the mutable collections so callers can hold the result
// outside the room lock.
func snapshot(rm *types.Room) types.Room {
	cp := *rm
	cp.Students = slices.Clone(rm.Students)
	cp.PendingStudents = slices.Clone(rm.PendingStudents)
	cp.Questions = slices.Clone(rm.Questions)
	cp.Submissions = maps.Clone(rm.Submissions)
	cp.Config.AllowedLanguages = slices.Clone(rm.Config.AllowedLanguages)
	return cp
}
