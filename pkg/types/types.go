package types

import (
	"time"
)

// User roles within a room.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Room holds the full shared state of one live classroom session.
// All of it is volatile: a process restart loses every room by design.
// Mutation goes through the room registry, which hands out copies only.
type Room struct {
	ID              string                `json:"id"`
	Teacher         Teacher               `json:"teacher"`
	Students        []Student             `json:"students"`
	PendingStudents []PendingStudent      `json:"pendingStudents"`
	Config          RoomConfig            `json:"config"`
	Code            string                `json:"code"`
	Questions       []Question            `json:"questions"`
	Submissions     map[string]Submission `json:"submissions"`
	CreatedAt       time.Time             `json:"createdAt"`
}

// Teacher is the single room owner. A later teacher join replaces the
// connection reference (last join wins).
type Teacher struct {
	ID     string `json:"id"`
	ConnID string `json:"connectionId,omitempty"`
}

// Student is a roster entry. Disconnecting marks it offline but keeps it in
// the roster; only a kick removes it.
type Student struct {
	ID                string    `json:"id"`
	ConnID            string    `json:"connectionId,omitempty"`
	Online            bool      `json:"online"`
	JoinedAt          time.Time `json:"joinedAt"`
	CurrentQuestionID string    `json:"currentQuestionId,omitempty"`
	LastCode          string    `json:"lastCode,omitempty"`
}

// PendingStudent waits for a teacher decision in approval-required rooms.
// Invariant: a user id is never in both Students and PendingStudents.
type PendingStudent struct {
	ID          string    `json:"id"`
	ConnID      string    `json:"connectionId,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// RoomConfig is fixed at creation. An empty Password means teachers join
// without a credential check.
type RoomConfig struct {
	Language         string   `json:"language"`
	AllowedLanguages []string `json:"allowedLanguages"`
	Password         string   `json:"password,omitempty"`
	RequireApproval  bool     `json:"requireApproval"`
}

// Question is immutable once created, except through the teacher-only bulk
// replace operation.
type Question struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	TestCode       string    `json:"testCode"`
	ExpectedOutput string    `json:"expectedOutput"`
	Stdin          string    `json:"stdin,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// QuestionDraft is the client-supplied part of a question; the server assigns
// the id and creation time.
type QuestionDraft struct {
	Title          string `json:"title" validate:"required,max=200"`
	Description    string `json:"description,omitempty"`
	TestCode       string `json:"testCode,omitempty"`
	ExpectedOutput string `json:"expectedOutput,omitempty"`
	Stdin          string `json:"stdin,omitempty"`
}

// Submission is keyed by (userID, questionID); a later submission for the
// same key silently overwrites the earlier one.
type Submission struct {
	UserID      string    `json:"userId"`
	QuestionID  string    `json:"questionId"`
	Answer      string    `json:"answer"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// SubmissionKey builds the last-write-wins map key for a submission.
func SubmissionKey(userID, questionID string) string {
	return userID + "-" + questionID
}
