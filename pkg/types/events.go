package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Inbound event types, sent by clients over the socket.
const (
	EventJoin               = "join"
	EventCodeChange         = "code-change"
	EventSubmitAnswer       = "submit-answer"
	EventStudentProgress    = "student-progress-update"
	EventStudentTerminal    = "student-terminal-output"
	EventTeacherHighlight   = "teacher-highlight"
	EventApproveStudent     = "approve-student"
	EventRejectStudent      = "reject-student"
	EventCreateQuestion     = "create-question"
	EventRequestStudentCode = "request-student-code"
	EventKickStudent        = "kick-student"
	EventRunCode            = "run-code"
)

// Outbound event types, emitted by the coordinator.
const (
	EventRoomState           = "room-state"
	EventPendingApproval     = "pending-approval"
	EventPendingRosterUpdate = "pending-roster-update"
	EventApprovalStatus      = "approval-status"
	EventRosterUpdate        = "roster-update"
	EventUserJoined          = "user-joined"
	EventUserLeft            = "user-left"
	EventCodeUpdate          = "code-update"
	EventSubmissionAck       = "submission-ack"
	EventProgressDetail      = "progress-detail"
	EventLiveCodeSnapshot    = "live-code-snapshot"
	EventTerminalUpdate      = "terminal-update"
	EventHighlightReceived   = "highlight-received"
	EventNewQuestion         = "new-question"
	EventCodeRunning         = "code-running"
	EventBanned              = "banned"
	EventKicked              = "kicked"
	EventAuthError           = "auth-error"
	EventNotFound            = "not-found"
)

// Envelope is the wire frame for every inbound socket message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Outbound is the wire frame for every event the server emits.
type Outbound struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOutbound stamps an outbound event with the emission time.
func NewOutbound(eventType string, data any) *Outbound {
	return &Outbound{Type: eventType, Data: data, Timestamp: time.Now()}
}

// Inbound payloads. Each event type carries a fixed field set; unknown fields
// are rejected at decode time and required fields are enforced by validation.

type JoinPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	UserID   string `json:"userId" validate:"required,max=50"`
	Role     string `json:"role" validate:"required,oneof=teacher student"`
	Password string `json:"password,omitempty"`
}

type CodeChangePayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

type SubmitAnswerPayload struct {
	RoomID     string `json:"roomId" validate:"required"`
	UserID     string `json:"userId" validate:"required"`
	QuestionID string `json:"questionId" validate:"required"`
	Answer     string `json:"answer"`
}

type StudentProgressPayload struct {
	RoomID     string `json:"roomId" validate:"required"`
	UserID     string `json:"userId" validate:"required"`
	Code       string `json:"code"`
	QuestionID string `json:"questionId,omitempty"`
}

type StudentTerminalPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

type TeacherHighlightPayload struct {
	RoomID    string          `json:"roomId" validate:"required"`
	StudentID string          `json:"studentId" validate:"required"`
	Selection json.RawMessage `json:"selection" validate:"required"`
}

// StudentRefPayload addresses one student within a room. Used by the
// approve-student, reject-student, request-student-code and kick-student
// events, which carry no further fields.
type StudentRefPayload struct {
	RoomID    string `json:"roomId" validate:"required"`
	StudentID string `json:"studentId" validate:"required"`
}

type CreateQuestionPayload struct {
	RoomID   string        `json:"roomId" validate:"required"`
	Question QuestionDraft `json:"question" validate:"required"`
}

type RunCodePayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
	Stdin    string `json:"stdin,omitempty"`
}

// Outbound payloads.

type PendingApprovalPayload struct {
	Message string `json:"message"`
}

type PendingRosterEntryPayload struct {
	UserID      string    `json:"userId"`
	ConnID      string    `json:"connectionId,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

type ApprovalStatusPayload struct {
	Approved bool   `json:"approved"`
	Message  string `json:"message,omitempty"`
}

type RosterUpdatePayload struct {
	Students []Student `json:"students"`
}

type UserJoinedPayload struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type UserLeftPayload struct {
	UserID string `json:"userId"`
}

type CodeUpdatePayload struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

type SubmissionAckPayload struct {
	UserID     string    `json:"userId"`
	QuestionID string    `json:"questionId"`
	Timestamp  time.Time `json:"timestamp"`
}

type ProgressDetailPayload struct {
	UserID     string    `json:"userId"`
	QuestionID string    `json:"questionId"`
	Answer     string    `json:"answer"`
	Timestamp  time.Time `json:"timestamp"`
}

type LiveCodeSnapshotPayload struct {
	UserID     string `json:"userId"`
	Code       string `json:"code"`
	QuestionID string `json:"questionId,omitempty"`
}

type TerminalUpdatePayload struct {
	UserID string `json:"userId"`
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

type HighlightReceivedPayload struct {
	Selection json.RawMessage `json:"selection"`
}

type CodeRunningPayload struct {
	UserID string `json:"userId"`
}

// BanNoticePayload serves both the banned (at join) and kicked events.
type BanNoticePayload struct {
	Message     string    `json:"message"`
	BannedUntil time.Time `json:"bannedUntil"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// DecodeEventPayload decodes and validates the payload variant for an inbound
// envelope. The decode is strict: an unknown event type, an unknown field, or
// a missing required field all fail.
func DecodeEventPayload(env *Envelope) (any, error) {
	var payload any

	switch env.Type {
	case EventJoin:
		payload = &JoinPayload{}
	case EventCodeChange:
		payload = &CodeChangePayload{}
	case EventSubmitAnswer:
		payload = &SubmitAnswerPayload{}
	case EventStudentProgress:
		payload = &StudentProgressPayload{}
	case EventStudentTerminal:
		payload = &StudentTerminalPayload{}
	case EventTeacherHighlight:
		payload = &TeacherHighlightPayload{}
	case EventApproveStudent, EventRejectStudent, EventRequestStudentCode, EventKickStudent:
		payload = &StudentRefPayload{}
	case EventCreateQuestion:
		payload = &CreateQuestionPayload{}
	case EventRunCode:
		payload = &RunCodePayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}

	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Type, err)
	}
	if err := Validate(payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
	}

	return payload, nil
}
