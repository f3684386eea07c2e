// Package hub is the session coordinator: every inbound realtime event lands
// on one channel and is applied by a single goroutine, so per-room mutations
// happen strictly in receipt order with no coalescing. No event failure is
// fatal to the loop; faults stay isolated to the offending event.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/samber/lo"

	"coderoom/internal/member"
	"coderoom/internal/room"
	"coderoom/internal/router"
	"coderoom/pkg/interfaces"
	"coderoom/pkg/types"
)

// Bindings resolves a connection back to the (room, user) pair it is bound
// to. Implemented by the websocket registry.
type Bindings interface {
	BindingOf(conn interfaces.Connection) (roomID, userID string, ok bool)
}

// Event pairs an inbound envelope with the connection it arrived on.
type Event struct {
	Conn     interfaces.Connection
	Envelope *types.Envelope
	Received time.Time
}

// Options tunes hub behavior.
type Options struct {
	EventBuffer int
	BanDuration time.Duration
}

// Hub validates inbound events against the membership state machine, mutates
// room state through the owning registries, and drives outbound broadcasts.
type Hub struct {
	events      chan *Event
	disconnects chan interfaces.Connection
	shutdownCh  chan struct{}

	rooms    *room.Registry
	members  *member.Manager
	router   *router.Router
	bindings Bindings
	limiter  *RateLimiter

	banDuration time.Duration

	running bool
	mu      sync.RWMutex
}

func New(rooms *room.Registry, members *member.Manager, rtr *router.Router, bindings Bindings, opts Options) *Hub {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 1000
	}
	if opts.BanDuration <= 0 {
		opts.BanDuration = room.DefaultBanDuration
	}

	return &Hub{
		events:      make(chan *Event, opts.EventBuffer),
		disconnects: make(chan interfaces.Connection, 256),
		shutdownCh:  make(chan struct{}),
		rooms:       rooms,
		members:     members,
		router:      rtr,
		bindings:    bindings,
		limiter:     NewRateLimiter(),
		banDuration: opts.BanDuration,
	}
}

// Start launches the coordination loop.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting session coordinator...")
	go h.run(ctx)
	return nil
}

// Stop shuts the loop down. Queued events are abandoned; all room state is
// volatile anyway.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping session coordinator...")
	select {
	case <-h.shutdownCh:
	default:
		close(h.shutdownCh)
	}
	return nil
}

// Dispatch queues an inbound event. Non-blocking: a full channel rejects the
// event rather than stalling the caller's read pump.
func (h *Hub) Dispatch(conn interfaces.Connection, env *types.Envelope) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.events <- &Event{Conn: conn, Envelope: env, Received: time.Now()}:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// DispatchDisconnect queues a connection-loss notification.
func (h *Hub) DispatchDisconnect(conn interfaces.Connection) {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return
	}
	h.mu.RUnlock()

	select {
	case h.disconnects <- conn:
	default:
		log.Printf("Disconnect channel full, dropping notification for %s", conn.ID())
	}
}

func (h *Hub) run(ctx context.Context) {
	defer log.Println("Session coordinator stopped")

	cleanup := time.NewTicker(rateLimitStaleAge)
	defer cleanup.Stop()

	for {
		select {
		case ev := <-h.events:
			h.process(ev)
		case conn := <-h.disconnects:
			h.handleDisconnect(conn)
		case <-cleanup.C:
			h.limiter.Cleanup()
		case <-h.shutdownCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// process applies one inbound event. Validation failures are logged and
// dropped; state errors are answered to the sender where the protocol calls
// for it.
func (h *Hub) process(ev *Event) {
	if !h.limiter.Allow(ev.Conn.ID()) {
		log.Printf("Rate limit exceeded for %s, dropping %q", ev.Conn.ID(), ev.Envelope.Type)
		return
	}

	payload, err := types.DecodeEventPayload(ev.Envelope)
	if err != nil {
		log.Printf("Rejected event from %s: %v", ev.Conn.ID(), err)
		return
	}

	switch ev.Envelope.Type {
	case types.EventJoin:
		h.handleJoin(ev.Conn, payload.(*types.JoinPayload))
	case types.EventCodeChange:
		h.handleCodeChange(ev.Conn, payload.(*types.CodeChangePayload))
	case types.EventSubmitAnswer:
		h.handleSubmitAnswer(ev.Conn, payload.(*types.SubmitAnswerPayload))
	case types.EventStudentProgress:
		h.handleStudentProgress(ev.Conn, payload.(*types.StudentProgressPayload))
	case types.EventStudentTerminal:
		h.handleStudentTerminal(ev.Conn, payload.(*types.StudentTerminalPayload))
	case types.EventTeacherHighlight:
		h.handleTeacherHighlight(ev.Conn, payload.(*types.TeacherHighlightPayload))
	case types.EventApproveStudent:
		h.handleApproveStudent(ev.Conn, payload.(*types.StudentRefPayload))
	case types.EventRejectStudent:
		h.handleRejectStudent(ev.Conn, payload.(*types.StudentRefPayload))
	case types.EventCreateQuestion:
		h.handleCreateQuestion(ev.Conn, payload.(*types.CreateQuestionPayload))
	case types.EventRequestStudentCode:
		h.handleRequestStudentCode(ev.Conn, payload.(*types.StudentRefPayload))
	case types.EventKickStudent:
		h.handleKickStudent(ev.Conn, payload.(*types.StudentRefPayload))
	case types.EventRunCode:
		h.handleRunCode(ev.Conn, payload.(*types.RunCodePayload))
	}
}

func (h *Hub) handleJoin(conn interfaces.Connection, p *types.JoinPayload) {
	res, err := h.members.Join(conn, p)
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		h.router.ToConn(conn, types.EventNotFound, types.ErrorPayload{Message: "Room not found"})
		return
	case errors.Is(err, member.ErrWrongPassword):
		h.router.ToConn(conn, types.EventAuthError, types.ErrorPayload{Message: "Wrong room password"})
		return
	case err != nil:
		log.Printf("Join failed for %s in %s: %v", p.UserID, p.RoomID, err)
		return
	}

	if res.BannedUntil != nil {
		// Only the requester learns about the ban; nothing is revealed to
		// the rest of the room.
		minutes := int(math.Ceil(time.Until(*res.BannedUntil).Minutes()))
		h.router.ToConn(conn, types.EventBanned, types.BanNoticePayload{
			Message:     fmt.Sprintf("You were kicked from this room. You can rejoin in %d minutes.", minutes),
			BannedUntil: *res.BannedUntil,
		})
		return
	}

	if res.Pending {
		h.router.ToConn(conn, types.EventPendingApproval, types.PendingApprovalPayload{
			Message: "Waiting for teacher approval...",
		})
		if entry, ok := lo.Find(res.Room.PendingStudents, func(ps types.PendingStudent) bool {
			return ps.ID == p.UserID
		}); ok {
			h.router.ToTeacher(&res.Room, types.EventPendingRosterUpdate, types.PendingRosterEntryPayload{
				UserID:      entry.ID,
				ConnID:      entry.ConnID,
				RequestedAt: entry.RequestedAt,
			})
		}
		return
	}

	h.router.ToConn(conn, types.EventRoomState, res.Room)

	if p.Role == types.RoleStudent {
		h.router.ToRoom(&res.Room, types.EventUserJoined, types.UserJoinedPayload{UserID: p.UserID, Role: p.Role})
		h.router.ToRoom(&res.Room, types.EventRosterUpdate, types.RosterUpdatePayload{Students: res.Room.Students})
		return
	}

	// A teacher joining late gets the pending queue replayed.
	for _, entry := range res.Room.PendingStudents {
		h.router.ToConn(conn, types.EventPendingRosterUpdate, types.PendingRosterEntryPayload{
			UserID:      entry.ID,
			ConnID:      entry.ConnID,
			RequestedAt: entry.RequestedAt,
		})
	}
}

func (h *Hub) handleCodeChange(conn interfaces.Connection, p *types.CodeChangePayload) {
	rm, err := h.rooms.SetCode(p.RoomID, p.Code, p.Language)
	if err != nil {
		h.router.ToConn(conn, types.EventNotFound, types.ErrorPayload{Message: "Room not found"})
		return
	}

	h.router.ToRoom(&rm, types.EventCodeUpdate, types.CodeUpdatePayload{
		Code:     p.Code,
		Language: p.Language,
	}, conn.ID())
}

func (h *Hub) handleSubmitAnswer(conn interfaces.Connection, p *types.SubmitAnswerPayload) {
	sub, err := h.rooms.SubmitAnswer(p.RoomID, p.UserID, p.QuestionID, p.Answer)
	if err != nil {
		h.router.ToConn(conn, types.EventNotFound, types.ErrorPayload{Message: "Room not found"})
		return
	}

	rm, err := h.rooms.GetRoom(p.RoomID)
	if err != nil {
		return
	}

	h.router.ToRoom(&rm, types.EventSubmissionAck, types.SubmissionAckPayload{
		UserID:     p.UserID,
		QuestionID: p.QuestionID,
		Timestamp:  sub.SubmittedAt,
	})
	h.router.ToTeacher(&rm, types.EventProgressDetail, types.ProgressDetailPayload{
		UserID:     p.UserID,
		QuestionID: p.QuestionID,
		Answer:     p.Answer,
		Timestamp:  sub.SubmittedAt,
	})
}

func (h *Hub) handleStudentProgress(conn interfaces.Connection, p *types.StudentProgressPayload) {
	rm, err := h.rooms.GetRoom(p.RoomID)
	if err != nil {
		h.router.ToConn(conn, types.EventNotFound, types.ErrorPayload{Message: "Room not found"})
		return
	}

	// The sender may not be in the roster yet (e.g. still pending); the
	// teacher still gets the live view either way.
	if _, err := h.rooms.UpdateStudentProgress(p.RoomID, p.UserID, p.QuestionID, p.Code); err != nil &&
		!errors.Is(err, room.ErrStudentNotFound) {
		return
	}

	h.router.ToTeacher(&rm, types.EventLiveCodeSnapshot, types.LiveCodeSnapshotPayload{
		UserID:     p.UserID,
		Code:       p.Code,
		QuestionID: p.QuestionID,
	})
}

func (h *Hub) handleStudentTerminal(conn interfaces.Connection, p *types.StudentTerminalPayload) {
	rm, err := h.rooms.GetRoom(p.RoomID)
	if err != nil {
		return
	}

	h.router.ToTeacher(&rm, types.EventTerminalUpdate, types.TerminalUpdatePayload{
		UserID: p.UserID,
		Output: p.Output,
		Error:  p.Error,
	})
}

func (h *Hub) handleTeacherHighlight(conn interfaces.Connection, p *types.TeacherHighlightPayload) {
	rm, err := h.rooms.GetRoom(p.RoomID)
	if err != nil {
		h.router.ToConn(conn, types.EventNotFound, types.ErrorPayload{Message: "Room not found"})
		return
	}

	st, ok := lo.Find(rm.Students, func(s types.Student) bool { return s.ID == p.StudentID })
	if !ok || !st.Online {
		return
	}

	h.router.ToUser(p.RoomID, p.StudentID, types.EventHighlightReceived, types.HighlightReceivedPayload{
		Selection: p.Selection,
	})
}

func (h *Hub) handleApproveStudent(conn interfaces.Connection, p *types.StudentRefPayload) {
	rm, _, approved, err := h.rooms.ApproveStudent(p.RoomID, p.StudentID)
	if err != nil {
		h.router.ToConn(conn, types.EventNotFound, types.ErrorPayload{Message: "Room not found"})
		return
	}
	if !approved {
		return
	}

	h.router.ToUser(p.RoomID, p.StudentID, types.EventApprovalStatus, types.ApprovalStatusPayload{Approved: true})
	h.router.ToUser(p.RoomID, p.StudentID, types.EventRoomState, rm)
	h.router.ToRoom(&rm, types.EventRosterUpdate, types.RosterUpdatePayload{Students: rm.Students})
	h.router.ToRoom(&rm, types.EventUserJoined, types.UserJoinedPayload{UserID: p.StudentID, Role: types.RoleStudent})
}

func (h *Hub) handleRejectStudent(conn interfaces.Connection, p *types.StudentRefPayload) {
	_, rejected, err := h.rooms.RejectStudent(p.RoomID, p.StudentID)
	if err != nil {
		h.router.ToConn(conn, types.EventNotFound, types.ErrorPayload{Message: "Room not found"})
		return
	}
	if !rejected {
		return
	}

	h.router.ToUser(p.RoomID, p.StudentID, types.EventApprovalStatus, types.ApprovalStatusPayload{
		Approved: false,
		Message:  "Rejected by the teacher",
	})
}

func (h *Hub) handleCreateQuestion(conn interfaces.Connection, p *types.CreateQuestionPayload) {
	rm, q, err := h.rooms.AddQuestion(p.RoomID, p.Question)
	if err != nil {
		h.router.ToConn(conn, types.EventNotFound, types.ErrorPayload{Message: "Room not found"})
		return
	}

	h.router.ToRoom(&rm, types.EventNewQuestion, q)
	h.router.ToRoom(&rm, types.EventRoomState, rm)
}

func (h *Hub) handleRequestStudentCode(conn interfaces.Connection, p *types.StudentRefPayload) {
	rm, err := h.rooms.GetRoom(p.RoomID)
	if err != nil {
		h.router.ToConn(conn, types.EventNotFound, types.ErrorPayload{Message: "Room not found"})
		return
	}

	st, ok := lo.Find(rm.Students, func(s types.Student) bool { return s.ID == p.StudentID })
	if !ok || st.LastCode == "" {
		return
	}

	h.router.ToConn(conn, types.EventLiveCodeSnapshot, types.LiveCodeSnapshotPayload{
		UserID:     p.StudentID,
		Code:       st.LastCode,
		QuestionID: st.CurrentQuestionID,
	})
}

func (h *Hub) handleKickStudent(conn interfaces.Connection, p *types.StudentRefPayload) {
	_, until, kicked, err := h.members.Kick(p.RoomID, p.StudentID, h.banDuration)
	if err != nil {
		h.router.ToConn(conn, types.EventNotFound, types.ErrorPayload{Message: "Room not found"})
		return
	}
	if !kicked {
		return
	}

	// Ban notice first, while the kicked student's binding is still live.
	h.router.ToUser(p.RoomID, p.StudentID, types.EventKicked, types.BanNoticePayload{
		Message:     fmt.Sprintf("You were kicked by the teacher. You can rejoin in %d minutes.", int(h.banDuration.Minutes())),
		BannedUntil: until,
	})

	rm, err := h.rooms.GetRoom(p.RoomID)
	if err != nil {
		return
	}
	h.router.ToRoom(&rm, types.EventRosterUpdate, types.RosterUpdatePayload{Students: rm.Students})
	h.router.ToRoom(&rm, types.EventUserLeft, types.UserLeftPayload{UserID: p.StudentID})
}

func (h *Hub) handleRunCode(conn interfaces.Connection, p *types.RunCodePayload) {
	rm, err := h.rooms.GetRoom(p.RoomID)
	if err != nil {
		h.router.ToConn(conn, types.EventNotFound, types.ErrorPayload{Message: "Room not found"})
		return
	}

	// Execution itself goes through the HTTP executor endpoint; the socket
	// event only tells the rest of the room someone hit run.
	userID := conn.ID()
	if _, boundUser, ok := h.bindings.BindingOf(conn); ok {
		userID = boundUser
	}
	h.router.ToRoom(&rm, types.EventCodeRunning, types.CodeRunningPayload{UserID: userID}, conn.ID())
}

func (h *Hub) handleDisconnect(conn interfaces.Connection) {
	_, userID, rm, ok := h.members.Disconnect(conn)
	if !ok {
		return
	}

	h.router.ToRoom(&rm, types.EventUserLeft, types.UserLeftPayload{UserID: userID})
	h.router.ToRoom(&rm, types.EventRosterUpdate, types.RosterUpdatePayload{Students: rm.Students})
}
