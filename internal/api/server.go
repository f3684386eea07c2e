// Package api is the HTTP surface: room management, question authoring, and
// code execution. No business logic lives here; handlers translate between
// JSON and the registries.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"coderoom/internal/executor"
	"coderoom/internal/room"
	"coderoom/pkg/types"
)

// Stats is implemented by the websocket registry; the health endpoint reports
// its counters.
type Stats interface {
	Stats() map[string]int
}

type Server struct {
	rooms  *room.Registry
	exec   *executor.Executor
	stats  Stats
	router *http.ServeMux
}

func NewServer(rooms *room.Registry, exec *executor.Executor, stats Stats) *Server {
	s := &Server{
		rooms:  rooms,
		exec:   exec,
		stats:  stats,
		router: http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/rooms", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRooms))))
	s.router.Handle("/api/rooms/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRoomByID))))
	s.router.Handle("/api/code/run", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRunCode))))
	s.router.Handle("/api/code/test", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleTestCode))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request/response types for JSON serialization.
type CreateRoomRequest struct {
	TeacherID string           `json:"teacherId" validate:"required"`
	Config    types.RoomConfig `json:"config"`
}

type RunCodeRequest struct {
	Code     string `json:"code" validate:"required"`
	Language string `json:"language" validate:"required"`
	Stdin    string `json:"stdin,omitempty"`
}

type TestCodeRequest struct {
	Code      string              `json:"code" validate:"required"`
	Language  string              `json:"language" validate:"required"`
	TestCases []executor.TestCase `json:"testCases" validate:"required,min=1,dive"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Rooms       int            `json:"rooms"`
	Connections map[string]int `json:"connections"`
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createRoom(w, r)
	case http.MethodGet:
		s.listRooms(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRoomByID dispatches /api/rooms/{id} and /api/rooms/{id}/questions.
func (s *Server) handleRoomByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	parts := strings.Split(path, "/")
	roomID := parts[0]
	if roomID == "" {
		s.sendError(w, "Room ID required", http.StatusBadRequest)
		return
	}

	if len(parts) > 1 && parts[1] == "questions" {
		switch r.Method {
		case http.MethodPost:
			s.addQuestion(w, r, roomID)
		case http.MethodPut:
			s.replaceQuestions(w, r, roomID)
		default:
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.getRoom(w, r, roomID)
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := types.Validate(&req); err != nil {
		s.sendError(w, "Teacher ID is required", http.StatusBadRequest)
		return
	}
	if !types.IsValidUserID(req.TeacherID) {
		s.sendError(w, "Invalid teacher ID", http.StatusBadRequest)
		return
	}

	rm := s.rooms.CreateRoom(req.TeacherID, req.Config)

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "room": rm})
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	rm, err := s.rooms.GetRoom(roomID)
	if err != nil {
		s.sendError(w, "Room not found", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{"success": true, "room": rm})
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.rooms.ListRooms()
	json.NewEncoder(w).Encode(map[string]any{"success": true, "rooms": rooms})
}

func (s *Server) addQuestion(w http.ResponseWriter, r *http.Request, roomID string) {
	var draft types.QuestionDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := types.Validate(&draft); err != nil {
		s.sendError(w, "Question text is required", http.StatusBadRequest)
		return
	}

	rm, q, err := s.rooms.AddQuestion(roomID, draft)
	if err != nil {
		s.sendError(w, "Room not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "question": q, "questions": rm.Questions})
}

func (s *Server) replaceQuestions(w http.ResponseWriter, r *http.Request, roomID string) {
	var questions []types.Question
	if err := json.NewDecoder(r.Body).Decode(&questions); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	rm, err := s.rooms.SetQuestions(roomID, questions)
	if err != nil {
		s.sendError(w, "Room not found", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{"success": true, "questions": rm.Questions})
}

func (s *Server) handleRunCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RunCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := types.Validate(&req); err != nil {
		s.sendError(w, "Code and language are required", http.StatusBadRequest)
		return
	}
	if !s.exec.SupportsLanguage(req.Language) {
		s.sendError(w, "Unsupported language: "+req.Language, http.StatusBadRequest)
		return
	}

	res, err := s.exec.Execute(r.Context(), req.Code, req.Language, req.Stdin)
	if err != nil {
		// A failed run is still a 200; the client renders stderr. Only
		// infrastructure faults are 5xx.
		switch {
		case errors.Is(err, executor.ErrEmptyCode):
			s.sendError(w, "Code cannot be empty", http.StatusBadRequest)
		case errors.Is(err, executor.ErrTimeout):
			json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   "Execution timed out",
			})
		case res != nil:
			json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"result":  res,
				"error":   res.Stderr,
			})
		default:
			s.sendError(w, "Execution failed", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(map[string]any{"success": true, "result": res})
}

func (s *Server) handleTestCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TestCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := types.Validate(&req); err != nil {
		s.sendError(w, "Code, language and at least one test case are required", http.StatusBadRequest)
		return
	}
	if !s.exec.SupportsLanguage(req.Language) {
		s.sendError(w, "Unsupported language: "+req.Language, http.StatusBadRequest)
		return
	}

	results := s.exec.RunTests(r.Context(), req.Code, req.Language, req.TestCases)
	passed := 0
	for _, tr := range results {
		if tr.Passed {
			passed++
		}
	}

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"results": results,
		"passed":  passed,
		"total":   len(results),
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now(),
		Rooms:       s.rooms.Count(),
		Connections: s.stats.Stats(),
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		next.ServeHTTP(w, r)
	})
}
