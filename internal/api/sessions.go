package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haigui-labs/soupserver/internal/domain"
	"github.com/haigui-labs/soupserver/internal/game"
	"github.com/haigui-labs/soupserver/internal/identity"
	"github.com/haigui-labs/soupserver/internal/stream"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 100
	defaultMessageLimit = 100
	maxMessageLimit     = 100
)

// SessionHandler serves the session lifecycle and exchange routes.
type SessionHandler struct {
	svc *game.Service
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(svc *game.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// Routes mounts the session routes on r.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Get("/sessions", h.list)
	r.Post("/sessions", h.create)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Get("/messages", h.listMessages)
		r.Post("/messages", h.submit)
		r.Post("/reveal", h.reveal)
		r.Post("/quit", h.quit)
	})
}

// puzzleView is the wire shape of a puzzle. Bottom and hints are only
// populated once the owning session has been revealed.
type puzzleView struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	SoupType   domain.SoupType `json:"soup_type"`
	Difficulty int             `json:"difficulty"`
	Tags       []string        `json:"tags,omitempty"`
	Surface    string          `json:"surface"`
	Bottom     string          `json:"bottom,omitempty"`
	Hints      []string        `json:"hints,omitempty"`
	Language   string          `json:"language,omitempty"`
}

type sessionView struct {
	ID            string               `json:"id"`
	PuzzleID      string               `json:"puzzle_id"`
	SoupType      domain.SoupType      `json:"soup_type"`
	Title         string               `json:"title,omitempty"`
	Status        domain.SessionStatus `json:"status"`
	QuestionCount int                  `json:"question_count"`
	StartedAt     *time.Time           `json:"started_at,omitempty"`
	EndedAt       *time.Time           `json:"ended_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

type messageView struct {
	ID             string                `json:"id"`
	Role           domain.MessageRole    `json:"role"`
	Content        string                `json:"content"`
	AnswerCategory domain.AnswerCategory `json:"answer_category,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

func newPuzzleView(p *domain.Puzzle, revealed bool) puzzleView {
	v := puzzleView{
		ID:         formatID(p.ID),
		Title:      p.Title,
		SoupType:   p.SoupType,
		Difficulty: p.Difficulty,
		Tags:       p.Tags,
		Surface:    p.Surface,
		Language:   p.Language,
	}
	if revealed {
		v.Bottom = p.Bottom
		v.Hints = p.HintList
	}
	return v
}

func newSessionView(s *domain.Session) sessionView {
	return sessionView{
		ID:            formatID(s.ID),
		PuzzleID:      formatID(s.PuzzleID),
		SoupType:      s.SoupType,
		Title:         s.Title,
		Status:        s.Status,
		QuestionCount: s.QuestionCount,
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		CreatedAt:     s.CreatedAt,
	}
}

func newMessageView(m *domain.Message) messageView {
	return messageView{
		ID:             formatID(m.ID),
		Role:           m.Role,
		Content:        m.Content,
		AnswerCategory: m.AnswerCategory,
		CreatedAt:      m.CreatedAt,
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func requireUser(w http.ResponseWriter, r *http.Request) *domain.User {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		Error(w, r, game.Errf(game.CodeUnauthorized, "identity required"))
		return nil
	}
	return user
}

func sessionIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, game.Errf(game.CodeNotFound, "session not found")
	}
	return id, nil
}

func limitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

type createSessionRequest struct {
	SoupType   domain.SoupType `json:"soup_type"`
	Difficulty int             `json:"difficulty,omitempty"`
}

func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, r, game.Errf(game.CodeInvalidArgument, "invalid request body"))
		return
	}

	sess, puzzle, err := h.svc.CreateSession(r.Context(), user.ID, req.SoupType, req.Difficulty)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]any{
		"session": newSessionView(sess),
		"puzzle":  newPuzzleView(puzzle, false),
	})
}

func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	sessions, err := h.svc.ListSessions(r.Context(), user.ID, limitParam(r, defaultSessionLimit, maxSessionLimit))
	if err != nil {
		Error(w, r, err)
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, newSessionView(s))
	}
	JSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	sessionID, err := sessionIDParam(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	sess, puzzle, err := h.svc.GetSession(r.Context(), user.ID, sessionID)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"session": newSessionView(sess),
		"puzzle":  newPuzzleView(puzzle, sess.Status == domain.StatusRevealed),
	})
}

func (h *SessionHandler) listMessages(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	sessionID, err := sessionIDParam(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	afterID, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	limit := limitParam(r, defaultMessageLimit, maxMessageLimit)

	messages, err := h.svc.ListMessages(r.Context(), user.ID, sessionID, afterID, limit)
	if err != nil {
		Error(w, r, err)
		return
	}

	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, newMessageView(m))
	}
	resp := map[string]any{"messages": views}
	if len(messages) == limit {
		resp["next_cursor"] = formatID(messages[len(messages)-1].ID)
	}
	JSON(w, http.StatusOK, resp)
}

type submitRequest struct {
	Content string `json:"content"`
	Stream  bool   `json:"stream,omitempty"`
}

func (h *SessionHandler) submit(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	sessionID, err := sessionIDParam(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, r, game.Errf(game.CodeInvalidArgument, "invalid request body"))
		return
	}

	// All rejections happen before any byte of the response body, so a
	// streaming request can still receive a plain error envelope.
	ex, err := h.svc.BeginExchange(r.Context(), user.ID, sessionID, req.Content)
	if err != nil {
		Error(w, r, err)
		return
	}

	if req.Stream {
		h.streamExchange(w, r, ex)
		return
	}

	res, err := ex.Run(r.Context())
	if err != nil {
		Error(w, r, err)
		return
	}
	resp := map[string]any{
		"user_message":  newMessageView(res.UserMessage),
		"judge_message": newMessageView(res.JudgeMessage),
	}
	if res.Session != nil {
		resp["session"] = newSessionView(res.Session)
	}
	JSON(w, http.StatusOK, resp)
}

func (h *SessionHandler) streamExchange(w http.ResponseWriter, r *http.Request, ex *game.Exchange) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	// Emit errors mean the client went away; nothing useful left to write.
	_ = ex.Stream(r.Context(), func(f stream.Frame) error {
		return stream.WriteFrame(w, f)
	})
}

func (h *SessionHandler) reveal(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	sessionID, err := sessionIDParam(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	sess, puzzle, err := h.svc.Reveal(r.Context(), user.ID, sessionID)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"session": newSessionView(sess),
		"puzzle":  newPuzzleView(puzzle, true),
	})
}

func (h *SessionHandler) quit(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}
	sessionID, err := sessionIDParam(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	sess, err := h.svc.Quit(r.Context(), user.ID, sessionID)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"session": newSessionView(sess)})
}
