package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/PabloGalante/blue-shark/internal/app/conversation"
	"github.com/PabloGalante/blue-shark/internal/app/sessions"
	"github.com/PabloGalante/blue-shark/internal/domain"
	"github.com/PabloGalante/blue-shark/internal/observability"
)

const maxBodyBytes = 10 << 20

type Server struct {
	svc     *conversation.Service
	updates UpdateSource
}

// NewServer wires the REST routes and, when updates is not nil, the
// /ws live update stream.
func NewServer(svc *conversation.Service, updates UpdateSource) http.Handler {
	s := &Server{svc: svc, updates: updates}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// /modes → mode catalog (GET)
	mux.HandleFunc("/modes", s.handleModes)

	// /sessions → list (GET), clear all (DELETE ?confirm=true)
	mux.HandleFunc("/sessions", s.handleSessions)

	// /sessions/messages      → POST: first message of a new session
	// /sessions/{id}          →  GET: session + messages
	// /sessions/{id}/messages → POST: send message
	mux.HandleFunc("/sessions/", s.handleSessionWithID)

	mux.HandleFunc("/ws", s.handleWebSocket)

	return chainMiddlewares(mux,
		withCORS,
		withLogging,
		withRecovery,
		withRequestID,
	)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type imagePayload struct {
	Data     []byte `json:"data"` // base64 in JSON
	MIMEType string `json:"mime_type,omitempty"`
}

type sendMessageRequest struct {
	Text  string        `json:"text"`
	Mode  string        `json:"mode,omitempty"`
	Image *imagePayload `json:"image,omitempty"`
}

type sessionResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Mode         string    `json:"mode"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type messageResponse struct {
	ID               string        `json:"id"`
	Role             string        `json:"role"`
	Content          string        `json:"content"`
	SecondaryContent string        `json:"secondary_content,omitempty"`
	Image            *imagePayload `json:"image,omitempty"`
	Pending          bool          `json:"pending,omitempty"`
	Failed           bool          `json:"failed,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

type sendMessageResponse struct {
	SessionID    string          `json:"session_id"`
	UserMessage  messageResponse `json:"user_message"`
	ModelMessage messageResponse `json:"model_message"`
	State        string          `json:"state"`
}

type getSessionResponse struct {
	Session  sessionResponse   `json:"session"`
	Messages []messageResponse `json:"messages"`
}

type modeResponse struct {
	Mode        string `json:"mode"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Model       string `json:"model"`
	Dual        bool   `json:"dual"`
}

// ─────────────────────────────────────────────
// Basic routing
// ─────────────────────────────────────────────

func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	cfgs := s.svc.Modes()
	out := make([]modeResponse, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, modeResponse{
			Mode:        string(c.Mode),
			Label:       c.Label,
			Description: c.Description,
			Model:       c.Model,
			Dual:        c.Dual,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListSessions(w, r)
	case http.MethodDelete:
		s.handleClearSessions(w, r)
	default:
		methodNotAllowed(w)
	}
}

// /sessions/messages, /sessions/{id} or /sessions/{id}/messages
func (s *Server) handleSessionWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/")
	if path == "" {
		http.NotFound(w, r)
		return
	}

	parts := strings.Split(path, "/")

	if len(parts) == 1 && parts[0] == "messages" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleSendMessage(w, r, "")
		return
	}

	id := domain.SessionID(parts[0])

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetSession(w, r, id)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "messages" {
		switch r.Method {
		case http.MethodPost:
			s.handleSendMessage(w, r, id)
		default:
			methodNotAllowed(w)
		}
		return
	}

	http.NotFound(w, r)
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := s.svc.Sessions(r.Context())
	out := make([]sessionResponse, 0, len(list))
	for _, sess := range list {
		out = append(out, toSessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	confirm := r.URL.Query().Get("confirm") == "true"
	if err := s.svc.ClearHistory(r.Context(), confirm); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	sess, err := s.svc.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, getSessionResponse{
		Session:  toSessionResponse(sess),
		Messages: toMessagesResponse(sess.Messages),
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, sessionID domain.SessionID) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	in := conversation.SendMessageInput{
		SessionID: sessionID,
		Mode:      parseMode(req.Mode),
		Text:      req.Text,
	}
	if req.Image != nil && len(req.Image.Data) > 0 {
		mime := req.Image.MIMEType
		if mime == "" {
			mime = http.DetectContentType(req.Image.Data)
		}
		if !strings.HasPrefix(mime, "image/") {
			badRequest(w, "image must be an image/* payload")
			return
		}
		in.Image = &domain.Image{Data: req.Image.Data, MIMEType: mime}
	}

	out, err := s.svc.SendMessage(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if sessionID == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, sendMessageResponse{
		SessionID:    string(out.SessionID),
		UserMessage:  toMessageResponse(out.UserMessage),
		ModelMessage: toMessageResponse(out.ModelMessage),
		State:        out.State.String(),
	})
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:           string(s.ID),
		Title:        s.Title,
		Mode:         string(s.Mode),
		MessageCount: len(s.Messages),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func toMessageResponse(m domain.Message) messageResponse {
	resp := messageResponse{
		ID:               string(m.ID),
		Role:             string(m.Role),
		Content:          m.Content,
		SecondaryContent: m.SecondaryContent,
		Pending:          m.Pending,
		Failed:           m.Failed,
		CreatedAt:        m.CreatedAt,
	}
	if m.Image != nil {
		resp.Image = &imagePayload{Data: m.Image.Data, MIMEType: m.Image.MIMEType}
	}
	return resp
}

func toMessagesResponse(msgs []domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func parseMode(s string) domain.Mode {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	return domain.Mode(s).Normalize()
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, conversation.ErrTurnInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, conversation.ErrEmptyInput),
		errors.Is(err, conversation.ErrUnknownMode),
		errors.Is(err, sessions.ErrClearNotConfirmed):
		badRequest(w, err.Error())
	default:
		internalError(w, r, err)
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}
