package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	myMiddleware "agency-chat/internal/middleware"
	"agency-chat/internal/project"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Tokens, not cookies, authenticate the socket.
	},
}

type Handler struct {
	hub      *Hub
	service  *Service
	projects Projects
}

func NewHandler(hub *Hub, service *Service, projects Projects) *Handler {
	return &Handler{
		hub:      hub,
		service:  service,
		projects: projects,
	}
}

// ServeWs opens a change feed. With ?project_id= the feed is scoped to that
// project; without it the client receives every project it can see.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	actor, ok := myMiddleware.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	projectID := r.URL.Query().Get("project_id")
	if projectID != "" {
		if _, err := h.projects.Get(r.Context(), actor, projectID); err != nil {
			writeError(w, err)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn("websocket upgrade", "error", err)
		return
	}

	client := &Client{
		Hub:       h.hub,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		Actor:     actor,
		ProjectID: projectID,
	}
	if !h.hub.Attach(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// GetChatHistory handles GET /api/projects/{id}/messages.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	actor, _ := myMiddleware.ActorFrom(r.Context())

	msgs, err := h.service.History(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// SendMessage handles POST /api/projects/{id}/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	actor, _ := myMiddleware.ActorFrom(r.Context())

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	msg, err := h.service.Send(r.Context(), actor, chi.URLParam(r, "id"), req.Kind, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// EditMessage handles PATCH /api/messages/{id}.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	actor, _ := myMiddleware.ActorFrom(r.Context())

	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	msg, err := h.service.Edit(r.Context(), actor, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// DeleteMessage handles DELETE /api/messages/{id}.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	actor, _ := myMiddleware.ActorFrom(r.Context())

	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnreadCount handles GET /api/messages/unread?since=RFC3339.
// A missing since counts everything.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, _ := myMiddleware.ActorFrom(r.Context())

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			http.Error(w, "since must be RFC 3339", http.StatusBadRequest)
			return
		}
		since = t
	}

	n, err := h.service.UnreadCount(r.Context(), actor, since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// LatestActivity handles GET /api/messages/latest.
func (h *Handler) LatestActivity(w http.ResponseWriter, r *http.Request) {
	actor, _ := myMiddleware.ActorFrom(r.Context())

	latest, err := h.service.Latest(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, ErrNotSender):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrNotFound), errors.Is(err, project.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrInvalidKind), errors.Is(err, ErrNotEditable):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
