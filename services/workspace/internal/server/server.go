package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"aiassistant/internal/ratelimit"
	"aiassistant/internal/util"
	"aiassistant/internal/workspacetoken"
	"aiassistant/pkg/ai"
	"aiassistant/pkg/cards"
	"aiassistant/pkg/events"
	"aiassistant/services/workspace/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Manager *app.Manager
	// Hub feeds /api/ws; nil disables the change feed.
	Hub *events.Hub
	// Tokens switches identity from the X-Workspace-Id header to bearer
	// tokens when set.
	Tokens         *workspacetoken.Codec
	SendLimiter    *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	AllowedOrigins []string
}

// Server exposes the workspace API.
type Server struct {
	manager        *app.Manager
	hub            *events.Hub
	tokens         *workspacetoken.Codec
	sendLimiter    *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	allowedOrigins []string
	router         chi.Router
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		manager:        cfg.Manager,
		hub:            cfg.Hub,
		tokens:         cfg.Tokens,
		sendLimiter:    cfg.SendLimiter,
		trustedProxies: cfg.TrustedProxies,
		allowedOrigins: cfg.AllowedOrigins,
		router:         chi.NewRouter(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.router
	h = util.WithCORS(s.allowedOrigins, h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog("workspace", h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.withWorkspace)

		r.Get("/state", s.handleState)
		r.Post("/messages", s.handleSend)

		r.Get("/conversations", s.handleListConversations)
		r.Post("/conversations", s.handleCreateConversation)
		r.Put("/conversations/{id}/active", s.handleSelectConversation)
		r.Delete("/conversations/{id}", s.handleDeleteConversation)

		r.Get("/cards", s.handleListCards)
		r.Post("/cards", s.handleCreateCard)
		r.Put("/cards/order", s.handleReorderCards)
		r.Post("/cards/export", s.handleExportCards)
		r.Delete("/cards/{id}", s.handleDeleteCard)

		r.Post("/drag/begin", s.handleDragBegin)
		r.Post("/drag/hover", s.handleDragHover)
		r.Post("/drag/drop", s.handleDragDrop)
		r.Post("/drag/end", s.handleDragEnd)

		r.Put("/sidebar", s.handleSidebar)

		r.Post("/explanations", s.handleExplain)
		r.Get("/explanations/{id}", s.handleGetExplanation)
		r.Post("/explanations/{id}/followup", s.handleStartFollowUp)
		r.Post("/explanations/{id}/messages", s.handleAskFollowUp)
		r.Post("/explanations/{id}/reset", s.handleResetExplanation)
		r.Delete("/explanations/{id}", s.handleCloseExplanation)

		r.Get("/ws", s.handleEvents)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "workspaces": s.manager.Loaded()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workspaceFrom(r).State())
}

type sendRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)
	if !s.allowSend(w, r, ws.ID()) {
		return
	}
	var req sendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := ws.Send(r.Context(), req.Content)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workspaceFrom(r).Conversations())
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, workspaceFrom(r).NewConversation(r.Context()))
}

func (s *Server) handleSelectConversation(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFrom(r)
	if err := ws.SelectConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.State())
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := workspaceFrom(r).DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workspaceFrom(r).Cards())
}

type createCardRequest struct {
	MessageID string `json:"messageId"`
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	card, created, err := workspaceFrom(r).CreateCard(r.Context(), req.MessageID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"card": card, "created": created})
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleReorderCards(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ws := workspaceFrom(r)
	if err := ws.ReorderCards(r.Context(), req.IDs); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws.Cards())
}

func (s *Server) handleExportCards(w http.ResponseWriter, r *http.Request) {
	out, err := workspaceFrom(r).ExportCards(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := workspaceFrom(r).DeleteCard(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDragBegin(w http.ResponseWriter, r *http.Request) {
	var payload cards.DragPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	view, err := workspaceFrom(r).BeginDrag(payload)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type hoverRequest struct {
	CardID string `json:"cardId"`
}

func (s *Server) handleDragHover(w http.ResponseWriter, r *http.Request) {
	var req hoverRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, workspaceFrom(r).HoverDrag(req.CardID))
}

type dropRequest struct {
	Payload      cards.DragPayload `json:"payload"`
	TargetCardID string            `json:"targetCardId"`
}

func (s *Server) handleDragDrop(w http.ResponseWriter, r *http.Request) {
	var req dropRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := workspaceFrom(r).Drop(r.Context(), req.Payload, req.TargetCardID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDragEnd(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workspaceFrom(r).EndDrag())
}

type sidebarRequest struct {
	Open *bool `json:"open"`
}

func (s *Server) handleSidebar(w http.ResponseWriter, r *http.Request) {
	var req sidebarRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Open == nil {
		writeError(w, http.StatusBadRequest, "open is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"open": workspaceFrom(r).SetSidebar(r.Context(), *req.Open)})
}

type explainRequest struct {
	Text string `json:"text"`
	Tone string `json:"tone"`
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	exp, err := workspaceFrom(r).Explain(r.Context(), req.Text, req.Tone)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleGetExplanation(w http.ResponseWriter, r *http.Request) {
	exp, err := workspaceFrom(r).Explanation(chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleStartFollowUp(w http.ResponseWriter, r *http.Request) {
	exp, err := workspaceFrom(r).StartFollowUp(chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleAskFollowUp(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	exp, err := workspaceFrom(r).AskFollowUp(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleResetExplanation(w http.ResponseWriter, r *http.Request) {
	exp, err := workspaceFrom(r).ResetExplanation(chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleCloseExplanation(w http.ResponseWriter, r *http.Request) {
	if err := workspaceFrom(r).CloseExplanation(chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) allowSend(w http.ResponseWriter, r *http.Request, workspaceID string) bool {
	if s.sendLimiter == nil {
		return true
	}
	key := workspaceID + "|" + util.ClientIP(r, s.trustedProxies)
	decision := s.sendLimiter.Allow(r.Context(), key)
	if decision.Allowed {
		return true
	}
	secs := int(decision.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, ai.RateLimitMessage)
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrConversationNotFound),
		errors.Is(err, app.ErrCardNotFound),
		errors.Is(err, app.ErrMessageNotFound),
		errors.Is(err, app.ErrExplanationNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrSendInProgress),
		errors.Is(err, app.ErrFollowUpNotStarted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrEmptyMessage),
		errors.Is(err, app.ErrEmptyQuestion),
		errors.Is(err, app.ErrNotAssistantMessage),
		errors.Is(err, app.ErrSelectionTooShort),
		errors.Is(err, app.ErrInvalidTone),
		errors.Is(err, cards.ErrNotPermutation),
		errors.Is(err, cards.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrExportDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusRequestTimeout, "request canceled")
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
