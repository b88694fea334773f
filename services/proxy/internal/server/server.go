package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"aiassistant/internal/ratelimit"
	"aiassistant/internal/util"
	"aiassistant/pkg/ai"
	"aiassistant/services/proxy/internal/app"
)

const messagesRequired = "Messages array is required"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Limiter        *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	AllowedOrigins []string
}

// Server exposes the completion proxy.
type Server struct {
	app            *app.App
	limiter        *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
	allowedOrigins []string
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		limiter:        cfg.Limiter,
		trustedProxies: cfg.TrustedProxies,
		allowedOrigins: cfg.AllowedOrigins,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithCORS(s.allowedOrigins, h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog("proxy", h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/api/chat", s.handleChat)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleComplete(w, r)
	case http.MethodGet:
		s.handleProbe(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type chatRequest struct {
	Messages []app.Message `json:"messages"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r) {
		return
	}
	if !s.app.Configured() {
		writeTypedError(w, http.StatusInternalServerError, ai.ErrMissingAPIKey.Error(), ai.KindConfig)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, messagesRequired)
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, messagesRequired)
		return
	}
	reply, err := s.app.Complete(r.Context(), req.Messages)
	if err != nil {
		if errors.Is(err, app.ErrInvalidRole) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeCompletionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	health, ok := s.app.Health(r.Context())
	if !ok {
		util.LoggerFromContext(r.Context()).Warn("provider health check failed", "status", health.Status, "err", health.Error)
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	decision := s.limiter.Allow(r.Context(), key)
	if decision.Allowed {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		return true
	}
	secs := int(decision.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeTypedError(w, http.StatusTooManyRequests, ai.RateLimitMessage, ai.KindRate)
	return false
}

func writeCompletionError(w http.ResponseWriter, r *http.Request, err error) {
	kind := ai.Classify(err)
	status := ai.StatusFor(kind)
	logger := util.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("completion failed", "kind", kind, "err", err)
	} else {
		logger.Warn("completion rejected", "kind", kind, "err", err)
	}
	writeTypedError(w, status, ai.MessageFor(kind, err), kind)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeTypedError(w http.ResponseWriter, status int, msg string, kind ai.ErrorKind) {
	writeJSON(w, status, map[string]string{"error": msg, "type": string(kind)})
}
