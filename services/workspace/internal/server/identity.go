package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"aiassistant/internal/util"
	"aiassistant/services/workspace/internal/app"
)

const (
	// WorkspaceHeader names the workspace when token auth is off.
	WorkspaceHeader    = "X-Workspace-Id"
	defaultWorkspaceID = "default"
	maxWorkspaceIDLen  = 128
)

var errInvalidWorkspaceID = errors.New("invalid workspace id")

type workspaceContextKey struct{}

func (s *Server) withWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, status, err := s.workspaceID(r)
		if err != nil {
			writeError(w, status, err.Error())
			return
		}
		ws, err := s.manager.Workspace(r.Context(), id)
		if err != nil {
			util.LoggerFromContext(r.Context()).Error("load workspace", "workspace_id", id, "err", err)
			status := http.StatusInternalServerError
			if errors.Is(err, app.ErrWorkspaceUnavailable) {
				status = http.StatusServiceUnavailable
			}
			writeError(w, status, "workspace unavailable")
			return
		}
		logger := util.LoggerFromContext(r.Context()).With("workspace_id", id)
		ctx := util.ContextWithLogger(r.Context(), logger)
		ctx = context.WithValue(ctx, workspaceContextKey{}, ws)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// workspaceID resolves the caller's workspace. With a token codec configured
// the verified subject wins and the header is ignored.
func (s *Server) workspaceID(r *http.Request) (string, int, error) {
	if s.tokens != nil {
		token, ok := bearerToken(r)
		if !ok {
			return "", http.StatusUnauthorized, errors.New("unauthorized")
		}
		subject, err := s.tokens.VerifySubject(token)
		if err != nil {
			return "", http.StatusUnauthorized, errors.New("unauthorized")
		}
		if !validWorkspaceID(subject) {
			return "", http.StatusUnauthorized, errors.New("unauthorized")
		}
		return subject, 0, nil
	}
	id := strings.TrimSpace(r.Header.Get(WorkspaceHeader))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("workspace"))
	}
	if id == "" {
		return defaultWorkspaceID, 0, nil
	}
	if !validWorkspaceID(id) {
		return "", http.StatusBadRequest, errInvalidWorkspaceID
	}
	return id, 0, nil
}

// validWorkspaceID keeps ids usable as storage key prefixes.
func validWorkspaceID(id string) bool {
	if id == "" || len(id) > maxWorkspaceIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == '@':
		default:
			return false
		}
	}
	return true
}

func workspaceFrom(r *http.Request) *app.Workspace {
	ws, _ := r.Context().Value(workspaceContextKey{}).(*app.Workspace)
	return ws
}

// bearerToken reads the Authorization header. Browsers cannot set headers
// on websocket upgrades, so /api/ws also accepts an access_token query.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		return token, token != ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		token := strings.TrimSpace(r.URL.Query().Get("access_token"))
		return token, token != ""
	}
	return "", false
}
