package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"aiassistant/internal/util"
)

const wsWriteTimeout = 5 * time.Second

// handleEvents streams the workspace change feed. Clients only listen;
// anything they send is discarded.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusNotImplemented, "change feed is not enabled")
		return
	}
	ws := workspaceFrom(r)
	logger := util.LoggerFromContext(r.Context())

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns()})
	if err != nil {
		logger.Warn("websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	sub := s.hub.Subscribe(ws.ID())
	defer sub.Close()
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, conn, e)
			cancel()
			if err != nil {
				logger.Debug("websocket write", "err", err, "dropped", sub.Dropped())
				return
			}
		}
	}
}

// originPatterns turns the CORS allowlist into host patterns. An empty
// list or "*" allows any origin, matching WithCORS.
func (s *Server) originPatterns() []string {
	if len(s.allowedOrigins) == 0 {
		return []string{"*"}
	}
	out := make([]string, 0, len(s.allowedOrigins))
	for _, origin := range s.allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			out = append(out, u.Host)
		} else if origin != "" {
			out = append(out, origin)
		}
	}
	return out
}
