package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from arbitrary origins, mirroring the
	// permissive CORS policy on the REST surface.
	CheckOrigin: func(*http.Request) bool { return true },
}

// /ws/{id}
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err, "ip", clientIP(r))
		return
	}
	defer conn.Close()
	if err := s.sessions.Run(r.Context(), conn, id); err != nil {
		slog.Error("session ended with error", "err", err, "chat_pdf", id)
		_ = conn.WriteJSON(map[string]any{"detail": err.Error(), "stream": false})
	}
}
