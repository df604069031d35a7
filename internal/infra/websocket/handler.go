package websocket

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The run feed carries no secrets; origin policy is left to the
		// reverse proxy.
		return true
	},
}

// Handler upgrades HTTP requests to WebSocket connections feeding the
// run event stream.
type Handler struct {
	hub    *Hub
	logger *logger.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, log *logger.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: log.With("component", "websocket"),
	}
}

// ServeWS handles WebSocket upgrade requests.
// GET /ws
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		return
	}

	client := NewClient(h.hub, conn, clientAddr(r), h.logger)
	h.hub.RegisterClient(client)

	h.logger.Info("websocket client connected",
		"client_id", client.ID,
		"remote_addr", client.RemoteAddr,
	)

	go client.WritePump()
	go client.ReadPump()
}

// GetHub returns the hub instance.
func (h *Handler) GetHub() *Hub {
	return h.hub
}

// clientAddr strips the ephemeral port so per-address connection
// limits hold across reconnects.
func clientAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return addr[:i]
	}
	return addr
}
