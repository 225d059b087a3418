package gateway

import (
	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"
)

// Handler bridges the Fiber HTTP router to the Hub's WebSocket connection handling, mirroring the teacher's
// api.GatewayHandler: Fiber owns the HTTP upgrade, the hub owns everything after the handshake.
type Handler struct {
	hub *Hub
}

// NewHandler creates a Handler for the given hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// Upgrade handles the gateway's configured WebSocket path (default "/ws"). It upgrades the HTTP connection and hands
// the resulting fasthttp/websocket connection to the Hub.
func (h *Handler) Upgrade(c fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.hub.ServeWebSocket(conn.Conn)
	})(c)
}
