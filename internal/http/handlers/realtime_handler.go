// README: WebSocket upgrade, hub stats and menu broadcast handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"kitchenline/internal/logging"
	"kitchenline/internal/modules/realtime"
)

type RealtimeHandler struct {
	hub         *realtime.Hub
	broadcaster *realtime.Broadcaster
	upgrader    websocket.Upgrader
	sendBuffer  int
}

func NewRealtimeHandler(h *realtime.Hub, b *realtime.Broadcaster, allowedOrigins []string, sendBuffer int) *RealtimeHandler {
	return &RealtimeHandler{hub: h, broadcaster: b, upgrader: realtime.NewUpgrader(allowedOrigins), sendBuffer: sendBuffer}
}

// Connect upgrades GET /ws. The client joins rooms with its first messages.
func (h *RealtimeHandler) Connect(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Ctx(c.Request.Context()).Debug().Err(err).Msg("websocket upgrade rejected")
		return
	}
	realtime.NewClient(h.hub, conn, h.sendBuffer).Start()
}

func (h *RealtimeHandler) Stats(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.hub.Stats())
}

// MenuUpdated broadcasts the request body to every connected client.
func (h *RealtimeHandler) MenuUpdated(c *gin.Context) {
	var payload any
	if err := c.ShouldBindJSON(&payload); err != nil || payload == nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	n, err := h.broadcaster.MenuUpdated(c.Request.Context(), payload)
	if err != nil {
		writeRealtimeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"delivered": n})
}
