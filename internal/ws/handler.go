package ws

import (
	"net/http"

	"impostor_relay/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler - точка входа /ws. Авторизация происходит сообщением
// authenticate уже после апгрейда.
type WSHandler struct {
	Hub            *Hub
	AllowedOrigins []string

	upgrader websocket.Upgrader
}

func NewWSHandler(hub *Hub, allowedOrigins []string) *WSHandler {
	h := &WSHandler{
		Hub:            hub,
		AllowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if len(h.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *WSHandler) HandleWS() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("WSHandler.HandleWS: upgrade failed", "remote", c.ClientIP(), "error", err)
			return
		}

		client := NewClient(conn, h.Hub)
		logger.Debug("WSHandler.HandleWS: connection opened", "conn", client.ID, "remote", c.ClientIP())
		go client.Run()
	}
}
