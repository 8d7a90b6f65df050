package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Health(c *gin.Context) {
	st := h.Hub.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"version":     h.Version,
		"rooms":       st.Active,
		"connections": st.Connections,
	})
}
