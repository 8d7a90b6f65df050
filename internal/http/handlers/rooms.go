package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// список активных комнат и агрегаты пула
func (h *Handler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rooms": h.Hub.Rooms(),
		"stats": h.Hub.Stats(),
	})
}

// публичный снимок одной комнаты (без ролей)
func (h *Handler) GetRoom(c *gin.Context) {
	room, ok := h.Hub.Room(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, room.Detail())
}

// состояние слотов и лимиты
func (h *Handler) ListSlots(c *gin.Context) {
	rules := h.Hub.Rules()
	cfg := h.Hub.Lifecycle()
	c.JSON(http.StatusOK, gin.H{
		"slots": h.Hub.Slots(),
		"limits": gin.H{
			"slot_count":          cfg.SlotCount,
			"min_players":         rules.MinPlayers,
			"max_players":         rules.MaxPlayers,
			"impostor_count":      rules.ImpostorCount,
			"min_population_wait": cfg.MinPopulationWait.Seconds(),
			"fill_wait":           cfg.FillWait.Seconds(),
			"slot_cooldown":       cfg.SlotCooldown.Seconds(),
			"wager":               cfg.Wager,
		},
	})
}
