package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"impostor_relay/internal/logger"
	"impostor_relay/internal/ton"

	"github.com/gin-gonic/gin"
)

// список лучших игроков по победам
func (h *Handler) GetLeaderboard(c *gin.Context) {
	if h.Stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "statistics disabled"})
		return
	}

	top, err := h.Stats.Leaderboard(c.Request.Context())
	if err != nil {
		logger.Error("Handler.GetLeaderboard: failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get leaderboard"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": top})
}

// статистика игрока по адресу кошелька
func (h *Handler) GetPlayerStats(c *gin.Context) {
	if h.Stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "statistics disabled"})
		return
	}

	ctx := c.Request.Context()
	stats, err := h.Stats.PlayerStats(ctx, c.Param("address"))
	if err != nil {
		if errors.Is(err, ton.ErrBadAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
			return
		}
		logger.Error("Handler.GetPlayerStats: failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}

	resp := gin.H{"stats": stats}
	if h.Balances != nil {
		// баланс не обязателен для ответа
		if balance, err := h.Balances.Balance(ctx, stats.Address); err == nil {
			resp["balance"] = balance
		}
	}
	c.JSON(http.StatusOK, resp)
}

// последние записанные партии
func (h *Handler) RecentGames(c *gin.Context) {
	if h.Games == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "statistics disabled"})
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	games, err := h.Games.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.Error("Handler.RecentGames: failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get games"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}
