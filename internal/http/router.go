package http

import (
	"time"

	"impostor_relay/internal/http/handlers"
	"impostor_relay/internal/http/middleware"
	"impostor_relay/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
}

// NewRouter собирает gin с CORS, логированием, лимитом запросов
// и маршрутами зеркала, метрик и websocket
func NewRouter(h *handlers.Handler, wsHandler *ws.WSHandler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowCredentials = false
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if wsHandler != nil {
		r.GET("/ws", wsHandler.HandleWS())
	}

	api := r.Group("/api")
	api.Use(cfg.RateLimiter.Middleware())
	{
		api.GET("/rooms", h.ListRooms)
		api.GET("/rooms/:id", h.GetRoom)
		api.GET("/slots", h.ListSlots)
		api.GET("/leaderboard", h.GetLeaderboard)
		api.GET("/stats/:address", h.GetPlayerStats)
		api.GET("/games", h.RecentGames)
	}
	return r
}
