package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"impostor_relay/internal/bot"
	"impostor_relay/internal/config"
	"impostor_relay/internal/db"
	httpServer "impostor_relay/internal/http"
	"impostor_relay/internal/http/handlers"
	"impostor_relay/internal/http/middleware"
	"impostor_relay/internal/logger"
	"impostor_relay/internal/migrations"
	"impostor_relay/internal/repository"
	"impostor_relay/internal/service"
	"impostor_relay/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Version устанавливается при сборке
var Version = "dev"

func main() {
	cfg := config.Load()

	logger.Init(cfg.LogLevel, cfg.LogJSON)
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens := service.NewTokenManager(cfg.JWTSecret, cfg.TokenMaxAge)

	var hubOpts []ws.HubOption
	h := &handlers.Handler{Version: Version}

	// redis не обязателен: без него нет кэша лидеров и лимита запросов
	var rdb *redis.Client
	var rateLimiter *middleware.RateLimiter
	var boardCache *repository.LeaderboardCache
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unavailable, cache and rate limit disabled", "addr", cfg.RedisAddr, "error", err)
			_ = rdb.Close()
			rdb = nil
		} else {
			boardCache = repository.NewLeaderboardCache(rdb, time.Minute)
			rateLimiter = middleware.NewRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute)
			log.Info("redis connected", "addr", cfg.RedisAddr)
		}
	}

	// база не обязательна: без нее нет ставок, статистики и истории партий
	var stats *service.StatsService
	var results *repository.ResultRepository
	if cfg.DatabaseURL != "" {
		if err := migrations.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal("migrations failed", "error", err)
		}
		dbPool := db.Connect(cfg.DatabaseURL)
		defer dbPool.Close()

		ledger := repository.NewLedgerRepository(dbPool)
		results = repository.NewResultRepository(dbPool)
		balances := service.NewBalanceService(ledger)

		var settlement *service.SettlementService
		if boardCache != nil {
			stats = service.NewStatsService(results, boardCache)
			settlement = service.NewSettlementService(results, ledger, boardCache, cfg.Pool.Wager)
		} else {
			stats = service.NewStatsService(results, nil)
			settlement = service.NewSettlementService(results, ledger, nil, cfg.Pool.Wager)
		}

		hubOpts = append(hubOpts, ws.WithSinks(settlement))
		if cfg.Pool.Wager > 0 {
			hubOpts = append(hubOpts, ws.WithLedger(balances))
		}

		h.Stats = stats
		h.Games = results
		h.Balances = balances
	} else if cfg.Pool.Wager > 0 {
		logger.Fatal("ROOM_WAGER requires DATABASE_URL")
	} else {
		log.Warn("DATABASE_URL not set - results are not recorded")
	}

	hub := ws.NewHub(cfg.Lifecycle(), cfg.Rules(), tokens, hubOpts...)
	h.Hub = hub

	var adminBot *bot.AdminBot
	if cfg.AdminBotEnabled && cfg.BotToken != "" && len(cfg.AdminTelegramIDs) > 0 {
		var err error
		if stats != nil {
			adminBot, err = bot.NewAdminBot(cfg.BotToken, cfg.AdminTelegramIDs, hub, stats, results)
		} else {
			adminBot, err = bot.NewAdminBot(cfg.BotToken, cfg.AdminTelegramIDs, hub, nil, nil)
		}
		if err != nil {
			log.Error("failed to start admin bot", "error", err)
			adminBot = nil
		} else {
			hub.AddSink(adminBot)
			go adminBot.Start()
			log.Info("admin bot started", "admin_ids", cfg.AdminTelegramIDs)
		}
	}

	hub.Start()

	r := httpServer.NewRouter(h, ws.NewWSHandler(hub, cfg.AllowedOrigins), httpServer.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimiter:    rateLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server started", "port", cfg.AppPort, "version", Version, "slots", cfg.Pool.SlotCount)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	// комнаты не дожидаются конца партий
	hub.Stop()

	if adminBot != nil {
		adminBot.Stop()
	}
	if rdb != nil {
		_ = rdb.Close()
	}

	log.Info("server exited")
}
