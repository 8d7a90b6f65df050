package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"impostor_relay/internal/game"
	"impostor_relay/internal/logger"
	"impostor_relay/internal/ws"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort     string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret   string
	TokenMaxAge time.Duration

	BotToken         string
	AdminTelegramIDs []int64
	AdminBotEnabled  bool

	AllowedOrigins []string
	LogLevel       string
	LogJSON        bool

	// лимит HTTP запросов с одного IP в минуту, 0 - без лимита
	RateLimitPerMinute int

	Game game.Rules
	Pool ws.LifecycleConfig
}

// Load читает .env (если есть) и переменные окружения.
// Некорректные значения заменяются значениями по умолчанию с предупреждением.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("config: failed to read .env", "error", err)
	}

	rules := game.DefaultRules()
	pool := ws.DefaultLifecycle()

	cfg := &Config{
		AppPort:     getEnv("APP_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenMaxAge: getDuration("TOKEN_MAX_AGE", 24*time.Hour),

		BotToken:         os.Getenv("BOT_TOKEN"),
		AdminTelegramIDs: getIDs("ADMIN_TELEGRAM_IDS"),
		AdminBotEnabled:  getBool("ADMIN_BOT_ENABLED", true),

		AllowedOrigins: getList("ALLOWED_ORIGINS"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogJSON:        os.Getenv("LOG_FORMAT") == "json",

		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	rules.MinPlayers = getInt("MIN_PLAYERS", rules.MinPlayers)
	rules.MaxPlayers = getInt("MAX_PLAYERS", rules.MaxPlayers)
	rules.ImpostorCount = getInt("IMPOSTOR_COUNT", rules.ImpostorCount)
	rules.TasksPerPlayer = getInt("TASKS_PER_PLAYER", rules.TasksPerPlayer)
	rules.KillCooldownRounds = getInt("KILL_COOLDOWN_ROUNDS", rules.KillCooldownRounds)
	rules.EmergencyMeetings = getInt("EMERGENCY_MEETINGS", rules.EmergencyMeetings)
	rules.ActionCommitDuration = getDuration("ACTION_COMMIT_DURATION", rules.ActionCommitDuration)
	rules.ActionRevealDuration = getDuration("ACTION_REVEAL_DURATION", rules.ActionRevealDuration)
	rules.DiscussionDuration = getDuration("DISCUSSION_DURATION", rules.DiscussionDuration)
	rules.VotingDuration = getDuration("VOTING_DURATION", rules.VotingDuration)
	rules.VoteResultDuration = getDuration("VOTE_RESULT_DURATION", rules.VoteResultDuration)
	rules.SabotageCooldown = getDuration("SABOTAGE_COOLDOWN", rules.SabotageCooldown)
	rules.CriticalSabotageDuration = getDuration("CRITICAL_SABOTAGE_DURATION", rules.CriticalSabotageDuration)

	pool.SlotCount = getInt("SLOT_COUNT", pool.SlotCount)
	pool.MinPopulationWait = getDuration("MIN_POPULATION_WAIT", pool.MinPopulationWait)
	pool.FillWait = getDuration("FILL_WAIT", pool.FillWait)
	pool.SlotCooldown = getDuration("SLOT_COOLDOWN", pool.SlotCooldown)
	pool.ResultDisplay = getDuration("RESULT_DISPLAY", pool.ResultDisplay)
	pool.Wager = int64(getInt("ROOM_WAGER", int(pool.Wager)))

	cfg.Game = rules
	cfg.Pool = pool
	return cfg
}

// Rules - правила партии для сессий
func (c *Config) Rules() game.Rules {
	return c.Game
}

// Lifecycle - настройки пула слотов для хаба
func (c *Config) Lifecycle() ws.LifecycleConfig {
	return c.Pool
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	var errs []error
	r := c.Game
	if r.MinPlayers < 3 {
		errs = append(errs, fmt.Errorf("MIN_PLAYERS must be at least 3, got %d", r.MinPlayers))
	}
	if r.MaxPlayers < r.MinPlayers {
		errs = append(errs, fmt.Errorf("MAX_PLAYERS (%d) is below MIN_PLAYERS (%d)", r.MaxPlayers, r.MinPlayers))
	}
	if r.ImpostorCount < 1 {
		errs = append(errs, errors.New("IMPOSTOR_COUNT must be at least 1"))
	}
	if r.TasksPerPlayer < 0 || r.KillCooldownRounds < 0 || r.EmergencyMeetings < 0 {
		errs = append(errs, errors.New("TASKS_PER_PLAYER, KILL_COOLDOWN_ROUNDS and EMERGENCY_MEETINGS must not be negative"))
	}
	for name, d := range map[string]time.Duration{
		"ACTION_COMMIT_DURATION":     r.ActionCommitDuration,
		"DISCUSSION_DURATION":        r.DiscussionDuration,
		"VOTING_DURATION":            r.VotingDuration,
		"CRITICAL_SABOTAGE_DURATION": r.CriticalSabotageDuration,
		"MIN_POPULATION_WAIT":        c.Pool.MinPopulationWait,
		"FILL_WAIT":                  c.Pool.FillWait,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Pool.SlotCount < 1 {
		errs = append(errs, errors.New("SLOT_COUNT must be at least 1"))
	}
	if c.Pool.Wager < 0 {
		errs = append(errs, errors.New("ROOM_WAGER must not be negative"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logger.Warn("config: invalid integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		logger.Warn("config: invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

// getDuration понимает "90s", "2m" и голое число секунд
func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn("config: invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ADMIN_TELEGRAM_IDS=123,456
func getIDs(key string) []int64 {
	var out []int64
	for _, part := range getList(key) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			logger.Warn("config: skipping invalid telegram id", "key", key, "value", part)
			continue
		}
		out = append(out, id)
	}
	return out
}
