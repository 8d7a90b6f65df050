package handlers

import (
	"context"

	"impostor_relay/internal/domain"
	"impostor_relay/internal/game"
	"impostor_relay/internal/ws"
)

type hubView interface {
	Rooms() []ws.RoomInfo
	Room(id string) (*ws.Room, bool)
	Slots() []ws.SlotInfo
	Stats() ws.PoolStats
	Rules() game.Rules
	Lifecycle() ws.LifecycleConfig
}

type statsReader interface {
	Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
	PlayerStats(ctx context.Context, address string) (*domain.PlayerStats, error)
}

type gamesReader interface {
	Recent(ctx context.Context, limit int) ([]domain.GameRecord, error)
}

type balanceReader interface {
	Balance(ctx context.Context, address string) (int64, error)
}

// Handler - HTTP зеркало состояния пула. Только снимки, без изменений.
// Stats, Games и Balances могут быть nil, если база не настроена.
type Handler struct {
	Hub      hubView
	Stats    statsReader
	Games    gamesReader
	Balances balanceReader
	Version  string
}
