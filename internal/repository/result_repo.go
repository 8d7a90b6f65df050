package repository

import (
	"context"
	"errors"

	"impostor_relay/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrGameExists = errors.New("game already recorded")

// результаты партий и статистика игроков
type ResultRepository struct {
	db *pgxpool.Pool
}

func NewResultRepository(db *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{db: db}
}

// Save записывает партию вместе с участниками. Повторная запись той же
// комнаты возвращает ErrGameExists.
func (r *ResultRepository) Save(ctx context.Context, g *domain.GameRecord) (int64, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO games (room_id, winner, reason, rounds, players, pot, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (room_id) DO NOTHING
		RETURNING id
	`, g.RoomID, g.Winner, g.Reason, g.Rounds, g.Players, g.Pot, g.StartedAt, g.EndedAt).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrGameExists
		}
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, p := range g.Participants {
		batch.Queue(`
			INSERT INTO game_players (game_id, address, role, alive, won, kills, tasks_completed, payout)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, p.Address, p.Role, p.Alive, p.Won, p.Kills, p.TasksCompleted, p.Payout)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	g.ID = id
	return id, nil
}

// статистика адреса по всем партиям
func (r *ResultRepository) Stats(ctx context.Context, address string) (*domain.PlayerStats, error) {
	st := domain.PlayerStats{Address: address}
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE won),
			COUNT(*) FILTER (WHERE role = 'impostor'),
			COUNT(*) FILTER (WHERE role = 'impostor' AND won),
			COALESCE(SUM(kills), 0),
			COALESCE(SUM(tasks_completed), 0),
			COALESCE(SUM(payout), 0)
		FROM game_players
		WHERE address = $1
	`, address).Scan(&st.Games, &st.Wins, &st.ImpostorGames, &st.ImpostorWins, &st.Kills, &st.Tasks, &st.Earned)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// лучшие игроки по числу побед
func (r *ResultRepository) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT address, COUNT(*) FILTER (WHERE won) AS wins, COUNT(*) AS games
		FROM game_players
		GROUP BY address
		ORDER BY wins DESC, games ASC, address ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		e := domain.LeaderboardEntry{Rank: len(out) + 1}
		if err := rows.Scan(&e.Address, &e.Wins, &e.Games); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// последние партии без участников
func (r *ResultRepository) Recent(ctx context.Context, limit int) ([]domain.GameRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, room_id, winner, reason, rounds, players, pot, started_at, ended_at
		FROM games
		ORDER BY ended_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GameRecord
	for rows.Next() {
		var g domain.GameRecord
		if err := rows.Scan(&g.ID, &g.RoomID, &g.Winner, &g.Reason, &g.Rounds, &g.Players, &g.Pot, &g.StartedAt, &g.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
