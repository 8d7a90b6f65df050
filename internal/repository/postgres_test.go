//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"impostor_relay/internal/domain"
	"impostor_relay/internal/migrations"
	"impostor_relay/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testusername"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}
	if err := migrations.Migrate(connString); err != nil {
		panic(err)
	}

	pool, err = pgxpool.New(ctx, connString)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	pool.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestLedgerRepository(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewLedgerRepository(pool)

	t.Run("CreditCreatesAccount", func(t *testing.T) {
		applied, balance, err := repo.Apply(ctx, domain.LedgerEntry{Address: "0:aa", Kind: domain.EntryPayout, Amount: 100, Ref: "payout:r0"})
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, int64(100), balance)
	})

	t.Run("DuplicateRefIsIgnored", func(t *testing.T) {
		applied, balance, err := repo.Apply(ctx, domain.LedgerEntry{Address: "0:aa", Kind: domain.EntryPayout, Amount: 100, Ref: "payout:r0"})
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, int64(100), balance)
	})

	t.Run("DebitBelowZero", func(t *testing.T) {
		_, _, err := repo.Apply(ctx, domain.LedgerEntry{Address: "0:aa", Kind: domain.EntryWager, Amount: -500, Ref: "wager:r1"})
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

		balance, err := repo.Balance(ctx, "0:aa")
		require.NoError(t, err)
		assert.Equal(t, int64(100), balance)
	})

	t.Run("History", func(t *testing.T) {
		_, _, err := repo.Apply(ctx, domain.LedgerEntry{Address: "0:aa", Kind: domain.EntryWager, Amount: -30, Ref: "wager:r2"})
		require.NoError(t, err)

		entries, err := repo.History(ctx, "0:aa", 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, domain.EntryWager, entries[0].Kind)
		assert.Equal(t, int64(-30), entries[0].Amount)
	})
}

func TestResultRepository(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewResultRepository(pool)
	now := time.Now().UTC().Truncate(time.Second)

	game := &domain.GameRecord{
		RoomID: "room-1", Winner: "crewmates", Reason: "tasks", Rounds: 3, Players: 3,
		StartedAt: now.Add(-5 * time.Minute), EndedAt: now,
		Participants: []domain.GameParticipant{
			{Address: "0:01", Role: "crewmate", Alive: true, Won: true, TasksCompleted: 3},
			{Address: "0:02", Role: "crewmate", Alive: false, Won: true, TasksCompleted: 1},
			{Address: "0:03", Role: "impostor", Alive: true, Won: false, Kills: 1},
		},
	}

	t.Run("Save", func(t *testing.T) {
		id, err := repo.Save(ctx, game)
		require.NoError(t, err)
		assert.NotZero(t, id)
	})

	t.Run("SaveTwice", func(t *testing.T) {
		_, err := repo.Save(ctx, game)
		assert.ErrorIs(t, err, repository.ErrGameExists)
	})

	t.Run("Stats", func(t *testing.T) {
		st, err := repo.Stats(ctx, "0:03")
		require.NoError(t, err)
		assert.Equal(t, 1, st.Games)
		assert.Equal(t, 0, st.Wins)
		assert.Equal(t, 1, st.ImpostorGames)
		assert.Equal(t, 1, st.Kills)
	})

	t.Run("Top", func(t *testing.T) {
		top, err := repo.Top(ctx, 10)
		require.NoError(t, err)
		require.Len(t, top, 3)
		assert.Equal(t, 1, top[0].Rank)
		assert.Equal(t, 1, top[0].Wins)
		assert.Equal(t, "0:03", top[2].Address)
	})

	t.Run("Recent", func(t *testing.T) {
		games, err := repo.Recent(ctx, 5)
		require.NoError(t, err)
		require.Len(t, games, 1)
		assert.Equal(t, "room-1", games[0].RoomID)
	})
}
