package service

import (
	"context"
	"testing"

	"impostor_relay/internal/domain"
	"impostor_relay/internal/ton"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStats struct{ mock.Mock }

func (m *mockStats) Stats(ctx context.Context, address string) (*domain.PlayerStats, error) {
	args := m.Called(ctx, address)
	st, _ := args.Get(0).(*domain.PlayerStats)
	return st, args.Error(1)
}

func (m *mockStats) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	args := m.Called(ctx, limit)
	entries, _ := args.Get(0).([]domain.LeaderboardEntry)
	return entries, args.Error(1)
}

type mockBoardCache struct{ mock.Mock }

func (m *mockBoardCache) Get(ctx context.Context) ([]domain.LeaderboardEntry, bool, error) {
	args := m.Called(ctx)
	entries, _ := args.Get(0).([]domain.LeaderboardEntry)
	return entries, args.Bool(1), args.Error(2)
}

func (m *mockBoardCache) Set(ctx context.Context, entries []domain.LeaderboardEntry) error {
	return m.Called(ctx, entries).Error(0)
}

func TestStats_LeaderboardCacheHit(t *testing.T) {
	store, cache := &mockStats{}, &mockBoardCache{}
	cached := []domain.LeaderboardEntry{{Rank: 1, Address: "a", Wins: 3, Games: 4}}
	cache.On("Get", mock.Anything).Return(cached, true, nil)

	got, err := NewStatsService(store, cache).Leaderboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cached, got)
	store.AssertNotCalled(t, "Top", mock.Anything, mock.Anything)
}

func TestStats_LeaderboardCacheMissFillsCache(t *testing.T) {
	store, cache := &mockStats{}, &mockBoardCache{}
	fresh := []domain.LeaderboardEntry{{Rank: 1, Address: "b", Wins: 1, Games: 1}}
	cache.On("Get", mock.Anything).Return(nil, false, nil)
	store.On("Top", mock.Anything, LeaderboardSize).Return(fresh, nil)
	cache.On("Set", mock.Anything, fresh).Return(nil)

	got, err := NewStatsService(store, cache).Leaderboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
	cache.AssertExpectations(t)
}

func TestStats_LeaderboardCacheErrorFallsBack(t *testing.T) {
	store, cache := &mockStats{}, &mockBoardCache{}
	cache.On("Get", mock.Anything).Return(nil, false, assert.AnError)
	cache.On("Set", mock.Anything, mock.Anything).Return(assert.AnError)
	store.On("Top", mock.Anything, LeaderboardSize).Return([]domain.LeaderboardEntry{}, nil)

	_, err := NewStatsService(store, cache).Leaderboard(context.Background())
	assert.NoError(t, err)
}

func TestStats_PlayerStatsNormalizesAddress(t *testing.T) {
	store := &mockStats{}
	addr := rawAddr(7)
	norm, err := ton.NormalizeAddress(addr)
	require.NoError(t, err)
	store.On("Stats", mock.Anything, norm).Return(&domain.PlayerStats{Address: norm, Games: 2}, nil)

	s := NewStatsService(store, nil)
	st, err := s.PlayerStats(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Games)

	_, err = s.PlayerStats(context.Background(), "garbage")
	assert.ErrorIs(t, err, ton.ErrBadAddress)
}
