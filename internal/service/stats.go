package service

import (
	"context"

	"impostor_relay/internal/domain"
	"impostor_relay/internal/logger"
	"impostor_relay/internal/ton"
)

type statsStore interface {
	Stats(ctx context.Context, address string) (*domain.PlayerStats, error)
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

type leaderboardCache interface {
	Get(ctx context.Context) ([]domain.LeaderboardEntry, bool, error)
	Set(ctx context.Context, entries []domain.LeaderboardEntry) error
}

const LeaderboardSize = 100

// StatsService - чтение статистики для HTTP зеркала
type StatsService struct {
	store statsStore
	cache leaderboardCache
}

func NewStatsService(store statsStore, cache leaderboardCache) *StatsService {
	return &StatsService{store: store, cache: cache}
}

// Leaderboard читает таблицу из кэша, при промахе - из базы
func (s *StatsService) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	if s.cache != nil {
		entries, ok, err := s.cache.Get(ctx)
		if err != nil {
			logger.Warn("StatsService.Leaderboard: cache read failed", "error", err)
		} else if ok {
			return entries, nil
		}
	}

	entries, err := s.store.Top(ctx, LeaderboardSize)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, entries); err != nil {
			logger.Warn("StatsService.Leaderboard: cache write failed", "error", err)
		}
	}
	return entries, nil
}

// PlayerStats принимает адрес в любом формате
func (s *StatsService) PlayerStats(ctx context.Context, address string) (*domain.PlayerStats, error) {
	addr, err := ton.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.store.Stats(ctx, addr)
}
