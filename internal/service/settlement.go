package service

import (
	"context"
	"errors"
	"fmt"

	"impostor_relay/internal/domain"
	"impostor_relay/internal/game"
	"impostor_relay/internal/logger"
	"impostor_relay/internal/repository"
)

type resultStore interface {
	Save(ctx context.Context, g *domain.GameRecord) (int64, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// SettlementService записывает итог партии и распределяет банк ставок.
// Подключается к хабу как приемник результатов.
type SettlementService struct {
	results resultStore
	ledger  ledgerStore
	cache   cacheInvalidator
	wager   int64
}

func NewSettlementService(results resultStore, ledger ledgerStore, cache cacheInvalidator, wager int64) *SettlementService {
	return &SettlementService{results: results, ledger: ledger, cache: cache, wager: wager}
}

// RecordResult: банк делится между победителями; при прерванной партии
// или без победителей каждому возвращается его ставка
func (s *SettlementService) RecordResult(ctx context.Context, res game.GameResult) error {
	pot := s.wager * int64(len(res.Players))
	payouts := s.payouts(res, pot)

	rec := &domain.GameRecord{
		RoomID:    res.RoomID,
		Winner:    string(res.Winner),
		Reason:    string(res.Reason),
		Rounds:    res.Rounds,
		Players:   len(res.Players),
		Pot:       pot,
		StartedAt: res.StartedAt,
		EndedAt:   res.EndedAt,
	}
	for _, p := range res.Players {
		rec.Participants = append(rec.Participants, domain.GameParticipant{
			Address:        p.Address,
			Role:           string(p.Role),
			Alive:          p.Alive,
			Won:            p.Won,
			Kills:          p.Kills,
			TasksCompleted: p.TasksCompleted,
			Payout:         payouts[p.Address],
		})
	}

	if _, err := s.results.Save(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrGameExists) {
			logger.Warn("SettlementService.RecordResult: game already recorded", "room", res.RoomID)
			return nil
		}
		return fmt.Errorf("save game: %w", err)
	}

	kind := domain.EntryPayout
	if len(res.Winners()) == 0 {
		kind = domain.EntryRefund
	}
	var failed []string
	for _, p := range res.Players {
		amount := payouts[p.Address]
		if amount <= 0 {
			continue
		}
		_, _, err := s.ledger.Apply(ctx, domain.LedgerEntry{
			Address: p.Address,
			Kind:    kind,
			Amount:  amount,
			Ref:     string(kind) + ":" + res.RoomID,
		})
		if err != nil {
			logger.Error("SettlementService.RecordResult: payout failed", "room", res.RoomID, "address", p.Address, "amount", amount, "error", err)
			failed = append(failed, p.Address)
		}
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			logger.Warn("SettlementService.RecordResult: leaderboard cache invalidate failed", "error", err)
		}
	}

	logger.Info("SettlementService.RecordResult: game settled", "room", res.RoomID, "winner", res.Winner, "reason", res.Reason, "pot", pot)
	if len(failed) > 0 {
		return fmt.Errorf("payout failed for %d players", len(failed))
	}
	return nil
}

func (s *SettlementService) payouts(res game.GameResult, pot int64) map[string]int64 {
	if pot <= 0 {
		return map[string]int64{}
	}
	if winners := res.Winners(); len(winners) > 0 {
		return domain.SplitPot(pot, winners)
	}
	out := make(map[string]int64, len(res.Players))
	for _, p := range res.Players {
		out[p.Address] = s.wager
	}
	return out
}
