package service

import (
	"context"
	"errors"

	"impostor_relay/internal/domain"
)

var ErrInvalidAmount = errors.New("invalid amount")

type ledgerStore interface {
	Apply(ctx context.Context, e domain.LedgerEntry) (applied bool, newBalance int64, err error)
	Balance(ctx context.Context, address string) (int64, error)
}

// BalanceService - ставки и возвраты для хаба комнат
type BalanceService struct {
	ledger ledgerStore
}

func NewBalanceService(ledger ledgerStore) *BalanceService {
	return &BalanceService{ledger: ledger}
}

// Debit списывает ставку при входе в комнату
func (s *BalanceService) Debit(ctx context.Context, address string, amount int64, ref string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	_, _, err := s.ledger.Apply(ctx, domain.LedgerEntry{Address: address, Kind: domain.EntryWager, Amount: -amount, Ref: ref})
	return err
}

// Credit возвращает ставку; повтор с тем же ref не начисляет второй раз
func (s *BalanceService) Credit(ctx context.Context, address string, amount int64, ref string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	_, _, err := s.ledger.Apply(ctx, domain.LedgerEntry{Address: address, Kind: domain.EntryRefund, Amount: amount, Ref: ref})
	return err
}

func (s *BalanceService) Balance(ctx context.Context, address string) (int64, error) {
	return s.ledger.Balance(ctx, address)
}
