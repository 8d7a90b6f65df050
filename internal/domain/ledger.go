package domain

import (
	"errors"
	"time"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Баланс игрока по адресу кошелька
type Account struct {
	Address   string    `db:"address" json:"address"`
	Balance   int64     `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Тип движения по балансу
type EntryKind string

const (
	EntryWager  EntryKind = "wager"  // ставка при входе в комнату
	EntryRefund EntryKind = "refund" // возврат, если партия не состоялась
	EntryPayout EntryKind = "payout" // выигрыш
)

// Запись журнала. Ref связывает ее с комнатой ("wager:<room>")
type LedgerEntry struct {
	ID        int64     `db:"id" json:"id"`
	Address   string    `db:"address" json:"address"`
	Kind      EntryKind `db:"kind" json:"kind"`
	Amount    int64     `db:"amount" json:"amount"`
	Ref       string    `db:"ref" json:"ref"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SplitPot делит банк поровну между победителями; остаток от деления
// достается первым по порядку
func SplitPot(pot int64, winners []string) map[string]int64 {
	out := make(map[string]int64, len(winners))
	if pot <= 0 || len(winners) == 0 {
		return out
	}
	share := pot / int64(len(winners))
	rest := pot % int64(len(winners))
	for i, w := range winners {
		out[w] = share
		if int64(i) < rest {
			out[w]++
		}
	}
	return out
}
