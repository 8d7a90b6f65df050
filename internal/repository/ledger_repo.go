package repository

import (
	"context"
	"errors"

	"impostor_relay/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// балансы и журнал движений по адресам
type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// возвращает баланс адреса; неизвестный адрес имеет нулевой баланс
func (r *LedgerRepository) Balance(ctx context.Context, address string) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE address = $1`, address).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}

// Apply проводит запись журнала и меняет баланс в одной транзакции.
// Повтор записи с тем же (address, kind, ref) ничего не меняет: applied=false.
func (r *LedgerRepository) Apply(ctx context.Context, e domain.LedgerEntry) (applied bool, newBalance int64, err error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (address) VALUES ($1)
		ON CONFLICT (address) DO NOTHING
	`, e.Address)
	if err != nil {
		return false, 0, err
	}

	// блокируем строку баланса
	var balance int64
	if err = tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE address = $1 FOR UPDATE`, e.Address).Scan(&balance); err != nil {
		return false, 0, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (address, kind, amount, ref)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address, kind, ref) DO NOTHING
	`, e.Address, e.Kind, e.Amount, e.Ref)
	if err != nil {
		return false, 0, err
	}
	if tag.RowsAffected() == 0 {
		return false, balance, nil
	}

	if balance+e.Amount < 0 {
		return false, balance, domain.ErrInsufficientFunds
	}

	err = tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $1, updated_at = now()
		WHERE address = $2
		RETURNING balance
	`, e.Amount, e.Address).Scan(&newBalance)
	if err != nil {
		return false, 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return false, 0, err
	}
	return true, newBalance, nil
}

// последние движения по адресу
func (r *LedgerRepository) History(ctx context.Context, address string, limit int) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, address, kind, amount, ref, created_at
		FROM ledger_entries
		WHERE address = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Address, &e.Kind, &e.Amount, &e.Ref, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
