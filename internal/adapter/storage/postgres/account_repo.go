package postgres

import (
	"context"
	"errors"
	"fmt"

	"bank-node/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ErrAccountRangeExhausted is returned by Create when every number in the
// assignable range is taken under the bank code.
var ErrAccountRangeExhausted = errors.New("account number range exhausted")

const accountColumns = "account_number, bank_code, balance, created_at, updated_at"

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a PostgreSQL-backed account repository.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Create allocates the lowest free account number under bankCode.
// Allocation for one bank code is serialized by a transaction-scoped
// advisory lock, so concurrent creators never pick the same number.
func (r *AccountRepo) Create(ctx context.Context, bankCode string) (*domain.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin account allocation: %w", err)
	}

	acc, err := r.allocate(ctx, tx, bankCode)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit account allocation: %w", err)
	}
	return acc, nil
}

func (r *AccountRepo) allocate(ctx context.Context, tx pgx.Tx, bankCode string) (*domain.Account, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, bankCode); err != nil {
		return nil, fmt.Errorf("lock account allocation: %w", err)
	}

	query := `INSERT INTO accounts (account_number, bank_code, balance)
		SELECT n, $1, 0 FROM generate_series($2::INT, $3::INT) AS n
		WHERE NOT EXISTS (
			SELECT 1 FROM accounts a WHERE a.account_number = n AND a.bank_code = $1
		)
		ORDER BY n
		LIMIT 1
		RETURNING ` + accountColumns

	acc, err := scanAccount(tx.QueryRow(ctx, query,
		bankCode, domain.MinAccountNumber, domain.MaxAccountNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountRangeExhausted
	}
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return acc, nil
}

// GetByAddress reads an account without locking it.
func (r *AccountRepo) GetByAddress(ctx context.Context, addr domain.Address) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE account_number = $1 AND bank_code = $2`

	acc, err := scanAccount(r.pool.QueryRow(ctx, query, addr.Number, addr.BankCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", addr, err)
	}
	return acc, nil
}

// GetByAddressForUpdate locks the account row until tx ends.
func (r *AccountRepo) GetByAddressForUpdate(ctx context.Context, tx pgx.Tx, addr domain.Address) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE account_number = $1 AND bank_code = $2
		FOR UPDATE`

	acc, err := scanAccount(tx.QueryRow(ctx, query, addr.Number, addr.BankCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s for update: %w", addr, err)
	}
	return acc, nil
}

// UpdateBalance sets the balance of a locked account.
func (r *AccountRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, addr domain.Address, balance int64) error {
	query := `UPDATE accounts SET balance = $1, updated_at = NOW()
		WHERE account_number = $2 AND bank_code = $3`

	tag, err := tx.Exec(ctx, query, balance, addr.Number, addr.BankCode)
	if err != nil {
		return fmt.Errorf("update balance %s: %w", addr, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update balance %s: no rows affected", addr)
	}
	return nil
}

// Delete removes a locked account.
func (r *AccountRepo) Delete(ctx context.Context, tx pgx.Tx, addr domain.Address) error {
	query := `DELETE FROM accounts WHERE account_number = $1 AND bank_code = $2`

	tag, err := tx.Exec(ctx, query, addr.Number, addr.BankCode)
	if err != nil {
		return fmt.Errorf("delete account %s: %w", addr, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete account %s: no rows affected", addr)
	}
	return nil
}

// SumBalances totals every balance held under bankCode.
func (r *AccountRepo) SumBalances(ctx context.Context, bankCode string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(balance), 0)::BIGINT FROM accounts WHERE bank_code = $1`,
		bankCode,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum balances: %w", err)
	}
	return total, nil
}

// CountAccounts counts the accounts held under bankCode.
func (r *AccountRepo) CountAccounts(ctx context.Context, bankCode string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts WHERE bank_code = $1`,
		bankCode,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return count, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.Number, &a.BankCode, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
