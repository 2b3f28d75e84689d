package ports

import (
	"context"

	"bank-node/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// AccountRepository defines persistence operations for accounts.
// Lookups return nil, nil when the account does not exist.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type AccountRepository interface {
	// Create allocates a free account number under bankCode with a zero balance.
	Create(ctx context.Context, bankCode string) (*domain.Account, error)
	GetByAddress(ctx context.Context, addr domain.Address) (*domain.Account, error)
	GetByAddressForUpdate(ctx context.Context, tx pgx.Tx, addr domain.Address) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, addr domain.Address, balance int64) error
	Delete(ctx context.Context, tx pgx.Tx, addr domain.Address) error
	SumBalances(ctx context.Context, bankCode string) (int64, error)
	CountAccounts(ctx context.Context, bankCode string) (int64, error)
}

// AuditRepository persists audit records.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
