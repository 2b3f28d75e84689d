package ports

import (
	"context"
	"time"

	"bank-node/internal/core/domain"
)

// LedgerService defines the account-mutation operations and their guarantees.
// Errors are *apperror.AppError values.
type LedgerService interface {
	CreateAccount(ctx context.Context) (*domain.Account, error)
	Deposit(ctx context.Context, addr domain.Address, amount int64) error
	Withdraw(ctx context.Context, addr domain.Address, amount int64) error
	Balance(ctx context.Context, addr domain.Address) (int64, error)
	RemoveAccount(ctx context.Context, addr domain.Address) error
	TotalBalance(ctx context.Context) (int64, error)
	AccountCount(ctx context.Context) (int64, error)
	BankCode() string
}

// AuditService records ledger mutations.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// RateLimiter counts commands per client key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// Metrics receives protocol engine observations.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	CommandHandled(code string, outcome string, elapsed time.Duration)
}
