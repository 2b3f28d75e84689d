package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"bank-node/internal/core/domain"
	"bank-node/internal/core/ports"
	"bank-node/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService for one bank.
type LedgerServiceImpl struct {
	accounts     ports.AccountRepository
	transactor   ports.DBTransactor
	bankCode     string
	queryTimeout time.Duration
	log          zerolog.Logger
}

// NewLedgerService creates a ledger bound to bankCode.
// A zero queryTimeout leaves the caller's deadline untouched.
func NewLedgerService(
	accounts ports.AccountRepository,
	transactor ports.DBTransactor,
	bankCode string,
	queryTimeout time.Duration,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		accounts:     accounts,
		transactor:   transactor,
		bankCode:     bankCode,
		queryTimeout: queryTimeout,
		log:          log,
	}
}

// BankCode returns the code this ledger serves.
func (s *LedgerServiceImpl) BankCode() string {
	return s.bankCode
}

// CreateAccount opens a zero-balance account under the ledger's bank code.
func (s *LedgerServiceImpl) CreateAccount(ctx context.Context) (*domain.Account, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	acc, err := s.accounts.Create(ctx, s.bankCode)
	if err != nil {
		return nil, apperror.StoreFailure(fmt.Errorf("create account: %w", err))
	}

	s.log.Debug().Str("account", acc.Address().String()).Msg("account created")
	return acc, nil
}

// Deposit adds amount to the account under a row lock.
func (s *LedgerServiceImpl) Deposit(ctx context.Context, addr domain.Address, amount int64) error {
	if amount <= 0 {
		return apperror.ErrAmountNotPositive()
	}

	return s.withLockedAccount(ctx, addr, func(ctx context.Context, tx pgx.Tx, acc *domain.Account) error {
		if acc.Balance > math.MaxInt64-amount {
			return apperror.ErrBalanceOverflow()
		}
		if err := s.accounts.UpdateBalance(ctx, tx, addr, acc.Balance+amount); err != nil {
			return apperror.StoreFailure(err)
		}
		return nil
	})
}

// Withdraw takes amount from the account under a row lock.
// The balance is left unchanged when it does not cover amount.
func (s *LedgerServiceImpl) Withdraw(ctx context.Context, addr domain.Address, amount int64) error {
	if amount <= 0 {
		return apperror.ErrAmountNotPositive()
	}

	return s.withLockedAccount(ctx, addr, func(ctx context.Context, tx pgx.Tx, acc *domain.Account) error {
		if !acc.CanWithdraw(amount) {
			return apperror.ErrInsufficientFunds()
		}
		if err := s.accounts.UpdateBalance(ctx, tx, addr, acc.Balance-amount); err != nil {
			return apperror.StoreFailure(err)
		}
		return nil
	})
}

// Balance reads the committed balance without locking.
func (s *LedgerServiceImpl) Balance(ctx context.Context, addr domain.Address) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	acc, err := s.accounts.GetByAddress(ctx, addr)
	if err != nil {
		return 0, apperror.StoreFailure(err)
	}
	if acc == nil {
		return 0, apperror.ErrAccountNotFound()
	}
	return acc.Balance, nil
}

// RemoveAccount deletes an account whose balance is zero.
func (s *LedgerServiceImpl) RemoveAccount(ctx context.Context, addr domain.Address) error {
	return s.withLockedAccount(ctx, addr, func(ctx context.Context, tx pgx.Tx, acc *domain.Account) error {
		if !acc.IsEmpty() {
			return apperror.ErrNonZeroBalance()
		}
		if err := s.accounts.Delete(ctx, tx, addr); err != nil {
			return apperror.StoreFailure(err)
		}
		return nil
	})
}

// TotalBalance sums every balance held under the ledger's bank code.
func (s *LedgerServiceImpl) TotalBalance(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	total, err := s.accounts.SumBalances(ctx, s.bankCode)
	if err != nil {
		return 0, apperror.StoreFailure(err)
	}
	return total, nil
}

// AccountCount counts the accounts held under the ledger's bank code.
func (s *LedgerServiceImpl) AccountCount(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	count, err := s.accounts.CountAccounts(ctx, s.bankCode)
	if err != nil {
		return 0, apperror.StoreFailure(err)
	}
	return count, nil
}

// withLockedAccount runs fn inside a transaction holding the account's row
// lock and commits when fn succeeds. A missing account yields AccountNotFound.
func (s *LedgerServiceImpl) withLockedAccount(
	ctx context.Context,
	addr domain.Address,
	fn func(ctx context.Context, tx pgx.Tx, acc *domain.Account) error,
) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.StoreFailure(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	acc, err := s.accounts.GetByAddressForUpdate(ctx, dbTx, addr)
	if err != nil {
		return apperror.StoreFailure(fmt.Errorf("lock account: %w", err))
	}
	if acc == nil {
		return apperror.ErrAccountNotFound()
	}

	if err := fn(ctx, dbTx, acc); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.StoreFailure(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (s *LedgerServiceImpl) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}
