// Package memory is an in-process account store implementing the same ports
// as the PostgreSQL adapter. Row locks are held from GetByAddressForUpdate
// until the owning transaction commits or rolls back.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bank-node/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ErrAccountRangeExhausted is returned by Create when no number is free.
var ErrAccountRangeExhausted = errors.New("account number range exhausted")

type row struct {
	lock chan struct{} // capacity 1; holding a token means holding the row lock
	acc  domain.Account
}

// Store implements ports.AccountRepository, ports.DBTransactor and
// ports.HealthChecker.
type Store struct {
	mu       sync.Mutex
	accounts map[domain.Address]*row
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[domain.Address]*row),
		now:      time.Now,
	}
}

// Begin starts a transaction. Writes are staged and applied on Commit.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{
		store:   s,
		held:    make(map[domain.Address]*row),
		balance: make(map[domain.Address]int64),
		deleted: make(map[domain.Address]bool),
	}, nil
}

// Create allocates the lowest free account number under bankCode.
func (s *Store) Create(ctx context.Context, bankCode string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for n := domain.MinAccountNumber; n <= domain.MaxAccountNumber; n++ {
		addr := domain.Address{Number: n, BankCode: bankCode}
		if _, taken := s.accounts[addr]; taken {
			continue
		}
		now := s.now().UTC()
		r := &row{
			lock: make(chan struct{}, 1),
			acc:  domain.Account{Number: n, BankCode: bankCode, CreatedAt: now, UpdatedAt: now},
		}
		s.accounts[addr] = r
		acc := r.acc
		return &acc, nil
	}
	return nil, ErrAccountRangeExhausted
}

// GetByAddress returns the last committed state of the account.
func (s *Store) GetByAddress(ctx context.Context, addr domain.Address) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.accounts[addr]
	if !ok {
		return nil, nil
	}
	acc := r.acc
	return &acc, nil
}

// GetByAddressForUpdate locks the account row for the life of tx.
// It blocks while another transaction holds the row, until ctx is done.
func (s *Store) GetByAddressForUpdate(ctx context.Context, tx pgx.Tx, addr domain.Address) (*domain.Account, error) {
	t, err := s.ownTx(tx)
	if err != nil {
		return nil, err
	}

	if _, held := t.held[addr]; !held {
		s.mu.Lock()
		r, ok := s.accounts[addr]
		s.mu.Unlock()
		if !ok {
			return nil, nil
		}

		select {
		case r.lock <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("lock account %s: %w", addr, ctx.Err())
		}

		// The row may have been removed while we waited.
		s.mu.Lock()
		current := s.accounts[addr]
		s.mu.Unlock()
		if current != r {
			<-r.lock
			return nil, nil
		}
		t.held[addr] = r
	}

	if t.deleted[addr] {
		return nil, nil
	}

	s.mu.Lock()
	acc := t.held[addr].acc
	s.mu.Unlock()
	if b, staged := t.balance[addr]; staged {
		acc.Balance = b
	}
	return &acc, nil
}

// UpdateBalance stages a new balance for a row locked by tx.
func (s *Store) UpdateBalance(ctx context.Context, tx pgx.Tx, addr domain.Address, balance int64) error {
	t, err := s.ownTx(tx)
	if err != nil {
		return err
	}
	if _, held := t.held[addr]; !held || t.deleted[addr] {
		return fmt.Errorf("update balance %s: row not locked by transaction", addr)
	}
	if balance < 0 {
		return fmt.Errorf("update balance %s: negative balance %d", addr, balance)
	}
	t.balance[addr] = balance
	return nil
}

// Delete stages removal of a row locked by tx.
func (s *Store) Delete(ctx context.Context, tx pgx.Tx, addr domain.Address) error {
	t, err := s.ownTx(tx)
	if err != nil {
		return err
	}
	if _, held := t.held[addr]; !held || t.deleted[addr] {
		return fmt.Errorf("delete account %s: row not locked by transaction", addr)
	}
	t.deleted[addr] = true
	return nil
}

// SumBalances totals committed balances under bankCode.
func (s *Store) SumBalances(ctx context.Context, bankCode string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for addr, r := range s.accounts {
		if addr.BankCode == bankCode {
			total += r.acc.Balance
		}
	}
	return total, nil
}

// CountAccounts counts committed accounts under bankCode.
func (s *Store) CountAccounts(ctx context.Context, bankCode string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for addr := range s.accounts {
		if addr.BankCode == bankCode {
			count++
		}
	}
	return count, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Name returns the dependency name.
func (s *Store) Name() string {
	return "memory"
}

func (s *Store) ownTx(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return nil, errors.New("memory store: foreign transaction")
	}
	if t.done {
		return nil, pgx.ErrTxClosed
	}
	return t, nil
}

// Tx is a memory store transaction. Only Commit and Rollback are
// implemented; the embedded pgx.Tx is nil and other methods panic.
type Tx struct {
	pgx.Tx

	store   *Store
	held    map[domain.Address]*row
	balance map[domain.Address]int64
	deleted map[domain.Address]bool
	done    bool
}

// Commit applies staged writes and releases every row lock.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}

	s := t.store
	s.mu.Lock()
	now := s.now().UTC()
	for addr, b := range t.balance {
		if t.deleted[addr] {
			continue
		}
		r := t.held[addr]
		r.acc.Balance = b
		r.acc.UpdatedAt = now
	}
	for addr := range t.deleted {
		delete(s.accounts, addr)
	}
	s.mu.Unlock()

	t.release()
	return nil
}

// Rollback discards staged writes and releases every row lock.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.release()
	return nil
}

func (t *Tx) release() {
	t.done = true
	for _, r := range t.held {
		<-r.lock
	}
	t.held = nil
}
