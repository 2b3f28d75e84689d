package domain

import (
	"strconv"
	"time"
)

// Account numbers are assigned by the store from this inclusive range.
const (
	MinAccountNumber = 10000
	MaxAccountNumber = 99999
)

// Account is one balance held at a bank.
type Account struct {
	Number    int       `json:"account_number"`
	BankCode  string    `json:"bank_code"`
	Balance   int64     `json:"balance"` // smallest currency unit, never negative
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Address returns the wire address of the account.
func (a *Account) Address() Address {
	return Address{Number: a.Number, BankCode: a.BankCode}
}

// CanWithdraw reports whether amount can be taken without going negative.
func (a *Account) CanWithdraw(amount int64) bool {
	return amount <= a.Balance
}

// IsEmpty reports whether the account holds no funds and may be removed.
func (a *Account) IsEmpty() bool {
	return a.Balance == 0
}

// Address identifies an account on the wire as "<number>/<bank_code>".
type Address struct {
	Number   int
	BankCode string
}

func (a Address) String() string {
	return strconv.Itoa(a.Number) + "/" + a.BankCode
}

// ValidAccountNumber reports whether n lies in the assignable range.
func ValidAccountNumber(n int) bool {
	return n >= MinAccountNumber && n <= MaxAccountNumber
}
