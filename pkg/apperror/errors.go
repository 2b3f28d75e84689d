package apperror

import (
	"errors"
	"fmt"
)

// AppError is a structured error that maps to a single protocol response line.
type AppError struct {
	Code    string
	Message string // Exact text written to the client
	Err     error  // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// HasCode reports whether err is an *AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

const (
	// Command grammar (CMD)
	CodeEmptyCommand   = "CMD_001"
	CodeUnknownCommand = "CMD_002"
	CodeInvalidArity   = "CMD_003"
	CodeInvalidAddress = "CMD_004"
	CodeInvalidAmount  = "CMD_005"
	CodeLineTooLong    = "CMD_006"

	// Ledger business rules (ACC)
	CodeAccountNotFound   = "ACC_001"
	CodeInsufficientFunds = "ACC_002"
	CodeNonZeroBalance    = "ACC_003"

	// Rate limiting (RATE)
	CodeRateLimited = "RATE_001"

	// System & infrastructure (SYS)
	CodeStoreFailure = "SYS_001"
)

// MsgStoreFailure is the generic line shown for any internal failure.
const MsgStoreFailure = "Error processing command."

// ---- Command grammar (CMD) ----

func ErrEmptyCommand() *AppError {
	return New(CodeEmptyCommand, "Error: Empty command.")
}

func ErrUnknownCommand() *AppError {
	return New(CodeUnknownCommand, "Error: Unknown command. Type HELP for a list of commands.")
}

// ErrInvalidArity reports a wrong argument count and shows the expected usage.
func ErrInvalidArity(usage string) *AppError {
	return New(CodeInvalidArity, fmt.Sprintf("Error: Invalid command format. Usage: %s", usage))
}

func ErrInvalidAddress() *AppError {
	return New(CodeInvalidAddress, "Error: Invalid account string format. Expected <number>/<bank_code>.")
}

func ErrAmountNotPositive() *AppError {
	return New(CodeInvalidAmount, "Error: Amount must be positive.")
}

func ErrAmountFormat() *AppError {
	return New(CodeInvalidAmount, "Error: Invalid amount format.")
}

func ErrBalanceOverflow() *AppError {
	return New(CodeInvalidAmount, "Error: Amount would overflow the account balance.")
}

func ErrLineTooLong() *AppError {
	return New(CodeLineTooLong, "Error: Command too long.")
}

// ---- Ledger business rules (ACC) ----

func ErrAccountNotFound() *AppError {
	return New(CodeAccountNotFound, "Error: Account not found.")
}

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Error: Amount exceeds current balance.")
}

func ErrNonZeroBalance() *AppError {
	return New(CodeNonZeroBalance, "Error: Account balance is not 0, account cannot be removed.")
}

// ---- Rate limiting (RATE) ----

func ErrRateLimited() *AppError {
	return New(CodeRateLimited, "Error: Rate limit exceeded. Try again later.")
}

// ---- System & infrastructure (SYS) ----

// StoreFailure wraps an internal store error behind the generic client message.
func StoreFailure(err error) *AppError {
	return Wrap(CodeStoreFailure, MsgStoreFailure, err)
}
