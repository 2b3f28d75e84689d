package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited ledger mutation.
type AuditAction string

const (
	AuditActionCreate   AuditAction = "CREATE"
	AuditActionDeposit  AuditAction = "DEPOSIT"
	AuditActionWithdraw AuditAction = "WITHDRAW"
	AuditActionRemove   AuditAction = "REMOVE"
)

// AuditLog records one successful mutating command.
type AuditLog struct {
	ID            uuid.UUID   `json:"id"`
	Action        AuditAction `json:"action"`
	AccountNumber int         `json:"account_number"`
	BankCode      string      `json:"bank_code"`
	Amount        int64       `json:"amount,omitempty"`
	SessionID     string      `json:"session_id"`
	RemoteAddr    string      `json:"remote_addr"`
	CreatedAt     time.Time   `json:"created_at"`
}
