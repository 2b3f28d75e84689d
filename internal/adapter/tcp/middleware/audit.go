package middleware

import (
	"context"
	"time"

	"bank-node/internal/adapter/tcp/protocol"
	"bank-node/internal/core/domain"
	"bank-node/internal/core/ports"

	"github.com/google/uuid"
)

// AuditLog records every successful ledger mutation.
func AuditLog(auditSvc ports.AuditService) protocol.Middleware {
	return func(next protocol.HandlerFunc) protocol.HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) string {
			line := next(ctx, req)

			if req.Err != nil || req.Command == nil {
				return line
			}

			entry := auditEntry(req)
			if entry == nil {
				return line
			}
			auditSvc.Log(ctx, entry)
			return line
		}
	}
}

func auditEntry(req *protocol.Request) *domain.AuditLog {
	cmd := req.Command
	addr := cmd.Address

	var action domain.AuditAction
	switch cmd.Code {
	case protocol.CodeCreateAccount:
		if req.Created == nil {
			return nil
		}
		action, addr = domain.AuditActionCreate, *req.Created
	case protocol.CodeDeposit:
		action = domain.AuditActionDeposit
	case protocol.CodeWithdraw:
		action = domain.AuditActionWithdraw
	case protocol.CodeRemove:
		action = domain.AuditActionRemove
	default:
		return nil
	}

	return &domain.AuditLog{
		ID:            uuid.New(),
		Action:        action,
		AccountNumber: addr.Number,
		BankCode:      addr.BankCode,
		Amount:        cmd.Amount,
		SessionID:     req.SessionID,
		RemoteAddr:    req.RemoteAddr,
		CreatedAt:     time.Now().UTC(),
	}
}
