package handler

import (
	"bank-node/internal/adapter/tcp/middleware"
	"bank-node/internal/adapter/tcp/protocol"
	"bank-node/internal/core/ports"

	"github.com/rs/zerolog"
)

// RouterDeps holds every dependency of the command pipeline.
// AuditSvc, RateLimiter and Metrics are optional.
type RouterDeps struct {
	Ledger      ports.LedgerService
	AuditSvc    ports.AuditService
	RateLimiter ports.RateLimiter
	RateRule    middleware.RateLimitRule
	Metrics     ports.Metrics
	Logger      zerolog.Logger
}

// NewRouter builds the command pipeline served to every session.
func NewRouter(deps RouterDeps) protocol.HandlerFunc {
	dispatcher := NewDispatcher(deps.Ledger)

	mws := []protocol.Middleware{
		middleware.Recovery(deps.Logger),
		middleware.RequestLogger(deps.Logger),
	}
	if deps.Metrics != nil {
		mws = append(mws, middleware.Metrics(deps.Metrics))
	}
	if deps.RateLimiter != nil {
		mws = append(mws, middleware.RateLimiter(deps.RateLimiter, deps.RateRule, deps.Logger))
	}
	if deps.AuditSvc != nil {
		mws = append(mws, middleware.AuditLog(deps.AuditSvc))
	}

	return protocol.Chain(dispatcher.Handle, mws...)
}
