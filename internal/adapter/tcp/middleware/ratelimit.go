package middleware

import (
	"context"
	"net"
	"time"

	"bank-node/internal/adapter/tcp/protocol"
	"bank-node/internal/core/ports"
	"bank-node/pkg/apperror"
	"bank-node/pkg/response"

	"github.com/rs/zerolog"
)

// RateLimitRule bounds the commands one client host may issue per window.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// RateLimiter rejects commands from a client host over rule.
// When the limiter store fails, commands are allowed (degraded mode).
func RateLimiter(limiter ports.RateLimiter, rule RateLimitRule, log zerolog.Logger) protocol.Middleware {
	return func(next protocol.HandlerFunc) protocol.HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) string {
			key := clientHost(req.RemoteAddr)

			result, err := limiter.Allow(ctx, key, rule.Limit, rule.Window)
			if err != nil {
				log.Warn().Err(err).Str("client", key).Msg("rate limit check failed, allowing command (degraded mode)")
				return next(ctx, req)
			}

			if !result.Allowed {
				err := apperror.ErrRateLimited()
				req.Err = err
				return response.Error(err)
			}
			return next(ctx, req)
		}
	}
}

// clientHost strips the port so all connections from one host share a budget.
func clientHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
