package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bank-node/internal/adapter/tcp/protocol"
	"bank-node/internal/core/ports"
	"bank-node/pkg/apperror"

	"github.com/rs/zerolog"
)

// Outcome labels a handled request for logs and metrics.
const (
	OutcomeOK          = "ok"
	OutcomeClientError = "client_error"
	OutcomeRateLimited = "rate_limited"
	OutcomeStoreError  = "store_error"
)

// Outcome classifies the error recorded on a request.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case apperror.HasCode(err, apperror.CodeRateLimited):
		return OutcomeRateLimited
	case apperror.HasCode(err, apperror.CodeStoreFailure):
		return OutcomeStoreError
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return OutcomeStoreError
	}
	return OutcomeClientError
}

// RequestLogger logs every command with its outcome and latency.
func RequestLogger(log zerolog.Logger) protocol.Middleware {
	return func(next protocol.HandlerFunc) protocol.HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) string {
			start := time.Now()
			line := next(ctx, req)
			latency := time.Since(start)

			outcome := Outcome(req.Err)
			event := log.Info()
			switch outcome {
			case OutcomeStoreError:
				event = log.Error().Err(req.Err)
			case OutcomeClientError, OutcomeRateLimited:
				event = log.Warn().Str("reply", line)
			}

			event.
				Str("session_id", req.SessionID).
				Str("remote", req.RemoteAddr).
				Str("command", commandCode(req)).
				Str("outcome", outcome).
				Dur("latency", latency).
				Msg("command")
			return line
		}
	}
}

// Recovery turns a panic in a handler into the generic failure line.
func Recovery(log zerolog.Logger) protocol.Middleware {
	return func(next protocol.HandlerFunc) protocol.HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (line string) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("session_id", req.SessionID).
						Str("line", req.Line).
						Msg("panic recovered")
					req.Err = apperror.StoreFailure(fmt.Errorf("panic: %v", r))
					line = apperror.MsgStoreFailure
				}
			}()
			return next(ctx, req)
		}
	}
}

// Metrics reports every command to m.
func Metrics(m ports.Metrics) protocol.Middleware {
	return func(next protocol.HandlerFunc) protocol.HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) string {
			start := time.Now()
			line := next(ctx, req)
			m.CommandHandled(commandCode(req), Outcome(req.Err), time.Since(start))
			return line
		}
	}
}

func commandCode(req *protocol.Request) string {
	if req.Command == nil {
		return ""
	}
	return string(req.Command.Code)
}
