package protocol

import (
	"context"

	"bank-node/internal/core/domain"
)

// Request is one framed command line and the connection it arrived on.
// The dispatcher fills Command once the line parses and Err when the
// response is an error line, so wrapping middleware can inspect both.
type Request struct {
	Line       string
	SessionID  string
	RemoteAddr string

	Command *Command
	Err     error

	// Created is the address assigned by a successful AC.
	Created *domain.Address
}

// HandlerFunc turns one request into exactly one response line (without terminator).
type HandlerFunc func(ctx context.Context, req *Request) string

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain applies middlewares so the first one listed runs outermost.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
