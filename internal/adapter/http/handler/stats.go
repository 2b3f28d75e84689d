package handler

import (
	"errors"
	"net/http"

	"bank-node/internal/core/ports"
	"bank-node/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SessionCounter reports the number of connected protocol clients.
type SessionCounter interface {
	ActiveSessions() int64
}

type statsResponse struct {
	BankCode       string `json:"bank_code"`
	Accounts       int64  `json:"accounts"`
	TotalBalance   int64  `json:"total_balance"`
	ActiveSessions int64  `json:"active_sessions"`
}

// Stats handles GET /stats with the same aggregates BA and BN report.
// Store errors are logged; the body only carries the client-safe message.
func Stats(ledger ports.LedgerService, sessions SessionCounter, log zerolog.Logger) gin.HandlerFunc {
	fail := func(c *gin.Context, err error) {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("stats query failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": publicMessage(err)})
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		total, err := ledger.TotalBalance(ctx)
		if err != nil {
			fail(c, err)
			return
		}
		count, err := ledger.AccountCount(ctx)
		if err != nil {
			fail(c, err)
			return
		}

		resp := statsResponse{
			BankCode:     ledger.BankCode(),
			Accounts:     count,
			TotalBalance: total,
		}
		if sessions != nil {
			resp.ActiveSessions = sessions.ActiveSessions()
		}
		c.JSON(http.StatusOK, resp)
	}
}

func publicMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return apperror.MsgStoreFailure
}
