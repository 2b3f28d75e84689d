package handler

import (
	"bank-node/internal/adapter/http/middleware"
	"bank-node/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up admin routes.
type RouterDeps struct {
	HealthCheckers []ports.HealthChecker
	Ledger         ports.LedgerService // nil = /stats disabled
	Sessions       SessionCounter
	Gatherer       prometheus.Gatherer // nil = /metrics disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine serving the admin surface.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))

	// Health check (deep: verifies the account store and Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	if deps.Ledger != nil {
		r.GET("/stats", Stats(deps.Ledger, deps.Sessions, deps.Logger))
	}

	return r
}
