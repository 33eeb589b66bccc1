package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richardliu001/wallet-ledger/internal/config"
	"go.uber.org/zap"
)

func NewRouter(initiator Initiator, wallets Wallets, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	registerOps(r)
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, initiator, wallets)
	return r
}

// NewMetricsRouter serves only the health and Prometheus endpoints, for the
// binaries without an API.
func NewMetricsRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	registerOps(r)
	return r
}

// registerOps mounts /healthz and /metrics ahead of the rate limiter.
func registerOps(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
