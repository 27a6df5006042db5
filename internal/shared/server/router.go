package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"german-ocr/internal/gateway/jobs"
	"german-ocr/internal/services/health"
	"german-ocr/internal/shared/config"
	"german-ocr/internal/shared/metrics"
	"german-ocr/internal/shared/server/middleware"
	"german-ocr/internal/shared/server/respond"
)

const (
	healthPath  = "/healthz"
	metricsPath = "/metrics"

	rateGroupDefault = "DEFAULT"
	rateGroupPolling = "POLLING"
)

// RouterDeps are the handlers the gateway exposes.
type RouterDeps struct {
	Config      config.Config
	JobsHandler *jobs.Handler
	Health      *health.Service
	RateLimiter *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	cfg := deps.Config

	// Status polls get their own bucket so a waiting client cannot starve
	// its own submissions.
	rules := map[string]middleware.RateLimitRule{
		rateGroupDefault: {Rate: cfg.RateLimitRate, Burst: cfg.RateLimitBurst},
		rateGroupPolling: {Rate: cfg.RateLimitRate * 2, Burst: cfg.RateLimitBurst * 2},
	}

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(middleware.Credentials{APIKey: cfg.APIKey, APISecret: cfg.APISecret}, healthPath, metricsPath),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:        rules,
			DefaultGroup: rateGroupDefault,
			GroupFor:     rateGroupFor,
			Limiter:      deps.RateLimiter,
		}),
	)

	r.GET(healthPath, func(c *gin.Context) {
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})
	r.GET(metricsPath, metrics.Handler())

	v1 := r.Group("/v1")
	if deps.JobsHandler != nil {
		deps.JobsHandler.RegisterRoutes(v1)
	}

	return r
}

func rateGroupFor(c *gin.Context) string {
	switch {
	case c.Request.URL.Path == healthPath || c.Request.URL.Path == metricsPath:
		return "UNLIMITED"
	case c.Request.Method == http.MethodGet && strings.HasPrefix(c.Request.URL.Path, "/v1/jobs/"):
		return rateGroupPolling
	default:
		return rateGroupDefault
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
