package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autoanalyze-backend/internal/analyses"
	"autoanalyze-backend/internal/shared/config"
	"autoanalyze-backend/internal/shared/metrics"
	"autoanalyze-backend/internal/shared/server/middleware"
	"autoanalyze-backend/internal/shared/server/respond"
)

const (
	startRateGroup = "START"
	pollRateGroup  = "POLL"
	otherRateGroup = "OTHER"
)

// RouterDeps carries the handlers mounted by NewRouter.
type RouterDeps struct {
	Config          config.Config
	AnalysisHandler *analyses.Handler
	Limiter         *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})

	if deps.AnalysisHandler != nil {
		limit := middleware.RateLimit(middleware.RateLimitConfig{
			DefaultGroup: otherRateGroup,
			GroupFor:     analysisRateGroup,
			Limiter:      deps.Limiter,
			Rules: map[string]middleware.RateLimitRule{
				startRateGroup: {Rate: deps.Config.StartRate, Burst: deps.Config.StartBurst},
				pollRateGroup:  {Rate: deps.Config.PollRate, Burst: deps.Config.PollBurst},
			},
		})
		deps.AnalysisHandler.RegisterRoutes(api, limit)
	}

	return r
}

// analysisRateGroup buckets start requests apart from progress polling.
// Cancel and results fall into a group without a rule.
func analysisRateGroup(c *gin.Context) string {
	switch c.FullPath() {
	case "/api/v1/auto-analyze/start":
		return startRateGroup
	case "/api/v1/auto-analyze/progress/:id":
		return pollRateGroup
	default:
		return otherRateGroup
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
