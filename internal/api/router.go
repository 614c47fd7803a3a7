package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/talentpipe/sourcing/internal/config"
	"github.com/talentpipe/sourcing/internal/logger"
	"github.com/talentpipe/sourcing/internal/metrics"
	"github.com/talentpipe/sourcing/internal/queue"
)

const rateLimitWindow = time.Minute

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(
	handlers *Handlers,
	signer *queue.Signer,
	cfg *config.ServerConfig,
	debug bool,
	log logger.Logger,
) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.Use(RequestLogger(log))
	router.Use(CORSMiddleware(cfg.CORSOrigins))

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")

	// Queue callbacks: signed, rate limited.
	callbacks := v1.Group("")
	callbacks.Use(RateLimiter(cfg.RateLimitPerMinute, rateLimitWindow))
	callbacks.Use(SignatureAuth(signer, log))
	callbacks.POST("/scoring/candidate", handlers.ScoreCandidate)
	callbacks.POST("/workflow/scoring", handlers.DispatchScoring)
	callbacks.POST("/workflow/strategy", handlers.RunStrategy)

	// Client-facing endpoints.
	v1.POST("/searches/:id/strategies", handlers.LaunchStrategies)
	v1.GET("/searches/:id/progress", handlers.GetProgress)
	v1.POST("/credits/consume", handlers.ConsumeCredits)
	v1.GET("/credits/usage", handlers.GetCreditsUsage)

	return router
}
