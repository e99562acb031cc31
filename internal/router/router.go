package router

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/umtp/assist-gateway/internal/config"
	"github.com/umtp/assist-gateway/internal/handler"
	"github.com/umtp/assist-gateway/internal/metrics"
	"github.com/umtp/assist-gateway/internal/middleware"
	"github.com/umtp/assist-gateway/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Question *handler.QuestionHandler
	Hint     *handler.HintHandler
	WS       *handler.WSHandler
	System   *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// hintLimiter guards hint generation per browser session.
func SetupRouter(
	handlers *Handlers,
	hintLimiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	// Cookies identify the browser, so credentials are allowed whenever
	// origins are explicit.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	if cfg.OtelEnabled {
		router.Use(otelgin.Middleware(cfg.OtelServiceName))
	}

	// Request ID and request-scoped logger on every response.
	router.Use(response.RequestIDMiddleware(log))
	router.Use(middleware.RequestLogger())
	router.Use(metrics.MetricsMiddleware())

	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		Skip: func(c *gin.Context) bool {
			return c.Request.URL.Path == "/metrics" || strings.Contains(c.GetHeader("Accept"), "text/event-stream")
		},
	}))

	// ─── Ops (No Session) ──────────────────────────────────────────────
	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", metrics.PrometheusHandler())

	clientSession := middleware.ClientSession(middleware.CookieOptions{
		DeviceTTL: cfg.DeviceTTL,
		Secure:    cfg.SecureCookies,
	})

	// ─── 1. Question API (Cookies + Optional ID Token) ─────────────────
	api := router.Group("/api/v1")
	api.Use(clientSession, middleware.RequireClient(), middleware.OptionalIDToken())
	{
		api.GET("/questions", middleware.CacheControl(60), handlers.Question.ListQuestions)
		api.GET("/system/metrics", handlers.System.RuntimeMetricsSSE)

		q := api.Group("/questions/:id")
		q.Use(middleware.NoStore())
		{
			q.POST("/open", handlers.Question.OpenQuestion)
			q.GET("/state", handlers.Hint.GetState)
			q.PUT("/answers/:blank", handlers.Hint.SetAnswer)
			q.POST("/hints", hintLimiter.PerSession(), handlers.Hint.RequestHints)
			q.POST("/hints/:level/toggle", handlers.Hint.ToggleHint)
			q.POST("/hints/:level/rating", handlers.Hint.RateHint)
			q.POST("/submit", handlers.Hint.Submit)
			q.POST("/reset", handlers.Hint.Reset)
		}
	}

	// ─── 2. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(clientSession, middleware.RequireClient(), middleware.OptionalIDToken())
	{
		ws.GET("/questions/:id/stream", handlers.WS.HintStream)
	}

	return router
}
