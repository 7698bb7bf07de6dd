// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, caller identity, logging/redaction, panic
// recovery, compression, metrics, CORS, security headers, idempotency, and
// rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"path"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-challenge-backend/internal/config"
	"github.com/tbourn/go-challenge-backend/internal/docs"
	"github.com/tbourn/go-challenge-backend/internal/domain"
	"github.com/tbourn/go-challenge-backend/internal/http/handlers"
	"github.com/tbourn/go-challenge-backend/internal/http/middleware"
	"github.com/tbourn/go-challenge-backend/internal/services"
)

// IdempotencyFinder looks up a still-valid idempotency record.
// *repo.IdempotencyRepo satisfies it.
type IdempotencyFinder interface {
	FindActive(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error)
}

// App is everything the router needs from the composition root.
type App struct {
	Services    handlers.Services
	Idempotency IdempotencyFinder
}

const submitEvaluationPath = "/challenges/:id/evaluations"

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Identity: resolve the caller before anything keys on it
//  4. Logging (redacting in release, verbose in debug)
//  5. Recovery: capture panics after logger
//  6. Body size limiter and gzip
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, app App, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Caller identity
	r.Use(middleware.Identity())

	// 4) Structured logging; redaction outside debug mode
	if cfg.GinMode == gin.DebugMode {
		r.Use(middleware.Logger())
	} else {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-API-Key"},
		}))
	}

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit (1 MiB) and response compression
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation for submissions (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope:  services.ScopeSubmitEvaluation,
			Route:  joinRoute(cfg.APIBasePath, submitEvaluationPath),
		},
		idempotencyLookup(app.Idempotency),
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		RPS:       cfg.RateRPS,
		Burst:     cfg.RateBurst,
		WriteCost: cfg.RateWriteCost,
		Key:       middleware.KeyByUserOrIP(),
	})
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", handlers.HeaderIdempotencyReplayed}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{joinRoute(cfg.APIBasePath, "/users/me")},
		EnablePolicy:    true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(app.Services)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Challenges
		api.POST("/challenges", h.CreateChallenge)
		api.GET("/challenges", h.ListChallenges)
		api.GET("/challenges/:id", h.GetChallenge)
		api.PUT("/challenges/:id", h.UpdateChallenge)
		api.DELETE("/challenges/:id", h.DeleteChallenge)
		api.POST("/challenges/:id/publish", h.PublishChallenge)
		api.POST("/challenges/:id/archive", h.ArchiveChallenge)

		// Evaluations
		api.POST(submitEvaluationPath, h.SubmitEvaluation)
		api.GET("/evaluations/:id", h.GetEvaluation)
		api.POST("/evaluations/:id/complete", h.CompleteEvaluation)

		// Recommendations
		api.POST("/recommendations/:id/accept", h.AcceptRecommendation)
		api.POST("/recommendations/:id/dismiss", h.DismissRecommendation)

		// Current user
		me := api.Group("/users/me")
		me.GET("/evaluations", h.ListEvaluations)
		me.GET("/progress", h.ListProgress)
		me.PUT("/progress", h.RecordScore)
		me.GET("/progress/:challengeId", h.GetProgress)
		me.POST("/recommendations", h.GenerateRecommendation)
		me.GET("/recommendations", h.ListRecommendations)
		me.GET("/journey", h.ListJourney)
	}
}

// idempotencyLookup adapts a finder to the middleware's lookup. Lookup errors
// are treated as misses; the service re-checks inside its transaction.
func idempotencyLookup(f IdempotencyFinder) middleware.IdempotencyLookup {
	if f == nil {
		return nil
	}
	return func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		rec, err := f.FindActive(ctx, userID, scope, key, now)
		if err != nil || rec == nil {
			return false, nil
		}
		return true, nil
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinRoute renders the full route pattern Gin reports for a path mounted
// under prefix.
func joinRoute(prefix, p string) string {
	if prefix == "" || prefix == "/" {
		return p
	}
	return path.Join(prefix, p)
}
