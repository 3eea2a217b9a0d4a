// Package httpapi exposes the translation service over HTTP with Gin. It owns
// the middleware chain (tracing, correlation ids, redacted access logs, panic
// recovery, metrics, idempotency, rate limiting, compression, CORS, security
// headers) and mounts the language, session, and history routes under the
// configured base path.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-translingo-backend/docs" // registers the OpenAPI document
	"github.com/tbourn/go-translingo-backend/internal/app"
	"github.com/tbourn/go-translingo-backend/internal/config"
	"github.com/tbourn/go-translingo-backend/internal/domain"
	"github.com/tbourn/go-translingo-backend/internal/http/handlers"
	"github.com/tbourn/go-translingo-backend/internal/http/middleware"
	"github.com/tbourn/go-translingo-backend/internal/repo"
)

const (
	maxBodyBytes = 64 << 10

	// Per-session budget for text updates; keystrokes arrive in bursts.
	textRPS   = 20
	textBurst = 40
)

// idempotencyStore persists Idempotency-Key outcomes in the history database.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Get proxies repo.GetIdempotency.
func (s idempotencyStore) Get(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
}

// Create proxies repo.CreateIdempotency with the configured TTL.
func (s idempotencyStore) Create(ctx context.Context, userID, scope, key, resourceID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resourceID, status, s.ttl)
	return err
}

// seen reports whether a live record exists; lookup errors count as a miss
// so a storage hiccup never blocks a request.
func (s idempotencyStore) seen(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
	rec, err := s.Get(ctx, userID, scope, key, now)
	if err != nil || rec == nil {
		return false, nil
	}
	return true, nil
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per user/IP, bypass on replay)
//  9. gzip, except the SSE stream and /metrics
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, a *app.App, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
		// Language search terms may carry user text.
		MaskQuery: []string{"q"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	idem := idempotencyStore{db: a.DB, ttl: cfg.IdempotencyTTL}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.seen))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics"}),
		gzip.WithExcludedPathsRegexs([]string{".*/stream$"}),
	))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		EnablePolicy:    true,
		NoStorePrefixes: []string{joinPath(apiBase, "/sessions"), joinPath(apiBase, "/history")},
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(a.Languages, a.Sessions, a.History, handlers.WithIdempotency(idem))
	textRL := middleware.NewRateLimiter(textRPS, textBurst, middleware.KeyBySession())

	api := groupWithPrefix(r, apiBase)
	{
		// Languages
		api.GET("/languages", h.ListLanguages)
		api.GET("/languages/selection", h.GetSelection)
		api.PUT("/languages/:slot", h.SelectLanguage)
		api.POST("/languages/swap", h.SwapLanguages)

		// Sessions
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions/:id", h.GetSession)
		api.DELETE("/sessions/:id", h.DeleteSession)
		api.POST("/sessions/:id/attach", h.AttachSession)
		api.POST("/sessions/:id/detach", h.DetachSession)
		api.PUT("/sessions/:id/text", textRL.Handler(), h.SetText)
		api.PUT("/sessions/:id/languages/:slot", h.SelectSessionLanguage)
		api.GET("/sessions/:id/events", h.DrainEvents)
		api.GET("/sessions/:id/stream", h.StreamSession)

		// History
		api.GET("/history", h.ListHistory)
		api.GET("/history/stream", h.StreamHistory)
		api.GET("/favorites", h.ListFavorites)
		api.GET("/favorites/stream", h.StreamFavorites)
		api.POST("/history/:id/favorite", h.ToggleFavorite)
		api.DELETE("/history/:id", h.DeleteHistory)
	}
}

// corsMiddleware allows every origin when origins is empty, otherwise only
// the listed ones (echoed back with Vary: Origin).
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", "X-User-ID", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"},
		AllowCredentials: false, // must remain false with AllowAllOrigins
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// ACAO: * even without an Origin header, for simple probes.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
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

func joinPath(base, p string) string {
	return strings.TrimRight(base, "/") + p
}
