// Package httpapi mounts the directory API on a Gin engine.
//
// Middleware runs in this order:
//
//	otelgin → RequestID → RedactingLogger → Recovery → body limit → gzip →
//	Metrics → BearerAuth → IdempotencyValidator → RateLimiter → CORS →
//	SecurityHeaders → handler
//
// Recovery sits after the logger so panics are logged with the request id.
// The idempotency check runs before the rate limiter so a replayed create
// is not refused with 429. Every failure, including those raised by
// middleware, uses the handlers envelope.
package httpapi

import (
	"context"
	"errors"
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

	"github.com/tbourn/go-billsplit/docs"
	"github.com/tbourn/go-billsplit/internal/config"
	"github.com/tbourn/go-billsplit/internal/domain"
	"github.com/tbourn/go-billsplit/internal/http/handlers"
	"github.com/tbourn/go-billsplit/internal/http/middleware"
	"github.com/tbourn/go-billsplit/internal/repo"
	"github.com/tbourn/go-billsplit/internal/services"
)

const (
	maxBodyBytes = 1 << 20
	corsMaxAge   = 12 * time.Hour
	// writeCost is the number of rate-limit tokens a POST takes.
	writeCost = 2
)

// groupRepoShim satisfies services.GroupRepo with the repo package funcs.
type groupRepoShim struct{}

func (groupRepoShim) CreateGroup(ctx context.Context, db *gorm.DB, owner, name string, members []string, expenses []domain.Expense) (*domain.Group, error) {
	return repo.CreateGroup(ctx, db, owner, name, members, expenses)
}

func (groupRepoShim) GetGroup(ctx context.Context, db *gorm.DB, id string) (*domain.Group, error) {
	return repo.GetGroup(ctx, db, id)
}

func (groupRepoShim) ListGroupsForUser(ctx context.Context, db *gorm.DB, email string) ([]domain.Group, error) {
	return repo.ListGroupsForUser(ctx, db, email)
}

func (groupRepoShim) GroupsStats(ctx context.Context, db *gorm.DB, email string) (int64, int64, *time.Time, error) {
	return repo.GroupsStats(ctx, db, email)
}

func (groupRepoShim) GetUsersByEmails(ctx context.Context, db *gorm.DB, emails []string) ([]domain.User, error) {
	return repo.GetUsersByEmails(ctx, db, emails)
}

// RegisterRoutes installs the middleware chain and mounts /health,
// /metrics, /swagger when enabled and the API under cfg.APIBasePath.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	base := cfg.APIBasePath

	dirSvc := services.NewDirectoryService(db)
	groupSvc := services.NewGroupService(db, groupRepoShim{})
	if cfg.IdempotencyTTL > 0 {
		groupSvc.IdempotencyTTL = cfg.IdempotencyTTL
	}

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{middleware.HeaderIdempotencyKey},
			MaskQuery:   []string{"q"},
		}),
		middleware.Recovery(),
		limitBody(maxBodyBytes),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})),
		middleware.Metrics(),
	)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(
		middleware.BearerAuth(authenticator(dirSvc), middleware.AuthOptions{
			Skip: func(c *gin.Context) bool {
				return c.Request.Method == http.MethodOptions || !underBase(c.Request.URL.Path, base)
			},
		}),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope:  createGroupScope(joinPath(base, "/groups")),
		}, idempotencyLookup(db)),
		middleware.NewRateLimiter(middleware.RateLimitOptions{
			RPS:       cfg.RateRPS,
			Burst:     cfg.RateBurst,
			WriteCost: writeCost,
		}).Handler(),
	)
	r.Use(corsHandlers(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		PrivateCache: true,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = base
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(dirSvc, groupSvc)
	api := r.Group(strings.TrimRight(base, "/"))

	api.GET("/me", h.Me)
	api.GET("/search", h.Search)
	api.POST("/friends/details", h.FriendDetails)
	api.POST("/friends/add", h.AddFriend)
	api.POST("/friends/remove", h.RemoveFriend)

	api.GET("/groups", h.ListGroups)
	api.POST("/groups", h.CreateGroup)
	api.GET("/groups/:id", h.GetGroup)
}

// authenticator resolves a bearer token to the caller's email. An unknown
// token is a rejection, not an error.
func authenticator(dir *services.DirectoryService) middleware.Authenticator {
	return func(ctx context.Context, token string) (string, bool, error) {
		u, err := dir.Authenticate(ctx, token)
		switch {
		case errors.Is(err, services.ErrUnauthorized):
			return "", false, nil
		case err != nil:
			return "", false, err
		}
		return u.Email, true, nil
	}
}

func createGroupScope(route string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		if c.Request.Method == http.MethodPost && c.FullPath() == route {
			return services.IdempotencyScopeCreateGroup
		}
		return ""
	}
}

// idempotencyLookup finds the group an earlier create with the same key
// produced. A missing or expired record is a miss.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, scope, key string, now time.Time) (string, error) {
		rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && rec == nil) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return rec.ResourceID, nil
	}
}

// corsHandlers allows any origin when none is configured. Otherwise only
// listed origins are echoed back, with Vary: Origin.
func corsHandlers(origins []string) []gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"},
		MaxAge:        corsMaxAge,
	}

	if len(origins) == 0 {
		cc.AllowAllOrigins = true
		// gin-contrib/cors skips requests without an Origin header.
		star := func(c *gin.Context) {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Next()
		}
		return []gin.HandlerFunc{star, cors.New(cc)}
	}

	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	cc.AllowOrigins = origins
	echo := func(c *gin.Context) {
		if o := c.GetHeader("Origin"); allowed[o] {
			c.Header("Access-Control-Allow-Origin", o)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Next()
	}
	return []gin.HandlerFunc{echo, cors.New(cc)}
}

// limitBody caps request bodies; reads past maxBytes fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func joinPath(base, p string) string {
	return strings.TrimRight(base, "/") + p
}

// underBase reports whether path is an API path. With a root base everything
// but /health, /metrics and the docs is.
func underBase(path, base string) bool {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return path != "/health" && path != "/metrics" && !strings.HasPrefix(path, "/swagger/")
	}
	return path == base || strings.HasPrefix(path, base+"/")
}
