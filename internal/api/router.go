package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDKey = "request_id"

// CreateLimitMessage is returned when a client exceeds the booking creation limit.
const CreateLimitMessage = "Too many booking attempts, please try again later."

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Auth          *Authenticator
	Bookings      *BookingHandler
	CreateLimiter *RateLimiter
	Ready         map[string]HealthCheck
	CORSOrigins   []string
	Logger        zerolog.Logger
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(cfg.Logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", readiness(cfg.Ready))

	v1 := r.Group("/v1")

	create := []gin.HandlerFunc{}
	if cfg.CreateLimiter != nil {
		create = append(create, cfg.CreateLimiter.Middleware(CreateLimitMessage))
	}
	create = append(create, cfg.Auth.OptionalAuth(), cfg.Bookings.Create)
	v1.POST("/bookings", create...)

	v1.GET("/resources/:id/price", cfg.Bookings.Price)

	authed := v1.Group("", cfg.Auth.RequireAuth())
	authed.GET("/bookings/:id", cfg.Bookings.Get)
	authed.POST("/bookings/:id/cancel", cfg.Bookings.Cancel)
	authed.PUT("/bookings/:id/confirm", cfg.Bookings.Confirm)
	authed.PUT("/bookings/:id/reject", cfg.Bookings.Reject)
	authed.GET("/me/bookings", cfg.Bookings.ListMine)
	authed.GET("/tenants/:tenant_id/bookings", cfg.Bookings.ListBranch)
	authed.POST("/admin/exports", cfg.Bookings.Export)

	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Debug()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		} else if status >= http.StatusBadRequest {
			ev = log.Info()
		}
		ev.Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func readiness(checks map[string]HealthCheck) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		result := gin.H{}
		code := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				result[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			result[name] = "ok"
		}
		c.JSON(code, gin.H{"ready": code == http.StatusOK, "checks": result})
	}
}
