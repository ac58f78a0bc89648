package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/tendant/agent-enroll/internal/config"
	"github.com/tendant/agent-enroll/internal/httputil"
)

// RateLimitConfig holds rate limiting configuration for a specific endpoint type.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Logger   *slog.Logger
}

// RateLimit creates an IP-based rate limiter middleware with logging.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Logger != nil {
				cfg.Logger.Warn("rate limit exceeded",
					"ip", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
					"user_agent", r.UserAgent(),
				)
			}
			httputil.Error(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

// NoRateLimit returns a no-op middleware when rate limiting is disabled.
func NoRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return next
	}
}

// Rate limiter groups.
const (
	LimiterAuth    = "auth"
	LimiterRefresh = "refresh"
	LimiterAPI     = "api"
	LimiterAgent   = "agent"
)

// CreateRateLimiters creates rate limiting middleware functions based on configuration.
func CreateRateLimiters(cfg config.RateLimitConfig, logger *slog.Logger) map[string]func(http.Handler) http.Handler {
	if !cfg.Enabled {
		noOp := NoRateLimit()
		return map[string]func(http.Handler) http.Handler{
			LimiterAuth:    noOp,
			LimiterRefresh: noOp,
			LimiterAPI:     noOp,
			LimiterAgent:   noOp,
		}
	}

	limit := func(requests, windowMinutes int) func(http.Handler) http.Handler {
		if requests <= 0 {
			return NoRateLimit()
		}
		if windowMinutes <= 0 {
			windowMinutes = 1
		}
		return RateLimit(RateLimitConfig{
			Requests: requests,
			Window:   time.Duration(windowMinutes) * time.Minute,
			Logger:   logger,
		})
	}

	return map[string]func(http.Handler) http.Handler{
		LimiterAuth:    limit(cfg.AuthRequestsPerMinute, cfg.AuthWindowMinutes),
		LimiterRefresh: limit(cfg.RefreshRequestsPerMinute, cfg.RefreshWindowMinutes),
		LimiterAPI:     limit(cfg.APIRequestsPerMinute, cfg.APIWindowMinutes),
		LimiterAgent:   limit(cfg.AgentRequestsPerMinute, cfg.AgentWindowMinutes),
	}
}
