package http

import (
	"net/http"
	"strings"

	"github.com/atalho/atalho-url/internal/config"
	"github.com/atalho/atalho-url/internal/infrastructure/telemetry"
	"github.com/atalho/atalho-url/internal/processing/shortener"
	redisStorage "github.com/atalho/atalho-url/internal/storage/redis"
	"github.com/atalho/atalho-url/internal/transport/http/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var spanNames = map[string]string{
	"GET /health":              "health",
	"GET /metrics":             "metrics",
	"POST /api/links":          "links.create",
	"GET /api/links":           "links.list",
	"GET /api/links/{code}":    "links.info",
	"DELETE /api/links/{code}": "links.delete",
	"GET /api/stats":           "links.stats",
	"GET /{code}":              "links.redirect",
}

type RouterOptions struct {
	EnableCORS    bool
	EnableLogging bool
	EnableMetrics bool

	// RateLimiter guards link creation when set.
	RateLimiter *redisStorage.FixedWindowLimiter
}

func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		EnableCORS:    true,
		EnableLogging: true,
		EnableMetrics: true,
	}
}

func NewRouter(cfg *config.Config, svc *shortener.Service, storePing, cachePing Pinger) http.Handler {
	return NewRouterWithOptions(cfg, svc, storePing, cachePing, DefaultRouterOptions())
}

func NewRouterWithOptions(cfg *config.Config, svc *shortener.Service, storePing, cachePing Pinger, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	healthHandler := NewHealthHandler(storePing, cachePing)
	linksHandler := NewLinksHandler(cfg, svc)

	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.Handle("GET /metrics", healthHandler.Metrics())

	writeMiddlewares := []func(http.Handler) http.Handler{
		middleware.APIKeyMiddleware(cfg.Security.APIKeys),
	}
	if opts.RateLimiter != nil {
		writeMiddlewares = append(writeMiddlewares, middleware.RateLimitMiddleware(opts.RateLimiter))
	}

	mux.Handle("POST /api/links", middleware.Chain(
		http.HandlerFunc(linksHandler.Create),
		writeMiddlewares...,
	))
	mux.Handle("DELETE /api/links/{code}", middleware.Chain(
		http.HandlerFunc(linksHandler.Delete),
		middleware.APIKeyMiddleware(cfg.Security.APIKeys),
	))

	mux.HandleFunc("GET /api/links", linksHandler.List)
	mux.HandleFunc("GET /api/links/{code}", linksHandler.Info)
	mux.Handle("GET /api/stats", middleware.Chain(
		http.HandlerFunc(linksHandler.Stats),
		middleware.APIKeyMiddleware(cfg.Security.APIKeys),
	))
	mux.HandleFunc("GET /{code}", linksHandler.Redirect)

	var innerHandler http.Handler = mux
	if opts.EnableCORS {
		innerHandler = middleware.CORSMiddleware(innerHandler)
	}
	if opts.EnableLogging {
		innerHandler = middleware.LoggingMiddleware(innerHandler)
	}
	if opts.EnableMetrics {
		innerHandler = middleware.MetricsMiddleware(innerHandler)
	}

	otelOptions := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			key := r.Method + " " + r.Pattern
			if name, ok := spanNames[key]; ok {
				return name
			}
			if r.Pattern != "" {
				return r.Pattern
			}
			path := strings.TrimSpace(r.URL.Path)
			if path == "" {
				path = "/"
			}
			return path
		}),
	}

	if telemetry.TracerProvider != nil {
		otelOptions = append(otelOptions, otelhttp.WithTracerProvider(telemetry.TracerProvider))
	}

	return otelhttp.NewHandler(innerHandler, cfg.App.Name, otelOptions...)
}
