package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/ordersaga/internal/service"
	"github.com/utafrali/ordersaga/pkg/health"
	"github.com/utafrali/ordersaga/pkg/middleware"
)

// RouterConfig holds the HTTP surface settings.
type RouterConfig struct {
	AllowedOrigins []string
	// AdminJWTSecret guards inventory reset. Empty leaves it open.
	AdminJWTSecret string
	// SubmitRPS and SubmitBurst limit order submission per client IP. A
	// non-positive rate disables the limit.
	SubmitRPS    float64
	SubmitBurst  int
	PollInterval time.Duration
}

// NewRouter creates a chi router with all order saga routes registered.
func NewRouter(
	orderService *service.OrderService,
	inventoryService *service.InventoryService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("ordersaga"))
	r.Use(middleware.PrometheusMetrics("ordersaga"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	orderHandler := NewOrderHandler(orderService, cfg.PollInterval, logger)
	inventoryHandler := NewInventoryHandler(inventoryService, logger)

	r.Route("/api/v1/orders", func(r chi.Router) {
		submit := http.HandlerFunc(orderHandler.SubmitOrder)
		if cfg.SubmitRPS > 0 {
			limiter := middleware.NewRateLimiter(cfg.SubmitRPS, cfg.SubmitBurst)
			r.With(limiter.Middleware(logger)).Post("/", submit)
		} else {
			r.Post("/", submit)
		}
		r.Get("/", orderHandler.ListOrders)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", orderHandler.GetResult)
			r.Get("/progress", orderHandler.GetProgress)
			r.Get("/history", orderHandler.GetHistory)
			r.Get("/events", orderHandler.StreamProgress)
		})
	})

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Get("/", inventoryHandler.GetInventory)

		if cfg.AdminJWTSecret != "" {
			r.With(middleware.RequireRole(cfg.AdminJWTSecret, "admin", logger)).Post("/reset", inventoryHandler.ResetInventory)
		} else {
			r.Post("/reset", inventoryHandler.ResetInventory)
		}
	})

	return r
}
