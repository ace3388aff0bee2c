package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/ordersaga/internal/service"
	"github.com/utafrali/ordersaga/pkg/httputil"
	"github.com/utafrali/ordersaga/pkg/middleware"
)

// InventoryHandler handles HTTP requests for inventory endpoints.
type InventoryHandler struct {
	service *service.InventoryService
	logger  *slog.Logger
}

// NewInventoryHandler creates a new inventory HTTP handler.
func NewInventoryHandler(svc *service.InventoryService, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{
		service: svc,
		logger:  logger,
	}
}

// GetInventory handles GET /api/v1/inventory. With ?productId= it returns a
// single product, otherwise the whole ledger with aggregates.
func (h *InventoryHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	if productID := r.URL.Query().Get("productId"); productID != "" {
		view, err := h.service.Item(r.Context(), productID)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		httputil.WriteData(w, http.StatusOK, view)
		return
	}

	overview, err := h.service.Overview(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, overview)
}

// ResetInventory handles POST /api/v1/inventory/reset
func (h *InventoryHandler) ResetInventory(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Reset(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "inventory reset",
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
	)
	httputil.WriteData(w, http.StatusOK, map[string]any{
		"message": "inventory reset to default catalog",
		"stats":   stats,
	})
}
