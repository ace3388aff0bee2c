package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/internal/service"
	"github.com/utafrali/ordersaga/pkg/httputil"
	"github.com/utafrali/ordersaga/pkg/pagination"
)

// DefaultPollInterval is how often the progress stream re-reads a run.
const DefaultPollInterval = 2 * time.Second

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service      *service.OrderService
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, pollInterval time.Duration, logger *slog.Logger) *OrderHandler {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &OrderHandler{
		service:      svc,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// --- Request/response DTOs ---

// SubmitOrderRequest is the JSON request body for submitting an order.
type SubmitOrderRequest struct {
	ProductID       string `json:"productId" validate:"required,max=64,printascii"`
	Quantity        int    `json:"quantity" validate:"required,gt=0,lte=10000"`
	CustomerID      string `json:"customerId" validate:"required,max=128"`
	CustomerAddress string `json:"customerAddress" validate:"required,max=512"`
}

// SubmitOrderResponse carries the run ID used by every other order endpoint.
type SubmitOrderResponse struct {
	WorkflowID string `json:"workflowId"`
}

// --- Handlers ---

// SubmitOrder handles POST /api/v1/orders
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	runID, err := h.service.Submit(r.Context(), domain.OrderInput{
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		CustomerID:      req.CustomerID,
		CustomerAddress: req.CustomerAddress,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Location", "/api/v1/orders/"+runID)
	httputil.WriteData(w, http.StatusAccepted, SubmitOrderResponse{WorkflowID: runID})
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.List(r.Context(), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// GetResult handles GET /api/v1/orders/{id}
func (h *OrderHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, result)
}

// GetProgress handles GET /api/v1/orders/{id}/progress
func (h *OrderHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.service.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, progress)
}

// GetHistory handles GET /api/v1/orders/{id}/history
func (h *OrderHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, entries)
}
