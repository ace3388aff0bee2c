package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/ordersaga/internal/domain"
	"github.com/utafrali/ordersaga/pkg/httputil"
)

// Server-sent event names.
const (
	sseEventProgress = "progress"
	sseEventResult   = "result"
	sseEventError    = "error"
)

// StreamSnapshot is the payload of every progress stream event.
type StreamSnapshot struct {
	Progress domain.ActivityProgress `json:"progress"`
	Result   domain.RunResult        `json:"result"`
}

// StreamProgress handles GET /api/v1/orders/{id}/events. It sends a progress
// event whenever the snapshot changes and a final result event once the run
// closes, then ends the stream.
func (h *OrderHandler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	progress, result, err := h.service.Snapshot(ctx, runID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.WarnContext(ctx, "could not clear write deadline", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(event string, v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var last *StreamSnapshot
	for {
		snap := StreamSnapshot{Progress: progress, Result: result}
		if result.Status != domain.ResultRunning {
			send(sseEventResult, snap)
			return
		}
		if last == nil || *last != snap {
			if !send(sseEventProgress, snap) {
				return
			}
			last = &snap
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		progress, result, err = h.service.Snapshot(ctx, runID)
		if err != nil {
			if ctx.Err() == nil {
				h.logger.ErrorContext(ctx, "progress stream snapshot failed",
					slog.String("run_id", runID),
					slog.String("error", err.Error()),
				)
				send(sseEventError, map[string]string{"message": "snapshot unavailable"})
			}
			return
		}
	}
}
