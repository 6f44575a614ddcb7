// Package http contains the HTTP transport layer for the heatmap API.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "bondmap/internal/errors"
	"bondmap/internal/grid"
	"bondmap/internal/pipeline"
	"bondmap/internal/store"
)

// GridService is the pipeline surface the handlers depend on
type GridService interface {
	Run(ctx context.Context) (*pipeline.RunResult, error)
	Snapshot(ctx context.Context) (*grid.Snapshot, error)
}

// GridHandler handles heatmap grid HTTP requests
type GridHandler struct {
	service GridService
	logger  *slog.Logger
}

// NewGridHandler creates a new grid handler
func NewGridHandler(service GridService, logger *slog.Logger) *GridHandler {
	return &GridHandler{
		service: service,
		logger:  logger,
	}
}

// GetGrid returns the full classified heatmap snapshot
func (h *GridHandler) GetGrid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, err := h.service.Snapshot(ctx)
	if err != nil {
		h.renderSnapshotError(w, r, err)
		return
	}

	render.JSON(w, r, snap)
}

// SummaryResponse is the /summary payload: batch-level statistics plus the
// thresholds the classification was derived from.
type SummaryResponse struct {
	ComputedAt string          `json:"computed_at"`
	CellCount  int             `json:"cell_count"`
	Thresholds grid.Thresholds `json:"thresholds"`
	Summary    grid.Summary    `json:"summary"`
}

// GetSummary returns batch-level statistics without the per-cell detail
func (h *GridHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, err := h.service.Snapshot(ctx)
	if err != nil {
		h.renderSnapshotError(w, r, err)
		return
	}

	render.JSON(w, r, SummaryResponse{
		ComputedAt: snap.ComputedAt.Format("2006-01-02T15:04:05Z07:00"),
		CellCount:  len(snap.Cells),
		Thresholds: snap.Thresholds,
		Summary:    snap.Summary,
	})
}

// Refresh recomputes metrics from the trade log and publishes a new batch
func (h *GridHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.logger.InfoContext(ctx, "refresh requested", "remote_addr", r.RemoteAddr)

	result, err := h.service.Run(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "refresh failed", "error", err)
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.RunFailedError(err)))
		return
	}

	render.JSON(w, r, result)
}

func (h *GridHandler) renderSnapshotError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	if errors.Is(err, store.ErrNoBatch) {
		h.logger.InfoContext(ctx, "no metrics batch published yet")
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrNoData))
		return
	}

	h.logger.ErrorContext(ctx, "failed to build snapshot", "error", err)
	render.Render(w, r, apierrors.NewErrorResponse(apierrors.SnapshotFailedError(err)))
}
