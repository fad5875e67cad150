package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"rsm-inventory-bot/internal/esi"
	"rsm-inventory-bot/internal/middleware"
	"rsm-inventory-bot/internal/model"
	"rsm-inventory-bot/internal/service"
	"rsm-inventory-bot/pkg/apierror"
	"rsm-inventory-bot/pkg/response"

	"github.com/rs/zerolog"
)

const maxSummaryBody = 4 << 10

// SummaryService runs inventory cycles and exposes the last result.
type SummaryService interface {
	Query(ctx context.Context, text string) (*model.Summary, error)
	LastSummary(ctx context.Context) (*model.Summary, error)
}

// SummaryHandler serves inventory summaries.
type SummaryHandler struct {
	svc SummaryService
}

func NewSummaryHandler(svc SummaryService) *SummaryHandler {
	return &SummaryHandler{svc: svc}
}

// QueryRequest is the body of POST /api/v1/summary.
type QueryRequest struct {
	Location string `json:"location"`
}

// GetLast handles GET /api/v1/summary
func (h *SummaryHandler) GetLast(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.LastSummary(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrNoSummary) {
			response.Error(w, apierror.NotFound("No summary has been built recently"))
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to read summary")
		response.Error(w, apierror.ServiceUnavailable("Summary store unavailable"))
		return
	}
	response.OK(w, s)
}

// Query handles POST /api/v1/summary
func (h *SummaryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSummaryBody))
	if err != nil {
		response.Error(w, apierror.BadRequest("failed to read request body"))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			response.Error(w, apierror.BadRequest("invalid JSON"))
			return
		}
	}

	ctx := r.Context()
	if id := middleware.GetRequestID(ctx); id != "" {
		ctx = service.WithCycleID(ctx, id)
	}
	s, err := h.svc.Query(ctx, req.Location)
	if err != nil {
		response.Error(w, mapQueryError(err))
		return
	}
	response.OK(w, s)
}

func mapQueryError(err error) *apierror.Error {
	switch {
	case esi.IsAuthError(err):
		return apierror.Unauthorized("Upstream authentication failed")
	case errors.Is(err, service.ErrContractsUnavailable):
		return apierror.BadGateway("Corporation contracts unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apierror.ServiceUnavailable("Inventory query timed out")
	default:
		return apierror.InternalError("")
	}
}
