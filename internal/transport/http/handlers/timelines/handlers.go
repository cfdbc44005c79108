package timelineshandler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"perfreview/internal/domain/auth"
	"perfreview/internal/domain/timeline"
	"perfreview/internal/platform/metrics"
	"perfreview/internal/transport/http/api"
	"perfreview/internal/transport/http/middleware"
	"perfreview/internal/transport/http/shared"
)

// Handler exposes the pure timeline evaluator for the cycle creation wizard
// and the dashboards. Nothing here touches storage.
type Handler struct {
	Perms   middleware.PermissionStore
	Metrics *metrics.Collector
	Now     func() time.Time
}

func NewHandler(perms middleware.PermissionStore, collector *metrics.Collector) *Handler {
	return &Handler{Perms: perms, Metrics: collector, Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.PermCyclesRead, h.Perms)
	r.With(read).Post("/timelines/validate", h.handleValidate)
	r.With(read).Post("/timelines/resolve", h.handleResolve)
	r.With(read).Post("/progress/aggregate", h.handleAggregate)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var raw timeline.RawTimeline
	if !shared.DecodeJSON(w, r, &raw, requestID) {
		return
	}

	parsed, parseErrs := timeline.ParseTimeline(raw)
	result := timeline.ValidationResult{Valid: false, Errors: parseErrs}
	if len(parseErrs) == 0 {
		result = timeline.Validate(parsed)
	}
	h.Metrics.RecordValidation(result.Valid)
	api.Success(w, result, requestID)
}

type resolveRequest struct {
	Timeline timeline.RawTimeline `json:"timeline"`
	At       string               `json:"at"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload resolveRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}

	now := h.Now()
	if at := strings.TrimSpace(payload.At); at != "" {
		parsed, err := timeline.ParseDate(at)
		if err != nil {
			v := shared.NewValidator()
			v.AddCode("at", string(timeline.CodeInvalidDate), "must be a valid date in YYYY-MM-DD format")
			v.Reject(w, requestID)
			return
		}
		now = parsed
	}

	t, ok := shared.ParseTimeline(w, payload.Timeline, requestID)
	if !ok {
		return
	}
	if result := timeline.Validate(t); !result.Valid {
		v := shared.NewValidator()
		v.AddFieldErrors(result.Errors)
		v.Reject(w, requestID)
		return
	}
	status := timeline.ResolvePhase(t, now)
	h.Metrics.RecordPhase(string(status.CurrentPhase))
	api.Success(w, status, requestID)
}

type phaseCountPayload struct {
	Completed int `json:"completed" validate:"min=0,ltefield=Total"`
	Total     int `json:"total" validate:"min=0"`
}

type aggregateRequest struct {
	Self    phaseCountPayload `json:"self"`
	Peer    phaseCountPayload `json:"peer"`
	Manager phaseCountPayload `json:"manager"`
}

func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload aggregateRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	counts := timeline.Counts{
		Self:    timeline.PhaseCount(payload.Self),
		Peer:    timeline.PhaseCount(payload.Peer),
		Manager: timeline.PhaseCount(payload.Manager),
	}
	api.Success(w, timeline.Aggregate(counts), requestID)
}
