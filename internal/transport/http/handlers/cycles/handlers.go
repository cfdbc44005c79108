package cycleshandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"perfreview/internal/domain/audit"
	"perfreview/internal/domain/auth"
	"perfreview/internal/domain/cycles"
	"perfreview/internal/domain/notifications"
	"perfreview/internal/domain/timeline"
	"perfreview/internal/platform/metrics"
	"perfreview/internal/platform/report"
	"perfreview/internal/transport/http/api"
	"perfreview/internal/transport/http/middleware"
	"perfreview/internal/transport/http/shared"
)

const idempotencyCreateCycle = "review_cycles.create"

// Auditor records state changes. *audit.Service satisfies it.
type Auditor interface {
	Record(ctx context.Context, tenantID, actorID, action, entityType, entityID, requestID, ip string, before, after any) error
}

// Sweeper runs the status sweep for one tenant. *jobs.Service satisfies it.
type Sweeper interface {
	SweepTenant(ctx context.Context, tenantID string) (cycles.SweepResult, error)
}

type Handler struct {
	Service     *cycles.Service
	Perms       middleware.PermissionStore
	Audit       Auditor
	Notify      cycles.Notifier
	Idempotency middleware.IdempotencyStore
	Sweeper     Sweeper
	Metrics     *metrics.Collector
	Now         func() time.Time
}

func NewHandler(service *cycles.Service, perms middleware.PermissionStore, auditor Auditor, idem middleware.IdempotencyStore, sweeper Sweeper, collector *metrics.Collector) *Handler {
	return &Handler{
		Service:     service,
		Perms:       perms,
		Audit:       auditor,
		Idempotency: idem,
		Sweeper:     sweeper,
		Metrics:     collector,
		Now:         time.Now,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.PermCyclesRead, h.Perms)
	write := middleware.RequirePermission(auth.PermCyclesWrite, h.Perms)
	finalize := middleware.RequirePermission(auth.PermCyclesFinalize, h.Perms)
	review := middleware.RequirePermission(auth.PermCyclesReview, h.Perms)

	r.Route("/review-cycles", func(r chi.Router) {
		r.With(read).Get("/", h.handleListCycles)
		r.With(write).Post("/", h.handleCreateCycle)
		r.With(finalize).Post("/sweep", h.handleSweep)
		r.Route("/{cycleID}", func(r chi.Router) {
			r.With(read).Get("/", h.handleGetCycle)
			r.With(write).Put("/timeline", h.handleReviseTimeline)
			r.With(read).Get("/timeline/history", h.handleTimelineHistory)
			r.With(finalize).Post("/activate", h.handleActivateCycle)
			r.With(finalize).Post("/close", h.handleCloseCycle)
			r.With(read).Get("/status", h.handleStatus)
			r.With(read).Get("/progress", h.handleProgress)
			r.With(read).Get("/report.pdf", h.handleReport)
			r.With(read).Get("/assignments", h.handleListAssignments)
			r.With(write).Post("/assignments", h.handleCreateAssignment)
		})
	})
	r.With(review).Post("/assignments/{assignmentID}/submit", h.handleSubmitAssignment)
	r.With(read).Get("/dashboard", h.handleDashboard)
}

type cycleResponse struct {
	Cycle    cycles.ReviewCycle    `json:"cycle"`
	Warnings []timeline.FieldError `json:"warnings,omitempty"`
}

type createCycleRequest struct {
	Name     string               `json:"name" validate:"required,max=200"`
	Timeline timeline.RawTimeline `json:"timeline"`
}

func (h *Handler) handleCreateCycle(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", requestID)
			return
		}
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	requestHash := middleware.RequestHash(body)
	if idempotencyKey != "" && h.Idempotency != nil {
		stored, found, err := h.Idempotency.Check(r.Context(), user.TenantID, user.UserID, idempotencyCreateCycle, idempotencyKey, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was used with a different payload", requestID)
			return
		}
		if err != nil {
			slog.Warn("idempotency check failed", "err", err, "requestId", requestID)
		}
		if found {
			api.Created(w, json.RawMessage(stored), requestID)
			return
		}
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	var payload createCycleRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	t, ok := shared.ParseTimeline(w, payload.Timeline, requestID)
	if !ok {
		return
	}

	cycle, result, err := h.Service.CreateCycle(r.Context(), user.TenantID, user.UserID, payload.Name, t)
	h.recordValidation(result)
	if err != nil {
		h.fail(w, r, err, "cycle_create_failed", "failed to create review cycle")
		return
	}
	h.record(r, user, audit.ActionCycleCreate, audit.EntityCycle, cycle.ID, nil, cycle)

	response := cycleResponse{Cycle: cycle, Warnings: result.Warnings}
	if idempotencyKey != "" && h.Idempotency != nil {
		if encoded, err := json.Marshal(response); err != nil {
			slog.Warn("idempotency encode failed", "err", err)
		} else if err := h.Idempotency.Save(r.Context(), user.TenantID, user.UserID, idempotencyCreateCycle, idempotencyKey, requestHash, encoded); err != nil {
			slog.Warn("idempotency save failed", "err", err, "requestId", requestID)
		}
	}
	api.Created(w, response, requestID)
}

func (h *Handler) handleListCycles(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	v := shared.NewValidator()
	v.Enum("status", status, cycles.Statuses, "must be one of draft, active, closed")
	if v.Reject(w, requestID) {
		return
	}

	page := shared.ParsePagination(r, 50, 200)
	filter := cycles.ListFilter{Status: strings.ToLower(status), Limit: page.Limit, Offset: page.Offset}
	if user.RoleName != auth.RoleHR {
		filter.ReviewerID = user.UserID
	}
	list, err := h.Service.ListCycles(r.Context(), user.TenantID, filter)
	if err != nil {
		h.fail(w, r, err, "cycle_list_failed", "failed to list review cycles")
		return
	}
	if list == nil {
		list = []cycles.ReviewCycle{}
	}
	api.Success(w, list, requestID)
}

func (h *Handler) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	cycle, err := h.Service.GetCycle(r.Context(), user.TenantID, chi.URLParam(r, "cycleID"))
	if err != nil {
		h.fail(w, r, err, "cycle_get_failed", "failed to load review cycle")
		return
	}
	api.Success(w, cycle, requestID)
}

type reviseTimelineRequest struct {
	Timeline timeline.RawTimeline `json:"timeline"`
}

func (h *Handler) handleReviseTimeline(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	var payload reviseTimelineRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	t, ok := shared.ParseTimeline(w, payload.Timeline, requestID)
	if !ok {
		return
	}

	cycleID := chi.URLParam(r, "cycleID")
	before, err := h.Service.GetCycle(r.Context(), user.TenantID, cycleID)
	if err != nil {
		h.fail(w, r, err, "timeline_revise_failed", "failed to revise timeline")
		return
	}
	cycle, result, err := h.Service.ReviseTimeline(r.Context(), user.TenantID, user.UserID, cycleID, t)
	h.recordValidation(result)
	if err != nil {
		h.fail(w, r, err, "timeline_revise_failed", "failed to revise timeline")
		return
	}
	h.record(r, user, audit.ActionTimelineRevise, audit.EntityCycle, cycle.ID, before.Timeline, cycle.Timeline)
	api.Success(w, cycleResponse{Cycle: cycle, Warnings: result.Warnings}, requestID)
}

func (h *Handler) handleTimelineHistory(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	history, err := h.Service.TimelineHistory(r.Context(), user.TenantID, chi.URLParam(r, "cycleID"))
	if err != nil {
		h.fail(w, r, err, "timeline_history_failed", "failed to load timeline history")
		return
	}
	if history == nil {
		history = []cycles.TimelineVersion{}
	}
	api.Success(w, history, requestID)
}

func (h *Handler) handleActivateCycle(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, audit.ActionCycleActivate, h.Service.ActivateCycle)
}

func (h *Handler) handleCloseCycle(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, audit.ActionCycleClose, h.Service.CloseCycle)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, apply func(ctx context.Context, tenantID, cycleID string) (cycles.ReviewCycle, error)) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	cycleID := chi.URLParam(r, "cycleID")
	before, err := h.Service.GetCycle(r.Context(), user.TenantID, cycleID)
	if err != nil {
		h.fail(w, r, err, "cycle_status_failed", "failed to update review cycle")
		return
	}
	cycle, err := apply(r.Context(), user.TenantID, cycleID)
	if err != nil {
		h.fail(w, r, err, "cycle_status_failed", "failed to update review cycle")
		return
	}
	h.record(r, user, action, audit.EntityCycle, cycle.ID,
		map[string]string{"status": before.Status},
		map[string]string{"status": cycle.Status})
	api.Success(w, cycle, requestID)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	now, ok := h.asOf(w, r)
	if !ok {
		return
	}
	status, err := h.Service.Status(r.Context(), user.TenantID, chi.URLParam(r, "cycleID"), now)
	if err != nil {
		h.fail(w, r, err, "cycle_status_failed", "failed to resolve review cycle status")
		return
	}
	h.Metrics.RecordPhase(string(status.Phase.CurrentPhase))
	api.Success(w, status, requestID)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	progress, err := h.Service.Progress(r.Context(), user.TenantID, chi.URLParam(r, "cycleID"))
	if err != nil {
		h.fail(w, r, err, "cycle_progress_failed", "failed to aggregate review cycle progress")
		return
	}
	api.Success(w, progress, requestID)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	now, ok := h.asOf(w, r)
	if !ok {
		return
	}
	cycleID := chi.URLParam(r, "cycleID")
	status, err := h.Service.Status(r.Context(), user.TenantID, cycleID, now)
	if err != nil {
		h.fail(w, r, err, "cycle_report_failed", "failed to build review cycle report")
		return
	}
	progress, err := h.Service.Progress(r.Context(), user.TenantID, cycleID)
	if err != nil {
		h.fail(w, r, err, "cycle_report_failed", "failed to build review cycle report")
		return
	}

	var buf bytes.Buffer
	if err := report.WriteCyclePDF(&buf, status, progress.Progress); err != nil {
		slog.Error("cycle report render failed", "err", err, "cycleId", cycleID, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, "cycle_report_failed", "failed to render review cycle report", requestID)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=review-cycle-"+cycleID+".pdf")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Warn("cycle report write failed", "err", err)
	}
}

func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}

	query := r.URL.Query()
	filter := cycles.AssignmentFilter{
		CycleID:    chi.URLParam(r, "cycleID"),
		ReviewerID: strings.TrimSpace(query.Get("reviewerId")),
		Pending:    query.Get("pending") == "true",
	}
	if raw := strings.TrimSpace(query.Get("phase")); raw != "" {
		phase, ok := timeline.ParsePhase(raw)
		if !ok || !phase.IsReview() {
			v := shared.NewValidator()
			v.Add("phase", "must be one of SelfAssessment, PeerReview, ManagerReview")
			v.Reject(w, requestID)
			return
		}
		filter.Phase = phase
	}
	if user.RoleName != auth.RoleHR {
		filter.ReviewerID = user.UserID
	}

	list, err := h.Service.ListAssignments(r.Context(), user.TenantID, filter)
	if err != nil {
		h.fail(w, r, err, "assignment_list_failed", "failed to list assignments")
		return
	}
	if list == nil {
		list = []cycles.Assignment{}
	}
	api.Success(w, list, requestID)
}

type createAssignmentRequest struct {
	Phase      string `json:"phase" validate:"required"`
	ReviewerID string `json:"reviewerId" validate:"required"`
	SubjectID  string `json:"subjectId" validate:"required"`
}

func (h *Handler) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	var payload createAssignmentRequest
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	phase, ok := timeline.ParsePhase(strings.TrimSpace(payload.Phase))
	if !ok || !phase.IsReview() {
		v := shared.NewValidator()
		v.Add("phase", "must be one of SelfAssessment, PeerReview, ManagerReview")
		v.Reject(w, requestID)
		return
	}

	assignment, err := h.Service.CreateAssignment(r.Context(), user.TenantID, chi.URLParam(r, "cycleID"), phase, payload.ReviewerID, payload.SubjectID)
	if err != nil {
		h.fail(w, r, err, "assignment_create_failed", "failed to create assignment")
		return
	}
	h.record(r, user, audit.ActionAssignmentCreate, audit.EntityAssignment, assignment.ID, nil, assignment)
	h.notifyAssigned(r, user.TenantID, assignment)
	api.Created(w, assignment, requestID)
}

func (h *Handler) handleSubmitAssignment(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	assignment, err := h.Service.SubmitAssignment(r.Context(), user.TenantID, user.UserID, chi.URLParam(r, "assignmentID"), h.Now())
	if err != nil {
		h.fail(w, r, err, "assignment_submit_failed", "failed to submit assignment")
		return
	}
	h.record(r, user, audit.ActionAssignmentSubmit, audit.EntityAssignment, assignment.ID, nil, assignment)
	api.Success(w, assignment, requestID)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	now, ok := h.asOf(w, r)
	if !ok {
		return
	}
	dashboard, err := h.Service.Dashboard(r.Context(), user.TenantID, user.RoleName, user.UserID, now)
	if err != nil {
		h.fail(w, r, err, "dashboard_failed", "failed to load dashboard")
		return
	}
	api.Success(w, dashboard, requestID)
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	var (
		result cycles.SweepResult
		err    error
	)
	if h.Sweeper != nil {
		result, err = h.Sweeper.SweepTenant(r.Context(), user.TenantID)
	} else {
		result, err = h.Service.SweepStatuses(r.Context(), user.TenantID, h.Now())
	}
	if err != nil {
		h.fail(w, r, err, "cycle_sweep_failed", "failed to sweep review cycle statuses")
		return
	}
	api.Success(w, result, requestID)
}

// recordValidation counts results produced by timeline.Validate. The zero
// result means the request failed before the timeline was validated.
func (h *Handler) recordValidation(result timeline.ValidationResult) {
	if !result.Valid && len(result.Errors) == 0 {
		return
	}
	h.Metrics.RecordValidation(result.Valid)
}

// asOf reads the optional ?at=YYYY-MM-DD override, defaulting to the clock.
func (h *Handler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("at"))
	if raw == "" {
		return h.Now(), true
	}
	parsed, err := timeline.ParseDate(raw)
	if err != nil {
		v := shared.NewValidator()
		v.AddCode("at", string(timeline.CodeInvalidDate), "must be a valid date in YYYY-MM-DD format")
		v.Reject(w, middleware.GetRequestID(r.Context()))
		return time.Time{}, false
	}
	return parsed, true
}

func (h *Handler) notifyAssigned(r *http.Request, tenantID string, a cycles.Assignment) {
	if h.Notify == nil {
		return
	}
	cycle, err := h.Service.GetCycle(r.Context(), tenantID, a.CycleID)
	if err != nil {
		slog.Warn("assignment notification lookup failed", "err", err, "assignmentId", a.ID)
		return
	}
	window, _ := cycle.Timeline.Range(a.Phase)
	title := string(a.Phase) + " assigned"
	body := cycle.Name + ": " + timeline.FormatDate(window.Start) + " to " + timeline.FormatDate(window.End)
	if err := h.Notify.Create(r.Context(), tenantID, a.ReviewerID, notifications.TypeReviewAssigned, title, body, a.ID); err != nil {
		slog.Warn("assignment notification failed", "err", err, "assignmentId", a.ID)
	}
}

func (h *Handler) record(r *http.Request, user auth.UserContext, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	requestID := middleware.GetRequestID(r.Context())
	if err := h.Audit.Record(r.Context(), user.TenantID, user.UserID, action, entityType, entityID, requestID, middleware.ClientIP(r), before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "entityId", entityID, "err", err, "requestId", requestID)
	}
}

// fail maps domain errors onto HTTP responses. Anything unrecognised is
// logged and reported as fallbackCode with a 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, fallbackCode, fallbackMessage string) {
	requestID := middleware.GetRequestID(r.Context())
	var validationErr *cycles.ValidationError
	switch {
	case errors.As(err, &validationErr):
		v := shared.NewValidator()
		v.AddFieldErrors(validationErr.Fields)
		shared.FailValidation(w, requestID, v.Issues())
	case errors.Is(err, cycles.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "resource not found", requestID)
	case errors.Is(err, cycles.ErrInvalidAssignment):
		api.Fail(w, http.StatusBadRequest, "invalid_assignment", err.Error(), requestID)
	case errors.Is(err, cycles.ErrNotReviewer):
		api.Fail(w, http.StatusForbidden, "not_reviewer", err.Error(), requestID)
	case errors.Is(err, cycles.ErrCycleClosed):
		api.Fail(w, http.StatusConflict, "cycle_closed", err.Error(), requestID)
	case errors.Is(err, cycles.ErrInvalidStatus):
		api.Fail(w, http.StatusConflict, "invalid_status", err.Error(), requestID)
	case errors.Is(err, cycles.ErrCycleNotActive):
		api.Fail(w, http.StatusConflict, "cycle_not_active", err.Error(), requestID)
	case errors.Is(err, cycles.ErrAlreadySubmitted):
		api.Fail(w, http.StatusConflict, "already_submitted", err.Error(), requestID)
	case errors.Is(err, cycles.ErrPhaseNotOpen):
		api.Fail(w, http.StatusConflict, "phase_not_open", err.Error(), requestID)
	case errors.Is(err, cycles.ErrDuplicateAssignment):
		api.Fail(w, http.StatusConflict, "duplicate_assignment", err.Error(), requestID)
	default:
		slog.Error(fallbackMessage, "err", err, "path", r.URL.Path, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, fallbackMessage, requestID)
	}
}
