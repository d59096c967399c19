package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/jobs"
	"github.com/Steivan/LEG-analysis-sub001/internal/middleware"
)

// JobHandler exposes asynchronous tool flow runs.
type JobHandler struct {
	queue     *jobs.Queue
	cfg       *config.Config
	validator *middleware.Validator
	errors    *apperrors.ErrorHandler
	logger    *slog.Logger
}

// NewJobHandler creates a job handler
func NewJobHandler(queue *jobs.Queue, cfg *config.Config, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{
		queue:     queue,
		cfg:       cfg,
		validator: middleware.NewValidator(),
		errors:    apperrors.NewErrorHandler(logger),
		logger:    logger.With(slog.String("handler", "jobs")),
	}
}

// Routes returns the job routes
func (h *JobHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(middleware.ContentTypeValidator(h.logger, "application/json")).Post("/", h.Submit)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Cancel)
	return r
}

// Submit handles POST /jobs. The body is a SimulationRequest; the run is
// queued and the job is returned with 202.
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SimulationRequest
	if err := decodeRequest(r, &req, h.validator); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	opts, err := req.options(h.cfg)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	job, err := h.queue.Submit(r.Context(), opts)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/%s", r.URL.Path, job.ID))
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, newJobResponse(job))
}

// List handles GET /jobs?status=&limit=
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := jobs.Filter{Limit: 50}

	if s := r.URL.Query().Get("status"); s != "" {
		switch status := jobs.Status(s); status {
		case jobs.StatusPending, jobs.StatusRunning, jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusCancelled:
			filter.Status = status
		default:
			h.errors.HandleError(w, r, apperrors.NewValidationErrors([]apperrors.ValidationError{
				{Field: "status", Message: "must be one of pending running completed failed cancelled"},
			}))
			return
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 1 {
			h.errors.HandleError(w, r, apperrors.NewValidationErrors([]apperrors.ValidationError{
				{Field: "limit", Message: "must be a positive integer"},
			}))
			return
		}
		filter.Limit = limit
	}

	list, err := h.queue.List(filter)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	resp := make([]JobResponse, len(list))
	for i, job := range list {
		// Listings omit the full report
		job.Report = nil
		resp[i] = newJobResponse(job)
	}
	render.JSON(w, r, resp)
}

// Get handles GET /jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, newJobResponse(job))
}

// Cancel handles DELETE /jobs/{id}
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, newJobResponse(job))
}
