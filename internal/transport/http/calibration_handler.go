package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/middleware"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
	"github.com/Steivan/LEG-analysis-sub001/internal/services"
)

// CalibrationHandler serves the calibration engine over HTTP.
type CalibrationHandler struct {
	service   *services.CalibrationService
	cfg       *config.Config
	validator *middleware.Validator
	errors    *apperrors.ErrorHandler
	logger    *slog.Logger
}

// NewCalibrationHandler creates a calibration handler
func NewCalibrationHandler(service *services.CalibrationService, cfg *config.Config, logger *slog.Logger) *CalibrationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalibrationHandler{
		service:   service,
		cfg:       cfg,
		validator: middleware.NewValidator(),
		errors:    apperrors.NewErrorHandler(logger),
		logger:    logger.With(slog.String("handler", "calibration")),
	}
}

// Routes returns the calibration routes
func (h *CalibrationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.ContentTypeValidator(h.logger, "application/json"))

	r.Post("/calibrations", h.Calibrate)
	r.Post("/trends", h.Trend)
	r.Post("/filters", h.Filter)
	r.Post("/simulations", h.Simulate)
	r.Post("/runs", h.Run)
	return r
}

// Calibrate handles POST /calibrations
func (h *CalibrationHandler) Calibrate(w http.ResponseWriter, r *http.Request) {
	var req CalibrationRequest
	if err := h.decode(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	installed, pph := req.Plant.resolve(h.cfg.Calibration)
	opts := h.service.CalibrationOptions(pph)
	opts.InstalledPower = installed
	if req.Tolerance > 0 {
		opts.Tolerance = req.Tolerance
	}
	if req.MaxIterations > 0 {
		opts.MaxIterations = req.MaxIterations
	}
	if req.DataNoiseSigma > 0 {
		opts.DataNoiseSigma = req.DataNoiseSigma
	}

	priors := pvmodel.DefaultPriors()
	if req.Priors != nil {
		priors = *req.Priors
	}

	var evaluator pvmodel.Evaluator = pvmodel.RTWA{}
	if req.Evaluator == "numerical" {
		evaluator = pvmodel.NewNumericalEvaluator(pvmodel.RTWA{}, priors)
	}

	res, err := h.service.CalibrateWith(r.Context(), req.Observations, priors, evaluator, req.Mask, opts)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "calibration served",
		slog.Int("observations", len(req.Observations)),
		slog.Int("iterations", res.Iterations),
		slog.Bool("converged", res.Converged))
	render.JSON(w, r, newCalibrationResponse(priors, res))
}

// Trend handles POST /trends
func (h *CalibrationHandler) Trend(w http.ResponseWriter, r *http.Request) {
	var req TrendRequest
	if err := h.decode(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	ref := services.HullReference(req.Plant.resolve(h.cfg.Calibration))
	if req.Reference != nil {
		ref.Params = *req.Reference
	}

	trend, priors, err := h.service.Trend(r.Context(), req.Observations, req.Mask, ref)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, TrendResponse{Trend: trend, HullPriors: priors})
}

// Filter handles POST /filters
func (h *CalibrationHandler) Filter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if err := h.decode(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	ref := services.FilterReference(req.Plant.resolve(h.cfg.Calibration))
	if req.Reference != nil {
		ref.Params = *req.Reference
	}
	filters := h.cfg.Filters
	if req.Filters != nil {
		filters = req.Filters.config()
	}

	res, err := h.service.Filter(r.Context(), req.Observations, req.Mask, ref, filters)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, FilterResponse{Mask: res.Mask, Remaining: res.Mask.Count(), Passes: res.Passes})
}

// Simulate handles POST /simulations
func (h *CalibrationHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulationRequest
	if err := h.decode(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	opts, err := req.options(h.cfg)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	ds, err := h.service.SimulateWith(r.Context(), opts)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newSimulationResponse(ds, req.IncludeObservations))
}

// Run handles POST /runs
func (h *CalibrationHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req SimulationRequest
	if err := h.decode(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	opts, err := req.options(h.cfg)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	report, err := h.service.RunToolFlowWith(r.Context(), opts)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newRunResponse(report))
}

func (h *CalibrationHandler) decode(r *http.Request, dst interface{}) error {
	return decodeRequest(r, dst, h.validator)
}

// decodeRequest reads a JSON body into dst and validates it.
func decodeRequest(r *http.Request, dst interface{}, v *middleware.Validator) error {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.NewWithDetails(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				"Request body exceeds maximum allowed size", map[string]interface{}{"max_size": tooLarge.Limit})
		}
		return apperrors.InvalidRequestWithError(err)
	}
	return v.Struct(dst)
}
