package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Steivan/LEG-analysis-sub001/internal/calibration"
	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/errstats"
	"github.com/Steivan/LEG-analysis-sub001/internal/filter"
	"github.com/Steivan/LEG-analysis-sub001/internal/hull"
	"github.com/Steivan/LEG-analysis-sub001/internal/infrastructure"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
	"github.com/Steivan/LEG-analysis-sub001/internal/simulate"
)

// Scenario names of the calibration tool flow.
const (
	ScenarioDefaultUnfiltered = "default_priors_no_filter"
	ScenarioDefaultModelMask  = "default_priors_model_filter"
	ScenarioHullModelMask     = "hull_priors_model_filter"
	ScenarioDefaultAnomaly    = "default_priors_anomaly_filter"
)

// ReportQuantiles are the cumulative probabilities reported per scenario.
var ReportQuantiles = []float64{0.01, 0.05, 0.25, 0.5, 0.75, 0.95, 0.99}

// ScenarioReport is the outcome of one calibration scenario.
type ScenarioReport struct {
	Name      string              `json:"name"`
	Priors    pvmodel.PriorSet    `json:"priors"`
	Result    calibration.Result  `json:"result"`
	Histogram *errstats.Histogram `json:"histogram,omitempty"`
	Quantiles []float64           `json:"quantiles,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Failed reports whether the scenario produced no estimate.
func (s ScenarioReport) Failed() bool {
	return s.Error != ""
}

// Report is the complete output of a tool flow run.
type Report struct {
	RunID            string              `json:"run_id"`
	GeneratedAt      time.Time           `json:"generated_at"`
	TrueParams       pvmodel.Params      `json:"true_params"`
	MaxIterations    int                 `json:"max_iterations"`
	Observations     int                 `json:"observations"`
	ModelValid       int                 `json:"model_valid"`
	InitialMeanError float64             `json:"initial_mean_error"`
	FilterPasses     []filter.PassResult `json:"filter_passes"`
	Trend            hull.Trend          `json:"trend"`
	HullPriors       *pvmodel.PriorSet   `json:"hull_priors,omitempty"`
	Scenarios        []ScenarioReport    `json:"scenarios"`
}

// CalibrationService wires the simulator, filters, hull estimator and
// calibrator together for the CLI and the HTTP API.
type CalibrationService struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewCalibrationService creates a calibration service
func NewCalibrationService(cfg *config.Config, logger *slog.Logger) *CalibrationService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &CalibrationService{
		cfg:    cfg,
		logger: logger.With(slog.String("service", "calibration")),
	}
}

// CalibrationOptions returns solver options from configuration for a plant
// sampled periodsPerHour times per hour.
func (s *CalibrationService) CalibrationOptions(periodsPerHour int) calibration.Options {
	c := s.cfg.Calibration
	return calibration.Options{
		InstalledPower: c.InstalledPower,
		PeriodsPerHour: periodsPerHour,
		Tolerance:      c.Tolerance,
		MaxIterations:  c.MaxIterations,
		DataNoiseSigma: c.DataNoiseSigma,
		Logger:         s.logger,
	}
}

// FilterReference is the model the anomaly filters compare against: the
// default prior means.
func FilterReference(installedPower float64, periodsPerHour int) pvmodel.Reference {
	return pvmodel.Reference{
		Evaluator:      pvmodel.RTWA{},
		Params:         pvmodel.DefaultPriors().Means(),
		InstalledPower: installedPower,
		PeriodsPerHour: periodsPerHour,
	}
}

// HullReference is the envelope reference: default thermal parameters, unit
// efficiency and no degradation, so the envelope ratio reads directly as
// efficiency over time.
func HullReference(installedPower float64, periodsPerHour int) pvmodel.Reference {
	ref := FilterReference(installedPower, periodsPerHour)
	ref.Params.Efficiency = 1
	ref.Params.Degradation = 0
	return ref
}

// Simulate generates a dataset from the configured simulation settings.
func (s *CalibrationService) Simulate(ctx context.Context, trueParams pvmodel.Params) (*simulate.Dataset, error) {
	opts, err := simulate.OptionsFromConfig(s.cfg.Simulation, s.cfg.Calibration.InstalledPower, trueParams)
	if err != nil {
		return nil, err
	}
	return s.SimulateWith(ctx, opts)
}

// SimulateWith generates a dataset from explicit options.
func (s *CalibrationService) SimulateWith(ctx context.Context, opts simulate.Options) (*simulate.Dataset, error) {
	_, span := infrastructure.Tracer().Start(ctx, "services.Simulate",
		trace.WithAttributes(attribute.Int("days", opts.Days)))
	defer span.End()

	ds, err := simulate.Generate(opts)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "simulated dataset",
		slog.Int("observations", len(ds.Observations)),
		slog.Int("model_valid", ds.ModelValid.Count()),
		slog.Uint64("seed", opts.Seed),
	)
	return ds, nil
}

// Filter runs the configured anomaly filter pipeline.
func (s *CalibrationService) Filter(ctx context.Context, observations []pvmodel.Observation, initial pvmodel.Mask,
	ref pvmodel.Reference, cfg config.FiltersConfig) (filter.Result, error) {

	return filter.NewPipeline(cfg, ref, s.logger).Run(ctx, observations, initial)
}

// Trend fits the hull trend and derives hull priors from it. The priors are
// nil when the trend fell back.
func (s *CalibrationService) Trend(ctx context.Context, observations []pvmodel.Observation, mask pvmodel.Mask,
	ref pvmodel.Reference) (hull.Trend, *pvmodel.PriorSet, error) {

	trend, err := hull.CalibrateTrend(ctx, observations, mask, ref)
	if err != nil {
		return hull.Trend{}, nil, err
	}
	if trend.Fallback {
		s.logger.WarnContext(ctx, "hull trend fell back", slog.Int("months", trend.Points))
		return trend, nil, nil
	}
	priors, err := hull.HullPriors(trend, pvmodel.DefaultPriors())
	if err != nil {
		return hull.Trend{}, nil, err
	}
	return trend, &priors, nil
}

// Calibrate runs one calibration against the analytic RTWA model.
func (s *CalibrationService) Calibrate(ctx context.Context, observations []pvmodel.Observation, priors pvmodel.PriorSet,
	mask pvmodel.Mask, opts calibration.Options) (calibration.Result, error) {

	return s.CalibrateWith(ctx, observations, priors, pvmodel.RTWA{}, mask, opts)
}

// CalibrateWith runs one calibration against an explicit evaluator.
func (s *CalibrationService) CalibrateWith(ctx context.Context, observations []pvmodel.Observation, priors pvmodel.PriorSet,
	evaluator pvmodel.Evaluator, mask pvmodel.Mask, opts calibration.Options) (calibration.Result, error) {

	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	return calibration.Calibrate(ctx, observations, priors, evaluator, mask, opts)
}

type scenario struct {
	name   string
	priors *pvmodel.PriorSet
	mask   pvmodel.Mask
}

// RunToolFlow simulates a plant with trueParams under the configured
// simulation settings, filters the data, fits the hull trend and calibrates
// the four scenarios concurrently.
func (s *CalibrationService) RunToolFlow(ctx context.Context, trueParams pvmodel.Params) (*Report, error) {
	opts, err := simulate.OptionsFromConfig(s.cfg.Simulation, s.cfg.Calibration.InstalledPower, trueParams)
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	return s.RunToolFlowWith(ctx, opts)
}

// RunToolFlowWith runs the tool flow on a plant simulated from explicit
// options. opts.Params are the true parameters.
func (s *CalibrationService) RunToolFlowWith(ctx context.Context, simOpts simulate.Options) (*Report, error) {
	ctx, span := infrastructure.Tracer().Start(ctx, "services.RunToolFlow")
	defer span.End()

	runID := uuid.New().String()
	logger := s.logger.With(slog.String("run_id", runID))
	logger.InfoContext(ctx, "starting calibration tool flow")

	trueParams := simOpts.Params
	ds, err := s.SimulateWith(ctx, simOpts)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return nil, fmt.Errorf("simulate: %w", err)
	}
	installed, pph := ds.InstalledPower, ds.PeriodsPerHour

	filterRef := FilterReference(installed, pph)
	filtered, err := s.Filter(ctx, ds.Observations, nil, filterRef, s.cfg.Filters)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	horizon, err := filter.ExcludeSubHorizon(ds.Observations, nil)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	initial, err := errstats.ComputeMeanError(ds.Observations, horizon, filterRef)
	switch {
	case apperrors.IsType(err, apperrors.ErrTypeDataInsufficiency):
		initial.MeanError = math.NaN()
	case err != nil:
		return nil, fmt.Errorf("initial mean error: %w", err)
	}

	trend, hullPriors, err := s.Trend(ctx, ds.Observations, nil, HullReference(installed, pph))
	if err != nil {
		return nil, fmt.Errorf("hull trend: %w", err)
	}

	defaults := pvmodel.DefaultPriors()
	scenarios := []scenario{
		{name: ScenarioDefaultUnfiltered, priors: &defaults},
		{name: ScenarioDefaultModelMask, priors: &defaults, mask: ds.ModelValid},
		{name: ScenarioHullModelMask, priors: hullPriors, mask: ds.ModelValid},
		{name: ScenarioDefaultAnomaly, priors: &defaults, mask: filtered.Mask},
	}

	report := &Report{
		RunID:            runID,
		GeneratedAt:      time.Now().UTC(),
		TrueParams:       trueParams,
		MaxIterations:    s.cfg.Calibration.MaxIterations,
		Observations:     len(ds.Observations),
		ModelValid:       ds.ModelValid.Count(),
		InitialMeanError: initial.MeanError,
		FilterPasses:     filtered.Passes,
		Trend:            trend,
		HullPriors:       hullPriors,
		Scenarios:        make([]ScenarioReport, len(scenarios)),
	}

	opts := s.CalibrationOptions(pph)
	opts.InstalledPower = installed
	opts.Logger = logger

	g, gctx := errgroup.WithContext(ctx)
	for i, sc := range scenarios {
		g.Go(func() error {
			rep, err := s.runScenario(gctx, ds, sc, opts)
			report.Scenarios[i] = rep
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "calibration tool flow finished",
		slog.Int("observations", report.Observations),
		slog.Int("anomaly_mask", filtered.Mask.Count()),
		slog.Bool("hull_fallback", trend.Fallback),
	)
	return report, nil
}

// runScenario calibrates one scenario. Calibration failures are recorded in
// the report; only cancellation aborts the flow.
func (s *CalibrationService) runScenario(ctx context.Context, ds *simulate.Dataset, sc scenario, opts calibration.Options) (ScenarioReport, error) {
	rep := ScenarioReport{Name: sc.name}
	if sc.priors == nil {
		rep.Error = "hull trend fell back; no hull priors"
		return rep, nil
	}
	rep.Priors = *sc.priors

	res, err := s.Calibrate(ctx, ds.Observations, *sc.priors, sc.mask, opts)
	if err != nil {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		opts.Logger.WarnContext(ctx, "scenario failed", slog.String("scenario", sc.name), slog.String("error", err.Error()))
		rep.Error = err.Error()
		return rep, nil
	}
	rep.Result = res

	ref := pvmodel.Reference{
		Evaluator:      pvmodel.RTWA{},
		Params:         res.Final(),
		InstalledPower: opts.InstalledPower,
		PeriodsPerHour: opts.PeriodsPerHour,
	}
	errs, err := errstats.Errors(ds.Observations, sc.mask, ref)
	if err != nil {
		return rep, err
	}
	if len(errs) > 0 {
		hist, err := errstats.NewHistogram(errs, s.cfg.Reports.HistogramBins)
		if err != nil {
			return rep, err
		}
		rep.Histogram = &hist
		if rep.Quantiles, err = errstats.Quantiles(errs, ReportQuantiles); err != nil {
			return rep, err
		}
	}
	return rep, nil
}
