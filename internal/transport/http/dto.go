package http

import (
	"math"
	"time"

	"github.com/Steivan/LEG-analysis-sub001/internal/calibration"
	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	"github.com/Steivan/LEG-analysis-sub001/internal/errstats"
	"github.com/Steivan/LEG-analysis-sub001/internal/filter"
	"github.com/Steivan/LEG-analysis-sub001/internal/hull"
	"github.com/Steivan/LEG-analysis-sub001/internal/jobs"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
	"github.com/Steivan/LEG-analysis-sub001/internal/services"
	"github.com/Steivan/LEG-analysis-sub001/internal/simulate"
)

// PlantRequest describes the plant. Zero values take the configured
// calibration defaults.
type PlantRequest struct {
	InstalledPower float64 `json:"installed_power" validate:"gte=0"`
	PeriodsPerHour int     `json:"periods_per_hour" validate:"omitempty,divides60"`
}

func (p PlantRequest) resolve(cfg config.CalibrationConfig) (float64, int) {
	installed, pph := p.InstalledPower, p.PeriodsPerHour
	if installed == 0 {
		installed = cfg.InstalledPower
	}
	if pph == 0 {
		pph = cfg.PeriodsPerHour
	}
	return installed, pph
}

// CalibrationRequest is the body of POST /calibrations.
type CalibrationRequest struct {
	Observations   []pvmodel.Observation `json:"observations" validate:"required,min=1"`
	Priors         *pvmodel.PriorSet     `json:"priors,omitempty"`
	Mask           []bool                `json:"mask,omitempty"`
	Plant          PlantRequest          `json:"plant"`
	Tolerance      float64               `json:"tolerance,omitempty" validate:"gte=0"`
	MaxIterations  int                   `json:"max_iterations,omitempty" validate:"gte=0,lte=1000"`
	DataNoiseSigma float64               `json:"data_noise_sigma,omitempty" validate:"gte=0"`
	Evaluator      string                `json:"evaluator,omitempty" validate:"omitempty,oneof=analytic numerical"`
}

// CalibrationResponse is the outcome of a calibration.
type CalibrationResponse struct {
	Estimate   pvmodel.Params   `json:"estimate"`
	Priors     pvmodel.PriorSet `json:"priors"`
	Trace      []pvmodel.Params `json:"trace"`
	Iterations int              `json:"iterations"`
	Converged  bool             `json:"converged"`
	Rows       int              `json:"rows"`
	LastStep   *float64         `json:"last_step"`
	MeanError  *float64         `json:"mean_error"`
}

func newCalibrationResponse(priors pvmodel.PriorSet, res calibration.Result) CalibrationResponse {
	return CalibrationResponse{
		Estimate:   res.Final(),
		Priors:     priors,
		Trace:      res.Trace,
		Iterations: res.Iterations,
		Converged:  res.Converged,
		Rows:       res.Rows,
		LastStep:   nullable(res.LastStep),
		MeanError:  nullable(res.MeanError),
	}
}

// TrendRequest is the body of POST /trends. Reference defaults to unit
// efficiency, no degradation and default thermal parameters.
type TrendRequest struct {
	Observations []pvmodel.Observation `json:"observations" validate:"required,min=1"`
	Mask         []bool                `json:"mask,omitempty"`
	Plant        PlantRequest          `json:"plant"`
	Reference    *pvmodel.Params       `json:"reference,omitempty"`
}

// TrendResponse carries the fitted trend and, unless the trend fell back,
// the hull priors derived from it.
type TrendResponse struct {
	Trend      hull.Trend        `json:"trend"`
	HullPriors *pvmodel.PriorSet `json:"hull_priors"`
}

// BandFilterRequest configures a fog or snow pass.
type BandFilterRequest struct {
	Enabled              bool    `json:"enabled"`
	PatternKind          int     `json:"pattern_kind" validate:"min=0,max=1"`
	UseRelativeThreshold bool    `json:"use_relative_threshold"`
	ThresholdKind        int     `json:"threshold_kind" validate:"min=0,max=2"`
	LoThreshold          float64 `json:"lo_threshold" validate:"gte=0"`
	HiThreshold          float64 `json:"hi_threshold" validate:"gtfield=LoThreshold"`
}

// OutlierFilterRequest configures the outlier pass.
type OutlierFilterRequest struct {
	Enabled         bool    `json:"enabled"`
	PeriodThreshold float64 `json:"period_threshold" validate:"gt=0"`
	HourlyThreshold float64 `json:"hourly_threshold" validate:"gt=0"`
	BlockThreshold  float64 `json:"block_threshold" validate:"gt=0"`
}

// FilterSettings overrides the configured filter passes.
type FilterSettings struct {
	Fog      BandFilterRequest    `json:"fog"`
	Snow     BandFilterRequest    `json:"snow"`
	Outliers OutlierFilterRequest `json:"outliers"`
}

func (f FilterSettings) config() config.FiltersConfig {
	band := func(b BandFilterRequest) config.BandFilterConfig {
		return config.BandFilterConfig{
			Enabled:              b.Enabled,
			PatternKind:          b.PatternKind,
			UseRelativeThreshold: b.UseRelativeThreshold,
			ThresholdKind:        b.ThresholdKind,
			LoThreshold:          b.LoThreshold,
			HiThreshold:          b.HiThreshold,
		}
	}
	return config.FiltersConfig{
		Fog:  band(f.Fog),
		Snow: band(f.Snow),
		Outliers: config.OutlierConfig{
			Enabled:         f.Outliers.Enabled,
			PeriodThreshold: f.Outliers.PeriodThreshold,
			HourlyThreshold: f.Outliers.HourlyThreshold,
			BlockThreshold:  f.Outliers.BlockThreshold,
		},
	}
}

// FilterRequest is the body of POST /filters. Reference defaults to the
// default prior means.
type FilterRequest struct {
	Observations []pvmodel.Observation `json:"observations" validate:"required,min=1"`
	Mask         []bool                `json:"mask,omitempty"`
	Plant        PlantRequest          `json:"plant"`
	Reference    *pvmodel.Params       `json:"reference,omitempty"`
	Filters      *FilterSettings       `json:"filters,omitempty"`
}

// FilterResponse is the validity mask after every pass.
type FilterResponse struct {
	Mask      []bool              `json:"mask"`
	Remaining int                 `json:"remaining"`
	Passes    []filter.PassResult `json:"passes"`
}

// SimulationRequest overrides the configured simulation settings. Params
// defaults to the default prior means.
type SimulationRequest struct {
	Params              *pvmodel.Params `json:"params,omitempty"`
	Seed                *uint64         `json:"seed,omitempty"`
	StartDate           string          `json:"start_date,omitempty" validate:"omitempty,isodate"`
	Days                int             `json:"days,omitempty" validate:"gte=0,lte=3660"`
	PeriodsPerHour      int             `json:"periods_per_hour,omitempty" validate:"omitempty,divides60"`
	InstalledPower      float64         `json:"installed_power,omitempty" validate:"gte=0"`
	Latitude            *float64        `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	RoofAzimuth         *float64        `json:"roof_azimuth,omitempty" validate:"omitempty,gte=-180,lte=180"`
	RoofElevation       *float64        `json:"roof_elevation,omitempty" validate:"omitempty,gte=0,lte=90"`
	Noise               *bool           `json:"noise,omitempty"`
	Fog                 *bool           `json:"fog,omitempty"`
	Snow                *bool           `json:"snow,omitempty"`
	Outliers            *bool           `json:"outliers,omitempty"`
	IncludeObservations bool            `json:"include_observations,omitempty"`
}

// options merges the request into the configured simulation settings.
func (s SimulationRequest) options(cfg *config.Config) (simulate.Options, error) {
	sim := cfg.Simulation
	if s.Seed != nil {
		sim.Seed = *s.Seed
	}
	if s.StartDate != "" {
		sim.StartDate = s.StartDate
	}
	if s.Days > 0 {
		sim.Days = s.Days
	}
	if s.PeriodsPerHour > 0 {
		sim.PeriodsPerHour = s.PeriodsPerHour
	}
	if s.Latitude != nil {
		sim.Latitude = *s.Latitude
	}
	if s.RoofAzimuth != nil {
		sim.RoofAzimuth = *s.RoofAzimuth
	}
	if s.RoofElevation != nil {
		sim.RoofElevation = *s.RoofElevation
	}
	overrideBool(&sim.Noise, s.Noise)
	overrideBool(&sim.Fog, s.Fog)
	overrideBool(&sim.Snow, s.Snow)
	overrideBool(&sim.Outliers, s.Outliers)

	params := pvmodel.DefaultPriors().Means()
	if s.Params != nil {
		params = *s.Params
	}
	installed := cfg.Calibration.InstalledPower
	if s.InstalledPower > 0 {
		installed = s.InstalledPower
	}
	return simulate.OptionsFromConfig(sim, installed, params)
}

func overrideBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// SimulationResponse summarises a generated dataset.
type SimulationResponse struct {
	Params         pvmodel.Params        `json:"params"`
	InstalledPower float64               `json:"installed_power"`
	PeriodsPerHour int                   `json:"periods_per_hour"`
	Start          time.Time             `json:"start"`
	End            time.Time             `json:"end"`
	Count          int                   `json:"count"`
	ModelValid     int                   `json:"model_valid"`
	FogPeriods     int                   `json:"fog_periods"`
	SnowPeriods    int                   `json:"snow_periods"`
	Outliers       int                   `json:"outliers"`
	Observations   []pvmodel.Observation `json:"observations,omitempty"`
	ModelValidMask []bool                `json:"model_valid_mask,omitempty"`
}

func newSimulationResponse(ds *simulate.Dataset, includeObservations bool) SimulationResponse {
	resp := SimulationResponse{
		Params:         ds.Params,
		InstalledPower: ds.InstalledPower,
		PeriodsPerHour: ds.PeriodsPerHour,
		Count:          len(ds.Observations),
		ModelValid:     ds.ModelValid.Count(),
		FogPeriods:     ds.FogPeriod.Count(),
		SnowPeriods:    ds.SnowDay.Count(),
		Outliers:       ds.Outlier.Count(),
	}
	if n := len(ds.Observations); n > 0 {
		resp.Start = ds.Observations[0].Timestamp
		resp.End = ds.Observations[n-1].Timestamp
	}
	if includeObservations {
		resp.Observations = ds.Observations
		resp.ModelValidMask = ds.ModelValid
	}
	return resp
}

// HistogramResponse is an error histogram with undefined statistics as null.
type HistogramResponse struct {
	Count      int       `json:"count"`
	Min        *float64  `json:"min"`
	Max        *float64  `json:"max"`
	MeanError  *float64  `json:"mean_error"`
	BinSize    *float64  `json:"bin_size"`
	LowerBound *float64  `json:"lower_bound"`
	Centers    []float64 `json:"centers"`
	Counts     []int     `json:"counts"`
}

// QuantileResponse is one point of the empirical error distribution.
type QuantileResponse struct {
	Probability float64  `json:"probability"`
	Error       *float64 `json:"error"`
}

// ScenarioResponse is one calibration scenario of a run.
type ScenarioResponse struct {
	Name        string               `json:"name"`
	Calibration *CalibrationResponse `json:"calibration,omitempty"`
	Histogram   *HistogramResponse   `json:"histogram,omitempty"`
	Quantiles   []QuantileResponse   `json:"quantiles,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// RunResponse is the result of POST /runs.
type RunResponse struct {
	RunID            string              `json:"run_id"`
	GeneratedAt      time.Time           `json:"generated_at"`
	TrueParams       pvmodel.Params      `json:"true_params"`
	Observations     int                 `json:"observations"`
	ModelValid       int                 `json:"model_valid"`
	InitialMeanError *float64            `json:"initial_mean_error"`
	FilterPasses     []filter.PassResult `json:"filter_passes"`
	Trend            TrendResponse       `json:"trend"`
	Scenarios        []ScenarioResponse  `json:"scenarios"`
}

func newRunResponse(r *services.Report) RunResponse {
	resp := RunResponse{
		RunID:            r.RunID,
		GeneratedAt:      r.GeneratedAt,
		TrueParams:       r.TrueParams,
		Observations:     r.Observations,
		ModelValid:       r.ModelValid,
		InitialMeanError: nullable(r.InitialMeanError),
		FilterPasses:     r.FilterPasses,
		Trend:            TrendResponse{Trend: r.Trend, HullPriors: r.HullPriors},
		Scenarios:        make([]ScenarioResponse, len(r.Scenarios)),
	}
	for i, s := range r.Scenarios {
		sr := ScenarioResponse{Name: s.Name, Error: s.Error}
		if !s.Failed() {
			c := newCalibrationResponse(s.Priors, s.Result)
			sr.Calibration = &c
		}
		if s.Histogram != nil {
			sr.Histogram = newHistogramResponse(*s.Histogram)
		}
		if len(s.Quantiles) == len(services.ReportQuantiles) {
			for j, p := range services.ReportQuantiles {
				sr.Quantiles = append(sr.Quantiles, QuantileResponse{Probability: p, Error: nullable(s.Quantiles[j])})
			}
		}
		resp.Scenarios[i] = sr
	}
	return resp
}

func newHistogramResponse(h errstats.Histogram) *HistogramResponse {
	return &HistogramResponse{
		Count:      h.Count,
		Min:        nullable(h.Min),
		Max:        nullable(h.Max),
		MeanError:  nullable(h.MeanError),
		BinSize:    nullable(h.BinSize),
		LowerBound: nullable(h.LowerBound),
		Centers:    h.Centers,
		Counts:     h.Counts,
	}
}

// nullable maps values JSON cannot represent to null.
func nullable(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// JobResponse describes an asynchronous run.
type JobResponse struct {
	ID          string       `json:"id"`
	Status      jobs.Status  `json:"status"`
	Message     string       `json:"message,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Result      *RunResponse `json:"result,omitempty"`
}

func newJobResponse(j *jobs.Job) JobResponse {
	resp := JobResponse{
		ID:          j.ID,
		Status:      j.Status,
		Message:     j.Message,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.Report != nil {
		run := newRunResponse(j.Report)
		resp.Result = &run
	}
	return resp
}
