package calibration

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
	"github.com/Steivan/LEG-analysis-sub001/internal/shared/testutil"
)

const (
	installedPower = 10000.0
	periodsPerHour = 4
)

func testOptions() Options {
	opts := DefaultOptions(installedPower, periodsPerHour)
	opts.MaxIterations = 20
	return opts
}

func assertParamsNear(t *testing.T, want, got pvmodel.Params, relTol float64) {
	t.Helper()
	w, g := want.Vector(), got.Vector()
	for i := range w {
		assert.InDelta(t, w[i], g[i], math.Abs(w[i])*relTol, pvmodel.ParamIndex(i).String())
	}
}

func TestCalibrate_ConvergesOnSyntheticData(t *testing.T) {
	observations := testutil.SyntheticObservations(400, pvmodel.RTWA{}, testutil.TrueParams, installedPower, periodsPerHour)

	res, err := Calibrate(context.Background(), observations, pvmodel.DefaultPriors(), pvmodel.RTWA{}, nil, testOptions())
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, 10)
	assert.Len(t, res.Trace, res.Iterations)
	assert.Equal(t, 400, res.Rows)
	assertParamsNear(t, testutil.TrueParams, res.Final(), 1e-3)
	assert.Less(t, res.MeanError, 1.0)
}

func TestCalibrate_PriorPull(t *testing.T) {
	observations := testutil.SyntheticObservations(100, pvmodel.RTWA{}, testutil.TrueParams, installedPower, periodsPerHour)
	for i := range observations {
		observations[i].Weight = 0
	}

	shifted := pvmodel.DefaultPriors().
		With(pvmodel.Efficiency, pvmodel.Prior{Mean: 0.7, StdDev: 0.1, Min: 0, Max: 1}).
		With(pvmodel.ThermalU0, pvmodel.Prior{Mean: 20, StdDev: 2, Min: 1, Max: 60})

	tests := []struct {
		name   string
		priors pvmodel.PriorSet
	}{
		{name: "default priors", priors: pvmodel.DefaultPriors()},
		{name: "shifted priors", priors: shifted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Calibrate(context.Background(), observations, tt.priors, pvmodel.RTWA{}, nil, testOptions())
			require.NoError(t, err)

			assert.True(t, res.Converged)
			assert.Equal(t, 1, res.Iterations)
			assertParamsNear(t, tt.priors.Means(), res.Final(), 1e-12)
		})
	}
}

func TestCalibrate_MaskVersusWeight(t *testing.T) {
	observations := testutil.SyntheticObservations(120, pvmodel.RTWA{}, testutil.TrueParams, installedPower, periodsPerHour)
	const dropped = 17

	masked := pvmodel.NewMask(len(observations), true)
	masked[dropped] = false
	byMask, err := Calibrate(context.Background(), observations, pvmodel.DefaultPriors(), pvmodel.RTWA{}, masked, testOptions())
	require.NoError(t, err)

	weighted := make([]pvmodel.Observation, len(observations))
	copy(weighted, observations)
	weighted[dropped].Weight = 0
	byWeight, err := Calibrate(context.Background(), weighted, pvmodel.DefaultPriors(), pvmodel.RTWA{}, pvmodel.NewMask(len(weighted), true), testOptions())
	require.NoError(t, err)

	assert.Equal(t, len(observations)-1, byMask.Rows)
	assert.Equal(t, len(observations), byWeight.Rows)
	assert.Equal(t, byMask.Iterations, byWeight.Iterations)
	assertParamsNear(t, byMask.Final(), byWeight.Final(), 1e-9)
}

func TestCalibrate_UnmeasuredRecordsKeepTheirRow(t *testing.T) {
	observations := testutil.SyntheticObservations(60, pvmodel.RTWA{}, testutil.TrueParams, installedPower, periodsPerHour)
	observations[3].HasMeasurement = false

	res, err := Calibrate(context.Background(), observations, pvmodel.DefaultPriors(), pvmodel.RTWA{}, nil, testOptions())
	require.NoError(t, err)
	assert.Equal(t, 60, res.Rows)
}

func TestCalibrate_ClampingInvariant(t *testing.T) {
	observations := testutil.SyntheticObservations(200, pvmodel.RTWA{}, testutil.TrueParams, installedPower, periodsPerHour)

	tight := pvmodel.DefaultPriors().
		With(pvmodel.Efficiency, pvmodel.Prior{Mean: 0.8, StdDev: 0.05, Min: 0.75, Max: 0.85}).
		With(pvmodel.Degradation, pvmodel.Prior{Mean: 0.004, StdDev: 0.002, Min: 0.002, Max: 0.005}).
		With(pvmodel.ThermalU0, pvmodel.Prior{Mean: 29, StdDev: 4, Min: 28, Max: 35})

	res, err := Calibrate(context.Background(), observations, tight, pvmodel.RTWA{}, nil, testOptions())
	require.NoError(t, err)
	require.NotEmpty(t, res.Trace)

	for k, p := range res.Trace {
		assert.True(t, tight.Contains(p), "iteration %d escaped its bounds: %+v", k, p)
	}
	assert.Equal(t, 0.85, res.Final().Efficiency, "true efficiency lies above the bound")
	assert.Equal(t, 0.005, res.Final().Degradation, "true degradation lies above the bound")
}

func TestCalibrate_InsufficientData(t *testing.T) {
	observations := testutil.SyntheticObservations(10, pvmodel.RTWA{}, testutil.TrueParams, installedPower, periodsPerHour)

	tests := []struct {
		name         string
		observations []pvmodel.Observation
		mask         pvmodel.Mask
	}{
		{name: "empty sequence", observations: nil},
		{name: "fully masked", observations: observations, mask: pvmodel.NewMask(len(observations), false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Calibrate(context.Background(), tt.observations, pvmodel.DefaultPriors(), pvmodel.RTWA{}, tt.mask, testOptions())
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeDataInsufficiency))
		})
	}
}

func TestCalibrate_OutOfBoundsConfiguration(t *testing.T) {
	observations := testutil.SyntheticObservations(10, pvmodel.RTWA{}, testutil.TrueParams, installedPower, periodsPerHour)

	tests := []struct {
		name      string
		priors    pvmodel.PriorSet
		evaluator pvmodel.Evaluator
		mask      pvmodel.Mask
		mutate    func(*Options)
	}{
		{name: "zero tolerance", mutate: func(o *Options) { o.Tolerance = 0 }},
		{name: "no iterations", mutate: func(o *Options) { o.MaxIterations = 0 }},
		{name: "non positive noise", mutate: func(o *Options) { o.DataNoiseSigma = -1 }},
		{name: "installed power", mutate: func(o *Options) { o.InstalledPower = 0 }},
		{name: "sampling rate", mutate: func(o *Options) { o.PeriodsPerHour = 7 }},
		{name: "mask length", mask: pvmodel.NewMask(3, true)},
		{name: "nil evaluator", evaluator: nil},
		{
			name:   "negative prior std dev",
			priors: pvmodel.DefaultPriors().With(pvmodel.ThermalU1, pvmodel.Prior{Mean: 0.5, StdDev: -0.1, Min: 0, Max: 1}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			priors := tt.priors
			if priors == (pvmodel.PriorSet{}) {
				priors = pvmodel.DefaultPriors()
			}
			evaluator := tt.evaluator
			if evaluator == nil && tt.name != "nil evaluator" {
				evaluator = pvmodel.RTWA{}
			}
			opts := testOptions()
			if tt.mutate != nil {
				tt.mutate(&opts)
			}

			_, err := Calibrate(context.Background(), observations, priors, evaluator, tt.mask, opts)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeOutOfBounds), "got %v", err)
		})
	}
}

func TestCalibrate_IllConditioned(t *testing.T) {
	observations := testutil.SyntheticObservations(10, pvmodel.RTWA{}, testutil.TrueParams, installedPower, periodsPerHour)

	var flat [pvmodel.NumParams]pvmodel.Prior
	for i, p := range pvmodel.DefaultPriors().Array() {
		p.StdDev = 1e200
		flat[i] = p
	}
	zero := pvmodel.EvaluatorFunc(func(pvmodel.Observation, float64, int, pvmodel.Params) pvmodel.Evaluation {
		return pvmodel.Evaluation{}
	})

	_, err := Calibrate(context.Background(), observations, pvmodel.PriorSetFromArray(flat), zero, nil, testOptions())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeIllConditioned))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 0, appErr.Context["iteration"])
}

func TestCalibrate_ZeroGradientColumnsHeldByPrior(t *testing.T) {
	// Only η moves the prediction, so JᵀJ is ~1e13 on one diagonal entry and
	// the prior precision (~1e-5) is all that remains on the others.
	const scale = 1e6
	linear := pvmodel.EvaluatorFunc(func(_ pvmodel.Observation, _ float64, _ int, p pvmodel.Params) pvmodel.Evaluation {
		var e pvmodel.Evaluation
		e.Power = scale * p.Efficiency
		e.Gradient[pvmodel.Efficiency] = scale
		return e
	})
	observations := testutil.SyntheticObservations(50, linear, testutil.TrueParams, installedPower, periodsPerHour)
	priors := pvmodel.DefaultPriors()

	res, err := Calibrate(context.Background(), observations, priors, linear, nil, testOptions())
	require.NoError(t, err)

	assert.True(t, res.Converged)
	final := res.Final()
	assert.InDelta(t, testutil.TrueParams.Efficiency, final.Efficiency, 1e-9)
	assert.InDelta(t, priors.TempCoefficient.Mean, final.TempCoefficient, 1e-12)
	assert.InDelta(t, priors.U0.Mean, final.U0, 1e-9)
	assert.InDelta(t, priors.U1.Mean, final.U1, 1e-12)
	assert.InDelta(t, priors.Degradation.Mean, final.Degradation, 1e-12)
}

func TestCalibrate_ClampedTemperatureCoefficient(t *testing.T) {
	observations := testutil.SyntheticObservations(400, pvmodel.RTWA{}, testutil.TrueParams, installedPower, periodsPerHour)

	// γ starts on its upper bound, where the u0/u1 derivatives vanish.
	priors := pvmodel.DefaultPriors().
		With(pvmodel.TempCoefficient, pvmodel.Prior{Mean: 0, StdDev: 0.0005, Min: -0.05, Max: 0})

	res, err := Calibrate(context.Background(), observations, priors, pvmodel.RTWA{}, nil, testOptions())
	require.NoError(t, err)

	require.NotEmpty(t, res.Trace)
	for _, p := range res.Trace {
		assert.True(t, priors.Contains(p))
	}
	assert.False(t, math.IsNaN(res.MeanError))
}

func TestCalibrate_Cancelled(t *testing.T) {
	observations := testutil.SyntheticObservations(10, pvmodel.RTWA{}, testutil.TrueParams, installedPower, periodsPerHour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Calibrate(ctx, observations, pvmodel.DefaultPriors(), pvmodel.RTWA{}, nil, testOptions())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCalibrate_Logging(t *testing.T) {
	observations := testutil.SyntheticObservations(50, pvmodel.RTWA{}, testutil.TrueParams, installedPower, periodsPerHour)
	logger, handler := testutil.NewTestLogger(t)

	opts := testOptions()
	opts.Logger = logger
	res, err := Calibrate(context.Background(), observations, pvmodel.DefaultPriors(), pvmodel.RTWA{}, nil, opts)
	require.NoError(t, err)

	testutil.AssertLogContains(t, handler, slog.LevelInfo, "starting calibration")
	assert.Len(t, handler.GetRecordsByLevel(slog.LevelDebug), res.Iterations)

	done, ok := handler.FindMessage("calibration finished")
	require.True(t, ok)
	assert.Equal(t, int64(res.Iterations), done.Attrs["iterations"])
	testutil.AssertNoErrors(t, handler)
}

func TestCalibrate_ConcurrentCallsShareInputs(t *testing.T) {
	observations := testutil.SyntheticObservations(150, pvmodel.RTWA{}, testutil.TrueParams, installedPower, periodsPerHour)
	mask := pvmodel.NewMask(len(observations), true)
	before := observations[0]

	results := make([]Result, 4)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			res, err := Calibrate(context.Background(), observations, pvmodel.DefaultPriors(), pvmodel.RTWA{}, mask, testOptions())
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, res := range results[1:] {
		assert.Equal(t, results[0].Trace, res.Trace)
	}
	assert.Equal(t, before, observations[0])
	assert.Equal(t, len(observations), mask.Count())
}
