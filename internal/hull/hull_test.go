package hull

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
	"github.com/Steivan/LEG-analysis-sub001/internal/shared/testutil"
	"github.com/Steivan/LEG-analysis-sub001/internal/simulate"
)

// ghiEvaluator predicts the global horizontal irradiance as power so tests
// control the theoretical value directly.
var ghiEvaluator = pvmodel.EvaluatorFunc(func(obs pvmodel.Observation, _ float64, _ int, _ pvmodel.Params) pvmodel.Evaluation {
	return pvmodel.Evaluation{Power: obs.Meteo.GlobalHorizontal}
})

func ghiReference() pvmodel.Reference {
	return pvmodel.Reference{Evaluator: ghiEvaluator, InstalledPower: 1000, PeriodsPerHour: 4}
}

func record(ts time.Time, theoretical, measured float64) pvmodel.Observation {
	return pvmodel.Observation{
		Timestamp:      ts,
		MeasuredPower:  measured,
		HasMeasurement: true,
		Weight:         1,
		Meteo:          pvmodel.Meteorology{GlobalHorizontal: theoretical},
	}
}

// linearEnvelope builds years of mid-month midday records whose ratio decays
// linearly with the month's time lag.
func linearEnvelope(years int, intercept, slope float64) []pvmodel.Observation {
	first := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	observations := []pvmodel.Observation{record(first, 0, 0)}
	for y := 0; y < years; y++ {
		for m := time.January; m <= time.December; m++ {
			day := time.Date(2010+y, m, 15, 0, 0, 0, 0, time.UTC)
			lag := math.Trunc(day.Sub(first).Hours()/24) / daysPerYear
			ratio := intercept + slope*lag
			for p := 0; p < 16; p++ {
				ts := day.Add(10*time.Hour + time.Duration(p)*15*time.Minute)
				theoretical := 400 + 50*float64(p%5)
				observations = append(observations, record(ts, theoretical, ratio*theoretical))
			}
		}
	}
	return observations
}

func TestCalibrateTrend_RecoversLinearDecay(t *testing.T) {
	observations := linearEnvelope(10, 0.95, -0.01)

	trend, err := CalibrateTrend(context.Background(), observations, nil, ghiReference())
	require.NoError(t, err)

	assert.False(t, trend.Fallback)
	assert.Equal(t, 120, trend.Points)
	require.Len(t, trend.Months, 120)
	assert.InDelta(t, 0.95, trend.Intercept, 1e-9)
	assert.InDelta(t, -0.01, trend.Slope, 1e-9)
	assert.InDelta(t, 0, trend.InterceptSE, 1e-9)
	assert.InDelta(t, 0, trend.SlopeSE, 1e-9)

	jan := trend.Months[0]
	assert.Equal(t, 2010, jan.Year)
	assert.Equal(t, time.January, jan.Month)
	assert.InDelta(t, 14/daysPerYear, jan.TimeLag, 1e-12)
}

func TestCalibrateTrend_StandardErrorsGrowWithNoise(t *testing.T) {
	observations := linearEnvelope(4, 0.9, -0.02)
	// Perturb whole months so the envelope ratio itself moves.
	for i := range observations {
		if observations[i].Timestamp.Month()%2 == 0 {
			observations[i].MeasuredPower *= 1.01
		}
	}

	trend, err := CalibrateTrend(context.Background(), observations, nil, ghiReference())
	require.NoError(t, err)
	assert.Greater(t, trend.InterceptSE, 0.0)
	assert.Greater(t, trend.SlopeSE, 0.0)
	assert.InDelta(t, -0.02, trend.Slope, 0.005)
}

func TestCalibrateTrend_Fallback(t *testing.T) {
	first := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		observations []pvmodel.Observation
		points       int
	}{
		{name: "no observations", observations: nil, points: 0},
		{name: "single month", observations: []pvmodel.Observation{
			record(first.Add(12*time.Hour), 500, 450),
			record(first.Add(36*time.Hour), 500, 440),
		}, points: 1},
		{name: "no theoretical power", observations: []pvmodel.Observation{
			record(first, 0, 10),
			record(first.AddDate(0, 2, 0), 0, 10),
		}, points: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend, err := CalibrateTrend(context.Background(), tt.observations, nil, ghiReference())
			require.NoError(t, err)
			assert.True(t, trend.Fallback)
			assert.Equal(t, tt.points, trend.Points)
			assert.Equal(t, 1.0, trend.Intercept)
			assert.Zero(t, trend.Slope)
			assert.Zero(t, trend.InterceptSE)
			assert.Zero(t, trend.SlopeSE)
		})
	}
}

func TestCalibrateTrend_TwoMonthsHaveZeroErrors(t *testing.T) {
	first := time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)
	observations := []pvmodel.Observation{
		record(first, 500, 450),
		record(first.AddDate(0, 6, 0), 500, 440),
	}

	trend, err := CalibrateTrend(context.Background(), observations, nil, ghiReference())
	require.NoError(t, err)
	assert.False(t, trend.Fallback)
	assert.Equal(t, 2, trend.Points)
	assert.Zero(t, trend.InterceptSE)
	assert.Zero(t, trend.SlopeSE)
	assert.Less(t, trend.Slope, 0.0)
}

func TestCalibrateTrend_KeepsBestMeasurementPerCell(t *testing.T) {
	first := time.Date(2021, 5, 3, 12, 0, 0, 0, time.UTC)
	observations := []pvmodel.Observation{
		// Same cell on different days: the cloudy day must not win.
		record(first, 800, 200),
		record(first.AddDate(0, 0, 7), 600, 540),
		record(first.AddDate(0, 1, 0), 600, 540),
	}

	trend, err := CalibrateTrend(context.Background(), observations, nil, ghiReference())
	require.NoError(t, err)
	require.Len(t, trend.Months, 2)
	assert.InDelta(t, 0.9, trend.Months[0].MaxRatio, 1e-12)
}

func TestCalibrateTrend_Mask(t *testing.T) {
	observations := linearEnvelope(2, 0.95, -0.01)
	mask := pvmodel.NewMask(len(observations), true)
	for i, obs := range observations {
		if obs.Timestamp.Year() == 2011 {
			mask[i] = false
		}
	}

	trend, err := CalibrateTrend(context.Background(), observations, mask, ghiReference())
	require.NoError(t, err)
	assert.Equal(t, 12, trend.Points)

	_, err = CalibrateTrend(context.Background(), observations, mask[1:], ghiReference())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeOutOfBounds))
}

func TestCalibrateTrend_InvalidReference(t *testing.T) {
	ref := ghiReference()
	ref.PeriodsPerHour = 0
	_, err := CalibrateTrend(context.Background(), linearEnvelope(1, 1, 0), nil, ref)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeOutOfBounds))
}

func TestMaxSegmentRatio(t *testing.T) {
	tests := []struct {
		name    string
		periods []cell
		want    float64
	}{
		{name: "empty day", periods: make([]cell, 8), want: 0},
		{
			name: "shaded morning",
			periods: []cell{
				{measured: 10, theoretical: 100},
				{measured: 20, theoretical: 100},
				{measured: 80, theoretical: 100},
				{measured: 90, theoretical: 100},
				{measured: 95, theoretical: 100},
				{measured: 95, theoretical: 100},
			},
			want: 280.0 / 300,
		},
		{
			name: "uniform",
			periods: []cell{
				{measured: 45, theoretical: 50},
				{measured: 90, theoretical: 100},
				{measured: 45, theoretical: 50},
			},
			want: 0.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, maxSegmentRatio(tt.periods), 1e-12)
		})
	}
}

func TestHullPriors(t *testing.T) {
	base := pvmodel.DefaultPriors()

	t.Run("maps intercept and slope", func(t *testing.T) {
		priors, err := HullPriors(Trend{Intercept: 0.92, Slope: -0.006, InterceptSE: 0.01, SlopeSE: 0.001, Points: 24}, base)
		require.NoError(t, err)
		assert.Equal(t, 0.92, priors.Efficiency.Mean)
		assert.Equal(t, 0.01, priors.Efficiency.StdDev)
		assert.InDelta(t, 0.006/0.92, priors.Degradation.Mean, 1e-12)
		assert.InDelta(t, 0.001/0.92, priors.Degradation.StdDev, 1e-12)
		assert.Equal(t, base.TempCoefficient, priors.TempCoefficient)
		assert.Equal(t, base.U0, priors.U0)
		assert.Equal(t, base.U1, priors.U1)
		assert.NoError(t, priors.Validate())
	})

	t.Run("clamps means and keeps default spread", func(t *testing.T) {
		priors, err := HullPriors(Trend{Intercept: 1.2, Slope: 0.01, Points: 2}, base)
		require.NoError(t, err)
		assert.Equal(t, base.Efficiency.Max, priors.Efficiency.Mean)
		assert.Equal(t, base.Efficiency.StdDev, priors.Efficiency.StdDev)
		assert.Equal(t, base.Degradation.Min, priors.Degradation.Mean)
		assert.Equal(t, base.Degradation.StdDev, priors.Degradation.StdDev)
	})

	t.Run("non-positive intercept uses the raw slope", func(t *testing.T) {
		priors, err := HullPriors(Trend{Intercept: -0.1, Slope: -0.005, SlopeSE: 0.002, Points: 5}, base)
		require.NoError(t, err)
		assert.Equal(t, base.Efficiency.Min, priors.Efficiency.Mean)
		assert.Equal(t, 0.005, priors.Degradation.Mean)
		assert.Equal(t, 0.002, priors.Degradation.StdDev)
	})

	t.Run("fallback trend", func(t *testing.T) {
		_, err := HullPriors(fallback(nil), base)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeDataInsufficiency))
	})

	t.Run("invalid base", func(t *testing.T) {
		bad := base.With(pvmodel.ThermalU1, pvmodel.Prior{Mean: 0.5, StdDev: 0, Min: 0, Max: 1})
		_, err := HullPriors(Trend{Intercept: 0.9, Points: 3}, bad)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeOutOfBounds))
	})
}

func TestCalibrateTrend_SimulatedPlant(t *testing.T) {
	if testing.Short() {
		t.Skip("simulates two years")
	}

	opts := simulate.DefaultOptions(testutil.TrueParams)
	opts.Days = 730
	ds, err := simulate.Generate(opts)
	require.NoError(t, err)

	reference := testutil.TrueParams
	reference.Efficiency = 1
	reference.Degradation = 0
	ref := ds.Reference()
	ref.Params = reference

	trend, err := CalibrateTrend(context.Background(), ds.Observations, ds.ModelValid, ref)
	require.NoError(t, err)
	assert.Equal(t, 24, trend.Points)
	assert.InDelta(t, testutil.TrueParams.Efficiency, trend.Intercept, 0.005)
	assert.InDelta(t, -testutil.TrueParams.Efficiency*testutil.TrueParams.Degradation, trend.Slope, 0.002)

	priors, err := HullPriors(trend, pvmodel.DefaultPriors())
	require.NoError(t, err)
	assert.InDelta(t, testutil.TrueParams.Degradation, priors.Degradation.Mean, 0.003)
}
