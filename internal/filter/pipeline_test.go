package filter

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
	"github.com/Steivan/LEG-analysis-sub001/internal/shared/testutil"
	"github.com/Steivan/LEG-analysis-sub001/internal/simulate"
)

func TestNewPipeline(t *testing.T) {
	cfg := config.Default().Filters
	cfg.Snow.Enabled = false

	p := NewPipeline(cfg, testReference(), nil)
	require.NotNil(t, p.Fog)
	assert.Nil(t, p.Snow)
	require.NotNil(t, p.Outliers)
	assert.Equal(t, DefaultOutlierOptions(), *p.Outliers)
}

func TestPipeline_Run(t *testing.T) {
	night := dayOf(0, 0, 1, 1)
	for i := range night {
		night[i].Geometry = pvmodel.Geometry{DiffuseFactor: 0.9, SinElevation: -0.3}
	}
	snowed := dayOf(1, 8, flat(8, 0)...)
	ratios := flat(48, 1)
	ratios[30] = 1.5
	clear := dayOf(2, 6, ratios...)

	observations := append(append(night, snowed...), clear...)

	fog := DefaultFogOptions()
	snow := DefaultSnowOptions()
	outliers := DefaultOutlierOptions()
	logger, handler := testutil.NewTestLogger(t)
	p := &Pipeline{Reference: testReference(), Fog: &fog, Snow: &snow, Outliers: &outliers, Logger: logger}

	res, err := p.Run(context.Background(), observations, nil)
	require.NoError(t, err)

	require.Len(t, res.Passes, 4)
	assert.Equal(t, PassResult{Name: PassSubHorizon, Excluded: 2, Remaining: 56}, res.Passes[0])
	// The snowed day has no positive ratio, so the fog pass already drops it.
	assert.Equal(t, PassResult{Name: PassFog, Excluded: 8, Remaining: 48}, res.Passes[1])
	assert.Equal(t, PassResult{Name: PassSnow, Excluded: 0, Remaining: 48}, res.Passes[2])
	// The bright period pulls its whole hour above the hourly threshold.
	assert.Equal(t, PassResult{Name: PassOutliers, Excluded: 4, Remaining: 44}, res.Passes[3])
	assert.Equal(t, 44, res.Mask.Count())

	assert.Len(t, handler.GetRecordsByLevel(slog.LevelDebug), 4)
	testutil.AssertLogContains(t, handler, slog.LevelInfo, "filter pipeline finished")
}

func TestPipeline_OnlySubHorizon(t *testing.T) {
	observations := dayOf(0, 10, 0, 0.2, 1)
	p := &Pipeline{Reference: testReference()}

	res, err := p.Run(context.Background(), observations, pvmodel.Mask{true, false, true})
	require.NoError(t, err)
	require.Len(t, res.Passes, 1)
	assert.Equal(t, pvmodel.Mask{true, false, true}, res.Mask)
	assert.Zero(t, res.Passes[0].Excluded)
}

func TestPipeline_Errors(t *testing.T) {
	observations := dayOf(0, 10, 1, 1)

	t.Run("mask length", func(t *testing.T) {
		p := &Pipeline{Reference: testReference()}
		_, err := p.Run(context.Background(), observations, pvmodel.Mask{true})
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeOutOfBounds))
	})

	t.Run("bad thresholds", func(t *testing.T) {
		bad := OutlierOptions{}
		p := &Pipeline{Reference: testReference(), Outliers: &bad}
		_, err := p.Run(context.Background(), observations, nil)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeOutOfBounds))
		assert.ErrorContains(t, err, "outliers pass")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := &Pipeline{Reference: testReference()}
		_, err := p.Run(ctx, observations, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPipeline_SimulatedAnomalies(t *testing.T) {
	opts := simulate.DefaultOptions(testutil.TrueParams)
	opts.Days = 60
	opts.Fog, opts.Snow, opts.Outliers = true, true, true
	ds, err := simulate.Generate(opts)
	require.NoError(t, err)

	absoluteFog := BandOptions{Pattern: RatioPattern, Policy: RatioBandPolicy{LoThreshold: 0.1, HiThreshold: 0.9}}
	snow := DefaultSnowOptions()
	outliers := DefaultOutlierOptions()
	p := &Pipeline{Reference: ds.Reference(), Fog: &absoluteFog, Snow: &snow, Outliers: &outliers}

	res, err := p.Run(context.Background(), ds.Observations, nil)
	require.NoError(t, err)

	var foggy, snowy, validKept int
	for i, keep := range res.Mask {
		if !keep {
			continue
		}
		if ds.FogPeriod[i] && ds.Observations[i].Weight > 0 {
			foggy++
		}
		if ds.SnowDay[i] && ds.Observations[i].Weight > 0 {
			snowy++
		}
		if ds.ModelValid[i] {
			validKept++
		}
	}
	assert.Zero(t, foggy)
	assert.Zero(t, snowy)
	assert.Greater(t, float64(validKept), 0.95*float64(ds.ModelValid.Count()))
}
