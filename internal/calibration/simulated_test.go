package calibration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
	"github.com/Steivan/LEG-analysis-sub001/internal/shared/testutil"
	"github.com/Steivan/LEG-analysis-sub001/internal/simulate"
)

// priorsAround centres the default priors on scale*p.
func priorsAround(p pvmodel.Params, scale float64) pvmodel.PriorSet {
	priors := pvmodel.DefaultPriors().Array()
	v := p.Vector()
	for i := range priors {
		priors[i].Mean = scale * v[i]
	}
	return pvmodel.PriorSetFromArray(priors)
}

func TestCalibrate_RecoversSimulatedYear(t *testing.T) {
	if testing.Short() {
		t.Skip("simulates a full year")
	}

	simOpts := simulate.DefaultOptions(testutil.TrueParams)
	simOpts.PeriodsPerHour = 6
	ds, err := simulate.Generate(simOpts)
	require.NoError(t, err)

	priors := priorsAround(testutil.TrueParams, 0.8)
	require.NoError(t, priors.Validate())

	opts := DefaultOptions(ds.InstalledPower, ds.PeriodsPerHour)
	opts.Tolerance = 1e-6
	opts.MaxIterations = 10

	res, err := Calibrate(context.Background(), ds.Observations, priors, pvmodel.RTWA{}, ds.ModelValid, opts)
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, ds.ModelValid.Count(), res.Rows)
	assertParamsNear(t, testutil.TrueParams, res.Final(), 0.01)
}

func TestCalibrate_SimulatedYearWithNumericalGradient(t *testing.T) {
	if testing.Short() {
		t.Skip("simulates a full year")
	}

	ds, err := simulate.Generate(simulate.DefaultOptions(testutil.TrueParams))
	require.NoError(t, err)

	priors := priorsAround(testutil.TrueParams, 0.9)
	ev := pvmodel.NewNumericalEvaluator(pvmodel.RTWA{}, priors)

	opts := DefaultOptions(ds.InstalledPower, ds.PeriodsPerHour)
	res, err := Calibrate(context.Background(), ds.Observations, priors, ev, ds.ModelValid, opts)
	require.NoError(t, err)
	assertParamsNear(t, testutil.TrueParams, res.Final(), 0.01)
}
