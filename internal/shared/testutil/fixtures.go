package testutil

import (
	"math"
	"time"

	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
)

// TrueParams is the parameter vector synthetic fixtures are generated from.
var TrueParams = pvmodel.Params{
	Efficiency:      0.9,
	TempCoefficient: -0.005,
	U0:              25,
	U1:              0.4,
	Degradation:     0.01,
}

func frac(x float64) float64 {
	return x - math.Floor(x)
}

// SyntheticObservations returns count daylight observations whose measured
// power is exactly what ev predicts under p. Geometry and weather vary
// deterministically so every parameter is identifiable; age spans five years.
func SyntheticObservations(count int, ev pvmodel.Evaluator, p pvmodel.Params, installedPower float64, periodsPerHour int) []pvmodel.Observation {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	step := time.Duration(5*365*24/max(count, 1)) * time.Hour

	observations := make([]pvmodel.Observation, count)
	for i := range observations {
		f := float64(i)
		sinElev := 0.5 + 0.4*frac(f*0.3737)
		ghi := 200 + 700*frac(f*0.2929)
		obs := pvmodel.Observation{
			Timestamp: start.Add(time.Duration(i) * step),
			Weight:    1,
			Geometry: pvmodel.Geometry{
				DirectFactor:  0.2 + 0.8*frac(f*0.5353),
				DiffuseFactor: 0.8 + 0.2*frac(f*0.7171),
				SinElevation:  sinElev,
				CosElevation:  math.Sqrt(1 - sinElev*sinElev),
			},
			Meteo: pvmodel.Meteorology{
				GlobalHorizontal:   ghi,
				DiffuseHorizontal:  0.2*ghi + 30*frac(f*0.6161),
				AmbientTemperature: -5 + 35*frac(f*0.4343),
				WindSpeed:          8 * frac(f*0.6767),
			},
			Age: 5 * f / float64(max(count, 1)),
		}
		obs.MeasuredPower = ev.Evaluate(obs, installedPower, periodsPerHour, p).Power
		obs.HasMeasurement = true
		observations[i] = obs
	}
	return observations
}
