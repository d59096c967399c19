package filter

import (
	"time"

	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
)

// ghiEvaluator predicts the global horizontal irradiance as power, so a
// record's ratio is measured power over its GHI.
var ghiEvaluator = pvmodel.EvaluatorFunc(func(obs pvmodel.Observation, _ float64, _ int, _ pvmodel.Params) pvmodel.Evaluation {
	return pvmodel.Evaluation{Power: obs.Meteo.GlobalHorizontal}
})

func testReference() pvmodel.Reference {
	return pvmodel.Reference{Evaluator: ghiEvaluator, InstalledPower: 4000, PeriodsPerHour: 4}
}

var daylight = pvmodel.Geometry{DirectFactor: 0.8, DiffuseFactor: 0.9, SinElevation: 0.5, CosElevation: 0.87}

// dayOf returns one record per 15 minutes starting at startHour on day d,
// with theoretical power 500 and the given ratios.
func dayOf(d int, startHour int, ratios ...float64) []pvmodel.Observation {
	base := time.Date(2022, 3, 1+d, startHour, 0, 0, 0, time.UTC)
	out := make([]pvmodel.Observation, len(ratios))
	for i, r := range ratios {
		out[i] = pvmodel.Observation{
			Timestamp:      base.Add(time.Duration(i) * 15 * time.Minute),
			MeasuredPower:  r * 500,
			HasMeasurement: true,
			Weight:         1,
			Geometry:       daylight,
			Meteo:          pvmodel.Meteorology{GlobalHorizontal: 500},
		}
	}
	return out
}

// flat returns n copies of v.
func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func kept(mask pvmodel.Mask) []int {
	var idx []int
	for i, v := range mask {
		if v {
			idx = append(idx, i)
		}
	}
	return idx
}

func span(from, to int) []int {
	var idx []int
	for i := from; i <= to; i++ {
		idx = append(idx, i)
	}
	return idx
}
