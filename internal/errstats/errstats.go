// Package errstats computes residual statistics of the PV model against
// measured power: the mean error used to rate a calibration, error histograms
// and empirical quantiles.
package errstats

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
)

// Summary describes the residual distribution of one parameter set.
type Summary struct {
	Count     int     `json:"count"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	MeanError float64 `json:"mean_error"`
}

// Histogram bins residuals into equally wide bins centred on
// Min + i*BinSize, so the extreme errors sit in the middle of the outer bins.
type Histogram struct {
	Summary
	BinSize    float64   `json:"bin_size"`
	LowerBound float64   `json:"lower_bound"`
	Centers    []float64 `json:"centers"`
	Counts     []int     `json:"counts"`
}

// Errors returns measured minus modelled power for every observation selected
// by mask, in sequence order. Unmeasured observations contribute 0. A nil mask
// selects every observation with irradiance.
func Errors(observations []pvmodel.Observation, mask pvmodel.Mask, ref pvmodel.Reference) ([]float64, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if mask == nil {
		mask = pvmodel.HasIrradianceMask(observations)
	} else if err := mask.CheckLength(len(observations)); err != nil {
		return nil, err
	}

	errs := make([]float64, 0, mask.Count())
	for i, obs := range observations {
		if !mask[i] {
			continue
		}
		if !obs.HasMeasurement {
			errs = append(errs, 0)
			continue
		}
		errs = append(errs, obs.MeasuredPower-ref.Power(obs))
	}
	return errs, nil
}

// Summarize computes count, extremes and the mean error sqrt(Σe²/(n-1)). The
// mean error is NaN for fewer than two residuals.
func Summarize(errs []float64) (Summary, error) {
	if len(errs) == 0 {
		return Summary{}, apperrors.NewDataInsufficiencyError("no residuals to summarize")
	}
	s := Summary{
		Count:     len(errs),
		Min:       floats.Min(errs),
		Max:       floats.Max(errs),
		MeanError: math.NaN(),
	}
	if s.Count > 1 {
		s.MeanError = math.Sqrt(floats.Dot(errs, errs) / float64(s.Count-1))
	}
	return s, nil
}

// ComputeMeanError evaluates the residuals of ref on the selected observations
// and summarizes them.
func ComputeMeanError(observations []pvmodel.Observation, mask pvmodel.Mask, ref pvmodel.Reference) (Summary, error) {
	errs, err := Errors(observations, mask, ref)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(errs)
}

// NewHistogram bins errs into bins bins.
func NewHistogram(errs []float64, bins int) (Histogram, error) {
	if bins < 2 {
		return Histogram{}, apperrors.NewOutOfBoundsError("bins", fmt.Sprintf("must be at least 2, got %d", bins))
	}
	s, err := Summarize(errs)
	if err != nil {
		return Histogram{}, err
	}

	h := Histogram{
		Summary: s,
		BinSize: (s.Max - s.Min) / float64(bins-1),
		Centers: make([]float64, bins),
		Counts:  make([]int, bins),
	}
	h.LowerBound = s.Min - h.BinSize/2
	for i := range h.Centers {
		h.Centers[i] = s.Min + h.BinSize*float64(i)
	}

	for _, e := range errs {
		idx := 0
		if h.BinSize > 0 {
			idx = int((e - h.LowerBound) / h.BinSize)
			idx = min(max(idx, 0), bins-1)
		}
		h.Counts[idx]++
	}
	return h, nil
}

// ComputeHistogram evaluates ref on the selected observations and bins the
// residuals.
func ComputeHistogram(observations []pvmodel.Observation, mask pvmodel.Mask, ref pvmodel.Reference, bins int) (Histogram, error) {
	errs, err := Errors(observations, mask, ref)
	if err != nil {
		return Histogram{}, err
	}
	return NewHistogram(errs, bins)
}

// Quantiles returns, for every cumulative probability p, the largest sorted
// residual whose rank fraction i/n does not exceed p.
func Quantiles(errs []float64, probabilities []float64) ([]float64, error) {
	if len(errs) == 0 {
		return nil, apperrors.NewDataInsufficiencyError("no residuals for quantiles")
	}
	for _, p := range probabilities {
		if !(p >= 0 && p <= 1) {
			return nil, apperrors.NewOutOfBoundsError("probabilities", fmt.Sprintf("%g outside [0, 1]", p))
		}
	}

	sorted := make([]float64, len(errs))
	copy(sorted, errs)
	sort.Float64s(sorted)

	n := len(sorted)
	out := make([]float64, len(probabilities))
	for k, p := range probabilities {
		i := min(int(math.Floor(p*float64(n))), n-1)
		for i > 0 && float64(i)/float64(n) > p {
			i--
		}
		for i+1 < n && float64(i+1)/float64(n) <= p {
			i++
		}
		out[k] = sorted[i]
	}
	return out, nil
}

// ComputeQuantiles evaluates ref on the selected observations and returns the
// residual quantiles.
func ComputeQuantiles(observations []pvmodel.Observation, mask pvmodel.Mask, ref pvmodel.Reference, probabilities []float64) ([]float64, error) {
	errs, err := Errors(observations, mask, ref)
	if err != nil {
		return nil, err
	}
	return Quantiles(errs, probabilities)
}
