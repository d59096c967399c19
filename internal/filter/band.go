package filter

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
)

// PatternKind selects the per-record value a band policy classifies.
type PatternKind int

const (
	// RatioPattern is measured over reference-model power.
	RatioPattern PatternKind = iota
	// PowerPattern is measured power over installed power per period.
	PowerPattern
)

func (k PatternKind) String() string {
	switch k {
	case RatioPattern:
		return "ratio"
	case PowerPattern:
		return "power"
	default:
		return fmt.Sprintf("pattern(%d)", int(k))
	}
}

// ThresholdKind selects the daily statistic relative thresholds scale with.
type ThresholdKind int

const (
	PeakThreshold ThresholdKind = iota
	MeanThreshold
	MedianThreshold
)

func (k ThresholdKind) String() string {
	switch k {
	case PeakThreshold:
		return "peak"
	case MeanThreshold:
		return "mean"
	case MedianThreshold:
		return "median"
	default:
		return fmt.Sprintf("threshold(%d)", int(k))
	}
}

// DayBand locates the threshold crossings within one day's values. Indices
// are positions in the day's sequence, -1 when no value qualifies.
type DayBand struct {
	FirstLow     int `json:"first_low"`
	FirstHigh    int `json:"first_high"`
	LastHigh     int `json:"last_high"`
	LastLow      int `json:"last_low"`
	LastPositive int `json:"last_positive"`
}

// NoBand is the band of a day without any qualifying value.
var NoBand = DayBand{FirstLow: -1, FirstHigh: -1, LastHigh: -1, LastLow: -1, LastPositive: -1}

// HasHigh reports whether any value reached the high threshold.
func (b DayBand) HasHigh() bool {
	return b.FirstHigh >= 0
}

// BandPolicy classifies a day's sequence of pattern values.
type BandPolicy interface {
	Band(values []float64) DayBand
}

// RatioBandPolicy applies a low and a high threshold, either absolutely or
// scaled by a statistic of the day's positive values.
type RatioBandPolicy struct {
	UseRelativeThreshold bool
	ThresholdKind        ThresholdKind
	LoThreshold          float64
	HiThreshold          float64
}

// Validate rejects thresholds that cannot define a band.
func (p RatioBandPolicy) Validate() error {
	switch {
	case math.IsNaN(p.LoThreshold) || math.IsInf(p.LoThreshold, 0) || p.LoThreshold < 0:
		return apperrors.NewOutOfBoundsError("lo_threshold", fmt.Sprintf("must be finite and non-negative, got %g", p.LoThreshold))
	case math.IsNaN(p.HiThreshold) || math.IsInf(p.HiThreshold, 0) || !(p.HiThreshold > p.LoThreshold):
		return apperrors.NewOutOfBoundsError("hi_threshold", fmt.Sprintf("must be finite and above lo_threshold, got %g", p.HiThreshold))
	case p.UseRelativeThreshold && (p.ThresholdKind < PeakThreshold || p.ThresholdKind > MedianThreshold):
		return apperrors.NewOutOfBoundsError("threshold_kind", fmt.Sprintf("unknown kind %d", int(p.ThresholdKind)))
	}
	return nil
}

// Band implements BandPolicy.
func (p RatioBandPolicy) Band(values []float64) DayBand {
	scale := 1.0
	if p.UseRelativeThreshold {
		positive := make([]float64, 0, len(values))
		for _, v := range values {
			if v > 0 {
				positive = append(positive, v)
			}
		}
		if len(positive) == 0 {
			return NoBand
		}
		scale = dailyStatistic(positive, p.ThresholdKind)
	}
	lo, hi := p.LoThreshold*scale, p.HiThreshold*scale

	band := NoBand
	for i, v := range values {
		if v >= lo {
			if band.FirstLow < 0 {
				band.FirstLow = i
			}
			band.LastLow = i
		}
		if v >= hi {
			if band.FirstHigh < 0 {
				band.FirstHigh = i
			}
			band.LastHigh = i
		}
		if v > 0 {
			band.LastPositive = i
		}
	}
	return band
}

func dailyStatistic(values []float64, kind ThresholdKind) float64 {
	switch kind {
	case MeanThreshold:
		return stat.Mean(values, nil)
	case MedianThreshold:
		return median(values)
	default:
		return floats.Max(values)
	}
}

func median(values []float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
