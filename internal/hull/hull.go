package hull

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/infrastructure"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
)

const daysPerYear = 365.2522

// MonthRatio is the envelope ratio of one calendar month.
type MonthRatio struct {
	Year     int        `json:"year"`
	Month    time.Month `json:"month"`
	TimeLag  float64    `json:"time_lag"` // years since the first observation
	MaxRatio float64    `json:"max_ratio"`
}

// Trend is the fitted envelope line: ratio = Intercept + Slope*years.
type Trend struct {
	Intercept   float64      `json:"intercept"`
	Slope       float64      `json:"slope"`
	InterceptSE float64      `json:"intercept_se"`
	SlopeSE     float64      `json:"slope_se"`
	Points      int          `json:"points"`
	Months      []MonthRatio `json:"months"`
	// Fallback is set when fewer than two months, or months without spread
	// in time, left no line to fit. The coefficients are then 1, 0, 0, 0.
	Fallback bool `json:"fallback"`
}

func fallback(months []MonthRatio) Trend {
	return Trend{Intercept: 1, Points: len(months), Months: months, Fallback: true}
}

type cell struct {
	measured    float64
	theoretical float64
}

type month struct {
	hasData bool
	periods []cell
}

// CalibrateTrend fits the envelope trend of observations evaluated against
// ref. A nil mask selects every observation. Observations must be in time
// order; the first one anchors both the year index and the time lag.
func CalibrateTrend(ctx context.Context, observations []pvmodel.Observation, mask pvmodel.Mask, ref pvmodel.Reference) (Trend, error) {
	_, span := infrastructure.Tracer().Start(ctx, "hull.CalibrateTrend",
		trace.WithAttributes(attribute.Int("observations", len(observations))))
	defer span.End()

	if err := ref.Validate(); err != nil {
		return Trend{}, err
	}
	if mask != nil {
		if err := mask.CheckLength(len(observations)); err != nil {
			return Trend{}, err
		}
	}
	if len(observations) == 0 {
		return fallback(nil), nil
	}

	pph := ref.PeriodsPerHour
	minutesPerPeriod := 60 / pph
	periodsPerDay := 24 * pph

	first := observations[0].Timestamp
	last := observations[len(observations)-1].Timestamp
	if last.Before(first) {
		return Trend{}, apperrors.NewOutOfBoundsError("observations", "must be ordered by timestamp")
	}
	years := last.Year() - first.Year() + 1

	grid := make([][12]month, years)
	for i, obs := range observations {
		if mask != nil && !mask[i] {
			continue
		}
		theoretical := ref.Power(obs)
		if !(theoretical > 0) {
			continue
		}
		ts := obs.Timestamp
		y := ts.Year() - first.Year()
		if y < 0 || y >= years {
			return Trend{}, apperrors.NewOutOfBoundsError("observations", "must be ordered by timestamp")
		}
		m := &grid[y][ts.Month()-1]
		if m.periods == nil {
			m.periods = make([]cell, periodsPerDay)
		}
		c := &m.periods[ts.Hour()*pph+ts.Minute()/minutesPerPeriod]
		if measured := obs.Measured(); measured > c.measured {
			c.measured = measured
			c.theoretical = theoretical
		}
		m.hasData = true
	}

	var months []MonthRatio
	for y := range grid {
		for mi := range grid[y] {
			m := grid[y][mi]
			if !m.hasData {
				continue
			}
			year, mon := first.Year()+y, time.Month(mi+1)
			mid := time.Date(year, mon, 15, 0, 0, 0, 0, first.Location())
			days := math.Trunc(mid.Sub(first).Hours() / 24)
			months = append(months, MonthRatio{
				Year:     year,
				Month:    mon,
				TimeLag:  days / daysPerYear,
				MaxRatio: maxSegmentRatio(m.periods),
			})
		}
	}

	trend := fit(months)
	span.SetAttributes(attribute.Int("months", trend.Points), attribute.Bool("fallback", trend.Fallback))
	return trend, nil
}

// maxSegmentRatio splits the day into three runs of consecutive periods with
// about a third of the theoretical energy each and returns the best
// measured/theoretical ratio among them.
func maxSegmentRatio(periods []cell) float64 {
	var day float64
	for _, c := range periods {
		day += c.theoretical
	}

	var measured, theoretical [3]float64
	var running float64
	for _, c := range periods {
		running += c.theoretical
		seg := 2
		switch {
		case running < day/3:
			seg = 0
		case running < 2*day/3:
			seg = 1
		}
		measured[seg] += c.measured
		theoretical[seg] += c.theoretical
	}

	best := 0.0
	for i := range measured {
		if theoretical[i] > 0 {
			best = math.Max(best, measured[i]/theoretical[i])
		}
	}
	return best
}

// fit runs an ordinary least squares line through the monthly ratios with
// classical standard errors.
func fit(months []MonthRatio) Trend {
	n := len(months)
	if n < 2 {
		return fallback(months)
	}

	x := make([]float64, n)
	y := make([]float64, n)
	for i, m := range months {
		x[i], y[i] = m.TimeLag, m.MaxRatio
	}

	xBar := stat.Mean(x, nil)
	dx := make([]float64, n)
	copy(dx, x)
	floats.AddConst(-xBar, dx)
	sxx := floats.Dot(dx, dx)
	if !(sxx > 0) {
		return fallback(months)
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)

	trend := Trend{
		Intercept: intercept,
		Slope:     slope,
		Points:    n,
		Months:    months,
	}
	if n > 2 {
		var ssr float64
		for i := range x {
			r := y[i] - (intercept + slope*x[i])
			ssr += r * r
		}
		s := math.Sqrt(ssr / float64(n-2))
		trend.InterceptSE = s * math.Sqrt(1/float64(n)+xBar*xBar/sxx)
		trend.SlopeSE = s / math.Sqrt(sxx)
	}
	return trend
}

// HullPriors replaces the efficiency and degradation priors of base with the
// envelope estimate. The ratio follows η(1 − λt), so the degradation mean is
// −slope/intercept, or −slope when the intercept is not positive. Means are
// clamped into the existing bounds; a zero or non-finite standard error keeps
// the base standard deviation.
func HullPriors(trend Trend, base pvmodel.PriorSet) (pvmodel.PriorSet, error) {
	if trend.Fallback {
		return pvmodel.PriorSet{}, apperrors.NewDataInsufficiencyError(
			fmt.Sprintf("hull trend needs at least 2 months spread in time, got %d", trend.Points))
	}
	if err := base.Validate(); err != nil {
		return pvmodel.PriorSet{}, err
	}

	eta := base.Efficiency
	eta.Mean = eta.Clamp(trend.Intercept)
	if usableSE(trend.InterceptSE) {
		eta.StdDev = trend.InterceptSE
	}

	scale := 1.0
	if trend.Intercept > 0 {
		scale = trend.Intercept
	}
	degr := base.Degradation
	degr.Mean = degr.Clamp(-trend.Slope / scale)
	if se := trend.SlopeSE / scale; usableSE(se) {
		degr.StdDev = se
	}

	return base.With(pvmodel.Efficiency, eta).With(pvmodel.Degradation, degr), nil
}

func usableSE(se float64) bool {
	return se > 0 && !math.IsInf(se, 0)
}
