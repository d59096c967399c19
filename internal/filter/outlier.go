package filter

import (
	"fmt"
	"math"

	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
)

const (
	// madScale turns a median absolute deviation into a normal-consistent sigma.
	madScale = 1.4826

	blocksPerDay  = 8
	hoursPerBlock = 24 / blocksPerDay

	// DefaultDispersionFloor bounds the dispersion estimate below by this
	// fraction of the median ratio, so near-perfect days do not turn tiny
	// deviations into outliers.
	DefaultDispersionFloor = 0.02
)

// OutlierOptions holds the robust score thresholds of the three granularities.
type OutlierOptions struct {
	PeriodThreshold float64
	HourlyThreshold float64
	BlockThreshold  float64
	DispersionFloor float64
}

// DefaultOutlierOptions returns the thresholds used by the calibration tool.
func DefaultOutlierOptions() OutlierOptions {
	return OutlierOptions{
		PeriodThreshold: 5,
		HourlyThreshold: 4,
		BlockThreshold:  3,
		DispersionFloor: DefaultDispersionFloor,
	}
}

// OutlierOptionsFromConfig builds outlier options from configuration.
func OutlierOptionsFromConfig(cfg config.OutlierConfig) OutlierOptions {
	return OutlierOptions{
		PeriodThreshold: cfg.PeriodThreshold,
		HourlyThreshold: cfg.HourlyThreshold,
		BlockThreshold:  cfg.BlockThreshold,
		DispersionFloor: DefaultDispersionFloor,
	}
}

// Validate rejects non-positive or non-finite thresholds.
func (o OutlierOptions) Validate() error {
	for _, th := range []struct {
		field string
		value float64
	}{
		{"period_threshold", o.PeriodThreshold},
		{"hourly_threshold", o.HourlyThreshold},
		{"block_threshold", o.BlockThreshold},
	} {
		if !(th.value > 0) || math.IsInf(th.value, 0) {
			return apperrors.NewOutOfBoundsError(th.field, fmt.Sprintf("must be positive and finite, got %g", th.value))
		}
	}
	if math.IsNaN(o.DispersionFloor) || math.IsInf(o.DispersionFloor, 0) || o.DispersionFloor < 0 {
		return apperrors.NewOutOfBoundsError("dispersion_floor", fmt.Sprintf("must be non-negative, got %g", o.DispersionFloor))
	}
	return nil
}

// aggregate accumulates measured and theoretical energy of one time unit.
type aggregate struct {
	measured, theoretical float64
}

func (a aggregate) ratio() float64 {
	return a.measured / a.theoretical
}

// ExcludeOutliers scores every valid daylight record against its day at the
// period, hour and three-hour block level. The score is how far the unit's
// measured/theoretical ratio lies above the day's median, in units of the
// scaled median absolute deviation. Units below the median score 0, so dips
// such as passing shade are kept. A record is dropped when any unit it
// belongs to scores above that granularity's threshold.
func ExcludeOutliers(observations []pvmodel.Observation, mask pvmodel.Mask, ref pvmodel.Reference, opts OutlierOptions) (pvmodel.Mask, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	out, err := startMask(observations, mask)
	if err != nil {
		return nil, err
	}

	for _, day := range splitDays(observations) {
		var (
			records []int
			periods []aggregate
			hours   [24]aggregate
			blocks  [blocksPerDay]aggregate
		)
		for _, i := range day {
			if !out[i] {
				continue
			}
			theoretical := ref.Power(observations[i])
			if !(theoretical > 0) {
				continue
			}
			unit := aggregate{measured: observations[i].Measured(), theoretical: theoretical}
			h := observations[i].Timestamp.Hour()

			records = append(records, i)
			periods = append(periods, unit)
			hours[h].measured += unit.measured
			hours[h].theoretical += unit.theoretical
			blocks[h/hoursPerBlock].measured += unit.measured
			blocks[h/hoursPerBlock].theoretical += unit.theoretical
		}
		if len(records) == 0 {
			continue
		}

		periodScores := scoreUnits(periods, opts.DispersionFloor)
		hourScores := scoreUnits(hours[:], opts.DispersionFloor)
		blockScores := scoreUnits(blocks[:], opts.DispersionFloor)

		for j, i := range records {
			h := observations[i].Timestamp.Hour()
			if periodScores[j] > opts.PeriodThreshold ||
				hourScores[h] > opts.HourlyThreshold ||
				blockScores[h/hoursPerBlock] > opts.BlockThreshold {
				out[i] = false
			}
		}
	}
	return out, nil
}

// scoreUnits returns the robust upward score of each unit. Units without
// theoretical energy or below the median score 0, as does every unit of a day
// whose median ratio is not positive.
func scoreUnits(units []aggregate, floor float64) []float64 {
	scores := make([]float64, len(units))

	ratios := make([]float64, 0, len(units))
	for _, u := range units {
		if u.theoretical > 0 {
			ratios = append(ratios, u.ratio())
		}
	}
	if len(ratios) == 0 {
		return scores
	}
	med := median(ratios)
	if !(med > 0) {
		return scores
	}

	deviations := make([]float64, len(ratios))
	for i, r := range ratios {
		deviations[i] = math.Abs(r - med)
	}
	scale := math.Max(madScale*median(deviations), floor*med)
	if !(scale > 0) {
		return scores
	}

	for i, u := range units {
		if u.theoretical > 0 {
			scores[i] = math.Max(0, u.ratio()-med) / scale
		}
	}
	return scores
}
