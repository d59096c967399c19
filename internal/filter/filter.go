package filter

import (
	"fmt"
	"time"

	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
)

// BandOptions configures a fog or snow pass.
type BandOptions struct {
	Pattern PatternKind
	Policy  BandPolicy
}

// DefaultFogOptions keeps each day from the first period reaching 90% of the
// day's median ratio.
func DefaultFogOptions() BandOptions {
	return BandOptions{
		Pattern: RatioPattern,
		Policy: RatioBandPolicy{
			UseRelativeThreshold: true,
			ThresholdKind:        MedianThreshold,
			LoThreshold:          0.1,
			HiThreshold:          0.9,
		},
	}
}

// DefaultSnowOptions drops every period outside the span where the ratio
// reaches 0.8.
func DefaultSnowOptions() BandOptions {
	return BandOptions{
		Pattern: RatioPattern,
		Policy: RatioBandPolicy{
			ThresholdKind: MedianThreshold,
			LoThreshold:   0.1,
			HiThreshold:   0.8,
		},
	}
}

// BandOptionsFromConfig builds a ratio band pass from its configuration.
func BandOptionsFromConfig(cfg config.BandFilterConfig) BandOptions {
	return BandOptions{
		Pattern: PatternKind(cfg.PatternKind),
		Policy: RatioBandPolicy{
			UseRelativeThreshold: cfg.UseRelativeThreshold,
			ThresholdKind:        ThresholdKind(cfg.ThresholdKind),
			LoThreshold:          cfg.LoThreshold,
			HiThreshold:          cfg.HiThreshold,
		},
	}
}

// Validate checks the pattern kind and, when it can, the policy thresholds.
func (o BandOptions) Validate() error {
	if o.Pattern != RatioPattern && o.Pattern != PowerPattern {
		return apperrors.NewOutOfBoundsError("pattern_kind", fmt.Sprintf("unknown kind %d", int(o.Pattern)))
	}
	if o.Policy == nil {
		return apperrors.NewOutOfBoundsError("policy", "must not be nil")
	}
	if v, ok := o.Policy.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}

// ExcludeSubHorizon drops records whose geometry lets no light reach the
// plane of array. A nil initial mask starts from all records valid.
func ExcludeSubHorizon(observations []pvmodel.Observation, initial pvmodel.Mask) (pvmodel.Mask, error) {
	mask, err := startMask(observations, initial)
	if err != nil {
		return nil, err
	}
	for i, obs := range observations {
		if !obs.Geometry.HasIrradiance() {
			mask[i] = false
		}
	}
	return mask, nil
}

// ExcludeFoggy drops the foggy start of each day: everything before the
// first value reaching the high threshold and after the last positive value.
func ExcludeFoggy(observations []pvmodel.Observation, mask pvmodel.Mask, ref pvmodel.Reference, opts BandOptions) (pvmodel.Mask, error) {
	return excludeOutsideBand(observations, mask, ref, opts, func(b DayBand) (int, int) {
		return b.FirstHigh, b.LastPositive
	})
}

// ExcludeSnowy keeps each day only between the first and the last value
// reaching the high threshold. A snow-covered day never reaches it and is
// dropped entirely.
func ExcludeSnowy(observations []pvmodel.Observation, mask pvmodel.Mask, ref pvmodel.Reference, opts BandOptions) (pvmodel.Mask, error) {
	return excludeOutsideBand(observations, mask, ref, opts, func(b DayBand) (int, int) {
		return b.FirstHigh, b.LastHigh
	})
}

func excludeOutsideBand(observations []pvmodel.Observation, mask pvmodel.Mask, ref pvmodel.Reference,
	opts BandOptions, keep func(DayBand) (int, int)) (pvmodel.Mask, error) {

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
		values := make([]float64, len(day))
		for j, i := range day {
			if out[i] {
				values[j] = patternValue(observations[i], ref, opts.Pattern)
			}
		}

		band := opts.Policy.Band(values)
		first, last := -1, -2
		if band.HasHigh() {
			first, last = keep(band)
		}
		for j, i := range day {
			if j < first || j > last {
				out[i] = false
			}
		}
	}
	return out, nil
}

func patternValue(obs pvmodel.Observation, ref pvmodel.Reference, kind PatternKind) float64 {
	if kind == PowerPattern {
		return obs.Measured() / ref.PeriodPower()
	}
	theoretical := ref.Power(obs)
	if !(theoretical > 0) {
		return 0
	}
	return obs.Measured() / theoretical
}

// startMask returns a copy of mask, or an all-true mask when it is nil.
func startMask(observations []pvmodel.Observation, mask pvmodel.Mask) (pvmodel.Mask, error) {
	if mask == nil {
		return pvmodel.NewMask(len(observations), true), nil
	}
	if err := mask.CheckLength(len(observations)); err != nil {
		return nil, err
	}
	return mask.Clone(), nil
}

// splitDays groups consecutive observations by calendar day.
func splitDays(observations []pvmodel.Observation) [][]int {
	var days [][]int
	var current []int
	var currentDay time.Time
	for i, obs := range observations {
		y, m, d := obs.Timestamp.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, obs.Timestamp.Location())
		if len(current) > 0 && !day.Equal(currentDay) {
			days = append(days, current)
			current = nil
		}
		currentDay = day
		current = append(current, i)
	}
	if len(current) > 0 {
		days = append(days, current)
	}
	return days
}
