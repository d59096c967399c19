package filter

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	"github.com/Steivan/LEG-analysis-sub001/internal/infrastructure"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
)

// Pass names as reported in PassResult and metrics.
const (
	PassSubHorizon = "sub_horizon"
	PassFog        = "fog"
	PassSnow       = "snow"
	PassOutliers   = "outliers"
)

// Pipeline runs the sub-horizon pass followed by the configured fog, snow
// and outlier passes. A nil pass is skipped.
type Pipeline struct {
	Reference pvmodel.Reference
	Fog       *BandOptions
	Snow      *BandOptions
	Outliers  *OutlierOptions
	Logger    *slog.Logger
}

// PassResult reports the effect of one pass.
type PassResult struct {
	Name      string `json:"name"`
	Excluded  int    `json:"excluded"`
	Remaining int    `json:"remaining"`
}

// Result is the final mask and the per-pass breakdown.
type Result struct {
	Mask   pvmodel.Mask `json:"mask"`
	Passes []PassResult `json:"passes"`
}

// NewPipeline builds a pipeline for the enabled passes in cfg.
func NewPipeline(cfg config.FiltersConfig, ref pvmodel.Reference, logger *slog.Logger) *Pipeline {
	p := &Pipeline{Reference: ref, Logger: logger}
	if cfg.Fog.Enabled {
		fog := BandOptionsFromConfig(cfg.Fog)
		p.Fog = &fog
	}
	if cfg.Snow.Enabled {
		snow := BandOptionsFromConfig(cfg.Snow)
		p.Snow = &snow
	}
	if cfg.Outliers.Enabled {
		outliers := OutlierOptionsFromConfig(cfg.Outliers)
		p.Outliers = &outliers
	}
	return p
}

type pass struct {
	name string
	run  func(pvmodel.Mask) (pvmodel.Mask, error)
}

// Run applies the passes in order starting from initial, which may be nil.
func (p *Pipeline) Run(ctx context.Context, observations []pvmodel.Observation, initial pvmodel.Mask) (Result, error) {
	ctx, span := infrastructure.Tracer().Start(ctx, "filter.Pipeline.Run",
		trace.WithAttributes(attribute.Int("observations", len(observations))))
	defer span.End()

	logger := p.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "filter_pipeline"))

	passes := []pass{{PassSubHorizon, func(m pvmodel.Mask) (pvmodel.Mask, error) {
		return ExcludeSubHorizon(observations, m)
	}}}
	if p.Fog != nil {
		passes = append(passes, pass{PassFog, func(m pvmodel.Mask) (pvmodel.Mask, error) {
			return ExcludeFoggy(observations, m, p.Reference, *p.Fog)
		}})
	}
	if p.Snow != nil {
		passes = append(passes, pass{PassSnow, func(m pvmodel.Mask) (pvmodel.Mask, error) {
			return ExcludeSnowy(observations, m, p.Reference, *p.Snow)
		}})
	}
	if p.Outliers != nil {
		passes = append(passes, pass{PassOutliers, func(m pvmodel.Mask) (pvmodel.Mask, error) {
			return ExcludeOutliers(observations, m, p.Reference, *p.Outliers)
		}})
	}

	mask := initial
	before := len(observations)
	if mask != nil {
		before = mask.Count()
	}

	res := Result{Passes: make([]PassResult, 0, len(passes))}
	for _, ps := range passes {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("filter pipeline cancelled before %s pass: %w", ps.name, err)
		}
		next, err := ps.run(mask)
		if err != nil {
			infrastructure.RecordError(ctx, err)
			return Result{}, fmt.Errorf("%s pass: %w", ps.name, err)
		}

		after := next.Count()
		pr := PassResult{Name: ps.name, Excluded: before - after, Remaining: after}
		res.Passes = append(res.Passes, pr)
		infrastructure.Metrics().RecordExcluded(ctx, ps.name, pr.Excluded)
		logger.DebugContext(ctx, "filter pass applied",
			slog.String("pass", ps.name),
			slog.Int("excluded", pr.Excluded),
			slog.Int("remaining", pr.Remaining),
		)

		mask, before = next, after
	}
	res.Mask = mask

	span.SetAttributes(attribute.Int("remaining", before))
	logger.InfoContext(ctx, "filter pipeline finished",
		slog.Int("observations", len(observations)),
		slog.Int("remaining", before),
	)
	return res, nil
}
