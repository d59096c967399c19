package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
	"github.com/Steivan/LEG-analysis-sub001/internal/errstats"
	"github.com/Steivan/LEG-analysis-sub001/internal/infrastructure"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
)

const numParams = pvmodel.NumParams

// DefaultDataNoiseSigma is the assumed measurement noise in watts.
const DefaultDataNoiseSigma = 50.0

// Options configures one Calibrate call.
type Options struct {
	InstalledPower float64
	PeriodsPerHour int
	Tolerance      float64
	MaxIterations  int
	// DataNoiseSigma scales every prior precision by 1/σ². It is not
	// re-estimated from the data.
	DataNoiseSigma float64
	Logger         *slog.Logger
}

// DefaultOptions returns options for a plant of the given size sampled
// periodsPerHour times per hour.
func DefaultOptions(installedPower float64, periodsPerHour int) Options {
	return Options{
		InstalledPower: installedPower,
		PeriodsPerHour: periodsPerHour,
		Tolerance:      1e-6,
		MaxIterations:  50,
		DataNoiseSigma: DefaultDataNoiseSigma,
	}
}

// Validate rejects options the solver cannot run with.
func (o Options) Validate() error {
	switch {
	case !(o.Tolerance > 0) || math.IsInf(o.Tolerance, 0):
		return apperrors.NewOutOfBoundsError("tolerance", fmt.Sprintf("must be positive, got %g", o.Tolerance))
	case o.MaxIterations < 1:
		return apperrors.NewOutOfBoundsError("max_iterations", fmt.Sprintf("must be at least 1, got %d", o.MaxIterations))
	case !(o.DataNoiseSigma > 0) || math.IsInf(o.DataNoiseSigma, 0):
		return apperrors.NewOutOfBoundsError("data_noise_sigma", fmt.Sprintf("must be positive, got %g", o.DataNoiseSigma))
	}
	return nil
}

// Result is the outcome of a calibration.
type Result struct {
	// Trace holds the clamped estimate after every iteration, in order.
	Trace      []pvmodel.Params
	Iterations int
	Converged  bool
	// Rows is the number of Jacobian rows, i.e. observations selected by the mask.
	Rows int
	// LastStep is ‖Δθ‖ of the final iteration.
	LastStep float64
	// MeanError is the residual mean error of the final estimate on the
	// fitting mask.
	MeanError float64
}

// Final returns the last estimate in the trace.
func (r Result) Final() pvmodel.Params {
	if len(r.Trace) == 0 {
		return pvmodel.Params{}
	}
	return r.Trace[len(r.Trace)-1]
}

// Calibrate runs the MAP Gauss-Newton iteration. A nil mask selects every
// observation. Inputs are validated before the first iteration; a failed solve
// is reported as an ill-conditioned error carrying the iteration index.
func Calibrate(ctx context.Context, observations []pvmodel.Observation, priors pvmodel.PriorSet,
	evaluator pvmodel.Evaluator, mask pvmodel.Mask, opts Options) (Result, error) {

	ctx, span := infrastructure.Tracer().Start(ctx, "calibration.Calibrate",
		trace.WithAttributes(attribute.Int("observations", len(observations))))
	defer span.End()

	start := time.Now()
	res, err := calibrate(ctx, observations, priors, evaluator, mask, opts)

	outcome := "converged"
	switch {
	case err != nil:
		outcome = "failed"
		infrastructure.RecordError(ctx, err)
	case !res.Converged:
		outcome = "max_iterations"
	}
	span.SetAttributes(
		attribute.Int("rows", res.Rows),
		attribute.Int("iterations", res.Iterations),
		attribute.String("outcome", outcome),
	)
	infrastructure.Metrics().RecordRun(ctx, outcome, res.Iterations, time.Since(start).Seconds())

	return res, err
}

func calibrate(ctx context.Context, observations []pvmodel.Observation, priors pvmodel.PriorSet,
	evaluator pvmodel.Evaluator, mask pvmodel.Mask, opts Options) (Result, error) {

	logger := opts.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	if err := pvmodel.ValidatePlant(evaluator, opts.InstalledPower, opts.PeriodsPerHour); err != nil {
		return Result{}, err
	}
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	if err := priors.Validate(); err != nil {
		return Result{}, err
	}
	if mask != nil {
		if err := mask.CheckLength(len(observations)); err != nil {
			return Result{}, err
		}
	}

	selected := selectRows(observations, mask)
	if len(selected) == 0 {
		return Result{}, apperrors.NewDataInsufficiencyError(
			fmt.Sprintf("no observations selected for calibration (%d supplied)", len(observations)))
	}

	prior := priors.Array()
	mu := priors.Means().Vector()
	var lambda [numParams]float64
	noiseVar := opts.DataNoiseSigma * opts.DataNoiseSigma
	for i, p := range prior {
		lambda[i] = 1 / (p.StdDev * p.StdDev * noiseVar)
	}

	logger.InfoContext(ctx, "starting calibration",
		"observations", len(observations),
		"rows", len(selected),
		"max_iterations", opts.MaxIterations,
		"tolerance", opts.Tolerance)

	res := Result{Rows: len(selected), Trace: make([]pvmodel.Params, 0, opts.MaxIterations)}
	theta := mu

	jac := mat.NewDense(len(selected), numParams, nil)
	resid := mat.NewVecDense(len(selected), nil)

	for k := 0; k < opts.MaxIterations; k++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("calibration cancelled at iteration %d: %w", k, err)
		}

		assemble(observations, selected, evaluator, pvmodel.ParamsFromVector(theta), opts, jac, resid)

		delta, err := solve(jac, resid, lambda, theta, mu)
		if err != nil {
			return res, apperrors.NewIllConditionedError(k, err)
		}

		step := delta.RawVector().Data
		for i := range theta {
			theta[i] = prior[i].Clamp(theta[i] + step[i])
		}
		res.Trace = append(res.Trace, pvmodel.ParamsFromVector(theta))
		res.Iterations++
		res.LastStep = floats.Norm(step, 2)

		logger.DebugContext(ctx, "calibration iteration",
			"iteration", k,
			"step_norm", res.LastStep,
			"efficiency", theta[pvmodel.Efficiency],
			"degradation", theta[pvmodel.Degradation])

		if res.LastStep < opts.Tolerance {
			res.Converged = true
			break
		}
	}

	ref := pvmodel.Reference{
		Evaluator:      evaluator,
		Params:         res.Final(),
		InstalledPower: opts.InstalledPower,
		PeriodsPerHour: opts.PeriodsPerHour,
	}
	summary, err := errstats.ComputeMeanError(observations, mask, ref)
	switch {
	case err == nil:
		res.MeanError = summary.MeanError
	case apperrors.IsType(err, apperrors.ErrTypeDataInsufficiency):
		res.MeanError = math.NaN()
	default:
		return res, fmt.Errorf("failed to compute mean error: %w", err)
	}

	logger.InfoContext(ctx, "calibration finished",
		"iterations", res.Iterations,
		"converged", res.Converged,
		"rows", res.Rows,
		"mean_error", res.MeanError)

	return res, nil
}

// selectRows returns the indices of the observations that contribute a row.
func selectRows(observations []pvmodel.Observation, mask pvmodel.Mask) []int {
	rows := make([]int, 0, len(observations))
	for i := range observations {
		if mask == nil || mask[i] {
			rows = append(rows, i)
		}
	}
	return rows
}

// assemble fills the weighted Jacobian and residual for the current estimate.
func assemble(observations []pvmodel.Observation, selected []int, evaluator pvmodel.Evaluator,
	p pvmodel.Params, opts Options, jac *mat.Dense, resid *mat.VecDense) {

	for row, idx := range selected {
		obs := observations[idx]
		e := evaluator.Evaluate(obs, opts.InstalledPower, opts.PeriodsPerHour, p)
		w := obs.EffectiveWeight()

		resid.SetVec(row, w*obs.Measured()-w*e.Power)
		for j := 0; j < numParams; j++ {
			jac.Set(row, j, w*e.Gradient[j])
		}
	}
}

var errNonFiniteStep = errors.New("solved step is not finite")

// solve returns Δθ from (JᵀJ + Λ)Δθ = Jᵀr − Λ(θ − μ).
func solve(jac *mat.Dense, resid *mat.VecDense, lambda, theta, mu [numParams]float64) (*mat.VecDense, error) {
	var m mat.SymDense
	m.SymOuterK(1, jac.T())
	for i := 0; i < numParams; i++ {
		m.SetSym(i, i, m.At(i, i)+lambda[i])
	}

	var b mat.VecDense
	b.MulVec(jac.T(), resid)
	for i := 0; i < numParams; i++ {
		b.SetVec(i, b.AtVec(i)-lambda[i]*(theta[i]-mu[i]))
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&m); !ok {
		return nil, errors.New("normal matrix is not positive definite")
	}

	// A clamped γ of 0 zeroes the u0/u1 columns and leaves only the prior on
	// those rows. SolveVecTo still writes delta when it merely reports a
	// mat.Condition for the unscaled matrix.
	var delta mat.VecDense
	if err := chol.SolveVecTo(&delta, &b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}
	for _, v := range delta.RawVector().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errNonFiniteStep
		}
	}
	return &delta, nil
}
