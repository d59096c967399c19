package pvmodel

import (
	"fmt"
	"math"

	apperrors "github.com/Steivan/LEG-analysis-sub001/internal/errors"
)

const (
	baselineIrradiance = 1000.0 // W/m²
	stcTemperature     = 25.0   // °C
)

// Evaluation is the predicted power for one observation and its partial
// derivatives in ParamIndex order.
type Evaluation struct {
	Power    float64
	Gradient [NumParams]float64
}

// Evaluator maps an observation and a parameter vector onto predicted power.
// Implementations must be deterministic and continuously differentiable in p.
type Evaluator interface {
	Evaluate(obs Observation, installedPower float64, periodsPerHour int, p Params) Evaluation
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(obs Observation, installedPower float64, periodsPerHour int, p Params) Evaluation

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(obs Observation, installedPower float64, periodsPerHour int, p Params) Evaluation {
	return f(obs, installedPower, periodsPerHour, p)
}

// RTWA is the radiation, temperature, wind and age model. Plane-of-array
// irradiance is decomposed from horizontal global and diffuse irradiance, cell
// temperature follows the Faiman model and output degrades linearly with age.
type RTWA struct{}

// Evaluate implements Evaluator with an analytic gradient.
func (RTWA) Evaluate(obs Observation, installedPower float64, periodsPerHour int, p Params) Evaluation {
	g := obs.Geometry
	if g.DirectFactor <= 0 && g.SinElevation <= 0 {
		return Evaluation{}
	}
	periodPower := installedPower / float64(periodsPerHour)

	gPoa := PlaneOfArrayIrradiance(g, obs.Meteo)
	irradianceRatio := gPoa / baselineIrradiance

	degradationLoss := -periodPower * obs.Age
	degradedPower := periodPower + degradationLoss*p.Degradation

	thermalLoss := p.U0 + p.U1*obs.Meteo.WindSpeed
	cellTemp := obs.Meteo.AmbientTemperature + gPoa/thermalLoss
	tempDelta := cellTemp - stcTemperature
	tempFactor := 1 + p.TempCoefficient*tempDelta

	reference := irradianceRatio * degradedPower
	system := reference * p.Efficiency

	var e Evaluation
	e.Gradient[Efficiency] = reference * tempFactor
	e.Power = e.Gradient[Efficiency] * p.Efficiency
	e.Gradient[TempCoefficient] = system * tempDelta
	e.Gradient[ThermalU0] = system * p.TempCoefficient * (-gPoa / (thermalLoss * thermalLoss))
	e.Gradient[ThermalU1] = e.Gradient[ThermalU0] * obs.Meteo.WindSpeed
	e.Gradient[Degradation] = irradianceRatio * degradationLoss * p.Efficiency * tempFactor
	return e
}

// PlaneOfArrayIrradiance combines the direct and diffuse components on the
// roof plane. The direct component is derived from GHI - DHI and projected
// through the sun elevation.
func PlaneOfArrayIrradiance(g Geometry, m Meteorology) float64 {
	directHorizontal := math.Max(0, m.GlobalHorizontal-m.DiffuseHorizontal)
	directBeam := 0.0
	if g.SinElevation > 0 {
		directBeam = directHorizontal / g.SinElevation
	}
	return directBeam*math.Max(g.DirectFactor, 0) + m.DiffuseHorizontal*g.DiffuseFactor
}

// NumericalEvaluator replaces the gradient of Base with central differences.
// Steps holds the half-width per parameter.
type NumericalEvaluator struct {
	Base  Evaluator
	Steps [NumParams]float64
}

// NewNumericalEvaluator uses the prior standard deviations as step sizes,
// scaled down tenfold for the thermal coefficients.
func NewNumericalEvaluator(base Evaluator, priors PriorSet) NumericalEvaluator {
	a := priors.Array()
	var steps [NumParams]float64
	for i := range steps {
		steps[i] = a[i].StdDev
	}
	steps[ThermalU0] /= 10
	steps[ThermalU1] /= 10
	return NumericalEvaluator{Base: base, Steps: steps}
}

// Evaluate implements Evaluator.
func (n NumericalEvaluator) Evaluate(obs Observation, installedPower float64, periodsPerHour int, p Params) Evaluation {
	e := Evaluation{Power: n.Base.Evaluate(obs, installedPower, periodsPerHour, p).Power}
	v := p.Vector()
	for i := range v {
		h := n.Steps[i]
		if h <= 0 {
			h = 1e-6
		}
		up, down := v, v
		up[i] += h
		down[i] -= h
		f1 := n.Base.Evaluate(obs, installedPower, periodsPerHour, ParamsFromVector(up)).Power
		f2 := n.Base.Evaluate(obs, installedPower, periodsPerHour, ParamsFromVector(down)).Power
		e.Gradient[i] = (f1 - f2) / (2 * h)
	}
	return e
}

// Reference bundles an evaluator with a fixed parameter vector and the plant
// constants. Filters, the hull estimator and the error statistics evaluate
// the model through it.
type Reference struct {
	Evaluator      Evaluator
	Params         Params
	InstalledPower float64
	PeriodsPerHour int
}

// Power predicts the power of obs under the reference parameters.
func (r Reference) Power(obs Observation) float64 {
	return r.Evaluator.Evaluate(obs, r.InstalledPower, r.PeriodsPerHour, r.Params).Power
}

// PeriodPower is the installed power per sampling period.
func (r Reference) PeriodPower() float64 {
	return r.InstalledPower / float64(r.PeriodsPerHour)
}

// Validate checks the plant constants.
func (r Reference) Validate() error {
	return ValidatePlant(r.Evaluator, r.InstalledPower, r.PeriodsPerHour)
}

// ValidatePlant checks the arguments every engine entry point shares.
func ValidatePlant(ev Evaluator, installedPower float64, periodsPerHour int) error {
	if ev == nil {
		return apperrors.NewOutOfBoundsError("evaluator", "must not be nil")
	}
	if !(installedPower > 0) || math.IsInf(installedPower, 0) {
		return apperrors.NewOutOfBoundsError("installed_power", fmt.Sprintf("must be positive, got %g", installedPower))
	}
	if periodsPerHour < 1 || periodsPerHour > 60 || 60%periodsPerHour != 0 {
		return apperrors.NewOutOfBoundsError("periods_per_hour", fmt.Sprintf("must divide 60, got %d", periodsPerHour))
	}
	return nil
}
