// Package pvmodel defines the value types shared by the calibration engine:
// telemetry observations, the five-parameter PV model vector, Bayesian priors,
// validity masks and the evaluator contract that maps an observation and a
// parameter vector onto predicted power and its gradient.
//
// All types are plain values. Functions in this package never mutate their
// inputs; anything that narrows or updates returns a fresh value.
//
// # Model Parameters
//
//	Efficiency       η    system efficiency, (0, 1]
//	TempCoefficient  γ    power temperature coefficient [1/°C], ≤ 0
//	U0               u0   constant thermal loss [W/m²K]
//	U1               u1   wind thermal loss [W/m²K per m/s]
//	Degradation      λ    annual degradation rate [1/year]
//
// # Evaluators
//
// RTWA is the default physical model (radiation, temperature, wind, age) with
// an analytic gradient. NumericalEvaluator wraps any evaluator and replaces
// its gradient with central differences, which is how the analytic gradient is
// checked in tests.
package pvmodel
