// Package calibration estimates the PV model parameters by maximum a posteriori
// Gauss-Newton iteration.
//
// Each iteration linearizes the model around the current estimate θ, assembles
// one weighted Jacobian row and residual per selected observation and solves
// the regularized normal equations
//
//	(JᵀJ + Λ) Δθ = Jᵀr − Λ(θ − μ)
//
// where μ are the prior means and Λ is diagonal with 1/(σᵢ²·σ_data²). The step
// is applied, every parameter is clipped into its prior bounds and the
// iteration stops once ‖Δθ‖ drops below the tolerance. The norm is taken on
// the solved step, before clipping.
//
// Observations excluded by the mask contribute no row at all. Observations
// without a meter reading keep their row with weight zero.
//
// Calibrate holds no state between calls and never mutates its inputs, so
// independent calls may run concurrently.
package calibration
