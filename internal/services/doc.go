// Package services sits between the transports and the calibration engine.
//
// CalibrationService wires the simulator, the anomaly filter pipeline, the
// hull trend estimator and the Bayesian calibrator together. It backs the
// pv-calibrate CLI, the synchronous HTTP endpoints and the job queue:
//
//	svc := services.NewCalibrationService(cfg, logger)
//	report, err := svc.RunToolFlow(ctx, trueParams)
//
// RunToolFlow calibrates four prior/mask scenarios concurrently. A scenario
// that cannot be fitted is recorded in the Report with its error; only
// cancellation of ctx aborts the whole flow.
//
// HealthService reports liveness and readiness. Readiness probes the report
// directory and evaluates the power model once.
package services
