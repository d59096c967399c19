// Package http implements the HTTP handlers of the calibration service.
//
// Handlers are a thin layer over services.CalibrationService: they decode and
// validate JSON requests, fill unset fields from configuration, call the
// service and render the result. Errors are rendered as RFC 7807 problem
// details by errors.ErrorHandler.
//
// Routes, relative to the /api/v1 mount point:
//
//	POST /calibrations   MAP calibration of posted observations
//	POST /trends         hull trend and hull priors
//	POST /filters        anomaly filter pipeline, returns the validity mask
//	POST /simulations    synthetic telemetry
//	POST /runs           complete tool flow on a simulated plant
//
// Health endpoints are mounted under /api/health.
//
// JSON cannot carry NaN, so statistics that are undefined for the selected
// data (a mean error over fewer than two residuals, for instance) are
// rendered as null.
package http
