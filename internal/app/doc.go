// Package app wires the calibration HTTP service together: configuration,
// telemetry, services, handlers and middleware, and the server lifecycle.
//
// Middleware runs in the order RequestID, RealIP, OTel, StructuredLogger,
// Recoverer, rate limiting and body limit. Synchronous calibration routes
// additionally carry the operation timeout; long tool flow runs go through
// the job queue at /api/v1/jobs instead. /metrics serves the Prometheus registry of
// the OpenTelemetry meter provider and bypasses the rate limiter.
//
// Usage:
//
//	application, err := app.NewApplication(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
//
// Run returns after SIGINT, SIGTERM or cancellation of ctx, once in-flight
// requests have completed or the shutdown timeout has elapsed.
package app
