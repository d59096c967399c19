package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
)

// HealthService provides health check functionality
type HealthService struct {
	version   string
	reportDir string
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual component health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a health service. An empty reportDir skips the
// report directory check.
func NewHealthService(version string, paths *config.Paths, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	hs := &HealthService{
		version:   version,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
	if paths != nil {
		hs.reportDir = paths.ReportsDir
	}
	return hs
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	hs.logger.DebugContext(ctx, "health check",
		slog.String("uptime", time.Since(hs.startTime).String()))

	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
	}
}

// ReadinessCheck reports whether reports can be written and the model
// evaluator produces finite power.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
		Services: map[string]ServiceHealth{
			"reports": hs.checkReports(),
			"engine":  checkEngine(),
		},
	}

	for name, sh := range status.Services {
		if sh.Status != "ready" {
			status.Status = "not_ready"
			hs.logger.WarnContext(ctx, "component not ready",
				slog.String("component", name),
				slog.String("message", sh.Message))
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().UTC(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	return map[string]interface{}{
		"version":    hs.version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"start_time": hs.startTime.UTC().Format(time.RFC3339),
	}
}

func (hs *HealthService) checkReports() ServiceHealth {
	if hs.reportDir == "" {
		return ServiceHealth{Status: "ready", Message: "report directory not configured"}
	}
	if err := os.MkdirAll(hs.reportDir, 0755); err != nil {
		return ServiceHealth{Status: "not_ready", Message: err.Error()}
	}
	f, err := os.CreateTemp(hs.reportDir, ".health-*")
	if err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("report directory not writable: %v", err)}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return ServiceHealth{Status: "ready"}
}

// checkEngine evaluates the default model on a clear-sky noon sample.
func checkEngine() ServiceHealth {
	obs := pvmodel.Observation{
		HasMeasurement: true,
		Weight:         1,
		Geometry:       pvmodel.Geometry{DirectFactor: 0.9, DiffuseFactor: 0.9, SinElevation: 0.8, CosElevation: 0.6},
		Meteo:          pvmodel.Meteorology{GlobalHorizontal: 800, DiffuseHorizontal: 100, AmbientTemperature: 20, WindSpeed: 2},
	}
	ref := pvmodel.Reference{
		Evaluator:      pvmodel.RTWA{},
		Params:         pvmodel.DefaultPriors().Means(),
		InstalledPower: 1000,
		PeriodsPerHour: 4,
	}
	if p := ref.Power(obs); p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("model evaluation returned %g", p)}
	}
	return ServiceHealth{Status: "ready"}
}
