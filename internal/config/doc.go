// Package config provides centralized configuration for the PV calibration
// tools. It loads settings from multiple sources, validates them, and exposes a
// typed API used by the CLI, the HTTP service and the calibration engine.
//
// # Configuration Sources
//
// Configuration is assembled in the following order, later sources winning:
//
//	1. Default() values
//	2. A YAML file named by PVCAL_CONFIG, or pvcal.yaml / configs/pvcal.yaml
//	3. Environment variables (highest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern PVCAL_<SECTION>_<FIELD>:
//
//	PVCAL_SERVER_PORT=8080
//	PVCAL_LOGGING_LEVEL=debug
//	PVCAL_CALIBRATION_DATA_NOISE_SIGMA=50
//	PVCAL_FILTERS_FOG_HI_THRESHOLD=0.9
//
// # Validation
//
// Struct tags are checked with go-playground/validator; rules spanning several
// fields (log file path, rate limits, sampling rates dividing the hour) are
// checked by Validate.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    slog.Error("failed to load configuration", "error", err)
//	    os.Exit(1)
//	}
package config
