package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 50.0, cfg.Calibration.DataNoiseSigma)
	assert.Equal(t, 1e-6, cfg.Calibration.Tolerance)
	assert.Equal(t, 10, cfg.Calibration.MaxIterations)
	assert.Equal(t, 0.9, cfg.Filters.Fog.HiThreshold)
	assert.Equal(t, 0.8, cfg.Filters.Snow.HiThreshold)
	assert.Equal(t, 50, cfg.Reports.HistogramBins)
	assert.Equal(t, 2, cfg.Jobs.Workers)
	assert.Equal(t, time.Hour, cfg.Jobs.Retention)

	start, err := cfg.Simulation.Start()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), start)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		env         map[string]string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults without file or env",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default(), cfg)
			},
		},
		{
			name: "file overrides defaults and keeps unset keys",
			yaml: "server:\n  port: 9090\ncalibration:\n  data_noise_sigma: 25\n",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 25.0, cfg.Calibration.DataNoiseSigma)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 10, cfg.Calibration.MaxIterations)
			},
		},
		{
			name: "env overrides file",
			yaml: "server:\n  port: 9090\n",
			env: map[string]string{
				"PVCAL_SERVER_PORT":                      "7070",
				"PVCAL_LOGGING_LEVEL":                    "debug",
				"PVCAL_FILTERS_OUTLIERS_BLOCK_THRESHOLD": "2.5",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7070, cfg.Server.Port)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, 2.5, cfg.Filters.Outliers.BlockThreshold)
			},
		},
		{
			name:    "invalid port from env",
			env:     map[string]string{"PVCAL_SERVER_PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "fog band inverted",
			yaml:    "filters:\n  fog:\n    lo_threshold: 0.9\n    hi_threshold: 0.1\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			yaml:    "server: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.yaml != "" {
				path := filepath.Join(t.TempDir(), "pvcal.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))
				t.Setenv(ConfigFileEnv, path)
			} else {
				t.Setenv(ConfigFileEnv, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestValidate_CrossField(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "file output without path", mutate: func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }},
		{name: "rate limit enabled with zero burst", mutate: func(c *Config) { c.Server.RateLimit.Burst = 0 }},
		{name: "periods per hour not dividing the hour", mutate: func(c *Config) { c.Simulation.PeriodsPerHour = 7 }},
		{name: "non positive noise sigma", mutate: func(c *Config) { c.Calibration.DataNoiseSigma = 0 }},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }},
		{name: "bad start date", mutate: func(c *Config) { c.Simulation.StartDate = "01/01/2020" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.Reports.Directory = filepath.Join(t.TempDir(), "out")
	cfg.Logging.FilePath = filepath.Join(t.TempDir(), "logs", "pvcal.log")

	paths, err := cfg.GetPaths()
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())

	assert.DirExists(t, paths.ReportsDir)
	assert.DirExists(t, paths.LogsDir)
	assert.Equal(t, filepath.Join(cfg.Reports.Directory, "summary.csv"), paths.GetReportPath("summary.csv"))
}

func TestLoadFile(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulation:\n  days: 30\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Simulation.Days)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
