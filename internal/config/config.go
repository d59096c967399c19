package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment override, e.g. PVCAL_SERVER_PORT.
const EnvPrefix = "PVCAL"

// ConfigFileEnv names the variable that points at an explicit YAML file.
const ConfigFileEnv = "PVCAL_CONFIG"

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" envconfig:"SERVER"`
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" envconfig:"TELEMETRY"`
	Calibration CalibrationConfig `yaml:"calibration" envconfig:"CALIBRATION"`
	Filters     FiltersConfig     `yaml:"filters" envconfig:"FILTERS"`
	Simulation  SimulationConfig  `yaml:"simulation" envconfig:"SIMULATION"`
	Reports     ReportsConfig     `yaml:"reports" envconfig:"REPORTS"`
	Jobs        JobsConfig        `yaml:"jobs" envconfig:"JOBS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port             int             `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout      time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout     time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout      time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes   int             `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout  time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	OperationTimeout time.Duration   `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT" validate:"gt=0"`
	MaxBodyBytes     int64           `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" validate:"gt=0"`
	RateLimit        RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"omitempty,oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"omitempty,oneof=json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"omitempty,oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// TelemetryConfig controls the OpenTelemetry providers.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	ServiceVersion string `yaml:"service_version" envconfig:"SERVICE_VERSION"`
	Environment    string `yaml:"environment" envconfig:"ENVIRONMENT"`
	TracesEnabled  bool   `yaml:"traces_enabled" envconfig:"TRACES_ENABLED"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// CalibrationConfig holds the solver settings shared by the CLI and the service.
type CalibrationConfig struct {
	InstalledPower float64 `yaml:"installed_power" envconfig:"INSTALLED_POWER" validate:"gt=0"`
	PeriodsPerHour int     `yaml:"periods_per_hour" envconfig:"PERIODS_PER_HOUR" validate:"min=1,max=60"`
	Tolerance      float64 `yaml:"tolerance" envconfig:"TOLERANCE" validate:"gt=0"`
	MaxIterations  int     `yaml:"max_iterations" envconfig:"MAX_ITERATIONS" validate:"min=1"`
	// DataNoiseSigma is the assumed measurement noise in watts.
	DataNoiseSigma float64 `yaml:"data_noise_sigma" envconfig:"DATA_NOISE_SIGMA" validate:"gt=0"`
}

// FiltersConfig holds the anomaly filter thresholds.
type FiltersConfig struct {
	Fog      BandFilterConfig `yaml:"fog" envconfig:"FOG"`
	Snow     BandFilterConfig `yaml:"snow" envconfig:"SNOW"`
	Outliers OutlierConfig    `yaml:"outliers" envconfig:"OUTLIERS"`
}

// BandFilterConfig parameterises a fog or snow pass.
type BandFilterConfig struct {
	Enabled              bool    `yaml:"enabled" envconfig:"ENABLED"`
	PatternKind          int     `yaml:"pattern_kind" envconfig:"PATTERN_KIND" validate:"min=0,max=1"`
	UseRelativeThreshold bool    `yaml:"use_relative_threshold" envconfig:"USE_RELATIVE_THRESHOLD"`
	ThresholdKind        int     `yaml:"threshold_kind" envconfig:"THRESHOLD_KIND" validate:"min=0,max=2"`
	LoThreshold          float64 `yaml:"lo_threshold" envconfig:"LO_THRESHOLD" validate:"gte=0"`
	HiThreshold          float64 `yaml:"hi_threshold" envconfig:"HI_THRESHOLD" validate:"gtfield=LoThreshold"`
}

// OutlierConfig parameterises the statistical outlier pass.
type OutlierConfig struct {
	Enabled         bool    `yaml:"enabled" envconfig:"ENABLED"`
	PeriodThreshold float64 `yaml:"period_threshold" envconfig:"PERIOD_THRESHOLD" validate:"gt=0"`
	HourlyThreshold float64 `yaml:"hourly_threshold" envconfig:"HOURLY_THRESHOLD" validate:"gt=0"`
	BlockThreshold  float64 `yaml:"block_threshold" envconfig:"BLOCK_THRESHOLD" validate:"gt=0"`
}

// SimulationConfig drives the synthetic data generator.
type SimulationConfig struct {
	Seed           uint64  `yaml:"seed" envconfig:"SEED"`
	StartDate      string  `yaml:"start_date" envconfig:"START_DATE" validate:"datetime=2006-01-02"`
	Days           int     `yaml:"days" envconfig:"DAYS" validate:"min=1"`
	PeriodsPerHour int     `yaml:"periods_per_hour" envconfig:"PERIODS_PER_HOUR" validate:"min=1,max=60"`
	Latitude       float64 `yaml:"latitude" envconfig:"LATITUDE" validate:"gte=-90,lte=90"`
	RoofAzimuth    float64 `yaml:"roof_azimuth" envconfig:"ROOF_AZIMUTH" validate:"gte=-180,lte=180"`
	RoofElevation  float64 `yaml:"roof_elevation" envconfig:"ROOF_ELEVATION" validate:"gte=0,lte=90"`
	Noise          bool    `yaml:"noise" envconfig:"NOISE"`
	Fog            bool    `yaml:"fog" envconfig:"FOG"`
	Snow           bool    `yaml:"snow" envconfig:"SNOW"`
	Outliers       bool    `yaml:"outliers" envconfig:"OUTLIERS"`
}

// ReportsConfig controls the report writers.
type ReportsConfig struct {
	Directory     string `yaml:"directory" envconfig:"DIRECTORY" validate:"required"`
	WriteCSV      bool   `yaml:"write_csv" envconfig:"WRITE_CSV"`
	WriteXLSX     bool   `yaml:"write_xlsx" envconfig:"WRITE_XLSX"`
	HistogramBins int    `yaml:"histogram_bins" envconfig:"HISTOGRAM_BINS" validate:"min=2"`
}

// JobsConfig sizes the background queue for asynchronous tool flow runs.
type JobsConfig struct {
	Workers   int           `yaml:"workers" envconfig:"WORKERS" validate:"min=1"`
	QueueSize int           `yaml:"queue_size" envconfig:"QUEUE_SIZE" validate:"min=1"`
	Retention time.Duration `yaml:"retention" envconfig:"RETENTION"`
}

// Start parses the simulation start date.
func (s SimulationConfig) Start() (time.Time, error) {
	return time.Parse("2006-01-02", s.StartDate)
}

// Load builds the configuration from defaults, the YAML file and the environment,
// in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFile(getConfigFilePath())
}

// LoadFile is Load with an explicit YAML file. An empty path skips the file.
func LoadFile(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configFile, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg. Keys absent from the file keep
// their current values.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks struct tags and the cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		if c.Logging.FilePath == "" {
			return fmt.Errorf("logging.file_path is required when output is %q", c.Logging.Output)
		}
	}

	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RPS <= 0 || c.Server.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive rps and burst when enabled")
	}

	if c.Simulation.PeriodsPerHour > 0 && 60%c.Simulation.PeriodsPerHour != 0 {
		return fmt.Errorf("simulation.periods_per_hour must divide 60, got %d", c.Simulation.PeriodsPerHour)
	}
	if c.Calibration.PeriodsPerHour > 0 && 60%c.Calibration.PeriodsPerHour != 0 {
		return fmt.Errorf("calibration.periods_per_hour must divide 60, got %d", c.Calibration.PeriodsPerHour)
	}

	return nil
}

// getConfigFilePath returns the path to the config file, or "" when none exists
func getConfigFilePath() string {
	if explicit := os.Getenv(ConfigFileEnv); explicit != "" {
		return explicit
	}

	locations := []string{
		"pvcal.yaml",
		"configs/pvcal.yaml",
		"../configs/pvcal.yaml",
		"../../configs/pvcal.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      60 * time.Second,
			MaxHeaderBytes:   1 << 20,
			ShutdownTimeout:  30 * time.Second,
			OperationTimeout: 2 * time.Minute,
			MaxBodyBytes:     64 << 20,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     10,
				Burst:   20,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/pvcal.log",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "pvcal",
			ServiceVersion: "dev",
			Environment:    "development",
			TracesEnabled:  false,
			MetricsEnabled: true,
		},
		Calibration: CalibrationConfig{
			InstalledPower: 10000,
			PeriodsPerHour: 4,
			Tolerance:      1e-6,
			MaxIterations:  10,
			DataNoiseSigma: 50,
		},
		Filters: FiltersConfig{
			Fog: BandFilterConfig{
				Enabled:              true,
				PatternKind:          0,
				UseRelativeThreshold: true,
				ThresholdKind:        2,
				LoThreshold:          0.1,
				HiThreshold:          0.9,
			},
			Snow: BandFilterConfig{
				Enabled:              true,
				PatternKind:          0,
				UseRelativeThreshold: false,
				ThresholdKind:        2,
				LoThreshold:          0.1,
				HiThreshold:          0.8,
			},
			Outliers: OutlierConfig{
				Enabled:         true,
				PeriodThreshold: 5,
				HourlyThreshold: 4,
				BlockThreshold:  3,
			},
		},
		Simulation: SimulationConfig{
			Seed:           1,
			StartDate:      "2020-01-01",
			Days:           365,
			PeriodsPerHour: 4,
			Latitude:       46,
			RoofAzimuth:    -30,
			RoofElevation:  20,
			Noise:          true,
			Fog:            true,
			Snow:           true,
			Outliers:       true,
		},
		Reports: ReportsConfig{
			Directory:     "reports",
			WriteCSV:      true,
			WriteXLSX:     true,
			HistogramBins: 50,
		},
		Jobs: JobsConfig{
			Workers:   2,
			QueueSize: 16,
			Retention: time.Hour,
		},
	}
}
