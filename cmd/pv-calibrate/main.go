package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	"github.com/Steivan/LEG-analysis-sub001/internal/exporter"
	"github.com/Steivan/LEG-analysis-sub001/internal/infrastructure"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
	"github.com/Steivan/LEG-analysis-sub001/internal/services"
	"github.com/Steivan/LEG-analysis-sub001/internal/simulate"
)

// modelParams are the parameters the synthetic plant is simulated with.
var modelParams = pvmodel.Params{
	Efficiency:      0.9,
	TempCoefficient: -0.005,
	U0:              25,
	U1:              0.4,
	Degradation:     0.01,
}

type options struct {
	configFile   string
	seed         uint64
	days         int
	periods      int
	outDir       string
	prefix       string
	noCSV        bool
	noXLSX       bool
	observations bool
	params       pvmodel.Params
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{params: modelParams}

	cmd := &cobra.Command{
		Use:   "pv-calibrate",
		Short: "Calibrate a PV model against simulated telemetry",
		Long: `Simulate a PV plant, run the anomaly filters and the hull trend, then
calibrate the model parameters under four prior/mask scenarios.
Results are printed and written as CSV and XLSX reports.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), opts, cmd.Flags().Changed)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "YAML configuration file (defaults to "+config.ConfigFileEnv+" or pvcal.yaml)")
	f.Uint64Var(&opts.seed, "seed", 0, "simulation seed")
	f.IntVar(&opts.days, "days", 0, "number of simulated days")
	f.IntVar(&opts.periods, "periods-per-hour", 0, "simulated periods per hour (must divide 60)")
	f.StringVarP(&opts.outDir, "out", "o", "", "report directory")
	f.StringVar(&opts.prefix, "prefix", "calibration", "report file name prefix")
	f.BoolVar(&opts.noCSV, "no-csv", false, "skip the CSV reports")
	f.BoolVar(&opts.noXLSX, "no-xlsx", false, "skip the XLSX workbook")
	f.BoolVar(&opts.observations, "observations", false, "also export the simulated observations")
	f.Float64Var(&opts.params.Efficiency, "eta", modelParams.Efficiency, "true system efficiency")
	f.Float64Var(&opts.params.TempCoefficient, "gamma", modelParams.TempCoefficient, "true temperature coefficient [1/K]")
	f.Float64Var(&opts.params.U0, "u0", modelParams.U0, "true constant heat transfer coefficient")
	f.Float64Var(&opts.params.U1, "u1", modelParams.U1, "true wind-dependent heat transfer coefficient")
	f.Float64Var(&opts.params.Degradation, "degradation", modelParams.Degradation, "true yearly degradation rate")

	return cmd
}

func loadConfig(opts *options, changed func(string) bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configFile != "" {
		cfg, err = config.LoadFile(opts.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if changed("seed") {
		cfg.Simulation.Seed = opts.seed
	}
	if changed("days") {
		cfg.Simulation.Days = opts.days
	}
	if changed("periods-per-hour") {
		cfg.Simulation.PeriodsPerHour = opts.periods
		cfg.Calibration.PeriodsPerHour = opts.periods
	}
	if changed("out") {
		cfg.Reports.Directory = opts.outDir
	}
	if changed("no-csv") {
		cfg.Reports.WriteCSV = !opts.noCSV
	}
	if changed("no-xlsx") {
		cfg.Reports.WriteXLSX = !opts.noXLSX
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, out io.Writer, opts *options, changed func(string) bool) error {
	cfg, err := loadConfig(opts, changed)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return err
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		return err
	}
	defer infrastructure.CloseLogFile()

	paths, err := cfg.GetPaths()
	if err != nil {
		logger.Error("Failed to initialize paths", "error", err)
		return err
	}
	if err := paths.EnsureDirectories(); err != nil {
		logger.Error("Failed to create directories", "error", err)
		return err
	}

	simOpts, err := simulate.OptionsFromConfig(cfg.Simulation, cfg.Calibration.InstalledPower, opts.params)
	if err != nil {
		logger.Error("Invalid simulation settings", "error", err)
		return err
	}

	svc := services.NewCalibrationService(cfg, logger)
	report, err := svc.RunToolFlowWith(ctx, simOpts)
	if err != nil {
		logger.Error("Calibration tool flow failed", "error", err)
		return err
	}

	printReport(out, report)

	exp := exporter.NewReportExporter(paths)
	if cfg.Reports.WriteCSV {
		files, err := exp.ExportCSV(report, opts.prefix)
		if err != nil {
			logger.Error("Failed to write CSV reports", "error", err)
			return err
		}
		logger.Info("CSV reports written", "files", files)
	}
	if cfg.Reports.WriteXLSX {
		path, err := exp.ExportXLSX(report, opts.prefix+".xlsx")
		if err != nil {
			logger.Error("Failed to write XLSX report", "error", err)
			return err
		}
		logger.Info("XLSX report written", "path", path)
	}

	if opts.observations {
		// The simulator is deterministic for a given seed, so this is the
		// dataset the tool flow calibrated against.
		ds, err := svc.SimulateWith(ctx, simOpts)
		if err != nil {
			logger.Error("Failed to simulate observations", "error", err)
			return err
		}
		path, err := exp.ExportObservations(ds, opts.prefix+"_observations.csv")
		if err != nil {
			logger.Error("Failed to write observations", "error", err)
			return err
		}
		logger.Info("Observations written", "path", path, "records", len(ds.Observations))
	}

	return nil
}
