package exporter

import (
	"fmt"
	"log/slog"

	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
	"github.com/Steivan/LEG-analysis-sub001/internal/services"
	"github.com/Steivan/LEG-analysis-sub001/internal/simulate"
)

var observationHeaders = []string{
	"timestamp", "age", "has_measurement", "measured_power", "theoretical_power", "weight",
	"direct_factor", "diffuse_factor", "sin_elevation", "cos_elevation",
	"global_horizontal", "diffuse_horizontal", "sunshine_duration",
	"ambient_temperature", "wind_speed", "snow_depth",
	"model_valid", "fog", "snow", "outlier",
}

// ReportExporter writes calibration reports and simulated datasets into the
// reports directory.
type ReportExporter struct {
	csv   *CSVWriter
	paths *config.Paths
}

// NewReportExporter creates an exporter rooted at the configured paths.
func NewReportExporter(paths *config.Paths) *ReportExporter {
	return &ReportExporter{csv: NewCSVWriter(paths), paths: paths}
}

// ExportCSV writes one <prefix>_<table>.csv file per report table and returns
// the written paths in table order.
func (e *ReportExporter) ExportCSV(report *services.Report, prefix string) ([]string, error) {
	if report == nil {
		return nil, fmt.Errorf("export csv: nil report")
	}

	tables := reportTables(report)
	files := make([]string, 0, len(tables))
	for _, t := range tables {
		records := make([][]string, len(t.Rows))
		for i, row := range t.Rows {
			record := make([]string, len(row))
			for j, cell := range row {
				record[j] = formatCell(cell)
			}
			records[i] = record
		}

		path, err := e.csv.WriteSimpleCSV(fmt.Sprintf("%s_%s.csv", prefix, t.Name), t.Headers, records)
		if err != nil {
			return files, fmt.Errorf("export %s table: %w", t.Name, err)
		}
		files = append(files, path)
	}

	slog.Info("Exported calibration report",
		slog.String("run_id", report.RunID),
		slog.Int("files", len(files)))
	return files, nil
}

// ExportObservations streams a simulated dataset with its theoretical power
// under the true parameters and the anomaly flags.
func (e *ReportExporter) ExportObservations(dataset *simulate.Dataset, filename string) (string, error) {
	if dataset == nil {
		return "", fmt.Errorf("export observations: nil dataset")
	}

	stream, err := e.csv.CreateStreamWriter(filename, observationHeaders)
	if err != nil {
		return "", err
	}

	ref := dataset.Reference()
	for i, obs := range dataset.Observations {
		record := observationRecord(obs, ref.Power(obs),
			flag(dataset.ModelValid, i), flag(dataset.FogPeriod, i),
			flag(dataset.SnowDay, i), flag(dataset.Outlier, i))
		if err := stream.WriteRecord(record); err != nil {
			stream.Close()
			return "", fmt.Errorf("write observation %d: %w", i, err)
		}
	}

	path := stream.Path()
	if err := stream.Close(); err != nil {
		return "", fmt.Errorf("close observations file: %w", err)
	}
	return path, nil
}

func observationRecord(obs pvmodel.Observation, theoretical float64, flags ...bool) []string {
	record := []string{
		formatCell(obs.Timestamp),
		formatFloat(obs.Age),
		formatBool(obs.HasMeasurement),
		formatFloat(obs.Measured()),
		formatFloat(theoretical),
		formatFloat(obs.Weight),
		formatFloat(obs.Geometry.DirectFactor),
		formatFloat(obs.Geometry.DiffuseFactor),
		formatFloat(obs.Geometry.SinElevation),
		formatFloat(obs.Geometry.CosElevation),
		formatFloat(obs.Meteo.GlobalHorizontal),
		formatFloat(obs.Meteo.DiffuseHorizontal),
		formatFloat(obs.Meteo.SunshineDuration),
		formatFloat(obs.Meteo.AmbientTemperature),
		formatFloat(obs.Meteo.WindSpeed),
		formatFloat(obs.Meteo.SnowDepth),
	}
	for _, f := range flags {
		record = append(record, formatBool(f))
	}
	return record
}

func flag(m pvmodel.Mask, i int) bool {
	return i < len(m) && m[i]
}
