package exporter

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Steivan/LEG-analysis-sub001/internal/calibration"
	"github.com/Steivan/LEG-analysis-sub001/internal/config"
	"github.com/Steivan/LEG-analysis-sub001/internal/errstats"
	"github.com/Steivan/LEG-analysis-sub001/internal/filter"
	"github.com/Steivan/LEG-analysis-sub001/internal/hull"
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
	"github.com/Steivan/LEG-analysis-sub001/internal/services"
	"github.com/Steivan/LEG-analysis-sub001/internal/simulate"
)

func testPaths(t *testing.T) *config.Paths {
	t.Helper()
	dir := t.TempDir()
	return &config.Paths{BaseDir: dir, ReportsDir: filepath.Join(dir, "reports")}
}

func sampleReport() *services.Report {
	truth := pvmodel.Params{Efficiency: 0.9, TempCoefficient: -0.0045, U0: 25, U1: 0.6, Degradation: 0.009}
	step := pvmodel.Params{Efficiency: 0.88, TempCoefficient: -0.0042, U0: 27, U1: 0.55, Degradation: 0.0085}

	return &services.Report{
		RunID:            "run-1",
		GeneratedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		TrueParams:       truth,
		MaxIterations:    10,
		Observations:     96,
		ModelValid:       40,
		InitialMeanError: math.NaN(),
		FilterPasses: []filter.PassResult{
			{Name: filter.PassSubHorizon, Excluded: 50, Remaining: 46},
			{Name: filter.PassFog, Excluded: 4, Remaining: 42},
		},
		Trend: hull.Trend{
			Intercept: 0.9, Slope: -0.009, Points: 2,
			Months: []hull.MonthRatio{
				{Year: 2020, Month: time.January, TimeLag: 0.04, MaxRatio: 0.9},
				{Year: 2020, Month: time.February, TimeLag: 0.12, MaxRatio: 0.899},
			},
		},
		Scenarios: []services.ScenarioReport{
			{
				Name:   services.ScenarioDefaultModelMask,
				Priors: pvmodel.DefaultPriors(),
				Result: calibration.Result{
					Trace:      []pvmodel.Params{step, truth},
					Iterations: 2,
					Converged:  true,
					Rows:       40,
					LastStep:   1e-7,
					MeanError:  3.5,
				},
				Histogram: &errstats.Histogram{
					Summary: errstats.Summary{Count: 3, Min: -1, Max: 1, MeanError: 0.5},
					BinSize: 1, LowerBound: -1.5,
					Centers: []float64{-1, 0, 1},
					Counts:  []int{1, 1, 1},
				},
				Quantiles: []float64{-1, -1, -0.5, 0, 0.5, 1, 1},
			},
			{
				Name:   services.ScenarioHullModelMask,
				Priors: pvmodel.DefaultPriors(),
				Error:  "[DATA_INSUFFICIENCY] hull trend fell back",
			},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(content, []byte{0xEF, 0xBB, 0xBF}), "missing BOM")

	records, err := csv.NewReader(bytes.NewReader(content[3:])).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSVWriter_WriteCSV(t *testing.T) {
	paths := testPaths(t)
	writer := NewCSVWriter(paths)

	path, err := writer.WriteSimpleCSV("nested/out.csv", []string{"a", "b"}, [][]string{{"1", "x,y"}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(paths.ReportsDir, "nested", "out.csv"), path)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "x,y"}}, readCSV(t, path))

	_, err = writer.WriteCSV(path, WriteOptions{Records: [][]string{{"2", "z"}}, Append: true})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "x,y"}, {"2", "z"}}, readCSV(t, path))
}

func TestCSVWriter_AbsolutePath(t *testing.T) {
	writer := NewCSVWriter(testPaths(t))
	abs := filepath.Join(t.TempDir(), "abs.csv")

	path, err := writer.WriteSimpleCSV(abs, []string{"h"}, nil)
	require.NoError(t, err)
	assert.Equal(t, abs, path)
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{name: "nil", in: nil, want: ""},
		{name: "string", in: "fog", want: "fog"},
		{name: "float", in: 0.0045, want: "0.0045"},
		{name: "whole float", in: 25.0, want: "25"},
		{name: "nan", in: math.NaN(), want: ""},
		{name: "inf", in: math.Inf(-1), want: ""},
		{name: "int", in: 42, want: "42"},
		{name: "bool", in: true, want: "true"},
		{name: "month", in: time.March, want: "3"},
		{name: "time", in: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), want: "2024-01-02T03:04:05Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCell(tt.in))
		})
	}
}

func TestReportExporter_ExportCSV(t *testing.T) {
	exp := NewReportExporter(testPaths(t))

	files, err := exp.ExportCSV(sampleReport(), "run")
	require.NoError(t, err)
	require.Len(t, files, 7)

	byName := map[string][][]string{}
	for _, f := range files {
		byName[filepath.Base(f)] = readCSV(t, f)
	}

	scenarios := byName["run_scenarios.csv"]
	require.Len(t, scenarios, 3)
	assert.Equal(t, "scenario", scenarios[0][0])
	assert.Equal(t, []string{services.ScenarioDefaultModelMask, "2", "true", "40", "0.0000001", "3.5",
		"0.9", "-0.0045", "25", "0.6", "0.009", ""}, scenarios[1])
	assert.Equal(t, services.ScenarioHullModelMask, scenarios[2][0])
	assert.Equal(t, "", scenarios[2][5], "failed scenario has no mean error")
	assert.Contains(t, scenarios[2][11], "DATA_INSUFFICIENCY")

	trace := byName["run_trace.csv"]
	// Header, then prior means plus two iterations. The failed scenario has
	// no trace.
	require.Len(t, trace, 1+3)
	assert.Equal(t, []string{services.ScenarioDefaultModelMask, "0", "0.85", "-0.004", "29", "0.5", "0.008"}, trace[1])
	assert.Equal(t, "2", trace[3][1])

	assert.Len(t, byName["run_histograms.csv"], 1+3)
	assert.Len(t, byName["run_quantiles.csv"], 1+len(services.ReportQuantiles))
	assert.Equal(t, []string{"pass", "excluded", "remaining"}, byName["run_filters.csv"][0])
	assert.Equal(t, []string{"2020", "2", "0.12", "0.899"}, byName["run_trend.csv"][2])

	summary := byName["run_summary.csv"]
	assert.Contains(t, summary, []string{"initial_mean_error", ""})
	assert.Contains(t, summary, []string{"trend_fallback", "false"})
}

func TestReportExporter_ExportXLSX(t *testing.T) {
	exp := NewReportExporter(testPaths(t))

	path, err := exp.ExportXLSX(sampleReport(), "run.xlsx")
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{TableSummary, TableScenarios, TableTrace, TableHistograms,
		TableQuantiles, TableFilters, TableTrend}, f.GetSheetList())

	rows, err := f.GetRows(TableScenarios)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, services.ScenarioDefaultModelMask, rows[1][0])

	value, err := f.GetCellValue(TableTrend, "D2")
	require.NoError(t, err)
	assert.Equal(t, "0.9", value)

	value, err = f.GetCellValue(TableSummary, "B7")
	require.NoError(t, err)
	assert.Empty(t, value, "NaN is written as an empty cell")
}

func TestReportExporter_NilInputs(t *testing.T) {
	exp := NewReportExporter(testPaths(t))

	_, err := exp.ExportCSV(nil, "x")
	assert.Error(t, err)
	_, err = exp.ExportXLSX(nil, "x.xlsx")
	assert.Error(t, err)
	_, err = exp.ExportObservations(nil, "x.csv")
	assert.Error(t, err)
}

func TestReportExporter_ExportObservations(t *testing.T) {
	opts := simulate.DefaultOptions(pvmodel.DefaultPriors().Means())
	opts.Days = 2
	opts.PeriodsPerHour = 1
	dataset, err := simulate.Generate(opts)
	require.NoError(t, err)

	exp := NewReportExporter(testPaths(t))
	path, err := exp.ExportObservations(dataset, "observations.csv")
	require.NoError(t, err)

	records := readCSV(t, path)
	require.Len(t, records, 1+len(dataset.Observations))
	assert.Equal(t, observationHeaders, records[0])
	assert.Len(t, records[1], len(observationHeaders))
	assert.Equal(t, "2020-01-01T00:00:00Z", records[1][0])

	valid := 0
	for _, r := range records[1:] {
		if r[16] == "true" {
			valid++
		}
	}
	assert.Equal(t, dataset.ModelValid.Count(), valid)
}
