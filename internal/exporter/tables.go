package exporter

import (
	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
	"github.com/Steivan/LEG-analysis-sub001/internal/services"
)

// Table names, also used as CSV file suffixes and sheet names.
const (
	TableSummary    = "summary"
	TableScenarios  = "scenarios"
	TableTrace      = "trace"
	TableHistograms = "histograms"
	TableQuantiles  = "quantiles"
	TableFilters    = "filters"
	TableTrend      = "trend"
)

var paramHeaders = []string{"efficiency", "temp_coefficient", "u0", "u1", "degradation"}

// table is a report section flattened into rows of typed cells.
type table struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
}

func paramCells(p pvmodel.Params) []interface{} {
	return []interface{}{p.Efficiency, p.TempCoefficient, p.U0, p.U1, p.Degradation}
}

func withHeaders(prefix []string) []string {
	return append(append([]string{}, prefix...), paramHeaders...)
}

// reportTables flattens a report in a fixed order.
func reportTables(r *services.Report) []table {
	return []table{
		summaryTable(r),
		scenarioTable(r),
		traceTable(r),
		histogramTable(r),
		quantileTable(r),
		filterTable(r),
		trendTable(r),
	}
}

func summaryTable(r *services.Report) table {
	rows := [][]interface{}{
		{"run_id", r.RunID},
		{"generated_at", r.GeneratedAt},
		{"observations", r.Observations},
		{"model_valid", r.ModelValid},
		{"max_iterations", r.MaxIterations},
		{"initial_mean_error", r.InitialMeanError},
		{"true_efficiency", r.TrueParams.Efficiency},
		{"true_temp_coefficient", r.TrueParams.TempCoefficient},
		{"true_u0", r.TrueParams.U0},
		{"true_u1", r.TrueParams.U1},
		{"true_degradation", r.TrueParams.Degradation},
		{"trend_intercept", r.Trend.Intercept},
		{"trend_slope", r.Trend.Slope},
		{"trend_intercept_se", r.Trend.InterceptSE},
		{"trend_slope_se", r.Trend.SlopeSE},
		{"trend_fallback", r.Trend.Fallback},
	}
	return table{Name: TableSummary, Headers: []string{"key", "value"}, Rows: rows}
}

func scenarioTable(r *services.Report) table {
	t := table{
		Name: TableScenarios,
		Headers: append(withHeaders([]string{"scenario", "iterations", "converged", "rows", "last_step", "mean_error"}),
			"error"),
	}
	for _, s := range r.Scenarios {
		row := []interface{}{s.Name, s.Result.Iterations, s.Result.Converged, s.Result.Rows, s.Result.LastStep}
		if s.Failed() {
			row = append(row, nil, nil, nil, nil, nil, nil, s.Error)
		} else {
			row = append(row, s.Result.MeanError)
			row = append(row, paramCells(s.Result.Final())...)
			row = append(row, "")
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func traceTable(r *services.Report) table {
	t := table{Name: TableTrace, Headers: withHeaders([]string{"scenario", "iteration"})}
	for _, s := range r.Scenarios {
		if s.Failed() {
			continue
		}
		t.Rows = append(t.Rows, append([]interface{}{s.Name, 0}, paramCells(s.Priors.Means())...))
		for i, p := range s.Result.Trace {
			t.Rows = append(t.Rows, append([]interface{}{s.Name, i + 1}, paramCells(p)...))
		}
	}
	return t
}

func histogramTable(r *services.Report) table {
	t := table{Name: TableHistograms, Headers: []string{"scenario", "bin_center", "count"}}
	for _, s := range r.Scenarios {
		if s.Histogram == nil {
			continue
		}
		for i, c := range s.Histogram.Centers {
			t.Rows = append(t.Rows, []interface{}{s.Name, c, s.Histogram.Counts[i]})
		}
	}
	return t
}

func quantileTable(r *services.Report) table {
	t := table{Name: TableQuantiles, Headers: []string{"scenario", "probability", "error"}}
	for _, s := range r.Scenarios {
		if len(s.Quantiles) != len(services.ReportQuantiles) {
			continue
		}
		for i, p := range services.ReportQuantiles {
			t.Rows = append(t.Rows, []interface{}{s.Name, p, s.Quantiles[i]})
		}
	}
	return t
}

func filterTable(r *services.Report) table {
	t := table{Name: TableFilters, Headers: []string{"pass", "excluded", "remaining"}}
	for _, p := range r.FilterPasses {
		t.Rows = append(t.Rows, []interface{}{p.Name, p.Excluded, p.Remaining})
	}
	return t
}

func trendTable(r *services.Report) table {
	t := table{Name: TableTrend, Headers: []string{"year", "month", "time_lag", "max_ratio"}}
	for _, m := range r.Trend.Months {
		t.Rows = append(t.Rows, []interface{}{m.Year, m.Month, m.TimeLag, m.MaxRatio})
	}
	return t
}
