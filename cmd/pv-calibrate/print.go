package main

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/Steivan/LEG-analysis-sub001/internal/pvmodel"
	"github.com/Steivan/LEG-analysis-sub001/internal/services"
)

var scenarioTitles = map[string]string{
	services.ScenarioDefaultUnfiltered: "default priors / no filter",
	services.ScenarioDefaultModelMask:  "default priors / model filter",
	services.ScenarioHullModelMask:     "hull priors / model filter",
	services.ScenarioDefaultAnomaly:    "default priors / anomaly filters (fog, snow, outliers)",
}

// printReport writes the per-scenario results table.
func printReport(w io.Writer, r *services.Report) {
	fmt.Fprintf(w, "Observations: %d (model valid: %d)\n", r.Observations, r.ModelValid)
	for _, p := range r.FilterPasses {
		fmt.Fprintf(w, "Filter %-12s excluded %6d, remaining %6d\n", p.Name, p.Excluded, p.Remaining)
	}
	if r.Trend.Fallback {
		fmt.Fprintln(w, "Hull trend: fallback (too few months)")
	} else {
		fmt.Fprintf(w, "Hull trend: intercept %.5f ± %.5f, slope %.5f ± %.5f per year (%d months)\n",
			r.Trend.Intercept, r.Trend.InterceptSE, r.Trend.Slope, r.Trend.SlopeSE, r.Trend.Points)
	}
	fmt.Fprintln(w)

	for _, sc := range r.Scenarios {
		title := scenarioTitles[sc.Name]
		if title == "" {
			title = sc.Name
		}
		fmt.Fprintf(w, "Bayesian calibration: %s\n", title)
		if sc.Failed() {
			fmt.Fprintf(w, "  failed: %s\n\n", sc.Error)
			continue
		}
		printScenario(w, r, sc)
	}
}

func printScenario(w io.Writer, r *services.Report, sc services.ScenarioReport) {
	res := sc.Result
	fmt.Fprintf(w, "Calibration results (%d / %d iterations, converged: %t):\n", res.Iterations, r.MaxIterations, res.Converged)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "parameter\tprior\tmodel\t1st it.\tcalibrated\tdelta %\t")

	priors := sc.Priors.Array()
	model := r.TrueParams.Vector()
	first := sc.Priors.Means().Vector()
	if len(res.Trace) > 0 {
		first = res.Trace[0].Vector()
	}
	final := res.Final().Vector()
	for i := 0; i < pvmodel.NumParams; i++ {
		fmt.Fprintf(tw, "%s\t%.5f\t%.5f\t%.5f\t%.5f\t%.3f\t\n",
			pvmodel.ParamIndex(i), priors[i].Mean, model[i], first[i], final[i], deltaPercent(final[i], model[i]))
	}
	tw.Flush()

	fmt.Fprintf(w, "Mean error: %.6f (initial: %.6f)\n", res.MeanError, r.InitialMeanError)
	if len(sc.Quantiles) == len(services.ReportQuantiles) {
		fmt.Fprint(w, "Error quantiles:")
		for i, q := range services.ReportQuantiles {
			fmt.Fprintf(w, " p%.0f=%.5f", q*100, sc.Quantiles[i])
		}
		fmt.Fprintln(w)
	}
	if h := sc.Histogram; h != nil {
		fmt.Fprintf(w, "Error statistics: min %.5f, max %.5f, mean %.5f\n", h.Min, h.Max, h.MeanError)
	}
	fmt.Fprintln(w)
}

// deltaPercent is the relative deviation of calibrated from model in percent.
func deltaPercent(calibrated, model float64) float64 {
	if model == 0 {
		return math.NaN()
	}
	return (calibrated/model - 1) * 100
}
