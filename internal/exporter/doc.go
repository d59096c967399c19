// Package exporter writes calibration reports to disk.
//
// Every report is first flattened into named tables (scenarios, iteration
// traces, histograms, quantiles, filter passes and hull months). The tables
// are then written either as one CSV file each, with a UTF-8 BOM so that
// spreadsheet tools detect the encoding, or as sheets of a single XLSX
// workbook.
//
// Example usage:
//
//	paths, _ := cfg.GetPaths()
//	exp := exporter.NewReportExporter(paths)
//
//	files, err := exp.ExportCSV(report, "calibration_20240101")
//	xlsx, err := exp.ExportXLSX(report, "calibration_20240101.xlsx")
package exporter
