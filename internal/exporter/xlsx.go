package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/Steivan/LEG-analysis-sub001/internal/services"
)

// ExportXLSX writes the report as a workbook with one sheet per table and
// returns the resolved path.
func (e *ReportExporter) ExportXLSX(report *services.Report, filename string) (string, error) {
	if report == nil {
		return "", fmt.Errorf("export xlsx: nil report")
	}

	fullPath := e.csv.resolvePath(filename)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, t := range reportTables(report) {
		if i == 0 {
			// A new workbook starts with one default sheet.
			if err := f.SetSheetName(f.GetSheetName(0), t.Name); err != nil {
				return "", fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return "", fmt.Errorf("create sheet %s: %w", t.Name, err)
		}
		if err := writeSheet(f, t); err != nil {
			return "", fmt.Errorf("write sheet %s: %w", t.Name, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.SaveAs(fullPath); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}

	slog.Info("Exported calibration workbook",
		slog.String("run_id", report.RunID),
		slog.String("full_path", fullPath))
	return fullPath, nil
}

func writeSheet(f *excelize.File, t table) error {
	headers := make([]interface{}, len(t.Headers))
	for i, h := range t.Headers {
		headers[i] = h
	}
	if err := f.SetSheetRow(t.Name, "A1", &headers); err != nil {
		return err
	}

	for i, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for j, c := range row {
			cells[j] = sheetCell(c)
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.Name, axis, &cells); err != nil {
			return err
		}
	}
	return nil
}
