package exporter

import (
	"math"
	"strconv"
	"time"
)

// formatFloat uses the shortest representation that round-trips. NaN and
// infinities have no CSV representation and are written as empty cells.
func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatInt formats an int value for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}

// formatBool formats a boolean value for CSV output
func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// formatCell renders a table cell for CSV output.
func formatCell(v interface{}) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return formatFloat(c)
	case int:
		return formatInt(c)
	case bool:
		return formatBool(c)
	case time.Time:
		return c.UTC().Format(time.RFC3339)
	case time.Month:
		return formatInt(int(c))
	default:
		return ""
	}
}

// sheetCell converts a table cell into a value excelize stores natively.
func sheetCell(v interface{}) interface{} {
	switch c := v.(type) {
	case float64:
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil
		}
		return c
	case time.Time:
		return c.UTC().Format(time.RFC3339)
	case time.Month:
		return int(c)
	default:
		return c
	}
}
