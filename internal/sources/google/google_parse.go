package google

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"schememap/internal/core"
	"schememap/internal/sources"
)

// parseValues converts a values matrix as returned by the Sheets API.
// Numeric cells arrive as float64 and are printed without exponent.
func parseValues(values [][]interface{}) ([]core.SchemeRecord, error) {
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = toStrings(v)
	}
	recs, err := sources.Records(rows)
	if err != nil {
		return nil, fmt.Errorf("parse sheet: %w", err)
	}
	return recs, nil
}

func toValues(records []core.SchemeRecord) [][]interface{} {
	out := make([][]interface{}, 0, len(records)+1)
	header := make([]interface{}, 0, 6)
	for _, h := range sources.Columns() {
		header = append(header, h)
	}
	out = append(out, header)
	for _, r := range records {
		row := make([]interface{}, 0, 6)
		for _, v := range sources.Row(r) {
			row = append(row, v)
		}
		out = append(out, row)
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			out[i] = decimal.NewFromFloat(n).String()
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}
