package sources

import (
	"errors"
	"fmt"
	"strings"

	"schememap/internal/core"
)

// ErrMissingColumn reports a header row without one of the required columns.
var ErrMissingColumn = errors.New("missing column")

// Column names of the scheme table.
const (
	ColCategory        = "Category"
	ColGender          = "Gender"
	ColMaxAnnualIncome = "Max Annual Income"
	ColSchemeName      = "Scheme Name"
	ColState           = "State"
	ColBenefit         = "Benefit"
)

// Columns lists the scheme table header in canonical order.
func Columns() []string {
	return []string{ColCategory, ColGender, ColMaxAnnualIncome, ColSchemeName, ColState, ColBenefit}
}

// Header maps canonical column names to their index in a source row.
type Header map[string]int

// ParseHeader locates the required columns. Matching ignores case, spaces
// and underscores, so "max_annual_income" finds "Max Annual Income".
func ParseHeader(row []string) (Header, error) {
	found := make(map[string]int, len(row))
	for i, h := range row {
		k := normalizeHeader(h)
		if _, dup := found[k]; !dup {
			found[k] = i
		}
	}
	h := make(Header, 6)
	var missing []string
	for _, col := range Columns() {
		i, ok := found[normalizeHeader(col)]
		if !ok {
			missing = append(missing, col)
			continue
		}
		h[col] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s; got headers=%v", ErrMissingColumn, strings.Join(missing, ","), row)
	}
	return h, nil
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

func (h Header) get(row []string, col string) string {
	i := h[col]
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Record converts one data row. Text cells are trimmed; amounts go through
// core.ParseAmount.
func (h Header) Record(row []string) (core.SchemeRecord, error) {
	income, err := core.ParseAmount(h.get(row, ColMaxAnnualIncome))
	if err != nil {
		return core.SchemeRecord{}, fmt.Errorf("%s: %w", ColMaxAnnualIncome, err)
	}
	benefit, err := core.ParseAmount(h.get(row, ColBenefit))
	if err != nil {
		return core.SchemeRecord{}, fmt.Errorf("%s: %w", ColBenefit, err)
	}
	return core.SchemeRecord{
		Category:        h.get(row, ColCategory),
		Gender:          h.get(row, ColGender),
		MaxAnnualIncome: income,
		SchemeName:      h.get(row, ColSchemeName),
		State:           h.get(row, ColState),
		Benefit:         benefit,
	}, nil
}

// Records converts a header row followed by data rows. Fully blank rows are
// skipped; line numbers in errors are 1-based and count the header.
func Records(rows [][]string) ([]core.SchemeRecord, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrMissingColumn)
	}
	h, err := ParseHeader(rows[0])
	if err != nil {
		return nil, err
	}
	out := make([]core.SchemeRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec, err := h.Record(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Row renders a record in canonical column order, the inverse of Record.
func Row(r core.SchemeRecord) []string {
	return []string{r.Category, r.Gender, r.MaxAnnualIncome.String(), r.SchemeName, r.State, r.Benefit.String()}
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
