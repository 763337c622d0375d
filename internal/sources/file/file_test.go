package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schememap/internal/core"
)

const sampleCSV = `Category,Gender,Max Annual Income,Scheme Name,State,Benefit
Student,Any,200000,S1,Goa,5000
Student,Female,"1,50,000",S2,Kerala,12000
Farmer,Male,500000,F1,Punjab,6000
`

func TestReadSchemesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemes.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	recs, err := New(path, "").ReadSchemes(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "S2", recs[1].SchemeName)
	assert.True(t, recs[1].MaxAnnualIncome.Equal(decimal.NewFromInt(150000)))
	assert.Equal(t, core.GenderAny, recs[0].Gender)
}

func TestReadSchemesMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemes.csv")
	require.NoError(t, os.WriteFile(path, []byte("Category,Gender,State\nStudent,Any,Goa\n"), 0o644))

	_, err := New(path, "").ReadSchemes(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestReadSchemesUnsupported(t *testing.T) {
	_, err := New("schemes.json", "").ReadSchemes(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadSchemesMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.csv"), "").ReadSchemes(context.Background())
	assert.Error(t, err)
}

func TestWorkbookRoundTrip(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	src := filepath.Join(t.TempDir(), "schemes.csv")
	require.NoError(t, os.WriteFile(src, []byte(sampleCSV), 0o644))
	recs, err := New(src, "").ReadSchemes(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "schemes.xlsx")
	require.NoError(t, WriteWorkbook(path, "Schemes", recs))

	got, err := New(path, "Schemes").ReadSchemes(context.Background())
	require.NoError(t, err)
	require.Len(t, got, len(recs))
	for i := range recs {
		assert.Equal(t, recs[i].SchemeName, got[i].SchemeName)
		assert.True(t, recs[i].Benefit.Equal(got[i].Benefit))
	}
}
