package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"schememap/internal/core"
	"schememap/internal/dataset"
	applog "schememap/internal/log"
	"schememap/internal/metrics"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func square(x float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 1}, {x, 0}}})
}

func holderWith(t *testing.T, schemes []core.SchemeRecord, states ...string) *dataset.Holder {
	t.Helper()
	rows := make([]core.RawRegion, len(states))
	for i, s := range states {
		rows[i] = core.RawRegion{State: s, Geometry: square(float64(i))}
	}
	regions, err := core.Dissolve(rows)
	require.NoError(t, err)
	return dataset.NewHolder(dataset.New("v-test", time.Now(), schemes, regions, "memory", "memory"))
}

func newExplorer(t *testing.T, h Snapshots) (*Explorer, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	var buf bytes.Buffer
	return NewExplorer(h, core.DefaultIncomeMax, m, applog.New(applog.Config{Output: &buf})), m
}

func criteria(cat, gender, income string) core.Criteria {
	return core.Criteria{Category: cat, Gender: gender, Income: d(income)}
}

func TestExploreSingleMatchingRecord(t *testing.T) {
	h := holderWith(t, []core.SchemeRecord{
		{Category: "Student", Gender: "Any", MaxAnnualIncome: d("200000"), SchemeName: "S1", State: "Goa", Benefit: d("5000")},
	}, "Goa")
	e, m := newExplorer(t, h)

	res, err := e.Explore(context.Background(), criteria("Student", "Female", "100000"))
	require.NoError(t, err)
	require.False(t, res.Empty)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "S1", res.Rows[0].SchemeName)

	require.Len(t, res.Summaries, 1)
	assert.Equal(t, "Goa", res.Summaries[0].State)
	assert.True(t, res.Summaries[0].TotalBenefit.Equal(d("5000")))
	assert.Equal(t, "S1: ₹5,000", res.Summaries[0].SchemeDetails())

	require.Len(t, res.Regions, 1)
	assert.Equal(t, "S1: ₹5,000", res.Regions[0].SchemeDetails)
	assert.Equal(t, "v-test", res.DatasetVersion)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Explorations.WithLabelValues("ok")))
}

func TestExploreNothingSelectedIsEmpty(t *testing.T) {
	h := holderWith(t, []core.SchemeRecord{
		{Category: "Student", Gender: "Any", MaxAnnualIncome: d("50000"), SchemeName: "S1", State: "Goa", Benefit: d("5000")},
	}, "Goa")
	e, m := newExplorer(t, h)

	res, err := e.Explore(context.Background(), criteria("Student", "Male", "100000"))
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Nil(t, res.Regions)
	assert.Nil(t, res.Summaries)
	assert.Nil(t, res.Rows)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Explorations.WithLabelValues("empty")))
}

func TestExploreSameStateSums(t *testing.T) {
	h := holderWith(t, []core.SchemeRecord{
		{Category: "Farmer", Gender: "Male", MaxAnnualIncome: d("300000"), SchemeName: "PM-KISAN", State: "Punjab", Benefit: d("1000")},
		{Category: "Farmer", Gender: "Any", MaxAnnualIncome: d("300000"), SchemeName: "Crop Aid", State: "Punjab", Benefit: d("2000")},
	}, "Punjab")
	e, _ := newExplorer(t, h)

	res, err := e.Explore(context.Background(), criteria("Farmer", "Male", "100000"))
	require.NoError(t, err)
	require.Len(t, res.Regions, 1)
	assert.True(t, res.Regions[0].TotalBenefit.Equal(d("3000")))
	assert.Equal(t, "PM-KISAN: ₹1,000<br>Crop Aid: ₹2,000", res.Regions[0].SchemeDetails)
	assert.True(t, res.MaxBenefit.Equal(d("3000")))
}

func TestExploreUnmatchedRegionGetsDefaults(t *testing.T) {
	h := holderWith(t, []core.SchemeRecord{
		{Category: "Student", Gender: "Any", MaxAnnualIncome: d("200000"), SchemeName: "S1", State: "Goa", Benefit: d("5000")},
	}, "Goa", "Kerala")
	e, _ := newExplorer(t, h)

	res, err := e.Explore(context.Background(), criteria("Student", "Other", "0"))
	require.NoError(t, err)
	require.Len(t, res.Regions, 2)
	kerala := res.Regions[1]
	assert.Equal(t, "Kerala", kerala.State)
	assert.True(t, kerala.TotalBenefit.IsZero())
	assert.Equal(t, core.NoSchemesAvailable, kerala.SchemeDetails)
	assert.False(t, kerala.Matched)
}

func TestExploreIsIdempotent(t *testing.T) {
	h := holderWith(t, []core.SchemeRecord{
		{Category: "Student", Gender: "Any", MaxAnnualIncome: d("200000"), SchemeName: "S1", State: "Goa", Benefit: d("5000")},
		{Category: "Student", Gender: "Female", MaxAnnualIncome: d("200000"), SchemeName: "S2", State: "Kerala", Benefit: d("700.25")},
	}, "Goa", "Kerala", "Bihar")
	e, _ := newExplorer(t, h)
	c := criteria("Student", "Female", "150000")

	first, err := e.Explore(context.Background(), c)
	require.NoError(t, err)
	second, err := e.Explore(context.Background(), c)
	require.NoError(t, err)

	require.Equal(t, len(first.Regions), len(second.Regions))
	for i := range first.Regions {
		assert.Equal(t, first.Regions[i].State, second.Regions[i].State)
		assert.True(t, first.Regions[i].TotalBenefit.Equal(second.Regions[i].TotalBenefit))
		assert.Equal(t, first.Regions[i].SchemeDetails, second.Regions[i].SchemeDetails)
	}
	// Results must not share backing arrays.
	first.Rows[0].SchemeName = "changed"
	assert.Equal(t, "S1", second.Rows[0].SchemeName)
}

func TestExploreInvalidCriteria(t *testing.T) {
	e, m := newExplorer(t, holderWith(t, nil, "Goa"))

	cases := []struct {
		c    core.Criteria
		want error
	}{
		{criteria("", "Male", "1"), core.ErrEmptyCategory},
		{criteria("Student", "Any", "1"), core.ErrInvalidGender},
		{criteria("Student", "Male", "500001"), core.ErrInvalidIncome},
	}
	for _, tc := range cases {
		_, err := e.Explore(context.Background(), tc.c)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidCriteria))
		assert.True(t, errors.Is(err, tc.want), "got %v", err)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Explorations.WithLabelValues("invalid")))
}

func TestExploreNotLoaded(t *testing.T) {
	e, _ := newExplorer(t, dataset.NewHolder(nil))
	_, err := e.Explore(context.Background(), criteria("Student", "Male", "1"))
	assert.ErrorIs(t, err, dataset.ErrNotLoaded)

	_, err = e.Categories()
	assert.ErrorIs(t, err, dataset.ErrNotLoaded)
}
