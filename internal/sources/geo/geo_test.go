package geo

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"schememap/internal/core"
)

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"STATE": "Goa"},
     "geometry": {"type": "Polygon", "coordinates": [[[73.7,15.0],[74.3,15.0],[74.3,15.8],[73.7,15.8],[73.7,15.0]]]}},
    {"type": "Feature", "properties": {"STATE": "Kerala"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[75,8],[77,8],[77,12],[75,12],[75,8]]]]}},
    {"type": "Feature", "properties": {"STATE": "Goa"},
     "geometry": {"type": "Polygon", "coordinates": [[[74.4,15.0],[74.5,15.0],[74.5,15.1],[74.4,15.0]]]}}
  ]
}`

func TestReadRegionsGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sampleGeoJSON), 0o644))

	rows, err := New(path, "").ReadRegions(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Goa", rows[0].State)

	regions, err := core.Dissolve(rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"Goa", "Kerala"}, core.States(regions))
	assert.Equal(t, 2, regions[0].Geometry.NumPolygons())
}

func TestDecodeGeoJSONMissingField(t *testing.T) {
	_, err := DecodeGeoJSON([]byte(sampleGeoJSON), "NAME_1")
	assert.ErrorIs(t, err, ErrMissingStateField)
}

func TestReadRegionsUnsupported(t *testing.T) {
	_, err := New("regions.kml", "").ReadRegions(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRingsToMultiPolygon(t *testing.T) {
	// Outer (clockwise), hole (counter-clockwise), second outer (clockwise).
	pts := []shp.Point{
		{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0},
		{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2},
		{X: 20, Y: 0}, {X: 20, Y: 5}, {X: 25, Y: 5}, {X: 25, Y: 0}, {X: 20, Y: 0},
	}
	mp, err := ringsToMultiPolygon([]int32{0, 5, 10}, pts)
	require.NoError(t, err)
	require.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
	assert.Equal(t, 1, mp.Polygon(1).NumLinearRings())
	assert.Equal(t, geom.XY, mp.Layout())
}

// writeStatesShapefile writes three square polygons tagged Goa, Kerala, Goa
// and returns the .shp path.
func writeStatesShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "states.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("STATE", 32)}))

	square := func(x float64) *shp.Polygon {
		return (*shp.Polygon)(shp.NewPolyLine([][]shp.Point{{
			{X: x, Y: 0}, {X: x, Y: 1}, {X: x + 1, Y: 1}, {X: x + 1, Y: 0}, {X: x, Y: 0},
		}}))
	}
	for i, state := range []string{"Goa", "Kerala", "Goa"} {
		n := w.Write(square(float64(i * 2)))
		require.NoError(t, w.WriteAttribute(int(n), 0, state))
	}
	w.Close()

	// go-shp's writer names the attribute file "statesdbf" without the dot.
	if _, err := os.Stat(filepath.Join(dir, "statesdbf")); err == nil {
		require.NoError(t, os.Rename(filepath.Join(dir, "statesdbf"), filepath.Join(dir, "states.dbf")))
	}
	require.FileExists(t, filepath.Join(dir, "states.dbf"))
	return path
}

func assertStatesRows(t *testing.T, rows []core.RawRegion) {
	t.Helper()
	require.Len(t, rows, 3)
	assert.Equal(t, "Goa", rows[0].State)
	assert.Equal(t, "Kerala", rows[1].State)

	regions, err := core.Dissolve(rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"Goa", "Kerala"}, core.States(regions))
}

func TestReadRegionsShapefile(t *testing.T) {
	path := writeStatesShapefile(t, t.TempDir())

	rows, err := New(path, "state").ReadRegions(context.Background())
	require.NoError(t, err)
	assertStatesRows(t, rows)
}

func TestReadRegionsZippedShapefile(t *testing.T) {
	dir := t.TempDir()
	writeStatesShapefile(t, dir)

	zipPath := filepath.Join(dir, "states.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range []string{"states.shp", "states.shx", "states.dbf"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		entry, err := zw.Create(name)
		require.NoError(t, err)
		_, err = entry.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	rows, err := New(zipPath, "state").ReadRegions(context.Background())
	require.NoError(t, err)
	assertStatesRows(t, rows)
}
