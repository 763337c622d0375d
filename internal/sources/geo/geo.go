// Package geo reads region boundaries from GeoJSON or ESRI shapefiles.
//
// Each feature becomes one core.RawRegion keyed by the configured state
// property. Dissolving rows that share a state happens later in core.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"schememap/internal/core"
	"schememap/internal/sources"
)

// DefaultStateField is the property holding the state name.
const DefaultStateField = "STATE"

var (
	ErrUnsupportedFormat = errors.New("unsupported region file format")
	ErrMissingStateField = errors.New("missing state field")
)

// Source reads region rows from a boundary file.
type Source struct {
	path       string
	stateField string
}

var _ sources.RegionReader = (*Source)(nil)

func New(path, stateField string) *Source {
	if stateField == "" {
		stateField = DefaultStateField
	}
	return &Source{path: path, stateField: stateField}
}

func (s *Source) Name() string {
	return "geo:" + filepath.Base(s.path)
}

func (s *Source) ReadRegions(ctx context.Context) ([]core.RawRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".geojson", ".json":
		data, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("read geojson: %w", err)
		}
		return DecodeGeoJSON(data, s.stateField)
	case ".zip":
		return s.readZip()
	case ".shp":
		return s.readShp()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, s.path)
	}
}

// DecodeGeoJSON parses a FeatureCollection. Features whose state property
// is absent fail the whole decode.
func DecodeGeoJSON(data []byte, stateField string) ([]core.RawRegion, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	out := make([]core.RawRegion, 0, len(fc.Features))
	for i, f := range fc.Features {
		v, ok := f.Properties[stateField]
		if !ok {
			return nil, fmt.Errorf("feature %d: %w %q", i, ErrMissingStateField, stateField)
		}
		state, _ := v.(string)
		if state == "" {
			state = fmt.Sprint(v)
		}
		out = append(out, core.RawRegion{State: strings.TrimSpace(state), Geometry: f.Geometry})
	}
	return out, nil
}

// shapeRows is the subset of the go-shp readers used here.
type shapeRows interface {
	Next() bool
	Shape() (int, shp.Shape)
	Fields() []shp.Field
	Err() error
}

func (s *Source) readZip() ([]core.RawRegion, error) {
	zr, err := shp.OpenZip(s.path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile zip: %w", err)
	}
	defer zr.Close()
	return collect(zr, s.stateField, func(_, field int) string { return zr.Attribute(field) })
}

func (s *Source) readShp() ([]core.RawRegion, error) {
	r, err := shp.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer r.Close()
	return collect(r, s.stateField, r.ReadAttribute)
}

func collect(rows shapeRows, stateField string, attr func(row, field int) string) ([]core.RawRegion, error) {
	field := -1
	for i, f := range rows.Fields() {
		if strings.EqualFold(f.String(), stateField) {
			field = i
			break
		}
	}
	if field < 0 {
		return nil, fmt.Errorf("%w %q", ErrMissingStateField, stateField)
	}

	var out []core.RawRegion
	for rows.Next() {
		n, shape := rows.Shape()
		g, err := polygonFromShape(shape)
		if err != nil {
			return nil, fmt.Errorf("shape %d: %w", n, err)
		}
		state := strings.TrimSpace(strings.Trim(attr(n, field), "\x00"))
		out = append(out, core.RawRegion{State: state, Geometry: g})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read shapes: %w", err)
	}
	return out, nil
}

func polygonFromShape(s shp.Shape) (geom.T, error) {
	switch p := s.(type) {
	case *shp.Polygon:
		return ringsToMultiPolygon(p.Parts, p.Points)
	case *shp.PolygonZ:
		return ringsToMultiPolygon(p.Parts, p.Points)
	case *shp.PolygonM:
		return ringsToMultiPolygon(p.Parts, p.Points)
	case *shp.Null, nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported shape %T", s)
	}
}

// ringsToMultiPolygon splits a shapefile part list into polygons. Outer
// rings run clockwise and holes counter-clockwise; a hole belongs to the
// preceding outer ring.
func ringsToMultiPolygon(parts []int32, points []shp.Point) (*geom.MultiPolygon, error) {
	mp := geom.NewMultiPolygon(geom.XY)
	var current [][]geom.Coord
	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		p, err := geom.NewPolygon(geom.XY).SetCoords(current)
		if err != nil {
			return err
		}
		current = nil
		return mp.Push(p)
	}
	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start < 0 || start > end || end > len(points) {
			return nil, fmt.Errorf("part %d out of range", i)
		}
		ring := make([]geom.Coord, 0, end-start)
		for _, pt := range points[start:end] {
			ring = append(ring, geom.Coord{pt.X, pt.Y})
		}
		if signedArea(ring) <= 0 || len(current) == 0 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		current = append(current, ring)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return mp, nil
}

// signedArea is negative for clockwise rings.
func signedArea(ring []geom.Coord) float64 {
	var a float64
	for i := 0; i+1 < len(ring); i++ {
		a += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return a / 2
}
