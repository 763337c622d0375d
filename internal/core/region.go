package core

import (
	"fmt"

	"github.com/twpayne/go-geom"
)

type (
	// RawRegion is a single polygon row as read from the boundary file.
	// Several rows may share a State.
	RawRegion struct {
		State    string
		Geometry geom.T
	}

	// Region is one state after dissolve.
	Region struct {
		State    string
		Geometry *geom.MultiPolygon
	}
)

// Dissolve merges raw rows sharing a state name into one Region each, in
// first-seen order. Member polygons are collected into a single multipolygon;
// no geometric union is computed, so borders shared by members stay in the
// geometry.
func Dissolve(rows []RawRegion) ([]Region, error) {
	index := make(map[string]int)
	out := make([]Region, 0)
	for i, row := range rows {
		j, ok := index[row.State]
		if !ok {
			j = len(out)
			index[row.State] = j
			out = append(out, Region{State: row.State, Geometry: geom.NewMultiPolygon(geom.XY)})
		}
		if err := pushPolygons(out[j].Geometry, row.Geometry); err != nil {
			return nil, fmt.Errorf("dissolve row %d (%s): %w", i, row.State, err)
		}
	}
	return out, nil
}

func pushPolygons(dst *geom.MultiPolygon, g geom.T) error {
	switch g := g.(type) {
	case nil:
		return nil
	case *geom.Polygon:
		return dst.Push(toXY(g))
	case *geom.MultiPolygon:
		for i := 0; i < g.NumPolygons(); i++ {
			if err := dst.Push(toXY(g.Polygon(i))); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported geometry %T", g)
	}
}

// toXY drops Z/M ordinates so every member shares the XY layout.
func toXY(p *geom.Polygon) *geom.Polygon {
	if p.Layout() == geom.XY {
		return p
	}
	rings := p.Coords()
	flat := make([][]geom.Coord, len(rings))
	for i, ring := range rings {
		flat[i] = make([]geom.Coord, len(ring))
		for j, c := range ring {
			flat[i][j] = geom.Coord{c.X(), c.Y()}
		}
	}
	return geom.NewPolygon(geom.XY).MustSetCoords(flat)
}

// States returns region names in order.
func States(regions []Region) []string {
	out := make([]string, len(regions))
	for i, r := range regions {
		out[i] = r.State
	}
	return out
}
