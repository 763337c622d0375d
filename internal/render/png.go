package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/twpayne/go-geom"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"schememap/internal/core"
)

// ErrNoRegions is returned when there is nothing to draw.
var ErrNoRegions = errors.New("no regions to render")

// maxLatitude bounds the mercator projection.
const maxLatitude = 85.0

type PNGOptions struct {
	Width  vg.Length
	Height vg.Length
	Title  string
}

func DefaultPNGOptions() PNGOptions {
	return PNGOptions{Width: 8 * vg.Inch, Height: 8 * vg.Inch, Title: "Total Benefit by State"}
}

// PNG draws a choropleth of TotalBenefit: every region is filled from a
// sequential color map scaled between the smallest and largest total.
func PNG(w io.Writer, regions []core.EnrichedRegion, opts PNGOptions) error {
	if len(regions) == 0 {
		return ErrNoRegions
	}
	if opts.Width == 0 || opts.Height == 0 {
		opts = DefaultPNGOptions()
	}

	cm := colorScale(regions)

	p := plot.New()
	p.Title.Text = opts.Title
	p.HideAxes()

	for _, r := range regions {
		fill, err := cm.At(r.TotalBenefit.InexactFloat64())
		if err != nil {
			return fmt.Errorf("color for %s: %w", r.State, err)
		}
		for i := 0; i < r.Geometry.NumPolygons(); i++ {
			poly, err := polygon(r.Geometry.Polygon(i))
			if err != nil {
				return fmt.Errorf("polygon for %s: %w", r.State, err)
			}
			if poly == nil {
				continue
			}
			poly.Color = fill
			poly.LineStyle.Color = color.White
			poly.LineStyle.Width = vg.Points(0.5)
			p.Add(poly)
		}
	}

	wt, err := p.WriterTo(opts.Width, opts.Height, "png")
	if err != nil {
		return fmt.Errorf("create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

func colorScale(regions []core.EnrichedRegion) palette.ColorMap {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range regions {
		v := r.TotalBenefit.InexactFloat64()
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi <= lo {
		hi = lo + 1
	}
	cm := moreland.Kindlmann()
	cm.SetMin(lo)
	cm.SetMax(hi)
	return cm
}

// polygon projects a polygon's rings into mercator space. Empty polygons
// yield nil.
func polygon(pg *geom.Polygon) (*plotter.Polygon, error) {
	var rings []plotter.XYer
	for i := 0; i < pg.NumLinearRings(); i++ {
		ring := pg.LinearRing(i)
		xys := make(plotter.XYs, ring.NumCoords())
		for j := range xys {
			c := ring.Coord(j)
			xys[j].X, xys[j].Y = mercator(c.X(), c.Y())
		}
		if len(xys) > 0 {
			rings = append(rings, xys)
		}
	}
	if len(rings) == 0 {
		return nil, nil
	}
	return plotter.NewPolygon(rings...)
}

// mercator maps lon/lat degrees to web mercator units.
func mercator(lon, lat float64) (float64, float64) {
	lat = math.Max(-maxLatitude, math.Min(maxLatitude, lat))
	phi := lat * math.Pi / 180
	return lon, math.Log(math.Tan(math.Pi/4+phi/2)) * 180 / math.Pi
}
