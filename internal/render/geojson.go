// Package render turns enriched regions into map outputs: a GeoJSON
// FeatureCollection for the browser and a static PNG choropleth.
package render

import (
	"encoding/json"

	"github.com/twpayne/go-geom/encoding/geojson"

	"schememap/internal/core"
)

// Feature property names. The browser map reads these keys.
const (
	PropState         = "State"
	PropTotalBenefit  = "TotalBenefit"
	PropSchemeDetails = "SchemeDetails"
)

// FeatureCollection builds one feature per region, in region order, with the
// state name as feature id. TotalBenefit is written as an exact JSON number.
func FeatureCollection(regions []core.EnrichedRegion) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(regions))}
	for _, r := range regions {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       r.State,
			Geometry: r.Geometry,
			Properties: map[string]interface{}{
				PropState:         r.State,
				PropTotalBenefit:  json.Number(r.TotalBenefit.String()),
				PropSchemeDetails: r.SchemeDetails,
			},
		})
	}
	return fc
}

// GeoJSON encodes the regions as a FeatureCollection.
func GeoJSON(regions []core.EnrichedRegion) ([]byte, error) {
	return json.Marshal(FeatureCollection(regions))
}
