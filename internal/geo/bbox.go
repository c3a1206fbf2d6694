package geo

import "math"

// BBox is a latitude/longitude rectangle. It does not wrap the antimeridian.
type BBox struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// World covers every valid coordinate.
func World() BBox {
	return BBox{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}
}

// Valid reports whether all edges are numbers and min does not exceed max on
// either axis.
func (b BBox) Valid() bool {
	for _, v := range []float64{b.MinLat, b.MinLon, b.MaxLat, b.MaxLon} {
		if math.IsNaN(v) {
			return false
		}
	}
	return b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}

// Contains reports whether p lies inside b, edges included.
func (b BBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Min and Max return the corners in [lon, lat] order, the axis order used by
// the spatial index.
func (b BBox) Min() [2]float64 { return [2]float64{b.MinLon, b.MinLat} }
func (b BBox) Max() [2]float64 { return [2]float64{b.MaxLon, b.MaxLat} }
