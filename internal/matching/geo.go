package matching

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/deal-engine/internal/model"
)

const earthRadiusMiles = 3958.8

// point builds a WGS84 point in lon/lat order.
func point(lat, lon float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
}

func propertyPoint(p *model.Property) *geom.Point {
	if p.Latitude == nil || p.Longitude == nil {
		return nil
	}
	return point(*p.Latitude, *p.Longitude)
}

// distanceMiles is the great-circle distance between two WGS84 points.
func distanceMiles(a, b *geom.Point) float64 {
	lat1, lat2 := rad(a.Y()), rad(b.Y())
	dLat := lat2 - lat1
	dLon := rad(b.X() - a.X())
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(h)))
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

// nearest returns the smallest distance from p to any target and whether
// any target was given.
func nearest(p *geom.Point, targets []model.GeoPoint) (float64, bool) {
	best := math.Inf(1)
	for _, t := range targets {
		if d := distanceMiles(p, point(t.Latitude, t.Longitude)); d < best {
			best = d
		}
	}
	return best, len(targets) > 0
}
