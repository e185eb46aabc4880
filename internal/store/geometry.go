package store

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// wgs84 is the SRID of entities.location.
const wgs84 = 4326

// pointEWKB encodes a place's coordinates for ST_GeomFromEWKB. PostGIS
// stores points as (lng, lat). Values outside the WGS84 range are refused
// so a bad provider response never lands in the spatial index.
func pointEWKB(lat, lng float64) ([]byte, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.Abs(lat) > 90 || math.Abs(lng) > 180 {
		return nil, eris.Errorf("store: coordinates out of range (%v, %v)", lat, lng)
	}
	pt := geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(wgs84)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	return data, eris.Wrap(err, "store: encode point")
}
