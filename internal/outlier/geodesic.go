package outlier

import "github.com/tidwall/geodesic"

// Distance returns the geodesic distance in metres between two lon/lat
// points on the WGS84 ellipsoid.
func Distance(lon1, lat1, lon2, lat2 float64) float64 {
	var s12 float64
	geodesic.WGS84.Inverse(lat1, lon1, lat2, lon2, &s12, nil, nil)
	return s12
}
