// Package common holds the handful of wire-level helpers shared by the
// listener packages and the fusion controller: DTC-free, protocol-free,
// just the geodesy every distance computation in this module bottoms out on.
package common

import "math"

const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two points in
// meters. Symmetric: HaversineMeters(a,b) == HaversineMeters(b,a), and
// HaversineMeters(a,a) == 0.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// LatLon is a bare geographic point, passed by value throughout the gateway.
type LatLon struct {
	Lat float64
	Lon float64
}
