package routematch

import "log"

// logRouteJump records a large, sudden change in matched segment index,
// which usually indicates a GPS glitch or a route self-intersection.
func logRouteJump(oldIdx, newIdx int, distanceMeters float64) {
	log.Printf("routematch: matched index jumped %d -> %d (%.1fm)", oldIdx, newIdx, distanceMeters)
}
