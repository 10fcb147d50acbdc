package common

// DefaultMinMoveMeters is the minimum fix-to-fix delta accepted into a
// running distance total; smaller deltas are GPS jitter, not travel.
const DefaultMinMoveMeters = 20.0

// DefaultMaxMoveMeters is the sanity ceiling on a single fix-to-fix delta;
// larger deltas are a teleport (reacquired fix, corrupted sentence) and are
// rejected rather than accumulated.
const DefaultMaxMoveMeters = 1_000_000.0

// DistanceAccumulator tracks a running haversine distance total across a
// stream of GPS fixes, used identically by the GNSS listener (total_distance)
// and the fusion controller (gps/distance). Zero value is ready to use.
type DistanceAccumulator struct {
	MinMoveMeters float64
	MaxMoveMeters float64

	have  bool
	lastP LatLon
	total float64
}

// NewDistanceAccumulator builds an accumulator with the default
// thresholds (20m minimum move, 1e6m sanity ceiling).
func NewDistanceAccumulator() *DistanceAccumulator {
	return &DistanceAccumulator{
		MinMoveMeters: DefaultMinMoveMeters,
		MaxMoveMeters: DefaultMaxMoveMeters,
	}
}

// Add folds a new fix into the running total. It returns the accepted delta
// (0 when the fix was the first one seen, or when the delta was rejected as
// jitter or a teleport) and the new running total.
//
// The anchor (lastP) only advances when a delta is accepted: a sub-threshold
// delta leaves the anchor in place so slow drift still accumulates once it
// crosses the threshold, rather than being silently absorbed fix after fix.
// A too-large delta (a reacquired fix, a corrupted sentence) also leaves the
// anchor in place, so the gateway keeps comparing against the last known-good
// point instead of re-anchoring to a possibly bogus one.
func (d *DistanceAccumulator) Add(p LatLon) (delta float64, total float64) {
	if !d.have {
		d.have = true
		d.lastP = p
		return 0, d.total
	}

	minMove := d.MinMoveMeters
	maxMove := d.MaxMoveMeters
	if minMove == 0 && maxMove == 0 {
		minMove = DefaultMinMoveMeters
		maxMove = DefaultMaxMoveMeters
	}

	move := HaversineMeters(d.lastP.Lat, d.lastP.Lon, p.Lat, p.Lon)
	if move < minMove || move > maxMove {
		return 0, d.total
	}
	d.lastP = p
	d.total += move
	return move, d.total
}

// Total returns the current running total without mutating state.
func (d *DistanceAccumulator) Total() float64 {
	return d.total
}
