// Package fusion implements the Fusion Controller: it arbitrates between
// redundant speed/distance/position sources, drives the route matcher and
// HMI writer, accounts trip distance and follow-rate, and emits adaptive
// heartbeat summaries. State holds no lock of its own: the Controller's
// mutex serializes every bus handler and the heartbeat reader over it.
package fusion

import (
	"time"
)

// obdFreshWindow bounds how long an OBD/UDS speed reading is trusted over
// GPS speed.
const obdFreshWindow = 3 * time.Second

// followRangeToleranceKMH bounds how close actual speed must track the
// suggested speed for the distance delta to count toward follow_range.
const followRangeToleranceKMH = 5.0

// minTripDistanceKM is the trip-distance floor below which follow_rate is
// undefined.
const minTripDistanceKM = 0.1

// sourceReading is one arbitration candidate: a value plus when it was last
// updated, used to judge freshness.
type sourceReading struct {
	value  float64
	seenAt time.Time
	have   bool
}

func (s sourceReading) age(now time.Time) (time.Duration, bool) {
	if !s.have {
		return 0, false
	}
	return now.Sub(s.seenAt), true
}

// Position is a fused lat/lon fix.
type Position struct {
	Lat, Lon float64
	SeenAt   time.Time
	Have     bool
}

// State holds every fusion input and derived output. All mutation happens
// from bus callbacks; the zero value is ready to use.
type State struct {
	obdSpeed sourceReading
	gpsSpeed sourceReading

	j1939HiResDistance sourceReading
	j1939LoResDistance sourceReading
	obdDistance        sourceReading
	gpsDistance        sourceReading
	simDistance        sourceReading

	h11gpsPosition Position
	trackPosition  Position
	simPosition    Position

	initVehDistance    float64
	haveInitVehDistance bool

	tripDistanceKM float64
	followRangeKM  float64

	simulationMode bool
}

// NewState creates an empty fusion state.
func NewState(simulationMode bool) *State {
	return &State{simulationMode: simulationMode}
}

// SetOBDSpeed records an OBD2/UDS speed sample (km/h).
func (s *State) SetOBDSpeed(kmh float64, at time.Time) {
	s.obdSpeed = sourceReading{value: kmh, seenAt: at, have: true}
}

// SetGPSSpeed records a GPS speed sample (km/h).
func (s *State) SetGPSSpeed(kmh float64, at time.Time) {
	s.gpsSpeed = sourceReading{value: kmh, seenAt: at, have: true}
}

// CurrentSpeedKMH arbitrates speed: OBD wins while its age is under
// obdFreshWindow, otherwise GPS speed is used.
func (s *State) CurrentSpeedKMH(now time.Time) (float64, bool) {
	if age, ok := s.obdSpeed.age(now); ok && age < obdFreshWindow {
		return s.obdSpeed.value, true
	}
	if s.gpsSpeed.have {
		return s.gpsSpeed.value, true
	}
	return 0, false
}

// SetJ1939HiResDistance records the high-resolution J1939 odometer reading
// (meters); TripDistanceKM prefers it over the lo-res reading when both are
// present.
func (s *State) SetJ1939HiResDistance(meters float64, at time.Time) {
	s.j1939HiResDistance = sourceReading{value: meters, seenAt: at, have: true}
	s.noteInitDistance(meters)
}

func (s *State) SetJ1939LoResDistance(meters float64, at time.Time) {
	s.j1939LoResDistance = sourceReading{value: meters, seenAt: at, have: true}
	s.noteInitDistance(meters)
}

// SetOBDDistance records the OBD2 distance-since-DTC-clear reading (meters).
func (s *State) SetOBDDistance(meters float64, at time.Time) {
	s.obdDistance = sourceReading{value: meters, seenAt: at, have: true}
}

// SetGPSDistance records the GNSS cumulative haversine distance (meters).
func (s *State) SetGPSDistance(meters float64, at time.Time) {
	s.gpsDistance = sourceReading{value: meters, seenAt: at, have: true}
}

// SetSimDistance records the simulator's synthetic cumulative distance.
func (s *State) SetSimDistance(meters float64, at time.Time) {
	s.simDistance = sourceReading{value: meters, seenAt: at, have: true}
}

// noteInitDistance latches the first odometer reading seen as the trip's
// baseline; once latched it is never reset for the lifetime of this State.
func (s *State) noteInitDistance(meters float64) {
	if !s.haveInitVehDistance {
		s.initVehDistance = meters
		s.haveInitVehDistance = true
	}
}

// gpsDistanceStale is true once obdFreshWindow has elapsed since the last
// GPS distance update, or no GPS distance has ever arrived.
func (s *State) gpsDistanceStale(now time.Time) bool {
	age, ok := s.gpsDistance.age(now)
	return !ok || age >= obdFreshWindow
}

// TripDistanceKM arbitrates the trip-distance source: in simulation mode
// only sim/distance is used; otherwise prefer the J1939 odometer
// (hi-res over lo-res) when GPS distance is stale, else GPS cumulative
// distance.
func (s *State) TripDistanceKM(now time.Time) (float64, bool) {
	if s.simulationMode {
		if !s.simDistance.have {
			return 0, false
		}
		return s.simDistance.value / 1000, true
	}

	if s.gpsDistanceStale(now) {
		if s.j1939HiResDistance.have {
			return (s.j1939HiResDistance.value - s.initVehDistance) / 1000, true
		}
		if s.j1939LoResDistance.have {
			return (s.j1939LoResDistance.value - s.initVehDistance) / 1000, true
		}
	}
	if s.gpsDistance.have {
		return s.gpsDistance.value / 1000, true
	}
	return 0, false
}

// UpdatePosition records a fix from the given source.
func (s *State) UpdatePosition(source string, lat, lon float64, at time.Time) {
	switch source {
	case "h11gps":
		s.h11gpsPosition = Position{Lat: lat, Lon: lon, SeenAt: at, Have: true}
	case "track":
		s.trackPosition = Position{Lat: lat, Lon: lon, SeenAt: at, Have: true}
	case "sim":
		s.simPosition = Position{Lat: lat, Lon: lon, SeenAt: at, Have: true}
	}
}

// FusedPosition returns the current authoritative position per the
// source-precedence rule.
func (s *State) FusedPosition(now time.Time) (Position, bool) {
	if s.simulationMode {
		return s.simPosition, s.simPosition.Have
	}
	if age, ok := s.h11gpsPosition.age(now); ok && age < obdFreshWindow {
		return s.h11gpsPosition, true
	}
	if s.trackPosition.Have {
		return s.trackPosition, true
	}
	if s.h11gpsPosition.Have {
		return s.h11gpsPosition, true
	}
	return Position{}, false
}

func (p Position) age(now time.Time) (time.Duration, bool) {
	if !p.Have {
		return 0, false
	}
	return now.Sub(p.SeenAt), true
}

// IsActivePositionSource reports whether source is the one FusedPosition
// would currently return. The fusion controller
// uses this to decide whether a given position message should drive
// per-fix route-matching work, so a track/pos fallback still runs that
// pipeline when h11gps has gone stale, without track/pos redundantly
// re-triggering it while h11gps is live.
func (s *State) IsActivePositionSource(source string, now time.Time) bool {
	if s.simulationMode {
		return source == "sim"
	}
	if age, ok := s.h11gpsPosition.age(now); ok && age < obdFreshWindow {
		return source == "h11gps"
	}
	if s.trackPosition.Have {
		return source == "track"
	}
	return source == "h11gps"
}

// AccountTrip applies a new trip-distance reading: the delta since the
// previous reading is added to follow_range iff the current speed is
// within followRangeToleranceKMH of suggestedSpeedKMH.
func (s *State) AccountTrip(newTripDistanceKM, currentSpeedKMH, suggestedSpeedKMH float64) {
	delta := newTripDistanceKM - s.tripDistanceKM
	s.tripDistanceKM = newTripDistanceKM
	if delta <= 0 {
		return
	}
	if absF(currentSpeedKMH-suggestedSpeedKMH) <= followRangeToleranceKMH {
		s.followRangeKM += delta
	}
}

// TripDistanceKMValue returns the latest accounted trip distance.
func (s *State) TripDistanceKMValue() float64 {
	return s.tripDistanceKM
}

// FollowRangeKM returns the accumulated follow-range.
func (s *State) FollowRangeKM() float64 {
	return s.followRangeKM
}

// FollowRate returns follow_range / trip_distance, undefined (ok=false)
// until trip_distance exceeds minTripDistanceKM.
func (s *State) FollowRate() (rate float64, ok bool) {
	if s.tripDistanceKM <= minTripDistanceKM {
		return 0, false
	}
	return s.followRangeKM / s.tripDistanceKM, true
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
