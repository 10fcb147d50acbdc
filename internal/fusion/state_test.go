package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCurrentSpeedPrefersFreshOBD(t *testing.T) {
	s := NewState(false)
	now := time.Now()
	s.SetOBDSpeed(60, now.Add(-1*time.Second))
	s.SetGPSSpeed(55, now.Add(-1*time.Second))

	speed, ok := s.CurrentSpeedKMH(now)
	assert.True(t, ok)
	assert.Equal(t, 60.0, speed)
}

func TestCurrentSpeedFallsBackToGPSWhenOBDStale(t *testing.T) {
	s := NewState(false)
	now := time.Now()
	s.SetOBDSpeed(60, now.Add(-5*time.Second))
	s.SetGPSSpeed(55, now.Add(-1*time.Second))

	speed, ok := s.CurrentSpeedKMH(now)
	assert.True(t, ok)
	assert.Equal(t, 55.0, speed)
}

func TestCurrentSpeedUnknownWithNoSources(t *testing.T) {
	s := NewState(false)
	_, ok := s.CurrentSpeedKMH(time.Now())
	assert.False(t, ok)
}

func TestTripDistancePrefersHiResOdometerWhenGPSStale(t *testing.T) {
	s := NewState(false)
	now := time.Now()
	s.SetJ1939HiResDistance(1000, now.Add(-20*time.Second)) // latches the init baseline
	s.SetJ1939LoResDistance(500, now.Add(-20*time.Second))
	s.SetGPSDistance(200, now.Add(-10*time.Second))
	s.SetJ1939HiResDistance(2000, now.Add(-10*time.Second))

	km, ok := s.TripDistanceKM(now)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, km, 1e-9) // (2000-1000)/1000
}

func TestTripDistanceUsesGPSWhenFresh(t *testing.T) {
	s := NewState(false)
	now := time.Now()
	s.SetJ1939HiResDistance(1000, now.Add(-10*time.Second))
	s.SetGPSDistance(300, now)

	km, ok := s.TripDistanceKM(now)
	assert.True(t, ok)
	assert.InDelta(t, 0.3, km, 1e-9)
}

func TestTripDistanceSubtractsInitOffsetOnSecondReading(t *testing.T) {
	s := NewState(false)
	now := time.Now()
	s.SetJ1939HiResDistance(1000, now.Add(-20*time.Second))
	s.SetJ1939HiResDistance(1500, now.Add(-10*time.Second))

	km, ok := s.TripDistanceKM(now)
	assert.True(t, ok)
	assert.InDelta(t, 0.5, km, 1e-9)
}

func TestSimulationModeOnlyUsesSimDistance(t *testing.T) {
	s := NewState(true)
	now := time.Now()
	s.SetGPSDistance(9999, now)
	s.SetSimDistance(400, now)

	km, ok := s.TripDistanceKM(now)
	assert.True(t, ok)
	assert.InDelta(t, 0.4, km, 1e-9)
}

func TestFollowRateUndefinedBelowMinTripDistance(t *testing.T) {
	s := NewState(false)
	s.AccountTrip(0.05, 60, 58)
	_, ok := s.FollowRate()
	assert.False(t, ok)
}

func TestFollowRateAccumulatesWithinTolerance(t *testing.T) {
	s := NewState(false)
	s.AccountTrip(0.2, 60, 58) // within 5km/h tolerance
	s.AccountTrip(0.5, 70, 58) // outside tolerance, does not add to follow_range

	rate, ok := s.FollowRate()
	assert.True(t, ok)
	assert.InDelta(t, 0.2/0.5, rate, 1e-9)
}

func TestAccountTripIgnoresNonPositiveDelta(t *testing.T) {
	s := NewState(false)
	s.AccountTrip(0.5, 60, 58)
	s.AccountTrip(0.3, 60, 58) // distance regressed; must not add negative delta

	assert.Equal(t, 0.3, s.TripDistanceKMValue())
}

func TestFusedPositionPrefersFreshGPSOverTrack(t *testing.T) {
	s := NewState(false)
	now := time.Now()
	s.UpdatePosition("track", 1, 1, now.Add(-1*time.Second))
	s.UpdatePosition("h11gps", 2, 2, now)

	pos, ok := s.FusedPosition(now)
	assert.True(t, ok)
	assert.Equal(t, 2.0, pos.Lat)
}

func TestFusedPositionFallsBackToTrackWhenGPSStale(t *testing.T) {
	s := NewState(false)
	now := time.Now()
	s.UpdatePosition("h11gps", 2, 2, now.Add(-10*time.Second))
	s.UpdatePosition("track", 3, 3, now.Add(-1*time.Second))

	pos, ok := s.FusedPosition(now)
	assert.True(t, ok)
	assert.Equal(t, 3.0, pos.Lat)
}

func TestSimulationModeUsesOnlySimPosition(t *testing.T) {
	s := NewState(true)
	now := time.Now()
	s.UpdatePosition("h11gps", 2, 2, now)
	s.UpdatePosition("sim", 9, 9, now)

	pos, ok := s.FusedPosition(now)
	assert.True(t, ok)
	assert.Equal(t, 9.0, pos.Lat)
}

func TestIsActivePositionSourcePrefersFreshGPS(t *testing.T) {
	s := NewState(false)
	now := time.Now()
	s.UpdatePosition("h11gps", 2, 2, now)
	assert.True(t, s.IsActivePositionSource("h11gps", now))
	assert.False(t, s.IsActivePositionSource("track", now))
}

func TestIsActivePositionSourceFallsBackToTrackWhenGPSStale(t *testing.T) {
	s := NewState(false)
	now := time.Now()
	s.UpdatePosition("h11gps", 2, 2, now.Add(-10*time.Second))
	s.UpdatePosition("track", 3, 3, now)
	assert.True(t, s.IsActivePositionSource("track", now))
	assert.False(t, s.IsActivePositionSource("h11gps", now))
}
