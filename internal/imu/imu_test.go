package imu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPitchRollLevelIsZero(t *testing.T) {
	o := PitchRoll(0, 0, 1)
	assert.InDelta(t, 0.0, o.Pitch, 1e-9)
	assert.InDelta(t, 0.0, o.Roll, 1e-9)
}

func TestPitchRollNoseUp(t *testing.T) {
	// ax negative (deceleration along +x convention) yields positive pitch.
	o := PitchRoll(-1, 0, 1)
	assert.InDelta(t, 45.0, o.Pitch, 1e-6)
}

func TestPitchRollRollRight(t *testing.T) {
	o := PitchRoll(0, 1, 1)
	assert.InDelta(t, 45.0, o.Roll, 1e-6)
}

func TestPitchRollMatchesManualAtan2(t *testing.T) {
	ax, ay, az := 0.3, -0.2, 0.95
	want := math.Atan2(-ax, math.Sqrt(ay*ay+az*az)) * 180 / math.Pi
	got := PitchRoll(ax, ay, az)
	assert.InDelta(t, want, got.Pitch, 1e-9)
}
