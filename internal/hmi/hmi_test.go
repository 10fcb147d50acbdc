package hmi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuggestedSpeedPicIndexInRange(t *testing.T) {
	assert.Equal(t, 1, SuggestedSpeedPicIndex(5))
	assert.Equal(t, 96, SuggestedSpeedPicIndex(100))
	assert.Equal(t, 111, SuggestedSpeedPicIndex(115))
}

func TestSuggestedSpeedPicIndexOutOfRangeIsZero(t *testing.T) {
	assert.Equal(t, 0, SuggestedSpeedPicIndex(0))
	assert.Equal(t, 0, SuggestedSpeedPicIndex(120))
	assert.Equal(t, 0, SuggestedSpeedPicIndex(-10))
}

func TestSpeedGaugeAngleKnownValues(t *testing.T) {
	assert.InDelta(t, 315.0, SpeedGaugeAngle(0), 1e-9) // -45 normalized
	assert.InDelta(t, 0.0, SpeedGaugeAngle(20), 1e-9)  // (20/120)*270-45 = 0
	assert.InDelta(t, 225.0, SpeedGaugeAngle(120), 1e-9)
}

func TestSpeedGaugeAngleIsAlwaysInRange(t *testing.T) {
	for _, speed := range []float64{-50, 0, 1, 50, 120, 200, 500} {
		angle := SpeedGaugeAngle(speed)
		assert.GreaterOrEqual(t, angle, 0.0)
		assert.Less(t, angle, 360.0)
	}
}

func TestWriterWithNoPortIsNoOp(t *testing.T) {
	w := &Writer{}
	// Must not panic when nothing is attached.
	w.SetSpeed(60)
	w.SetSuggestedSpeed(70)
	w.SetGrade(1.5)
	w.SetDistance(12.3)
	w.SetFollowRange(4.5)
	w.SetFollowRate(0.8)
	assert.NoError(t, w.Close())
}

func TestDiscoverWithMissingCandidatesRunsHeadless(t *testing.T) {
	w := Discover(Config{Candidates: []string{"/dev/does-not-exist-0", "/dev/does-not-exist-1"}})
	assert.NotNil(t, w)
	assert.NoError(t, w.Close())
}
