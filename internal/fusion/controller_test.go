package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h11labs/truckcopilot/internal/bus"
	"github.com/h11labs/truckcopilot/internal/routematch"
)

func testRoutes() map[string][]routematch.Point {
	return map[string][]routematch.Point{
		"depot-loop": {
			{Lat: 0, Lon: 0, VehState: routematch.VehState{Speed: 20}, Grade: 0.01},
			{Lat: 0, Lon: 1e-3, VehState: routematch.VehState{Speed: 22}, Grade: 0.01},
			{Lat: 0, Lon: 2e-3, VehState: routematch.VehState{Speed: 24}, Grade: 0.02},
		},
	}
}

func TestControllerArbitratesSpeedFromBus(t *testing.T) {
	b := bus.New()
	c := New(b, false, testRoutes(), nil)
	c.Start()
	defer c.Close()

	require.NoError(t, b.Publish("uds/speed", map[string]any{"timestamp": time.Now(), "value": 40.0}))
	require.NoError(t, b.Publish("h11gps/speed", map[string]any{"timestamp": time.Now(), "speed_kmh": 80.0}))

	// OBD-class source wins while fresh.
	assert.Eventually(t, func() bool {
		return c.LogHeartbeat(time.Now()).SpeedKMH == 40.0
	}, time.Second, 10*time.Millisecond)

	// Once the UDS reading ages out, GPS speed takes over.
	assert.Equal(t, 80.0, c.LogHeartbeat(time.Now().Add(5*time.Second)).SpeedKMH)
}

func TestControllerPositionFixDrivesRouteMatchAndDistance(t *testing.T) {
	b := bus.New()
	c := New(b, false, testRoutes(), nil)
	c.Start()
	defer c.Close()

	distCh := make(chan bus.Message, 4)
	b.Subscribe("gps/distance", func(m bus.Message) { distCh <- m })

	require.NoError(t, b.Publish("h11gps/position", map[string]any{
		"timestamp": time.Now(), "lat": 0.0, "lon": 1.5e-3, "alt": 12.0, "num_sats": 9, "status": "fix",
	}))

	select {
	case <-distCh:
	case <-time.After(time.Second):
		t.Fatal("expected a gps/distance publish after the position fix")
	}

	assert.Eventually(t, func() bool {
		hb := c.LogHeartbeat(time.Now())
		return hb.MatchedIndex == 1 && hb.SuggestedSpeedKMH > 0
	}, time.Second, 10*time.Millisecond)
}

func TestControllerIgnoresLivePositionInSimulationMode(t *testing.T) {
	b := bus.New()
	c := New(b, true, testRoutes(), nil)
	c.Start()
	defer c.Close()

	require.NoError(t, b.Publish("h11gps/position", map[string]any{
		"timestamp": time.Now(), "lat": 0.0, "lon": 1.5e-3,
	}))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, -1, c.LogHeartbeat(time.Now()).MatchedIndex)
}

func TestHeartbeatIntervalAdaptsToSpeed(t *testing.T) {
	b := bus.New()
	c := New(b, false, nil, nil)

	now := time.Now()
	assert.Equal(t, heartbeatStopped, c.HeartbeatInterval(now))

	c.state.SetGPSSpeed(2, now)
	assert.Equal(t, heartbeatLowSpeed, c.HeartbeatInterval(now))

	c.state.SetGPSSpeed(60, now)
	assert.Equal(t, heartbeatMoving, c.HeartbeatInterval(now))
}
