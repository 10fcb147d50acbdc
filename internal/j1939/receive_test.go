package j1939

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h11labs/truckcopilot/internal/bus"
	"github.com/h11labs/truckcopilot/internal/pgndb"
)

func TestHandleFrameDecodesAndPublishesWheelSpeed(t *testing.T) {
	b := bus.New()
	l := NewListener(Config{BaseDir: t.TempDir()}, b, pgndb.LoadDefault())

	got := make(chan bus.Message, 1)
	b.Subscribe("j1939/Wheel-Based_Vehicle_Speed", func(m bus.Message) { got <- m })

	l.handleFrame(Frame{PGN: pgndb.PGNCruiseControlVehicleSpeed, SA: 0x00, Data: []byte{0, 0x3C, 0, 0, 0, 0, 0, 0}})

	select {
	case m := <-got:
		var p struct {
			Value float64 `json:"value"`
			Unit  string  `json:"unit"`
			Topic string  `json:"topic"`
		}
		require.NoError(t, json.Unmarshal(m.Payload, &p))
		assert.Equal(t, 60.0, p.Value)
		assert.Equal(t, "km/h", p.Unit)
		assert.Equal(t, "j1939/Wheel-Based_Vehicle_Speed", p.Topic)
	case <-time.After(time.Second):
		t.Fatal("expected a wheel-speed publish")
	}

	assert.True(t, l.Discovered()[pgndb.PGNCruiseControlVehicleSpeed])

	v, _, ok := l.Reading("Wheel-Based_Vehicle_Speed")
	require.True(t, ok)
	assert.Equal(t, 60.0, v.Value)
}

func TestHandleFrameSkipsNonAllowListedParams(t *testing.T) {
	b := bus.New()
	l := NewListener(Config{BaseDir: t.TempDir()}, b, pgndb.LoadDefault())

	got := make(chan bus.Message, 1)
	b.Subscribe("j1939/Engine_Speed", func(m bus.Message) { got <- m })

	l.handleFrame(Frame{PGN: pgndb.PGNElectronicEngineController1, Data: []byte{0, 0, 0, 0x40, 0x1F, 0, 0, 0}})

	select {
	case <-got:
		t.Fatal("Engine_Speed is not allow-listed and must not be published")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleFrameUnknownPGNStillMarkedDiscovered(t *testing.T) {
	b := bus.New()
	l := NewListener(Config{BaseDir: t.TempDir()}, b, pgndb.LoadDefault())

	l.handleFrame(Frame{PGN: 0xBEEF, Data: []byte{1, 2, 3}})
	assert.True(t, l.Discovered()[0xBEEF])
}
