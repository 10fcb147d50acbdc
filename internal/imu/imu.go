// Package imu implements the IMU listener: it subscribes to the
// host-provided acc/gyro_acc_xyz topic and derives pitch/roll from the
// accelerometer vector. It has no sensor driver of its own: the host
// platform publishes the samples and this listener is a pure bus consumer.
package imu

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/h11labs/truckcopilot/internal/bus"
	"github.com/h11labs/truckcopilot/internal/listener"
)

// Topic is the externally-published accelerometer/gyroscope sample topic
// this listener subscribes to.
const Topic = "acc/gyro_acc_xyz"

// minLogGap throttles raw-data logging to at most once per this interval.
const minLogGap = 300 * time.Millisecond

// Vector3 is a 3-axis sample.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// sample is the wire shape of one acc/gyro_acc_xyz message.
type sample struct {
	Acc   Vector3 `json:"acc"`
	Gyro  Vector3 `json:"gyro"`
	Stamp float64 `json:"_stamp"`
}

// Orientation is a derived pitch/roll reading, in degrees.
type Orientation struct {
	Pitch float64
	Roll  float64
}

// PitchRoll computes pitch = atan2(-ax, sqrt(ay^2+az^2)) and
// roll = atan2(ay, az), both in degrees.
func PitchRoll(ax, ay, az float64) Orientation {
	pitch := math.Atan2(-ax, math.Sqrt(ay*ay+az*az)) * 180 / math.Pi
	roll := math.Atan2(ay, az) * 180 / math.Pi
	return Orientation{Pitch: pitch, Roll: roll}
}

// Listener derives orientation from externally-published IMU samples.
type Listener struct {
	*listener.Base

	bus *bus.Bus

	mu          sync.Mutex
	cancel      func()
	last        Orientation
	lastSample  sample
	haveSample  bool
	lastLogTime time.Time
}

// NewListener creates a disabled IMU listener; call Setup to subscribe.
func NewListener(baseDir string, b *bus.Bus) *Listener {
	return &Listener{
		Base: listener.NewBase("imu", baseDir),
		bus:  b,
	}
}

// Setup subscribes to Topic. There is no hardware to open: this listener is
// purely a bus consumer.
func (l *Listener) Setup() error {
	return l.Base.Setup(func() error {
		cancel := l.bus.Subscribe(Topic, l.onSample)
		l.mu.Lock()
		l.cancel = cancel
		l.mu.Unlock()
		return nil
	})
}

func (l *Listener) onSample(msg bus.Message) {
	var s sample
	if err := json.Unmarshal(msg.Payload, &s); err != nil {
		log.Printf("imu: decode sample: %v", err)
		return
	}

	o := PitchRoll(s.Acc.X, s.Acc.Y, s.Acc.Z)

	l.mu.Lock()
	l.last = o
	l.lastSample = s
	l.haveSample = true
	shouldLog := time.Since(l.lastLogTime) >= minLogGap
	if shouldLog {
		l.lastLogTime = time.Now()
	}
	l.mu.Unlock()

	if shouldLog {
		line := fmt.Sprintf("%v,%v,%v,%v,%v,%v,%v", s.Stamp, s.Acc.X, s.Acc.Y, s.Acc.Z, s.Gyro.X, s.Gyro.Y, s.Gyro.Z)
		if err := l.SaveRawData(line); err != nil {
			log.Printf("imu: raw log append: %v", err)
		}
	}
}

// Orientation returns the most recently derived pitch/roll, if any sample
// has been processed.
func (l *Listener) Orientation() (Orientation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.haveSample
}

// Close unsubscribes from Topic.
func (l *Listener) Close() error {
	err := l.Base.Close()
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return err
}
