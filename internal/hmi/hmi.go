// Package hmi implements the HMI Writer: it auto-detects the serial panel,
// frames ASCII setter commands with the panel's terminator, and silently
// drops writes when no panel is attached, so the system runs headless.
package hmi

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"github.com/tarm/serial"
)

// terminator is appended after every command frame, including the probe.
var terminator = [3]byte{0xFF, 0xFF, 0xFF}

const (
	probeBaud      = 115200
	probeBytes     = "sendme"
	probeAckByte   = 0x66
	probeTimeout   = 1 * time.Second
	probeReadBytes = 1
)

// Config selects which serial devices to probe.
type Config struct {
	// Candidates lists device paths to probe, in order. Defaults to a
	// short list of common USB-serial paths when empty.
	Candidates []string
}

func (c Config) withDefaults() Config {
	if len(c.Candidates) == 0 {
		c.Candidates = []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0", "/dev/ttyACM1"}
	}
	return c
}

// portOpener abstracts serial.OpenPort for testability.
type portOpener func(c *serial.Config) (io.ReadWriteCloser, error)

func openSerialPort(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.OpenPort(c)
}

// Writer formats and sends scalar setter commands to the HMI panel. A
// Writer with no open port silently drops every write.
type Writer struct {
	port io.ReadWriteCloser
}

// Discover probes cfg.Candidates in order and returns a Writer bound to the
// first port that acknowledges the probe. If none do, it returns a Writer
// with no open port (never an error): the system must run headless.
func Discover(cfg Config) *Writer {
	cfg = cfg.withDefaults()
	for _, device := range cfg.Candidates {
		port, err := probe(openSerialPort, device)
		if err != nil {
			continue
		}
		return &Writer{port: port}
	}
	log.Printf("hmi: no panel found among %d candidate ports, running headless", len(cfg.Candidates))
	return &Writer{}
}

// probe opens device, sends the probe frame, and accepts it only if the
// first reply byte is probeAckByte. An echo of the probe starts with 's',
// not probeAckByte, so it is rejected, as is a read that returns no byte.
func probe(open portOpener, device string) (io.ReadWriteCloser, error) {
	port, err := open(&serial.Config{Name: device, Baud: probeBaud, ReadTimeout: probeTimeout})
	if err != nil {
		return nil, fmt.Errorf("hmi: open %s: %w", device, err)
	}

	frame := append([]byte(probeBytes), terminator[:]...)
	if _, err := port.Write(frame); err != nil {
		port.Close()
		return nil, fmt.Errorf("hmi: probe write %s: %w", device, err)
	}

	reply := make([]byte, probeReadBytes)
	n, err := port.Read(reply)
	if err != nil || n < 1 || reply[0] != probeAckByte {
		port.Close()
		return nil, fmt.Errorf("hmi: %s did not ack probe", device)
	}

	return port, nil
}

// send formats "<field>.val=<int>" + terminator and writes it. A nil port
// (no panel attached) is a silent no-op.
func (w *Writer) send(field string, value int) {
	if w == nil || w.port == nil {
		return
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s.val=%d", field, value)
	buf.Write(terminator[:])
	if _, err := w.port.Write(buf.Bytes()); err != nil {
		log.Printf("hmi: write %s failed: %v", field, err)
	}
}

// sendPic formats "<field>.pic=<int>" + terminator.
func (w *Writer) sendPic(field string, value int) {
	if w == nil || w.port == nil {
		return
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s.pic=%d", field, value)
	buf.Write(terminator[:])
	if _, err := w.port.Write(buf.Bytes()); err != nil {
		log.Printf("hmi: write %s failed: %v", field, err)
	}
}

// SetSpeed pushes the current speed (km/h, whole units) and its gauge angle.
func (w *Writer) SetSpeed(speedKMH float64) {
	w.send("speed_num", int(speedKMH))
	w.send("speedmeter", int(SpeedGaugeAngle(speedKMH)))
}

// SetSuggestedSpeed pushes the suggested speed (km/h, whole units) and its
// background picture index.
func (w *Writer) SetSuggestedSpeed(suggestedKMH float64) {
	w.send("suggest_speed", int(suggestedKMH))
	w.sendPic("speedmeter_bg", SuggestedSpeedPicIndex(suggestedKMH))
}

// SetGrade pushes road grade, scaled to tenths of a percent.
func (w *Writer) SetGrade(gradePercent float64) {
	w.send("grade", int(gradePercent*10))
}

// SetDistance pushes trip distance, given in kilometers, scaled to
// decimetres (km * 10000).
func (w *Writer) SetDistance(distanceKM float64) {
	w.send("distance", int(distanceKM*10000))
}

// SetFollowRange pushes follow_range, given in kilometers, scaled to
// decimetres.
func (w *Writer) SetFollowRange(followRangeKM float64) {
	w.send("follow_range", int(followRangeKM*10000))
}

// SetFollowRate pushes follow_rate, given as a 0-1 fraction, scaled to
// tenths of a percent (fraction * 1000).
func (w *Writer) SetFollowRate(followRate float64) {
	w.send("follow_rate", int(followRate*1000))
}

// Close releases the underlying port, if one is open.
func (w *Writer) Close() error {
	if w == nil || w.port == nil {
		return nil
	}
	return w.port.Close()
}

// SuggestedSpeedPicIndex maps a suggested speed (km/h) to the panel's
// background picture index: pic = suggested_speed - 4, clamped to [1, 111];
// 0 if the result falls outside that range.
func SuggestedSpeedPicIndex(suggestedKMH float64) int {
	pic := int(suggestedKMH) - 4
	if pic < 1 || pic > 111 {
		return 0
	}
	return pic
}

// SpeedGaugeAngle computes the gauge needle angle in degrees,
// (speed/120)*270 - 45, normalized into [0, 360).
func SpeedGaugeAngle(speedKMH float64) float64 {
	angle := (speedKMH/120)*270 - 45
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}
	return angle
}
