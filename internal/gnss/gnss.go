// Package gnss implements the Bluetooth-serial GNSS listener: rfcomm bind,
// NMEA 0183 sentence parsing (GGA/VTG), haversine-filtered distance
// accumulation, and publish to the h11gps/* topics. Sentences are read
// line-by-line with bufio and dispatched on their NMEA data type.
package gnss

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"

	"github.com/h11labs/truckcopilot/common"
	"github.com/h11labs/truckcopilot/internal/bus"
	"github.com/h11labs/truckcopilot/internal/listener"
	"github.com/h11labs/truckcopilot/internal/rawlog"
)

// Listener reads NMEA sentences from a Bluetooth-bound serial GPS receiver.
type Listener struct {
	*listener.Base

	cfg Config
	bus *bus.Bus

	mu       sync.Mutex
	port     io.ReadCloser
	reader   *bufio.Reader
	dist     *common.DistanceAccumulator
	lastFix  time.Time
}

// NewListener creates a disabled GNSS listener; call Setup to open the port.
func NewListener(cfg Config, b *bus.Bus) *Listener {
	cfg = cfg.withDefaults()
	return &Listener{
		Base: listener.NewBaseWithGranularity("gnss", cfg.BaseDir, rawlog.GranularityHourly),
		cfg:  cfg,
		bus:  b,
		dist: common.NewDistanceAccumulator(),
	}
}

// Setup ensures the rfcomm device exists and opens it at the configured
// baud rate.
func (l *Listener) Setup() error {
	return l.Base.Setup(func() error {
		if err := ensureDevice(l.cfg.Device, l.cfg.BluetoothMAC); err != nil {
			return err
		}
		port, err := serial.OpenPort(&serial.Config{
			Name:        l.cfg.Device,
			Baud:        l.cfg.BaudRate,
			ReadTimeout: l.cfg.ReadTimeout,
		})
		if err != nil {
			return fmt.Errorf("gnss: open %s: %w", l.cfg.Device, err)
		}
		l.mu.Lock()
		l.port = port
		l.reader = bufio.NewReader(port)
		l.mu.Unlock()
		return nil
	})
}

// Start launches the blocking line-read loop.
func (l *Listener) Start(ctx context.Context) {
	l.Base.Go(ctx, l.readLoop)
}

func (l *Listener) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.mu.Lock()
		reader := l.reader
		l.mu.Unlock()
		if reader == nil {
			return
		}

		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			if err := l.SaveRawData(line); err != nil {
				log.Printf("gnss: raw log append: %v", err)
			}
			l.handleLine(line)
		}
		if err != nil {
			if err == io.EOF {
				return
			}
			// Read timeouts surface as transient errors on most serial
			// backends; log and keep reading.
			log.Printf("gnss: read %s: %v", l.cfg.Device, err)
			continue
		}
	}
}

func (l *Listener) handleLine(line string) {
	if !strings.HasPrefix(line, "$") {
		return
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return
	}

	now := time.Now()
	switch sentence.DataType() {
	case nmea.TypeGGA:
		l.handleGGA(sentence.(nmea.GGA), now)
	case nmea.TypeVTG:
		l.handleVTG(sentence.(nmea.VTG), now)
	}
}

func (l *Listener) handleGGA(m nmea.GGA, now time.Time) {
	status := "no_fix"
	fixQuality := parseFixQuality(m.FixQuality)
	if fixQuality > 0 {
		status = "fix"
	}

	l.publish("h11gps/position", struct {
		Timestamp time.Time `json:"timestamp"`
		Lat       float64   `json:"lat"`
		Lon       float64   `json:"lon"`
		Alt       float64   `json:"alt"`
		NumSats   int64     `json:"num_sats"`
		Status    string    `json:"status"`
	}{Timestamp: now, Lat: m.Latitude, Lon: m.Longitude, Alt: m.Altitude, NumSats: m.NumSatellites, Status: status})

	if fixQuality > 0 {
		_, total := l.dist.Add(common.LatLon{Lat: m.Latitude, Lon: m.Longitude})
		l.publish("h11gps/total_distance", struct {
			TotalDistanceM float64 `json:"total_distance_m"`
		}{TotalDistanceM: total})
	}

	l.mu.Lock()
	l.lastFix = now
	l.mu.Unlock()
}

func (l *Listener) handleVTG(m nmea.VTG, now time.Time) {
	l.publish("h11gps/speed", struct {
		Timestamp      time.Time `json:"timestamp"`
		TrackTrue      float64   `json:"track_true"`
		TrackMagnetic  float64   `json:"track_magnetic"`
		SpeedKmh       float64   `json:"speed_kmh"`
	}{Timestamp: now, TrackTrue: m.TrueTrack, TrackMagnetic: m.MagneticTrack, SpeedKmh: m.GroundSpeedKPH})
}

func (l *Listener) publish(topic string, payload any) {
	if err := l.bus.Publish(topic, payload); err != nil {
		log.Printf("gnss: publish %s: %v", topic, err)
	}
}

// parseFixQuality converts NMEA's FixQuality string field to the integer
// gps_qual code GGA sentences carry ("0" = invalid, >0 = some kind of fix).
func parseFixQuality(s string) int {
	if s == "" {
		return 0
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// TotalDistanceMeters returns the accumulated haversine distance.
func (l *Listener) TotalDistanceMeters() float64 {
	return l.dist.Total()
}

// LastFixAge returns how long ago a GGA fix was last processed, and whether
// any fix has ever been seen.
func (l *Listener) LastFixAge(now time.Time) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastFix.IsZero() {
		return 0, false
	}
	return now.Sub(l.lastFix), true
}

// Close releases the serial port.
func (l *Listener) Close() error {
	err := l.Base.Close()
	l.mu.Lock()
	port := l.port
	l.mu.Unlock()
	if port != nil {
		if cerr := port.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
