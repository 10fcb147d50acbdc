package uds

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/h11labs/truckcopilot/internal/bus"
	"github.com/h11labs/truckcopilot/internal/listener"
)

// tickInterval is the UDS poll rate: tester-present plus one
// Read-Data-By-Identifier per configured DID, target 5 Hz.
const tickInterval = 200 * time.Millisecond

// AllowList names the decoded fields this listener publishes on the bus, in
// addition to writing every decoded field to the per-tick CSV row. Only
// "speed" feeds fusion; every other decoded field (rpm, torque_percent,
// fuel_rate, fuel_level) stays CSV-only.
var AllowList = map[string]bool{
	"speed": true,
}

// Config configures the UDS listener.
type Config struct {
	CANInterface string
	BaseDir      string
	DIDs         []uint16 // defaults to DIDEngineBlock, DIDFuelRate, DIDFuelLevel
}

// Listener polls the engine ECU over UDS/ISO-TP.
type Listener struct {
	*listener.Base

	cfg Config
	bus *bus.Bus

	mu      sync.Mutex
	session *Session
	cache   map[string]float64
}

// NewListener creates a disabled UDS listener; call Setup to dial the bus.
func NewListener(cfg Config, b *bus.Bus) *Listener {
	if len(cfg.DIDs) == 0 {
		cfg.DIDs = []uint16{DIDEngineBlock, DIDFuelRate, DIDFuelLevel}
	}
	return &Listener{
		Base:  listener.NewBase("uds", cfg.BaseDir),
		cfg:   cfg,
		bus:   b,
		cache: make(map[string]float64),
	}
}

// Setup opens the ISO-TP session. No session-change service is issued; the
// default diagnostic session is acceptable for the polled DIDs.
func (l *Listener) Setup() error {
	return l.Base.Setup(func() error {
		s, err := Open(l.cfg.CANInterface)
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		l.mu.Lock()
		l.session = s
		l.mu.Unlock()
		return nil
	})
}

// Start launches the per-tick poll loop.
func (l *Listener) Start(ctx context.Context) {
	l.Base.LoopStart(ctx, tickInterval, l.tick)
}

// tick sends tester-present, reads every configured DID, merges the decoded
// fields into one CSV row, and publishes the allow-listed fields.
func (l *Listener) tick(ctx context.Context) error {
	l.mu.Lock()
	s := l.session
	l.mu.Unlock()
	if s == nil {
		return fmt.Errorf("uds: no session")
	}

	if err := s.TesterPresent(); err != nil {
		log.Printf("uds: %v", err)
	}

	now := time.Now()
	merged := make(map[string]float64)
	for _, did := range l.cfg.DIDs {
		codec, ok := Registry[did]
		if !ok {
			log.Printf("uds: no codec registered for DID 0x%04X", did)
			continue
		}
		payload, err := s.ReadDataByIdentifier(did)
		if err != nil {
			log.Printf("uds: %v", err)
			continue
		}
		fields, err := codec(payload)
		if err != nil {
			log.Printf("uds: %v", err)
			continue
		}
		for k, v := range fields {
			merged[k] = v
		}
	}

	if len(merged) == 0 {
		return nil
	}

	if err := l.SaveRawData(formatCSVRow(now, merged)); err != nil {
		log.Printf("uds: raw log append: %v", err)
	}

	l.mu.Lock()
	for k, v := range merged {
		l.cache[k] = v
	}
	l.mu.Unlock()

	for name, value := range merged {
		if !AllowList[name] {
			continue
		}
		topic := "uds/" + name
		payload := struct {
			Timestamp time.Time `json:"timestamp"`
			Value     float64   `json:"value"`
		}{Timestamp: now, Value: value}
		if err := l.bus.Publish(topic, payload); err != nil {
			log.Printf("uds: publish %s: %v", topic, err)
		}
	}
	return nil
}

// formatCSVRow renders one CSV line: Timestamp, then every merged field in
// alphabetical key order.
func formatCSVRow(ts time.Time, fields map[string]float64) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(ts.Format(time.RFC3339Nano))
	for _, k := range keys {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(fields[k], 'f', -1, 64))
	}
	return b.String()
}

// Reading returns the most recently decoded value for field name, if any
// tick has produced one.
func (l *Listener) Reading(name string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.cache[name]
	return v, ok
}

// Close releases the ISO-TP session.
func (l *Listener) Close() error {
	err := l.Base.Close()
	l.mu.Lock()
	s := l.session
	l.mu.Unlock()
	if s != nil {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
