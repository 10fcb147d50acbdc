// Package j1939 implements the J1939 protocol engine: CAN-up, address
// claim, PGN discovery and request scheduling, frame decode and publish.
package j1939

import (
	"time"

	"github.com/h11labs/truckcopilot/internal/pgndb"
)

// RequestClass buckets PGNs by how often the schedule should re-request
// them.
type RequestClass int

const (
	// ClassFast PGNs are requested every 0.2s.
	ClassFast RequestClass = iota
	// ClassDefault PGNs are requested every 1.0s.
	ClassDefault
	// ClassSlow PGNs are requested every 60s.
	ClassSlow
	// ClassSlower PGNs are requested every 300s.
	ClassSlower
	// ClassListenOnly PGNs are never actively requested (negative interval).
	ClassListenOnly
)

// Interval returns the request interval for a class. ClassListenOnly
// returns a negative duration, meaning never request.
func (c RequestClass) Interval() time.Duration {
	switch c {
	case ClassFast:
		return 200 * time.Millisecond
	case ClassDefault:
		return time.Second
	case ClassSlow:
		return 60 * time.Second
	case ClassSlower:
		return 300 * time.Second
	case ClassListenOnly:
		return -1
	default:
		return time.Second
	}
}

// DefaultSchedule holds the request interval class per known PGN. Every
// known PGN appears exactly once; any PGN absent from this map defaults to
// ClassDefault's 1s interval.
var DefaultSchedule = map[uint32]RequestClass{
	pgndb.PGNCruiseControlVehicleSpeed:     ClassFast,
	pgndb.PGNVehicleDirSpeed:               ClassFast,
	pgndb.PGNElectronicEngineController1:   ClassFast,
	65215:                                  ClassDefault,
	pgndb.PGNFuelEconomy:                   ClassDefault,
	pgndb.PGNHighResolutionVehicleDistance: ClassDefault,
	pgndb.PGNVehicleDistance:               ClassDefault,
	65199: ClassSlow,
	65257: ClassSlow,
	65276: ClassSlow,
	65201: ClassSlow,
	65202: ClassSlow,
	65253: ClassSlower,
	65255: ClassSlower,
	65263: ClassSlower,
	65244: ClassSlower,
	65262: ClassListenOnly,
	65194: ClassListenOnly,
	61443: ClassListenOnly,
	61450: ClassListenOnly,
	65153: ClassListenOnly,
	65132: ClassListenOnly,
}

// RequestInterval returns the configured interval for pgn, defaulting to 1s
// (ClassDefault) when the PGN has no explicit schedule entry.
func RequestInterval(pgn uint32) time.Duration {
	if class, ok := DefaultSchedule[pgn]; ok {
		return class.Interval()
	}
	return ClassDefault.Interval()
}

// Scheduler tracks, per discovered PGN, when it was last requested and
// decides whether a fresh Request PGN is due. It holds no I/O: Due is pure
// given (pgn, now) and the scheduler's own bookkeeping.
type Scheduler struct {
	lastRequested map[uint32]time.Time
}

// NewScheduler creates an empty request scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{lastRequested: make(map[uint32]time.Time)}
}

// Due reports whether pgn should be (re-)requested at now: its interval has
// elapsed since the last request, or it has never been requested. A
// listen-only PGN (negative interval) is never due.
func (s *Scheduler) Due(pgn uint32, now time.Time) bool {
	interval := RequestInterval(pgn)
	if interval < 0 {
		return false
	}
	last, ok := s.lastRequested[pgn]
	if !ok {
		return true
	}
	return now.Sub(last) >= interval
}

// MarkRequested records that pgn was just requested at now.
func (s *Scheduler) MarkRequested(pgn uint32, now time.Time) {
	s.lastRequested[pgn] = now
}

// DueRequests returns every discovered PGN that is due at now, in a stable
// order (ascending PGN) so tests and logs are deterministic.
func (s *Scheduler) DueRequests(discovered map[uint32]bool, now time.Time) []uint32 {
	var due []uint32
	for pgn := range discovered {
		if s.Due(pgn, now) {
			due = append(due, pgn)
		}
	}
	sortUint32s(due)
	return due
}

func sortUint32s(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
