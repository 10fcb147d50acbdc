package j1939

import (
	"sync"
	"time"
)

// DiscoveryPasses is the number of Request-PGN sweeps the listener performs
// at startup for each known PGN.
const DiscoveryPasses = 5

// DiscoveryPause is the pause after each discovery request, before the next
// request of the sweep.
const DiscoveryPause = 500 * time.Millisecond

// Discovery tracks which PGNs have been heard (broadcast or response),
// independent of whether they were ever actively requested. The receive
// loop marks PGNs heard while the schedule-tick loop reads the set
// concurrently, so access is
// mutex-guarded.
type Discovery struct {
	mu        sync.Mutex
	available map[uint32]bool
}

// NewDiscovery creates an empty discovery set.
func NewDiscovery() *Discovery {
	return &Discovery{available: make(map[uint32]bool)}
}

// MarkHeard records that pgn was observed on the bus, by broadcast or in
// response to a request. Returns true the first time pgn is marked.
func (d *Discovery) MarkHeard(pgn uint32) (firstTime bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.available[pgn] {
		return false
	}
	d.available[pgn] = true
	return true
}

// Available returns a snapshot of the discovered-PGN set.
func (d *Discovery) Available() map[uint32]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[uint32]bool, len(d.available))
	for k := range d.available {
		out[k] = true
	}
	return out
}

// Seed marks every PGN in pgns as heard without going through MarkHeard's
// first-time bookkeeping, used at startup to restore a discovered-PGN set
// persisted across restarts (internal/storage).
func (d *Discovery) Seed(pgns []uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, pgn := range pgns {
		d.available[pgn] = true
	}
}

// KnownPGNs lists every PGN this gateway knows how to ask for, i.e. every
// key of DefaultSchedule, in the order discovery should sweep them.
func KnownPGNs() []uint32 {
	pgns := make([]uint32, 0, len(DefaultSchedule))
	for pgn := range DefaultSchedule {
		pgns = append(pgns, pgn)
	}
	sortUint32s(pgns)
	return pgns
}
