package j1939

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/h11labs/truckcopilot/internal/bus"
	"github.com/h11labs/truckcopilot/internal/listener"
	"github.com/h11labs/truckcopilot/internal/pgndb"
)

// requestTickInterval drives the per-tick request-scheduling loop; it must
// not be coarser than the fastest request class (0.2s) or fast PGNs would be
// re-requested late.
const requestTickInterval = 100 * time.Millisecond

// Config configures the J1939 listener.
type Config struct {
	CANInterface string
	BitrateBPS   int
	BaseDir      string
}

// paramReading is the cached, decoded value of one parameter, keyed by name.
type paramReading struct {
	value     pgndb.DecodedValue
	timestamp time.Time
}

// Listener drives the J1939 protocol engine end to end: CAN-up, address
// claim, startup discovery, per-interval request scheduling, and the
// receive/decode/publish path.
type Listener struct {
	*listener.Base

	cfg Config
	bus *bus.Bus
	db  *pgndb.Database

	sched *Scheduler
	disc  *Discovery

	mu        sync.Mutex
	state     State
	transport Transport
	cache     map[string]paramReading
}

// NewListener creates a disabled J1939 listener; call Setup to bring it up.
func NewListener(cfg Config, b *bus.Bus, db *pgndb.Database) *Listener {
	return &Listener{
		Base:  listener.NewBase("j1939", cfg.BaseDir),
		cfg:   cfg,
		bus:   b,
		db:    db,
		state: StateInit,
		sched: NewScheduler(),
		disc:  NewDiscovery(),
		cache: make(map[string]paramReading),
	}
}

func (l *Listener) getState() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Listener) applyEvent(ev Event) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = Transition(l.state, ev)
	return l.state
}

// Setup brings the CAN interface up, opens the J1939 transport, and runs the
// address-claim handshake. A failure at any step disables the listener; the
// fusion controller is expected to carry on without it.
func (l *Listener) Setup() error {
	return l.Base.Setup(func() error {
		l.applyEvent(EventCANUpOK)

		t, err := OpenTransport(l.cfg.CANInterface, l.cfg.BitrateBPS)
		if err != nil {
			return fmt.Errorf("open transport: %w", err)
		}
		l.mu.Lock()
		l.transport = t
		l.mu.Unlock()
		l.applyEvent(EventECUAttached)

		if err := l.claimAddress(); err != nil {
			_ = t.Close()
			return fmt.Errorf("address claim: %w", err)
		}
		l.applyEvent(EventAddressClaimOK)
		log.Printf("j1939: %s up, local address 0x%02X, state %s", l.cfg.CANInterface, t.LocalAddress(), l.getState())
		return nil
	})
}

// claimAddress broadcasts this node's NAME on PGN 0x00EE00 (Address
// Claimed). SocketCAN's J1939 stack already performs dynamic address
// assignment at bind time; this announcement is the application-level half
// of the handshake other ECUs expect to observe.
func (l *Listener) claimAddress() error {
	payload := encodeUint64LE(DefaultGatewayName.Encode())
	if err := l.transport.Send(PGNAddressClaimed, AddressGlobal, payload[:]); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return nil
}

func (l *Listener) requestPGN(pgn uint32) error {
	l.mu.Lock()
	t := l.transport
	l.mu.Unlock()
	if t == nil {
		return ErrClosed
	}
	payload := BuildRequestPayload(pgn)
	if err := t.Send(PGNRequest, AddressGlobal, payload[:]); err != nil {
		return err
	}
	l.sched.MarkRequested(pgn, time.Now())
	return nil
}

// RunDiscovery issues DiscoveryPasses request sweeps over every known PGN,
// DiscoveryPause apart, so the receive path has a chance to observe each
// PGN's response and mark it discovered. It does not hold back the
// scheduling loop started by Start, which only re-requests PGNs already
// discovered.
func (l *Listener) RunDiscovery(ctx context.Context) error {
	if RequestsSuppressed(l.getState()) {
		return fmt.Errorf("j1939: requests suppressed in state %s", l.getState())
	}
	for pass := 0; pass < DiscoveryPasses; pass++ {
		for _, pgn := range KnownPGNs() {
			if err := l.requestPGN(pgn); err != nil {
				log.Printf("j1939: discovery request pgn=0x%X: %v", pgn, err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(DiscoveryPause):
			}
		}
	}
	return nil
}

// Start launches the background request-scheduling loop and the blocking
// frame-receive loop. Both are tracked by the embedded Base so Close waits
// for them.
func (l *Listener) Start(ctx context.Context) {
	l.Base.LoopStart(ctx, requestTickInterval, l.scheduleTick)
	l.Base.Go(ctx, l.receiveLoop)
}

// scheduleTick re-requests every discovered PGN whose interval has elapsed.
func (l *Listener) scheduleTick(ctx context.Context) error {
	if RequestsSuppressed(l.getState()) {
		return nil
	}
	due := l.sched.DueRequests(l.disc.Available(), time.Now())
	for _, pgn := range due {
		if err := l.requestPGN(pgn); err != nil {
			return fmt.Errorf("request pgn=0x%X: %w", pgn, err)
		}
	}
	return nil
}

// receiveLoop blocks on Transport.Recv, decoding and publishing each frame
// until ctx is done or the transport is closed.
func (l *Listener) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.mu.Lock()
		t := l.transport
		l.mu.Unlock()
		if t == nil {
			return
		}

		frame, err := t.Recv()
		if err != nil {
			if err == ErrClosed {
				return
			}
			log.Printf("j1939: recv: %v", err)
			continue
		}
		l.handleFrame(frame)
	}
}

// handleFrame implements the receive path: raw-log the frame, mark it
// discovered, decode via the PGN database, and publish allow-listed
// parameters.
func (l *Listener) handleFrame(f Frame) {
	now := time.Now()

	if err := l.SaveRawData(fmt.Sprintf("%s,%d,%s", now.Format(time.RFC3339Nano), f.PGN, strings.ToUpper(hex.EncodeToString(f.Data)))); err != nil {
		log.Printf("j1939: raw log append: %v", err)
	}

	l.disc.MarkHeard(f.PGN)

	decoded := pgndb.Decode(l.db, f.PGN, f.Data)
	if !decoded.Found {
		return
	}

	for name, entry := range decoded.Entries {
		if entry.Status != pgndb.StatusOK {
			continue
		}
		if !pgndb.AllowList[name] {
			continue
		}

		l.mu.Lock()
		l.cache[name] = paramReading{value: entry.Value, timestamp: now}
		l.mu.Unlock()

		topic := "j1939/" + name
		payload := struct {
			Value     float64   `json:"value"`
			Unit      string    `json:"unit"`
			Topic     string    `json:"topic"`
			Timestamp time.Time `json:"timestamp"`
		}{Value: entry.Value.Value, Unit: entry.Value.Unit, Topic: topic, Timestamp: now}

		if err := l.bus.Publish(topic, payload); err != nil {
			log.Printf("j1939: publish %s: %v", topic, err)
		}
	}
}

// SeedDiscovered primes the discovered-PGN set from a previous run's
// persisted snapshot (internal/storage), so a restart doesn't have to wait
// out the full discovery sweep for PGNs already known to be present.
func (l *Listener) SeedDiscovered(pgns []uint32) {
	l.disc.Seed(pgns)
}

// Discovered returns a snapshot of the discovered-PGN set, for the caller
// to persist across restarts.
func (l *Listener) Discovered() map[uint32]bool {
	return l.disc.Available()
}

// Reading returns the most recently decoded value for an allow-listed
// parameter name, if any has been seen.
func (l *Listener) Reading(name string) (pgndb.DecodedValue, time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.cache[name]
	return r.value, r.timestamp, ok
}

// Close releases the background workers and the CAN transport.
func (l *Listener) Close() error {
	err := l.Base.Close()
	l.mu.Lock()
	t := l.transport
	l.state = Transition(l.state, EventClose)
	l.mu.Unlock()
	if t != nil {
		if cerr := t.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
