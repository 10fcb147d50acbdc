// Package listener implements the lifecycle contract shared by every
// concrete listener (J1939, UDS, GNSS, IMU): setup, loop start, close,
// and raw-data capture, as one embeddable type.
package listener

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/h11labs/truckcopilot/internal/rawlog"
)

// Base is embedded by every concrete listener. It owns the enabled flag, the
// per-listener raw-data log, and the background tick goroutine; concrete
// listeners supply the setup and per-tick behavior as closures.
type Base struct {
	name string
	log  *rawlog.Logger

	mu      sync.Mutex
	enabled bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// runCtx lazily derives the listener's cancellable run context from parent,
// the first time either LoopStart or Go is called, and returns it. Later
// calls share the same context and cancellation, so Close waits for every
// background worker regardless of how many were started.
func (b *Base) runCtx(parent context.Context) context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		b.ctx, b.cancel = context.WithCancel(parent)
	}
	return b.ctx
}

// NewBase creates a disabled listener handle named name, logging raw capture
// under baseDir/name via rawlog, rotated daily.
func NewBase(name string, baseDir string) *Base {
	return &Base{
		name: name,
		log:  rawlog.NewLogger(baseDir, name),
	}
}

// NewBaseWithGranularity is NewBase with an explicit raw-capture rotation
// boundary, for listeners whose capture volume wants hourly files.
func NewBaseWithGranularity(name string, baseDir string, g rawlog.Granularity) *Base {
	return &Base{
		name: name,
		log:  rawlog.NewLoggerWithGranularity(baseDir, name, g),
	}
}

// Name returns the listener's identifier, used in logs and data/<name>/ paths.
func (b *Base) Name() string { return b.name }

// Enabled reports whether Setup succeeded and Close has not yet run.
func (b *Base) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// Setup runs setupFn and, on success, marks the listener enabled. A setup
// failure is swallowed into the disabled state and returned to the caller
// only for logging; it never aborts the system. The fusion controller
// tolerates any subset of listeners being disabled.
func (b *Base) Setup(setupFn func() error) error {
	if err := setupFn(); err != nil {
		log.Printf("listener %s: setup failed, disabling: %v", b.name, err)
		return err
	}
	b.mu.Lock()
	b.enabled = true
	b.mu.Unlock()
	return nil
}

// LoopStart starts a background worker that calls tick once per interval
// until Close is observed. tick errors are logged and do not stop the loop;
// the ticker wait is the only suspension point between iterations.
func (b *Base) LoopStart(ctx context.Context, interval time.Duration, tick func(context.Context) error) {
	if !b.Enabled() {
		return
	}

	loopCtx := b.runCtx(ctx)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if err := tick(loopCtx); err != nil {
					log.Printf("listener %s: tick error: %v", b.name, err)
				}
			}
		}
	}()
}

// LoopOnce runs a single tick synchronously, bypassing the ticker, for
// callers such as tests that drive one iteration by hand. Listeners with
// their own blocking read loop use Go instead.
func (b *Base) LoopOnce(ctx context.Context, tick func(context.Context) error) error {
	if !b.Enabled() {
		return fmt.Errorf("listener %s: disabled", b.name)
	}
	return tick(ctx)
}

// Go runs fn in its own background goroutine, sharing the same
// cancellation and WaitGroup as LoopStart so Close waits for it too. fn must
// return promptly once its context is done. Used by listeners that drive
// their own blocking read loop (J1939's frame receive path, GNSS's serial
// read loop) rather than a fixed-interval ticker.
func (b *Base) Go(ctx context.Context, fn func(context.Context)) {
	if !b.Enabled() {
		return
	}

	loopCtx := b.runCtx(ctx)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(loopCtx)
	}()
}

// Close cancels the background worker, waits for it to observe cancellation
// (bounded by one tick interval), and marks the listener disabled.
// Idempotent.
func (b *Base) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.enabled = false
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	return b.log.Close()
}

// SaveRawData appends one line to the listener's rotated capture file under
// data/<name>/. Buffering policy is left to rawlog.Logger.
func (b *Base) SaveRawData(text string) error {
	return b.log.Append(text)
}
