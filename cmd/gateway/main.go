// Command gateway wires the listener framework, protocol engines, route
// matcher, HMI writer and fusion controller into one running process:
// flag-driven config, no global state, signal-triggered shutdown that
// closes every listener in turn.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/h11labs/truckcopilot/internal/bus"
	"github.com/h11labs/truckcopilot/internal/fusion"
	"github.com/h11labs/truckcopilot/internal/gnss"
	"github.com/h11labs/truckcopilot/internal/hmi"
	"github.com/h11labs/truckcopilot/internal/imu"
	"github.com/h11labs/truckcopilot/internal/j1939"
	"github.com/h11labs/truckcopilot/internal/pgndb"
	"github.com/h11labs/truckcopilot/internal/routematch"
	"github.com/h11labs/truckcopilot/internal/storage"
	"github.com/h11labs/truckcopilot/internal/uds"
)

// Default flag values.
const (
	defaultOBDMode       = "J1939"
	defaultCANInterface  = "can0"
	defaultCANBitrateBPS = 250000
	defaultGNSSDevice    = "/dev/rfcomm0"
	defaultHMICandidates = "/dev/ttyUSB0,/dev/ttyUSB1,/dev/ttyACM0,/dev/ttyACM1"
	defaultDataDir       = "data"
	defaultStoragePath   = "data/gateway.db"
	defaultHeartbeatLog  = true
)

var (
	obdMode        = flag.String("obd_mode", defaultOBDMode, "active CAN protocol: J1939, OBD2, or UDS")
	virtualSimMode = flag.Bool("virtual_sim_mode", false, "drive the fusion controller from the simulator instead of live sensors")

	canInterface = flag.String("can_interface", defaultCANInterface, "SocketCAN interface name for J1939/UDS")
	canBitrate   = flag.Int("can_bitrate", defaultCANBitrateBPS, "CAN bus bitrate in bits/second")

	gnssDevice = flag.String("gnss_device", defaultGNSSDevice, "serial device the Bluetooth GNSS receiver is bound to")
	gnssMAC    = flag.String("gnss_bt_mac", "", "Bluetooth MAC to rfcomm-bind gnss_device to if it is missing")

	hmiCandidates = flag.String("hmi_ports", defaultHMICandidates, "comma-separated candidate serial devices to probe for the HMI panel")
	mqttBroker    = flag.String("mqtt_broker", "", "optional external MQTT broker URL to mirror the bus onto, e.g. tcp://localhost:1883")

	speedPlanPaths = flag.String("speed_plans", "", "comma-separated speed-plan route JSON files")
	dataDir        = flag.String("data_dir", defaultDataDir, "base directory for raw-data capture logs")
	storagePath    = flag.String("storage_path", defaultStoragePath, "bbolt database path for discovered-PGN/cursor persistence")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	mode := strings.ToUpper(*obdMode)
	switch mode {
	case "J1939", "OBD2", "UDS":
	default:
		log.Fatalf("gateway: unsupported --obd_mode %q, want J1939, OBD2, or UDS", *obdMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("gateway: shutdown signal received")
		cancel()
	}()

	b := bus.New()
	if *mqttBroker != "" {
		mirrorTopics := []string{"uds/speed", "h11gps/position", "h11gps/speed", "h11gps/total_distance", "gps/distance"}
		for name := range pgndb.AllowList {
			mirrorTopics = append(mirrorTopics, "j1939/"+name)
		}
		if err := b.AttachBroker(bus.BrokerConfig{
			Broker:    *mqttBroker,
			ClientID:  "truckcopilot-gateway",
			Topics:    mirrorTopics,
			Subscribe: []string{"track/pos", "obd2/speed", "obd2/distance_since_dtc_clear", "acc/gyro_acc_xyz"},
		}); err != nil {
			log.Printf("gateway: mqtt broker mirror disabled: %v", err)
		} else {
			defer b.DetachBroker()
		}
	}

	store, err := storage.Open(*storagePath)
	if err != nil {
		log.Printf("gateway: persistence disabled, could not open %s: %v", *storagePath, err)
		store = nil
	} else {
		defer store.Close()
	}

	routes := loadRoutes(*speedPlanPaths)

	writer := hmi.Discover(hmi.Config{Candidates: splitNonEmpty(*hmiCandidates)})
	defer writer.Close()

	var closers []func() error
	var j1939Listener *j1939.Listener

	switch mode {
	case "J1939":
		if l := startJ1939(ctx, b, store, *dataDir); l != nil {
			closers = append(closers, l.Close)
			j1939Listener = l
		}
	case "UDS":
		if l := startUDS(ctx, b, *dataDir); l != nil {
			closers = append(closers, l.Close)
		}
	case "OBD2":
		// OBD2 mode relies on a vendor collector (e.g. AutoPi) publishing
		// obd2/speed and obd2/distance_since_dtc_clear directly onto the
		// bus; this gateway has nothing to start for it beyond the
		// fusion controller's existing subscription to those topics.
		log.Println("gateway: obd_mode=OBD2, expecting an external collector to publish obd2/* topics")
	}

	gnssListener := gnss.NewListener(gnss.Config{Device: *gnssDevice, BluetoothMAC: *gnssMAC, BaseDir: *dataDir}, b)
	if err := gnssListener.Setup(); err != nil {
		log.Printf("gateway: gnss setup failed, running without GNSS: %v", err)
	} else {
		gnssListener.Start(ctx)
	}
	closers = append(closers, gnssListener.Close)

	imuListener := imu.NewListener(*dataDir, b)
	if err := imuListener.Setup(); err != nil {
		log.Printf("gateway: imu setup failed, running without IMU: %v", err)
	}
	closers = append(closers, imuListener.Close)

	controller := fusion.New(b, *virtualSimMode, routes, writer)
	controller.Start()
	defer controller.Close()

	if *virtualSimMode {
		go runSimulator(ctx, b, routes)
	}

	runHeartbeat(ctx, controller)

	if store != nil && j1939Listener != nil && j1939Listener.Enabled() {
		if err := store.Put("j1939", "discovered_pgns", formatPGNList(j1939Listener.Discovered())); err != nil {
			log.Printf("gateway: persist discovered PGNs: %v", err)
		}
	}

	for _, close := range closers {
		if err := close(); err != nil {
			log.Printf("gateway: close error: %v", err)
		}
	}
	log.Println("gateway: shut down")
}

// startJ1939 brings up the J1939 listener, seeds its discovered-PGN set
// from storage if available, runs startup discovery, and starts the
// scheduling/receive loops. A setup failure leaves the listener disabled;
// the rest of the system keeps running.
func startJ1939(ctx context.Context, b *bus.Bus, store *storage.Store, baseDir string) *j1939.Listener {
	l := j1939.NewListener(j1939.Config{CANInterface: *canInterface, BitrateBPS: *canBitrate, BaseDir: baseDir}, b, pgndb.LoadDefault())
	if err := l.Setup(); err != nil {
		log.Printf("gateway: j1939 setup failed, running without it: %v", err)
		return l
	}

	if store != nil {
		if snapshot, ok, err := store.Get("j1939", "discovered_pgns"); err == nil && ok {
			l.SeedDiscovered(parsePGNList(snapshot))
		}
	}

	go func() {
		if err := l.RunDiscovery(ctx); err != nil {
			log.Printf("gateway: j1939 discovery: %v", err)
		}
	}()
	l.Start(ctx)

	if store != nil {
		go persistDiscoveredPGNs(ctx, store, l)
	}
	return l
}

// persistDiscoveredPGNs snapshots the J1939 listener's discovered-PGN set
// into storage periodically, so a restart can seed discovery instead of
// re-running the full sweep cold.
func persistDiscoveredPGNs(ctx context.Context, store *storage.Store, l *j1939.Listener) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := formatPGNList(l.Discovered())
			if err := store.Put("j1939", "discovered_pgns", snapshot); err != nil {
				log.Printf("gateway: persist discovered PGNs: %v", err)
			}
		}
	}
}

func startUDS(ctx context.Context, b *bus.Bus, baseDir string) *uds.Listener {
	l := uds.NewListener(uds.Config{CANInterface: *canInterface, BaseDir: baseDir}, b)
	if err := l.Setup(); err != nil {
		log.Printf("gateway: uds setup failed, running without it: %v", err)
		return l
	}
	l.Start(ctx)
	return l
}

// runSimulator marches the simulator along one loaded route (an arbitrary
// one when several are loaded) at a fixed tick, standing in for live GNSS/odometer input. It returns once the route is exhausted or ctx is
// cancelled.
func runSimulator(ctx context.Context, b *bus.Bus, routes map[string][]routematch.Point) {
	var points []routematch.Point
	for _, p := range routes {
		points = p
		break
	}
	if len(points) < 2 {
		log.Println("gateway: virtual_sim_mode requested but no usable speed plan was loaded")
		return
	}

	sim := fusion.NewSimulator(b, points)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sim.Tick()
			if sim.Done() {
				log.Println("gateway: simulator reached the end of the route")
				return
			}
		}
	}
}

// runHeartbeat blocks, emitting one LogHeartbeat summary per the
// controller's adaptive cadence, until ctx is
// cancelled.
func runHeartbeat(ctx context.Context, controller *fusion.Controller) {
	if !defaultHeartbeatLog {
		<-ctx.Done()
		return
	}
	for {
		interval := controller.HeartbeatInterval(time.Now())
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			controller.LogHeartbeat(time.Now())
		}
	}
}

// loadRoutes reads every comma-separated speed-plan path into a
// name->points map keyed by the file's base name without extension, ready
// for routematch.Matcher.SelectClosestRoute.
func loadRoutes(paths string) map[string][]routematch.Point {
	routes := make(map[string][]routematch.Point)
	for _, path := range splitNonEmpty(paths) {
		points, err := loadRouteFile(path)
		if err != nil {
			log.Printf("gateway: load speed plan %s: %v", path, err)
			continue
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		routes[name] = points
	}
	return routes
}

func loadRouteFile(path string) ([]routematch.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return routematch.LoadRoute(f)
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatPGNList(pgns map[uint32]bool) string {
	ordered := make([]uint32, 0, len(pgns))
	for pgn := range pgns {
		ordered = append(ordered, pgn)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	parts := make([]string, len(ordered))
	for i, pgn := range ordered {
		parts[i] = strconv.FormatUint(uint64(pgn), 10)
	}
	return strings.Join(parts, ",")
}

func parsePGNList(s string) []uint32 {
	var out []uint32
	for _, part := range splitNonEmpty(s) {
		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(v))
	}
	return out
}
