package fusion

import (
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/h11labs/truckcopilot/common"
	"github.com/h11labs/truckcopilot/internal/bus"
	"github.com/h11labs/truckcopilot/internal/hmi"
	"github.com/h11labs/truckcopilot/internal/routematch"
)

// Heartbeat cadence bounds.
const (
	heartbeatMoving  = 2 * time.Second
	heartbeatLowSpeed = 5 * time.Second
	heartbeatStopped = 10 * time.Second

	lowSpeedThresholdKMH = 5.0
	stoppedThresholdKMH  = 0.5
)

// Topic groups subscribed by the controller.
const (
	topicJ1939WheelSpeed    = "j1939/Wheel-Based_Vehicle_Speed"
	topicOBD2Speed          = "obd2/speed"
	topicUDSSpeed           = "uds/speed"
	topicGPSSpeed           = "h11gps/speed"
	topicJ1939HiResDistance = "j1939/High_Resolution_Total_Vehicle_Distance"
	topicJ1939LoResDistance = "j1939/Total_Vehicle_Distance"
	topicOBD2Distance       = "obd2/distance_since_dtc_clear"
	topicGPSDistanceIn      = "gps/distance"
	topicSimDistance        = "sim/distance"
	topicGPSPosition        = "h11gps/position"
	topicTrackPosition      = "track/pos"
	topicSimPosition        = "sim/position"

	topicGPSDistanceOut = "gps/distance"
)

// Controller wires the bus's three subscription groups into one fused
// State, drives the route matcher on every position fix, and pushes
// derived scalars to the HMI. The bus serializes deliveries per
// subscription, not across them, so mu serializes every handler and the
// heartbeat reader over the shared state.
type Controller struct {
	bus    *bus.Bus
	hmi    *hmi.Writer
	routes map[string][]routematch.Point

	mu      sync.Mutex
	state   *State
	matcher *routematch.Matcher
	dist    *common.DistanceAccumulator
	cancels []func()
}

// New creates a Controller. routes maps a candidate route name to its
// already-loaded speed-plan points, used by select_closest_route on the
// first position fix.
func New(b *bus.Bus, simulationMode bool, routes map[string][]routematch.Point, writer *hmi.Writer) *Controller {
	return &Controller{
		bus:     b,
		state:   NewState(simulationMode),
		matcher: routematch.NewMatcher(),
		hmi:     writer,
		routes:  routes,
		dist:    common.NewDistanceAccumulator(),
	}
}

// Start subscribes to every topic group.
func (c *Controller) Start() {
	speedTopics := []string{topicJ1939WheelSpeed, topicOBD2Speed, topicUDSSpeed, topicGPSSpeed}
	distanceTopics := []string{topicJ1939HiResDistance, topicJ1939LoResDistance, topicOBD2Distance, topicGPSDistanceIn, topicSimDistance}
	positionTopics := []string{topicGPSPosition, topicTrackPosition, topicSimPosition}

	for _, t := range speedTopics {
		c.subscribe(t, c.onSpeed)
	}
	for _, t := range distanceTopics {
		c.subscribe(t, c.onDistance)
	}
	for _, t := range positionTopics {
		c.subscribe(t, c.onPosition)
	}
}

func (c *Controller) subscribe(topic string, handler bus.Handler) {
	cancel := c.bus.Subscribe(topic, handler)
	c.mu.Lock()
	c.cancels = append(c.cancels, cancel)
	c.mu.Unlock()
}

// Close unsubscribes from every topic.
func (c *Controller) Close() {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// speedPayload covers both shapes speed topics use: j1939/uds publish
// {value,...}, h11gps/speed publishes {speed_kmh,...}.
type speedPayload struct {
	Value    float64 `json:"value"`
	SpeedKmh float64 `json:"speed_kmh"`
}

func (c *Controller) onSpeed(msg bus.Message) {
	var p speedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		log.Printf("fusion: decode speed on %s: %v", msg.Topic, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var kmh float64
	if msg.Topic == topicGPSSpeed {
		kmh = p.SpeedKmh
	} else {
		kmh = p.Value
	}

	if msg.Topic == topicGPSSpeed {
		c.state.SetGPSSpeed(kmh, msg.Timestamp)
	} else {
		c.state.SetOBDSpeed(kmh, msg.Timestamp)
	}
}

// distancePayload covers both shapes distance topics use: j1939/obd2
// publish {value,...}, GPS/sim distance topics publish
// {total_distance_m,...}.
type distancePayload struct {
	Value          float64 `json:"value"`
	TotalDistanceM float64 `json:"total_distance_m"`
}

func (c *Controller) onDistance(msg bus.Message) {
	var p distancePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		log.Printf("fusion: decode distance on %s: %v", msg.Topic, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var meters float64
	switch msg.Topic {
	case topicGPSDistanceIn, topicSimDistance:
		meters = p.TotalDistanceM
	case topicJ1939HiResDistance, topicJ1939LoResDistance:
		// J1939 odometer parameters are published in km.
		meters = p.Value * 1000
	default:
		meters = p.Value
	}

	switch msg.Topic {
	case topicJ1939HiResDistance:
		c.state.SetJ1939HiResDistance(meters, msg.Timestamp)
	case topicJ1939LoResDistance:
		c.state.SetJ1939LoResDistance(meters, msg.Timestamp)
	case topicOBD2Distance:
		c.state.SetOBDDistance(meters, msg.Timestamp)
	case topicGPSDistanceIn:
		c.state.SetGPSDistance(meters, msg.Timestamp)
	case topicSimDistance:
		c.state.SetSimDistance(meters, msg.Timestamp)
	}
	c.afterDistanceUpdate(msg.Timestamp)
}

func (c *Controller) afterDistanceUpdate(now time.Time) {
	tripKM, ok := c.state.TripDistanceKM(now)
	if !ok {
		return
	}
	speedKMH, _ := c.state.CurrentSpeedKMH(now)
	suggestedKMH, _, _ := c.suggestedSpeedAndGradePercent()
	c.state.AccountTrip(tripKM, speedKMH, suggestedKMH)

	if c.hmi != nil {
		c.hmi.SetDistance(tripKM)
		c.hmi.SetFollowRange(c.state.FollowRangeKM())
		if rate, ok := c.state.FollowRate(); ok {
			c.hmi.SetFollowRate(rate)
		}
	}
}

type positionPayload struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Loc struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"loc"`
}

func (c *Controller) onPosition(msg bus.Message) {
	var p positionPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		log.Printf("fusion: decode position on %s: %v", msg.Topic, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var source string
	var lat, lon float64
	switch msg.Topic {
	case topicGPSPosition:
		source, lat, lon = "h11gps", p.Lat, p.Lon
	case topicTrackPosition:
		source, lat, lon = "track", p.Loc.Lat, p.Loc.Lon
	case topicSimPosition:
		source, lat, lon = "sim", p.Loc.Lat, p.Loc.Lon
	default:
		return
	}
	c.state.UpdatePosition(source, lat, lon, msg.Timestamp)

	// Per-fix work follows whichever source is actually fused right now,
	// so track/pos still drives route matching when h11gps has gone stale
	// instead of being ignored outright.
	if !c.state.IsActivePositionSource(source, msg.Timestamp) {
		return
	}
	c.perFixWork(lat, lon, msg.Timestamp)
}

// perFixWork runs the point-to-point distance accounting and
// route-match/HMI pipeline triggered by a fresh position fix.
func (c *Controller) perFixWork(lat, lon float64, now time.Time) {
	_, total := c.dist.Add(common.LatLon{Lat: lat, Lon: lon})
	if err := c.bus.Publish(topicGPSDistanceOut, struct {
		TotalDistanceM float64 `json:"total_distance_m"`
	}{TotalDistanceM: total}); err != nil {
		log.Printf("fusion: publish %s: %v", topicGPSDistanceOut, err)
	}

	if !c.matcher.RouteSelected() {
		if _, ok := c.matcher.SelectClosestRoute(lat, lon, c.routes); !ok {
			return
		}
	}

	if _, ok := c.matcher.UpdatePt(lat, lon); !ok {
		return
	}

	suggestedKMH, gradePercent, ok := c.suggestedSpeedAndGradePercent()
	if !ok {
		return
	}

	if c.hmi != nil {
		if speedKMH, ok := c.state.CurrentSpeedKMH(now); ok {
			c.hmi.SetSpeed(speedKMH)
		}
		c.hmi.SetSuggestedSpeed(suggestedKMH)
		c.hmi.SetGrade(gradePercent)
	}
}

// suggestedSpeedAndGradePercent reads back the matcher's interpolated
// speed (converted m/s -> km/h) and grade (converted fraction -> percent)
// for the last matched fix.
func (c *Controller) suggestedSpeedAndGradePercent() (speedKMH, gradePercent float64, ok bool) {
	speedMS, grade, ok := c.matcher.SuggestSpeedAndGrade()
	if !ok {
		return 0, 0, false
	}
	return speedMS * 3.6, grade * 100, true
}

// HeartbeatInterval returns the adaptive cadence for the next heartbeat:
// 2s while moving, 5s at low speed, 10s stopped.
func (c *Controller) HeartbeatInterval(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	speedKMH, ok := c.state.CurrentSpeedKMH(now)
	if !ok || speedKMH < stoppedThresholdKMH {
		return heartbeatStopped
	}
	if speedKMH < lowSpeedThresholdKMH {
		return heartbeatLowSpeed
	}
	return heartbeatMoving
}

// Heartbeat is one adaptive-cadence summary line's content.
type Heartbeat struct {
	SpeedKMH           float64
	SuggestedSpeedKMH  float64
	GradePercent       float64
	TripDistanceKM     float64
	FollowRangeKM      float64
	FollowRate         float64
	FollowRateOK       bool
	MatchedIndex       int
	ProjectionDistance float64
	Lat, Lon           float64
}

// LogHeartbeat emits a summary line with the fused state.
func (c *Controller) LogHeartbeat(now time.Time) Heartbeat {
	c.mu.Lock()
	defer c.mu.Unlock()
	speedKMH, _ := c.state.CurrentSpeedKMH(now)
	suggestedKMH, gradePercent, _ := c.suggestedSpeedAndGradePercent()
	tripKM, _ := c.state.TripDistanceKM(now)
	followRate, followRateOK := c.state.FollowRate()
	pos, _ := c.state.FusedPosition(now)

	hb := Heartbeat{
		SpeedKMH:           speedKMH,
		SuggestedSpeedKMH:  suggestedKMH,
		GradePercent:       gradePercent,
		TripDistanceKM:     tripKM,
		FollowRangeKM:      c.state.FollowRangeKM(),
		FollowRate:         followRate,
		FollowRateOK:       followRateOK,
		MatchedIndex:       c.matcher.CurrentIndex(),
		ProjectionDistance: c.matcher.ProjectionDistance(),
		Lat:                pos.Lat,
		Lon:                pos.Lon,
	}

	log.Printf("fusion: speed=%.1fkm/h suggested=%.1fkm/h grade=%.2f%% trip=%.3fkm follow_range=%.3fkm follow_rate=%v idx=%d proj=%.1fm lat=%.6f lon=%.6f",
		hb.SpeedKMH, hb.SuggestedSpeedKMH, hb.GradePercent, hb.TripDistanceKM, hb.FollowRangeKM, followRateString(hb), hb.MatchedIndex, hb.ProjectionDistance, hb.Lat, hb.Lon)

	return hb
}

func followRateString(hb Heartbeat) string {
	if !hb.FollowRateOK {
		return "undefined"
	}
	return strconv.FormatFloat(hb.FollowRate, 'f', 4, 64)
}
