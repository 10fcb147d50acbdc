package fusion

import (
	"log"
	"sync"

	"github.com/h11labs/truckcopilot/common"
	"github.com/h11labs/truckcopilot/internal/bus"
	"github.com/h11labs/truckcopilot/internal/routematch"
)

// ratioStep is the fixed interpolation increment the simulator advances
// along each segment per tick.
const ratioStep = 0.2

// minStepMeters is the step-length floor below which the simulator treats
// the segment as degenerate and forces an index advance rather than
// spinning in place.
const minStepMeters = 1e-6

// Simulator marches synthetic position/distance along a loaded speed plan,
// publishing sim/position and sim/distance, in place of real GNSS input.
type Simulator struct {
	bus    *bus.Bus
	points []routematch.Point

	mu            sync.Mutex
	index         int
	ratio         float64
	totalDistance float64
	havePrev      bool
	prevLat       float64
	prevLon       float64
}

// NewSimulator creates a simulator marching along points, starting at its
// first point.
func NewSimulator(b *bus.Bus, points []routematch.Point) *Simulator {
	s := &Simulator{bus: b, points: points}
	if len(points) > 0 {
		s.prevLat, s.prevLon = points[0].Lat, points[0].Lon
		s.havePrev = true
	}
	return s
}

// Tick advances the simulator by one ratioStep and publishes the resulting
// synthetic position and cumulative distance. It is a no-op once the route
// is exhausted.
func (s *Simulator) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.points) < 2 || s.index >= len(s.points)-1 {
		return
	}

	p1 := s.points[s.index]
	p2 := s.points[s.index+1]

	s.ratio += ratioStep
	for s.ratio >= 1 && s.index < len(s.points)-1 {
		s.ratio -= 1
		s.index++
		if s.index < len(s.points)-1 {
			p1 = s.points[s.index]
			p2 = s.points[s.index+1]
		}
	}

	var lat, lon float64
	if s.index >= len(s.points)-1 {
		lat, lon = s.points[len(s.points)-1].Lat, s.points[len(s.points)-1].Lon
	} else {
		lat = p1.Lat + s.ratio*(p2.Lat-p1.Lat)
		lon = p1.Lon + s.ratio*(p2.Lon-p1.Lon)
	}

	var stepMeters float64
	if s.havePrev {
		stepMeters = common.HaversineMeters(s.prevLat, s.prevLon, lat, lon)
	}

	if s.havePrev && stepMeters < minStepMeters && s.index < len(s.points)-1 {
		log.Printf("fusion: simulator step below %.0eµm at index %d, forcing advance", minStepMeters*1e6, s.index)
		s.ratio = 0
		s.index++
		if s.index < len(s.points)-1 {
			lat, lon = s.points[s.index].Lat, s.points[s.index].Lon
		}
		stepMeters = common.HaversineMeters(s.prevLat, s.prevLon, lat, lon)
	}

	s.totalDistance += stepMeters
	s.prevLat, s.prevLon = lat, lon
	s.havePrev = true

	s.publish(lat, lon, s.totalDistance)
}

func (s *Simulator) publish(lat, lon, totalDistance float64) {
	if err := s.bus.Publish("sim/position", struct {
		Loc struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"loc"`
		Alt float64 `json:"alt"`
	}{Loc: struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}{Lat: lat, Lon: lon}}); err != nil {
		log.Printf("fusion: simulator publish sim/position: %v", err)
	}

	if err := s.bus.Publish("sim/distance", struct {
		TotalDistanceM float64 `json:"total_distance_m"`
	}{TotalDistanceM: totalDistance}); err != nil {
		log.Printf("fusion: simulator publish sim/distance: %v", err)
	}
}

// Done reports whether the simulator has reached the end of the route.
func (s *Simulator) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points) < 2 || s.index >= len(s.points)-1
}
