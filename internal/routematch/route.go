// Package routematch implements the route matcher: it loads a speed-plan
// route, projects incoming GPS fixes onto the nearest segment, and derives
// a suggested speed/grade by linear interpolation.
package routematch

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/h11labs/truckcopilot/common"
)

// searchBehind and searchAhead bound the local search window around the
// previous match index k: [k-searchBehind, k+searchAhead].
const (
	searchBehind       = 20
	searchAhead        = 100
	fullSearchFallback = 50.0 // meters; window search below this is trusted
	offEndpointPenalty = 10.0 // meters; added when r falls outside [0,1]
	jumpWarnThreshold  = 5    // index delta that triggers a jump-warning log
)

// VehState carries the planned speed at a speed-plan point, in meters per
// second, matching the route JSON's veh_state.speed field.
type VehState struct {
	Speed float64 `json:"speed"`
}

// Point is one flattened speed-plan point.
type Point struct {
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	VehState VehState `json:"veh_state"`
	Grade    float64  `json:"grade"`
}

type step struct {
	SpeedPlan []*Point `json:"speedplan"`
}

type leg struct {
	Steps []step `json:"steps"`
}

// routeDocument is the on-disk shape of a speed-plan route.
type routeDocument struct {
	Legs []leg `json:"legs"`
}

// LoadRoute parses a speed-plan route document and flattens every non-null
// point across legs/steps into one sequence. Consecutive points at the same
// coordinates are collapsed so every segment has positive length.
func LoadRoute(r io.Reader) ([]Point, error) {
	var doc routeDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("routematch: decode route: %w", err)
	}

	var points []Point
	for _, l := range doc.Legs {
		for _, s := range l.Steps {
			for _, p := range s.SpeedPlan {
				if p == nil {
					continue
				}
				if n := len(points); n > 0 && points[n-1].Lat == p.Lat && points[n-1].Lon == p.Lon {
					continue
				}
				points = append(points, *p)
			}
		}
	}
	return points, nil
}

// Matcher tracks the active route and the last-matched segment index.
type Matcher struct {
	routeName string
	points    []Point

	currentIndex   int // -1 means "no match yet"
	lastLat        float64
	lastLon        float64
	projectionDist float64
}

// NewMatcher creates an unselected matcher.
func NewMatcher() *Matcher {
	return &Matcher{currentIndex: -1}
}

// RouteSelected reports whether a route has been loaded.
func (m *Matcher) RouteSelected() bool {
	return m.points != nil
}

// LoadPoints installs name/points as the active route, resetting match
// state.
func (m *Matcher) LoadPoints(name string, points []Point) {
	m.routeName = name
	m.points = points
	m.currentIndex = -1
}

// RouteName returns the active route's name, or "" if none is selected.
func (m *Matcher) RouteName() string {
	return m.routeName
}

// SelectClosestRoute picks, from candidates, the route whose first point is
// nearest to (lat, lon) by great-circle distance, and loads it. candidates maps a route name to its already-loaded
// point sequence (decoupling this from file I/O).
func (m *Matcher) SelectClosestRoute(lat, lon float64, candidates map[string][]Point) (selected string, ok bool) {
	minDist := math.Inf(1)
	for name, points := range candidates {
		if len(points) == 0 {
			continue
		}
		d := common.HaversineMeters(lat, lon, points[0].Lat, points[0].Lon)
		if d < minDist {
			minDist = d
			selected = name
		}
	}
	if selected == "" {
		return "", false
	}
	m.LoadPoints(selected, candidates[selected])
	return selected, true
}

// UpdatePt matches (lat, lon) against the active route and returns the
// matched point, if any.
func (m *Matcher) UpdatePt(lat, lon float64) (Point, bool) {
	p, ok := m.matchSolution(lat, lon)
	m.lastLat, m.lastLon = lat, lon
	return p, ok
}

// CurrentIndex returns the last-matched segment's starting index, or -1.
func (m *Matcher) CurrentIndex() int {
	return m.currentIndex
}

// ProjectionDistance returns the cross-track (or penalized) distance of the
// last match, in meters.
func (m *Matcher) ProjectionDistance() float64 {
	return m.projectionDist
}

// matchSolution runs the windowed projection search, falling back to the
// full range when no nearby segment scores under the fallback threshold.
func (m *Matcher) matchSolution(lat, lon float64) (Point, bool) {
	n := len(m.points)
	if n < 2 {
		return Point{}, false
	}

	var bestIdx int
	var bestDist float64

	if m.currentIndex >= 0 {
		start := m.currentIndex - searchBehind
		if start < 0 {
			start = 0
		}
		end := m.currentIndex + searchAhead + 1
		if end > n-1 {
			end = n - 1
		}
		bestIdx, bestDist = m.findBestInRange(lat, lon, start, end)

		if bestIdx == -1 || bestDist > fullSearchFallback {
			fullIdx, fullDist := m.findBestInRange(lat, lon, 0, n-1)
			if fullIdx != -1 && (bestIdx == -1 || fullDist < bestDist) {
				bestIdx, bestDist = fullIdx, fullDist
			}
		}
	} else {
		bestIdx, bestDist = m.findBestInRange(lat, lon, 0, n-1)
	}

	if bestIdx == -1 {
		return Point{}, false
	}

	if m.currentIndex != -1 && absInt(bestIdx-m.currentIndex) > jumpWarnThreshold {
		jump := common.HaversineMeters(
			m.points[m.currentIndex].Lat, m.points[m.currentIndex].Lon,
			m.points[bestIdx].Lat, m.points[bestIdx].Lon,
		)
		logRouteJump(m.currentIndex, bestIdx, jump)
	}

	m.projectionDist = bestDist
	m.currentIndex = bestIdx
	return m.points[bestIdx], true
}

// findBestInRange scores every segment [i, i+1) for i in [start, end) and
// returns the index of the best (lowest-scoring) segment, or -1 if the
// range held no usable segment.
func (m *Matcher) findBestInRange(lat, lon float64, start, end int) (int, float64) {
	bestIdx := -1
	minDist := math.Inf(1)

	for i := start; i < end; i++ {
		if i < 0 || i >= len(m.points)-1 {
			continue
		}
		p1 := m.points[i]
		p2 := m.points[i+1]
		cosLat := math.Cos(p1.Lat * math.Pi / 180)

		dx := (p2.Lon - p1.Lon) * cosLat
		dy := p2.Lat - p1.Lat
		magSq := dx*dx + dy*dy

		var dist float64
		if magSq > 0 {
			gx := (lon - p1.Lon) * cosLat
			gy := lat - p1.Lat
			r := (gx*dx + gy*dy) / magSq

			if r >= 0 && r <= 1 {
				projLat := p1.Lat + r*(p2.Lat-p1.Lat)
				projLon := p1.Lon + r*(p2.Lon-p1.Lon)
				dist = common.HaversineMeters(lat, lon, projLat, projLon)
			} else {
				rc := clamp01(r)
				projLat := p1.Lat + rc*(p2.Lat-p1.Lat)
				projLon := p1.Lon + rc*(p2.Lon-p1.Lon)
				dist = common.HaversineMeters(lat, lon, projLat, projLon) + offEndpointPenalty
			}
		} else {
			dist = common.HaversineMeters(lat, lon, p1.Lat, p1.Lon)
		}

		if dist < minDist {
			minDist = dist
			bestIdx = i
		}
	}
	return bestIdx, minDist
}

// SuggestSpeedAndGrade returns the ratio-weighted interpolation of the
// matched segment's endpoints' speed (m/s) and grade.
// ok is false when no match has been made yet.
func (m *Matcher) SuggestSpeedAndGrade() (speedMS, grade float64, ok bool) {
	if m.currentIndex == -1 || len(m.points) == 0 {
		return 0, 0, false
	}

	p := m.points[m.currentIndex]
	next := p
	if m.currentIndex < len(m.points)-1 {
		next = m.points[m.currentIndex+1]
	}

	ratio := ratio(p, next, m.lastLat, m.lastLon)

	speedMS = p.VehState.Speed*(1-ratio) + next.VehState.Speed*ratio
	grade = p.Grade*(1-ratio) + next.Grade*ratio
	return speedMS, grade, true
}

// ratio computes the clamped projection ratio of (lat, lon) onto the
// segment p1->p2, matching the algorithm step used to classify a segment
// as interior/exterior, reused here for interpolation.
func ratio(p1, p2 Point, lat, lon float64) float64 {
	cosLat := math.Cos(p1.Lat * math.Pi / 180)
	dx := (p2.Lon - p1.Lon) * cosLat
	dy := p2.Lat - p1.Lat
	magSq := dx*dx + dy*dy
	if magSq == 0 {
		return 0
	}
	gx := (lon - p1.Lon) * cosLat
	gy := lat - p1.Lat
	r := (gx*dx + gy*dy) / magSq
	return clamp01(r)
}

func clamp01(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
