package routematch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func straightRoute() []Point {
	return []Point{
		{Lat: 0, Lon: 0, VehState: VehState{Speed: 20}, Grade: 0.0},
		{Lat: 0, Lon: 1e-3, VehState: VehState{Speed: 22}, Grade: 0.01},
		{Lat: 0, Lon: 2e-3, VehState: VehState{Speed: 24}, Grade: 0.02},
	}
}

func TestUpdatePtInteriorProjection(t *testing.T) {
	m := NewMatcher()
	m.LoadPoints("r1", straightRoute())

	_, ok := m.UpdatePt(0, 1.5e-3)
	require.True(t, ok)
	assert.Equal(t, 1, m.CurrentIndex())
	assert.InDelta(t, 0.0, m.ProjectionDistance(), 1.0)
}

func TestUpdatePtExteriorAppliesPenalty(t *testing.T) {
	m := NewMatcher()
	m.LoadPoints("r1", []Point{
		{Lat: 0, Lon: 0, VehState: VehState{Speed: 20}},
		{Lat: 0, Lon: 1e-3, VehState: VehState{Speed: 22}},
	})

	_, ok := m.UpdatePt(0, 3e-3)
	require.True(t, ok)
	assert.Equal(t, 0, m.CurrentIndex())
	assert.Greater(t, m.ProjectionDistance(), offEndpointPenalty)
}

func TestUpdatePtCoincidentWithPlanPoint(t *testing.T) {
	m := NewMatcher()
	pts := straightRoute()
	m.LoadPoints("r1", pts)

	_, ok := m.UpdatePt(pts[1].Lat, pts[1].Lon)
	require.True(t, ok)
	assert.Contains(t, []int{0, 1}, m.CurrentIndex())
	assert.Less(t, m.ProjectionDistance(), 1.0)
}

func TestUpdatePtNoRouteReturnsFalse(t *testing.T) {
	m := NewMatcher()
	_, ok := m.UpdatePt(0, 0)
	assert.False(t, ok)
	assert.Equal(t, -1, m.CurrentIndex())
}

func TestUpdatePtSingleZeroLengthSegmentFallsBackToPointDistance(t *testing.T) {
	m := NewMatcher()
	m.LoadPoints("r1", []Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 0},
	})
	_, ok := m.UpdatePt(0, 1e-3)
	require.True(t, ok)
	assert.Equal(t, 0, m.CurrentIndex())
	assert.Greater(t, m.ProjectionDistance(), 0.0)
}

func TestSuggestSpeedAndGradeInterpolates(t *testing.T) {
	m := NewMatcher()
	m.LoadPoints("r1", straightRoute())

	_, ok := m.UpdatePt(0, 1.5e-3)
	require.True(t, ok)

	speed, grade, ok := m.SuggestSpeedAndGrade()
	require.True(t, ok)
	assert.InDelta(t, 23.0, speed, 0.5)
	assert.InDelta(t, 0.015, grade, 0.005)
}

func TestSuggestSpeedAndGradeBeforeMatchIsNotOK(t *testing.T) {
	m := NewMatcher()
	m.LoadPoints("r1", straightRoute())
	_, _, ok := m.SuggestSpeedAndGrade()
	assert.False(t, ok)
}

func TestSelectClosestRoutePicksNearestFirstPoint(t *testing.T) {
	m := NewMatcher()
	candidates := map[string][]Point{
		"near": {{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1e-3}},
		"far":  {{Lat: 10, Lon: 10}, {Lat: 10, Lon: 10.001}},
	}

	name, ok := m.SelectClosestRoute(0.0001, 0.0001, candidates)
	require.True(t, ok)
	assert.Equal(t, "near", name)
	assert.Equal(t, "near", m.RouteName())
}

func TestSelectClosestRouteWithNoCandidatesFails(t *testing.T) {
	m := NewMatcher()
	_, ok := m.SelectClosestRoute(0, 0, map[string][]Point{})
	assert.False(t, ok)
}

func TestLoadRouteFlattensLegsAndStepsSkippingNulls(t *testing.T) {
	doc := `{
		"legs": [
			{"steps": [
				{"speedplan": [{"lat":1,"lon":2,"veh_state":{"speed":10},"grade":0.1}, null]}
			]},
			{"steps": [
				{"speedplan": [{"lat":3,"lon":4,"veh_state":{"speed":12},"grade":0.2}]}
			]}
		]
	}`

	points, err := LoadRoute(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 1.0, points[0].Lat)
	assert.Equal(t, 3.0, points[1].Lat)
	assert.Equal(t, 12.0, points[1].VehState.Speed)
}

func TestUpdatePtWindowFallsBackToFullRangeOnLargeJump(t *testing.T) {
	m := NewMatcher()
	pts := make([]Point, 0, 200)
	for i := 0; i < 200; i++ {
		pts = append(pts, Point{Lat: 0, Lon: float64(i) * 1e-3, VehState: VehState{Speed: 20}})
	}
	m.LoadPoints("r1", pts)

	_, ok := m.UpdatePt(0, 0)
	require.True(t, ok)
	assert.Equal(t, 0, m.CurrentIndex())

	// Jump far beyond the local search window, to the middle of segment
	// 190; full-range fallback must still find the true nearest segment.
	_, ok = m.UpdatePt(0, 0.1905)
	require.True(t, ok)
	assert.Equal(t, 190, m.CurrentIndex())
}

func TestLoadRouteCollapsesDuplicateConsecutivePoints(t *testing.T) {
	doc := `{
		"legs": [
			{"steps": [
				{"speedplan": [
					{"lat":1,"lon":2,"veh_state":{"speed":10},"grade":0.1},
					{"lat":1,"lon":2,"veh_state":{"speed":11},"grade":0.1},
					{"lat":1,"lon":3,"veh_state":{"speed":12},"grade":0.2}
				]}
			]}
		]
	}`

	points, err := LoadRoute(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 3.0, points[1].Lon)
}
