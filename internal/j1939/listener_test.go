package j1939

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStateTransitions(t *testing.T) {
	s := StateInit
	s = Transition(s, EventCANUpOK)
	assert.Equal(t, StateCANUp, s)
	s = Transition(s, EventECUAttached)
	assert.Equal(t, StateClaiming, s)
	s = Transition(s, EventAddressClaimOK)
	assert.Equal(t, StateNormal, s)
	assert.False(t, RequestsSuppressed(s))
	s = Transition(s, EventClose)
	assert.Equal(t, StateClosed, s)
}

func TestStateTransitionUnknownEventIsNoOp(t *testing.T) {
	s := Transition(StateInit, EventAddressClaimOK)
	assert.Equal(t, StateInit, s)
}

func TestRequestsSuppressedBeforeNormal(t *testing.T) {
	for _, s := range []State{StateInit, StateCANUp, StateClaiming, StateClosed} {
		assert.True(t, RequestsSuppressed(s))
	}
	assert.False(t, RequestsSuppressed(StateNormal))
}

func TestSchedulerDueOnFirstRequest(t *testing.T) {
	s := NewScheduler()
	now := time.Now()
	assert.True(t, s.Due(61444, now))
}

func TestSchedulerDueAfterInterval(t *testing.T) {
	s := NewScheduler()
	now := time.Now()
	s.MarkRequested(61444, now) // ClassFast, 0.2s
	assert.False(t, s.Due(61444, now.Add(100*time.Millisecond)))
	assert.True(t, s.Due(61444, now.Add(250*time.Millisecond)))
}

func TestSchedulerListenOnlyNeverDue(t *testing.T) {
	s := NewScheduler()
	now := time.Now()
	assert.False(t, s.Due(65262, now))
	s.MarkRequested(65262, now)
	assert.False(t, s.Due(65262, now.Add(24*time.Hour)))
}

func TestSchedulerDueRequestsSortedAscending(t *testing.T) {
	s := NewScheduler()
	now := time.Now()
	discovered := map[uint32]bool{65276: true, 61444: true, 65265: true}
	due := s.DueRequests(discovered, now)
	assert.Equal(t, []uint32{61444, 65265, 65276}, due)
}

func TestBuildRequestPayload(t *testing.T) {
	p := BuildRequestPayload(61444)
	assert.Equal(t, [8]byte{0x04, 0xF0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, p)
}

func TestNameRoundTrip(t *testing.T) {
	n := DefaultGatewayName
	got := DecodeName(n.Encode())
	assert.Equal(t, n.IdentityNumber, got.IdentityNumber)
	assert.Equal(t, n.ManufacturerCode, got.ManufacturerCode)
	assert.Equal(t, n.Function, got.Function)
	assert.Equal(t, n.ArbitraryAddress, got.ArbitraryAddress)
}

func TestDiscoveryMarkHeardFirstTimeOnly(t *testing.T) {
	d := NewDiscovery()
	assert.True(t, d.MarkHeard(61444))
	assert.False(t, d.MarkHeard(61444))
	assert.True(t, d.Available()[61444])
}

func TestDiscoveryAvailableIsSnapshot(t *testing.T) {
	d := NewDiscovery()
	d.MarkHeard(61444)
	snap := d.Available()
	d.MarkHeard(65265)
	assert.Len(t, snap, 1)
	assert.Len(t, d.Available(), 2)
}
