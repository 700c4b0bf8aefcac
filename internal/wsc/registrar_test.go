package wsc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/core/ports"
	"github.com/kestrelwifi/apd/internal/frame/ie"
)

// fakeClock gives tests full control over Now() and records After/Cancel
// calls without ever actually firing a timer.
type fakeClock struct {
	now      time.Time
	next     uint64
	armed    map[uint64]time.Duration
	cancelled []uint64
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start, armed: make(map[uint64]time.Duration)}
}

func (c *fakeClock) Fires() <-chan ports.TimerFired { return nil }

func (c *fakeClock) After(d time.Duration) uint64 {
	c.next++
	c.armed[c.next] = d
	return c.next
}

func (c *fakeClock) Cancel(token uint64) {
	delete(c.armed, token)
	c.cancelled = append(c.cancelled, token)
}

func (c *fakeClock) Now() time.Time { return c.now }

func newState() *domain.ApState {
	return domain.NewApState(&domain.ApConfig{SSID: "test"}, domain.MAC{1, 2, 3, 4, 5, 6}, 1)
}

func pbcProbe() *ie.WSCPayload {
	return &ie.WSCPayload{ConfigMethods: ie.ConfigMethodPushButton, DevicePasswordID: ie.DevicePasswordIDPushButton}
}

func TestPushButtonArms(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := New(clock, nil)
	state := newState()

	token, err := r.PushButton(state)
	require.NoError(t, err)
	assert.True(t, state.WSCPBCArmed)
	assert.Equal(t, ie.DevicePasswordIDPushButton, state.WSCDPID)
	assert.Equal(t, token, state.WSCTimer)
	assert.Contains(t, clock.armed, token)
	assert.Equal(t, domain.WalkTime, clock.armed[token])
}

func TestPushButtonOverlapRefuses(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := New(clock, nil)
	state := newState()

	r.OnProbeRequest(state, domain.MAC{0xa, 0, 0, 0, 0, 1}, pbcProbe())
	r.OnProbeRequest(state, domain.MAC{0xa, 0, 0, 0, 0, 2}, pbcProbe())

	_, err := r.PushButton(state)
	assert.ErrorIs(t, err, domain.ErrSessionOverlap)
	assert.False(t, state.WSCPBCArmed)
}

func TestOnProbeRequestIgnoresNonPBC(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := New(clock, nil)
	state := newState()

	r.OnProbeRequest(state, domain.MAC{1, 1, 1, 1, 1, 1}, &ie.WSCPayload{})
	assert.Empty(t, state.WSCPBCProbes)

	r.OnProbeRequest(state, domain.MAC{1, 1, 1, 1, 1, 1}, nil)
	assert.Empty(t, state.WSCPBCProbes)
}

func TestOnProbeRequestPrunesStaleRecords(t *testing.T) {
	start := time.Now()
	clock := newFakeClock(start)
	r := New(clock, nil)
	state := newState()

	mac1 := domain.MAC{1, 1, 1, 1, 1, 1}
	r.OnProbeRequest(state, mac1, pbcProbe())
	require.Len(t, state.WSCPBCProbes, 1)

	clock.now = start.Add(domain.MonitorTime + time.Second)
	mac2 := domain.MAC{2, 2, 2, 2, 2, 2}
	r.OnProbeRequest(state, mac2, pbcProbe())

	// mac1's stale record is pruned; only mac2 (fresh) remains.
	require.Len(t, state.WSCPBCProbes, 1)
	assert.Equal(t, mac2, state.WSCPBCProbes[0].MAC)
}

func TestDisarmCancelsTimer(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := New(clock, nil)
	state := newState()

	token, err := r.PushButton(state)
	require.NoError(t, err)

	r.Disarm(state)
	assert.False(t, state.WSCPBCArmed)
	assert.Zero(t, state.WSCTimer)
	assert.Nil(t, state.WSCPBCProbes)
	assert.Contains(t, clock.cancelled, token)
}

func TestOnWalkTimeoutOnlyMatchesCurrentToken(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := New(clock, nil)
	state := newState()

	token, err := r.PushButton(state)
	require.NoError(t, err)

	assert.False(t, r.OnWalkTimeout(state, token+1))
	assert.True(t, state.WSCPBCArmed)

	assert.True(t, r.OnWalkTimeout(state, token))
	assert.False(t, state.WSCPBCArmed)
}

func TestCheckAssocOverlap(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := New(clock, nil)
	state := newState()

	mac := domain.MAC{1, 1, 1, 1, 1, 1}
	other := domain.MAC{2, 2, 2, 2, 2, 2}

	assert.NoError(t, r.CheckAssocOverlap(state, mac))

	r.OnProbeRequest(state, mac, pbcProbe())
	assert.NoError(t, r.CheckAssocOverlap(state, mac))

	r.OnProbeRequest(state, other, pbcProbe())
	assert.ErrorIs(t, r.CheckAssocOverlap(state, mac), domain.ErrSessionOverlap)
}

func TestOnProbeRequestIgnoresWrongDevicePasswordID(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := New(clock, nil)
	state := newState()

	r.OnProbeRequest(state, domain.MAC{1, 1, 1, 1, 1, 1}, &ie.WSCPayload{ConfigMethods: ie.ConfigMethodPushButton})
	assert.Empty(t, state.WSCPBCProbes)
}

func TestOnProbeRequestSignalsOverlapAndDisarms(t *testing.T) {
	clock := newFakeClock(time.Now())
	r := New(clock, nil)
	state := newState()

	first := domain.MAC{1, 1, 1, 1, 1, 1}
	second := domain.MAC{2, 2, 2, 2, 2, 2}

	_, overlapped := r.OnProbeRequest(state, first, pbcProbe())
	assert.False(t, overlapped)
	state.WSCPBCArmed = true

	overlapMAC, overlapped := r.OnProbeRequest(state, second, pbcProbe())
	assert.True(t, overlapped)
	assert.Equal(t, first, overlapMAC)
	assert.False(t, state.WSCPBCArmed, "overlap must disarm PBC mode")
}

func TestBeaconAndProbeResponseTailsDifferWhenArmed(t *testing.T) {
	state := newState()
	state.WSCPBCArmed = true
	desc := domain.WSCDescriptor{DeviceName: "apd"}

	beacon := BeaconTail(desc, nil, state)
	probe := ProbeResponseTail(desc, nil, state)

	assert.NotEmpty(t, beacon)
	assert.NotEmpty(t, probe)
	assert.NotEqual(t, beacon, probe)
}
