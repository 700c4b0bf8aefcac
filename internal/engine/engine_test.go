package engine

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelwifi/apd/internal/clock"
	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/core/ports"
	"github.com/kestrelwifi/apd/internal/frame/ie"
	"github.com/kestrelwifi/apd/internal/ratepolicy"
	"github.com/kestrelwifi/apd/internal/transport/mock"
)

func realClockForTest(t *testing.T) ports.Clock {
	t.Helper()
	return clock.New()
}

var (
	engOwnMAC = domain.MAC{0xaa, 0, 0, 0, 0, 1}
	engStaMAC = domain.MAC{0xbb, 0, 0, 0, 0, 2}
)

func hwAddr(m domain.MAC) net.HardwareAddr { return net.HardwareAddr(m.Bytes()) }

// rawMgmt builds a full RadioTap+Dot11+body frame the way a client would
// send it, mirroring internal/frame's own serialize helper.
func rawMgmt(t *testing.T, typ layers.Dot11Type, dst, src, bssid domain.MAC, seq uint16, body []byte) []byte {
	t.Helper()
	dot11 := &layers.Dot11{
		Type:           typ,
		Address1:       hwAddr(dst),
		Address2:       hwAddr(src),
		Address3:       hwAddr(bssid),
		SequenceNumber: seq,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, &layers.RadioTap{Present: layers.RadioTapPresentRate, Rate: 2}, dot11, gopacket.Payload(body)))
	return append([]byte{}, buf.Bytes()...)
}

func authReqBody() []byte {
	body := make([]byte, 6)
	binary.LittleEndian.PutUint16(body[0:2], uint16(domain.AuthAlgoOpenSystem))
	binary.LittleEndian.PutUint16(body[2:4], 1)
	return body
}

func assocReqBodyRSN(ssid string, basicRate domain.Rate, pairwise domain.Cipher) []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint16(body[0:2], 0x0411)
	binary.LittleEndian.PutUint16(body[2:4], 10)
	body = ie.Append(body, ie.IDSSID, []byte(ssid))
	body = ie.Append(body, ie.IDSupportedRates, []byte{byte(basicRate) | 0x80})
	rsn := ie.BuildRSNBody(pairwise, pairwise, domain.AKMPSK, ie.RSNCapabilities{})
	body = ie.Append(body, ie.IDRSN, rsn)
	return body
}

type testSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *testSink) HandleEvent(e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *testSink) kinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *domain.ApState, *mock.Transport, *testSink, func()) {
	t.Helper()
	transport := mock.New()
	sink := &testSink{}
	caps := ratepolicy.WiphyCaps{Pairwise: domain.CipherMask(0).Add(domain.CipherCCMP)}

	eng := New(1, transport, realClockForTest(t), sink, caps, nil)
	eng.SendEAPOL = func(mac domain.MAC, raw []byte) error { return nil }

	cfg := &domain.ApConfig{SSID: "testnet", HasPSK: true, PSK: [32]byte{1, 2, 3, 4}}
	require.NoError(t, eng.Start(context.Background(), cfg, engOwnMAC))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()

	stop := func() {
		cancel()
		<-done
	}
	return eng, eng.State(), transport, sink, stop
}

func TestEngineAuthThenRSNAssocStartsHandshake(t *testing.T) {
	eng, state, transport, _, stop := newTestEngine(t)
	defer stop()

	eng.Inbound <- rawMgmt(t, layers.Dot11TypeMgmtAuth, engOwnMAC, engStaMAC, engOwnMAC, 1, authReqBody())

	require.Eventually(t, func() bool {
		sta, ok := state.Stations[engStaMAC]
		return ok && sta.State == domain.StationAuthenticated
	}, time.Second, time.Millisecond)

	body := assocReqBodyRSN("testnet", 2, domain.CipherCCMP)
	eng.Inbound <- rawMgmt(t, layers.Dot11TypeMgmtAssociationReq, engOwnMAC, engStaMAC, engOwnMAC, 2, body)

	require.Eventually(t, func() bool {
		sta, ok := state.Stations[engStaMAC]
		return ok && sta.State == domain.StationAssociated
	}, time.Second, time.Millisecond)

	assert.True(t, transport.Stations[engStaMAC].Associated)
	assert.True(t, state.GTKSet)
	require.Len(t, transport.KeysSet, 1)
	assert.False(t, transport.KeysSet[0].Pairwise)
}

func TestEngineAssocWrongSSIDRejected(t *testing.T) {
	eng, state, transport, _, stop := newTestEngine(t)
	defer stop()

	eng.Inbound <- rawMgmt(t, layers.Dot11TypeMgmtAuth, engOwnMAC, engStaMAC, engOwnMAC, 1, authReqBody())
	require.Eventually(t, func() bool {
		_, ok := state.Stations[engStaMAC]
		return ok
	}, time.Second, time.Millisecond)

	body := assocReqBodyRSN("wrong-ssid", 2, domain.CipherCCMP)
	eng.Inbound <- rawMgmt(t, layers.Dot11TypeMgmtAssociationReq, engOwnMAC, engStaMAC, engOwnMAC, 2, body)

	require.Eventually(t, func() bool {
		return len(transport.Sent) >= 2
	}, time.Second, time.Millisecond)

	sta := state.Stations[engStaMAC]
	assert.Equal(t, domain.StationAuthenticated, sta.State)
}

func TestEngineAssocUnsupportedPairwiseRejected(t *testing.T) {
	eng, state, _, _, stop := newTestEngine(t)
	defer stop()

	eng.Inbound <- rawMgmt(t, layers.Dot11TypeMgmtAuth, engOwnMAC, engStaMAC, engOwnMAC, 1, authReqBody())
	require.Eventually(t, func() bool {
		_, ok := state.Stations[engStaMAC]
		return ok
	}, time.Second, time.Millisecond)

	// AP only advertises CCMP; offer TKIP only.
	body := assocReqBodyRSN("testnet", 2, domain.CipherTKIP)
	eng.Inbound <- rawMgmt(t, layers.Dot11TypeMgmtAssociationReq, engOwnMAC, engStaMAC, engOwnMAC, 2, body)

	require.Eventually(t, func() bool {
		sta := state.Stations[engStaMAC]
		return sta.Pending == nil
	}, time.Second, time.Millisecond)

	sta := state.Stations[engStaMAC]
	assert.Equal(t, domain.StationAuthenticated, sta.State)
}

func TestEngineDeauthRemovesStation(t *testing.T) {
	eng, state, transport, sink, stop := newTestEngine(t)
	defer stop()

	eng.Inbound <- rawMgmt(t, layers.Dot11TypeMgmtAuth, engOwnMAC, engStaMAC, engOwnMAC, 1, authReqBody())
	require.Eventually(t, func() bool {
		_, ok := state.Stations[engStaMAC]
		return ok
	}, time.Second, time.Millisecond)

	body := make([]byte, 2)
	binary.LittleEndian.PutUint16(body, uint16(domain.ReasonUnspecified))
	eng.Inbound <- rawMgmt(t, layers.Dot11TypeMgmtDeauthentication, engOwnMAC, engStaMAC, engOwnMAC, 2, body)

	require.Eventually(t, func() bool {
		_, ok := state.Stations[engStaMAC]
		return !ok
	}, time.Second, time.Millisecond)

	_, stillInTransport := transport.Stations[engStaMAC]
	assert.False(t, stillInTransport)
	assert.Contains(t, sink.kinds(), domain.EventStationRemoved)
}

func TestEngineStartHonorsBeaconIntervalOverride(t *testing.T) {
	transport := mock.New()
	sink := &testSink{}
	caps := ratepolicy.WiphyCaps{Pairwise: domain.CipherMask(0).Add(domain.CipherCCMP)}
	eng := New(1, transport, realClockForTest(t), sink, caps, nil)

	cfg := &domain.ApConfig{SSID: "testnet", HasPSK: true, PSK: [32]byte{1, 2, 3, 4}, BeaconIntervalTU: 50, DTIM: 1}
	require.NoError(t, eng.Start(context.Background(), cfg, engOwnMAC))

	require.Len(t, transport.Started, 1)
	assert.Equal(t, uint16(50), transport.Started[0].BeaconIntervalTU)
	assert.Equal(t, uint8(1), transport.Started[0].DTIM)
	assert.Equal(t, uint16(50), eng.State().BeaconInterval)
}

func TestEngineStartFallsBackToDefaultBeaconInterval(t *testing.T) {
	transport := mock.New()
	sink := &testSink{}
	caps := ratepolicy.WiphyCaps{Pairwise: domain.CipherMask(0).Add(domain.CipherCCMP)}
	eng := New(1, transport, realClockForTest(t), sink, caps, nil)

	cfg := &domain.ApConfig{SSID: "testnet", HasPSK: true, PSK: [32]byte{1, 2, 3, 4}}
	require.NoError(t, eng.Start(context.Background(), cfg, engOwnMAC))

	assert.Equal(t, defaultBeaconIntervalTU, transport.Started[0].BeaconIntervalTU)
	assert.Equal(t, defaultDTIM, transport.Started[0].DTIM)
}

func TestEnginePushButtonArmsWSCAndRefreshesBeacon(t *testing.T) {
	eng, state, transport, _, stop := newTestEngine(t)
	defer stop()

	require.NoError(t, eng.PushButton(context.Background()))
	assert.True(t, state.WSCPBCArmed)
	require.Len(t, transport.Beacons, 1)
}
