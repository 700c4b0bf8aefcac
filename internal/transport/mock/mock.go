// Package mock implements an in-memory ports.Transport for tests and the
// reference cmd/apd binary, grounded on the reference implementation's
// internal/adapters/sniffer/injection/MockInjector (capture-in-memory
// instead of touching a real interface), extended to cover the full
// abstract kernel command surface of
package mock

import (
	"context"
	"sync"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/core/ports"
)

// SentFrame records one SendMgmtFrame call.
type SentFrame struct {
	Frame      []byte
	WaitForACK bool
	NoCCK      bool
}

// KeyInstall records one NewKeyGroup/NewKeyPairwise call.
type KeyInstall struct {
	Pairwise bool
	Cipher   domain.Cipher
	KeyID    uint8
	MAC      domain.MAC
	Key      []byte
	RSC      uint64
}

// Transport is a fake ports.Transport that captures every call and resolves
// it synchronously and successfully on Replies() unless told otherwise.
type Transport struct {
	mu sync.Mutex

	nextToken uint64
	replies   chan ports.CmdResult
	cancelled map[uint64]bool

	Started  []ports.StartAPParams
	Stopped  []uint32
	Beacons  [][2][]byte
	Sent     []SentFrame
	KeysSet  []KeyInstall
	Stations map[domain.MAC]ports.StationFlags

	// FailNextACK, if set, makes the next waitForACK SendMgmtFrame resolve
	// with a non-nil Err instead of success.
	FailNextACK bool

	// GroupRSC is returned by QueryGroupRSC; defaults to 0, settable for
	// tests exercising's "Open question — GTK RSC query".
	GroupRSC uint64
}

func New() *Transport {
	return &Transport{
		replies:   make(chan ports.CmdResult, 64),
		cancelled: make(map[uint64]bool),
		Stations:  make(map[domain.MAC]ports.StationFlags),
	}
}

func (t *Transport) Replies() <-chan ports.CmdResult { return t.replies }

func (t *Transport) token() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextToken++
	return t.nextToken
}

func (t *Transport) resolve(token uint64, err error) {
	t.mu.Lock()
	cancelled := t.cancelled[token]
	t.mu.Unlock()
	if cancelled {
		return
	}
	t.replies <- ports.CmdResult{Token: token, Err: err}
}

func (t *Transport) CancelToken(token uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled[token] = true
}

func (t *Transport) StartAP(ctx context.Context, p ports.StartAPParams) (uint64, error) {
	t.mu.Lock()
	t.Started = append(t.Started, p)
	t.mu.Unlock()
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) StopAP(ctx context.Context, ifIndex uint32) (uint64, error) {
	t.mu.Lock()
	t.Stopped = append(t.Stopped, ifIndex)
	t.mu.Unlock()
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) SetBeacon(ctx context.Context, ifIndex uint32, head, tail []byte) (uint64, error) {
	t.mu.Lock()
	t.Beacons = append(t.Beacons, [2][]byte{append([]byte{}, head...), append([]byte{}, tail...)})
	t.mu.Unlock()
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) RegisterFrame(ctx context.Context, ifIndex uint32, subtype domain.FrameSubtype, prefix []byte) (uint64, error) {
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) UnregisterFrame(ctx context.Context, ifIndex uint32, subtype domain.FrameSubtype) (uint64, error) {
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) SendMgmtFrame(ctx context.Context, ifIndex uint32, freqMHz int, frame []byte, waitForACK bool, noCCK bool) (uint64, error) {
	t.mu.Lock()
	t.Sent = append(t.Sent, SentFrame{Frame: append([]byte{}, frame...), WaitForACK: waitForACK, NoCCK: noCCK})
	fail := waitForACK && t.FailNextACK
	if fail {
		t.FailNextACK = false
	}
	t.mu.Unlock()

	tok := t.token()
	if fail {
		t.resolve(tok, domain.ErrKernelCommand)
	} else {
		t.resolve(tok, nil)
	}
	return tok, nil
}

func (t *Transport) NewStation(ctx context.Context, ifIndex uint32, mac domain.MAC, flags ports.StationFlags, aid uint16, rates domain.RateSet, listenInterval uint16, capability uint16) (uint64, error) {
	t.mu.Lock()
	t.Stations[mac] = flags
	t.mu.Unlock()
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) SetStationAssociated(ctx context.Context, ifIndex uint32, mac domain.MAC, aid uint16) (uint64, error) {
	t.mu.Lock()
	flags := t.Stations[mac]
	flags.Associated = true
	t.Stations[mac] = flags
	t.mu.Unlock()
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) SetStationAuthorized(ctx context.Context, ifIndex uint32, mac domain.MAC) (uint64, error) {
	t.mu.Lock()
	flags := t.Stations[mac]
	flags.Authenticated = true
	t.Stations[mac] = flags
	t.mu.Unlock()
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) SetStationUnauthorized(ctx context.Context, ifIndex uint32, mac domain.MAC) (uint64, error) {
	t.mu.Lock()
	flags := t.Stations[mac]
	flags.Authenticated = false
	t.Stations[mac] = flags
	t.mu.Unlock()
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) DelStation(ctx context.Context, ifIndex uint32, mac domain.MAC, reason domain.ReasonCode, disassoc bool) (uint64, error) {
	t.mu.Lock()
	delete(t.Stations, mac)
	t.mu.Unlock()
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) NewKeyGroup(ctx context.Context, ifIndex uint32, cipher domain.Cipher, keyID uint8, key []byte, rsc uint64) (uint64, error) {
	t.mu.Lock()
	t.KeysSet = append(t.KeysSet, KeyInstall{Cipher: cipher, KeyID: keyID, Key: append([]byte{}, key...), RSC: rsc})
	t.mu.Unlock()
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) SetKeyDefaultGroup(ctx context.Context, ifIndex uint32, keyID uint8) (uint64, error) {
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) DelKey(ctx context.Context, ifIndex uint32, keyID uint8, mac *domain.MAC) (uint64, error) {
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) NewKeyPairwise(ctx context.Context, ifIndex uint32, cipher domain.Cipher, mac domain.MAC, key []byte) (uint64, error) {
	t.mu.Lock()
	t.KeysSet = append(t.KeysSet, KeyInstall{Pairwise: true, Cipher: cipher, MAC: mac, Key: append([]byte{}, key...)})
	t.mu.Unlock()
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) SetKeyDefaultPairwise(ctx context.Context, ifIndex uint32, mac domain.MAC) (uint64, error) {
	tok := t.token()
	t.resolve(tok, nil)
	return tok, nil
}

func (t *Transport) QueryGroupRSC(ctx context.Context, ifIndex uint32, keyID uint8) (uint64, error) {
	return t.GroupRSC, nil
}
