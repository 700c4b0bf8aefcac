// Package engine implements the AP Engine: the
// top-level start/stop lifecycle, beacon refresh, and the single-goroutine
// frame-dispatch event loop that composes every other component. Grounded
// on a composition-root shape, replacing multi-goroutine scan/attack
// orchestration with a single-threaded event loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/core/ports"
	"github.com/kestrelwifi/apd/internal/frame/ie"
	"github.com/kestrelwifi/apd/internal/handshake"
	"github.com/kestrelwifi/apd/internal/metrics"
	"github.com/kestrelwifi/apd/internal/ratepolicy"
	"github.com/kestrelwifi/apd/internal/station"
	"github.com/kestrelwifi/apd/internal/wsc"
)

const (
	defaultBeaconIntervalTU uint16 = 100
	defaultDTIM             uint8  = 3
	defaultChannel          int    = 6
	defaultWidthMHz         int    = 20
)

var dispatchedSubtypes = []domain.FrameSubtype{
	domain.SubtypeProbeRequest,
	domain.SubtypeAuthentication,
	domain.SubtypeAssociationRequest,
	domain.SubtypeReassociationRequest,
	domain.SubtypeDisassociation,
	domain.SubtypeDeauthentication,
}

// Engine owns one running AP instance: its ApState, the Station Table, the
// Handshake Orchestrator, and the WSC Registrar, and drives them from a
// single goroutine.
type Engine struct {
	ifIndex   uint32
	transport ports.Transport
	clock     ports.Clock
	sink      domain.EventSink
	caps      ratepolicy.WiphyCaps
	log       *slog.Logger

	state        *domain.ApState
	stations     *station.Table
	orchestrator *handshake.Orchestrator
	registrar    *wsc.Registrar

	seq     uint16
	channel int

	// Inbound is the channel of raw radio frames (RadioTap+Dot11+payload)
	// the caller feeds from its kernel transport's receive path; receiving
	// frames off the wire is outside ports.Transport's command-only
	// surface.
	Inbound chan []byte

	// SendEAPOL delivers the Handshake Orchestrator's EAPOL-Key frames to
	// the station's controlled port. Must be set before Start.
	SendEAPOL func(domain.MAC, []byte) error
}

// New constructs an Engine for ifIndex. SendEAPOL wires the Handshake
// Orchestrator's EAPOL-Key frame transmission.
func New(ifIndex uint32, transport ports.Transport, clock ports.Clock, sink domain.EventSink, caps ratepolicy.WiphyCaps, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		ifIndex:   ifIndex,
		transport: transport,
		clock:     clock,
		sink:      sink,
		caps:      caps,
		log:       log,
		Inbound:   make(chan []byte, 32),
	}
}

func (e *Engine) nextSeq() uint16 {
	e.seq++
	return e.seq
}

// Start brings the AP instance up. cfg must already
// have its PSK derived (config.BuildApConfig does this before Start is
// called).
func (e *Engine) Start(ctx context.Context, cfg *domain.ApConfig, ownMAC domain.MAC) error {
	if err := cfg.Validate(); err != nil {
		return e.startFailed(err)
	}

	pairwiseMask, group := ratepolicy.ChooseCiphers(e.caps)
	rates := ratepolicy.ChooseRates(cfg.NoCCKRates)
	channel := cfg.Channel
	if channel == 0 {
		channel = defaultChannel
	}
	beaconIntervalTU := cfg.BeaconIntervalTU
	if beaconIntervalTU == 0 {
		beaconIntervalTU = defaultBeaconIntervalTU
	}
	dtim := cfg.DTIM
	if dtim == 0 {
		dtim = defaultDTIM
	}

	state := domain.NewApState(cfg, ownMAC, e.ifIndex)
	state.PairwiseCiphers = pairwiseMask
	state.GroupCipher = group
	state.BeaconInterval = beaconIntervalTU
	state.Rates = rates
	state.AdvertisedRSNE = ie.BuildRSNBody(ratepolicy.PrimaryPairwise(pairwiseMask), group, ratepolicy.AKM, ie.RSNCapabilities{})
	e.state = state

	e.registrar = wsc.New(e.clock, e.log)
	e.orchestrator = handshake.New(e.transport, e.clock, state, e.sink, e.log)
	e.orchestrator.SendEAPOL = e.SendEAPOL
	e.orchestrator.ExitPBCMode = func(ctx context.Context) {
		e.registrar.Disarm(state)
		e.refreshBeacon(ctx)
	}
	e.stations = station.New(state, station.Hooks{
		Transport: e.transport,
		Clock:     e.clock,
		Events:    e.sink,
		NextSeq:   e.nextSeq,
		Registrar: e.registrar,
		OnRSNAssociated: func(sta *domain.Station) {
			e.orchestrator.OnRSNAssociated(ctx, sta)
		},
		OnWSCAssociated: func(sta *domain.Station) {
			e.orchestrator.OnWSCAssociated(ctx, sta)
		},
		OnDropHandshake: e.orchestrator.OnDropHandshake,
		Log:             e.log,
	})

	if err := e.registerFrames(ctx); err != nil {
		return e.startFailed(err)
	}

	head, tail := e.buildBeacon(channel)
	startParams := ports.StartAPParams{
		IfIndex:          e.ifIndex,
		BeaconHead:       head,
		BeaconTail:       tail,
		SSID:             cfg.SSID,
		Hidden:           false,
		DTIM:             dtim,
		BeaconIntervalTU: beaconIntervalTU,
		Channel:          channel,
		WidthMHz:         defaultWidthMHz,
		PairwiseCiphers:  cipherList(pairwiseMask),
		GroupCipher:      group,
		WPAVersion:       2,
		AKM:              ratepolicy.AKM,
	}
	token, err := e.transport.StartAP(ctx, startParams)
	if err != nil {
		return e.startFailed(err)
	}
	if err := e.awaitToken(token); err != nil {
		return e.startFailed(err)
	}

	state.Started = true
	metrics.Init()
	e.sink.HandleEvent(domain.Event{Kind: domain.EventStarted})
	return nil
}

func (e *Engine) startFailed(err error) error {
	e.sink.HandleEvent(domain.Event{Kind: domain.EventStartFailed, Err: err})
	return fmt.Errorf("engine: start failed: %w", err)
}

func (e *Engine) registerFrames(ctx context.Context) error {
	for _, st := range dispatchedSubtypes {
		token, err := e.transport.RegisterFrame(ctx, e.ifIndex, st, nil)
		if err != nil {
			return err
		}
		if err := e.awaitToken(token); err != nil {
			return err
		}
	}
	return nil
}

// awaitToken blocks on Replies() for a specific token. Used only during the
// synchronous Start sequence, before Run's event loop takes over.
func (e *Engine) awaitToken(token uint64) error {
	for res := range e.transport.Replies() {
		if res.Token == token {
			return res.Err
		}
	}
	return domain.ErrStartupFailed
}

func cipherList(mask domain.CipherMask) []domain.Cipher {
	var out []domain.Cipher
	for _, c := range []domain.Cipher{domain.CipherCCMP, domain.CipherTKIP} {
		if mask.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Stop tears the AP instance down.
func (e *Engine) Stop(ctx context.Context) {
	if e.state == nil || e.state.Stopping {
		return
	}
	e.state.Stopping = true
	e.sink.HandleEvent(domain.Event{Kind: domain.EventStopping})

	for _, st := range dispatchedSubtypes {
		tok, err := e.transport.UnregisterFrame(ctx, e.ifIndex, st)
		if err == nil {
			e.transport.CancelToken(tok)
		}
	}

	for _, sta := range e.state.Stations {
		for _, tok := range sta.CancelTokens() {
			e.transport.CancelToken(tok)
		}
		if e.orchestrator != nil {
			e.orchestrator.OnDropHandshake(sta)
		}
	}

	if e.state.GTKSet {
		tok, err := e.transport.DelKey(ctx, e.ifIndex, e.state.GTKIndex, nil)
		if err == nil {
			e.transport.CancelToken(tok)
		}
	}

	tok, err := e.transport.StopAP(ctx, e.ifIndex)
	if err == nil {
		e.transport.CancelToken(tok)
	}

	e.state.Stations = make(map[domain.MAC]*domain.Station)
	e.state.WSCPBCProbes = nil
	for i := range e.state.GTK {
		e.state.GTK[i] = 0
	}
	var zero [32]byte
	e.state.Config.PSK = zero

	if e.orchestrator != nil {
		e.orchestrator.Close()
	}
	e.state.Started = false
}

// State exposes the running ApState for tests and diagnostics.
func (e *Engine) State() *domain.ApState { return e.state }
