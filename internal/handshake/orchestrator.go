// Package handshake implements the Handshake Orchestrator: GTK
// lifecycle management and the glue between a newly-associated Station and
// its RSN 4-Way Handshake or EAP-WSC session. Grounded on the reference implementation's
// handshake package (sniffer/handshake), generalized from a passive parser
// into an active authenticator-side orchestrator.
package handshake

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/core/ports"
	"github.com/kestrelwifi/apd/internal/eapol"
	"github.com/kestrelwifi/apd/internal/ratepolicy"
	"github.com/kestrelwifi/apd/internal/wsc"
)

// HandshakeOutcome tags a HandshakeEvent with the Station it belongs to, the
// shape the Engine's event loop selects on.
type HandshakeOutcome struct {
	MAC   domain.MAC
	Event domain.HandshakeEvent
}

// Orchestrator owns GTK generation/installation and drives per-station
// 4-Way Handshake / EAP-WSC sessions, reporting their outcomes on a single
// channel so the Engine's event loop never has to select across a dynamic
// set of per-station channels.
type Orchestrator struct {
	transport ports.Transport
	clock     ports.Clock
	state     *domain.ApState
	sink      domain.EventSink
	log       *slog.Logger

	// SendEAPOL delivers a built EAPOL-Key frame to the station over the
	// data plane. EAPoL transport is outside this core's scope;
	// the caller (cmd/apd, or a test's loopback) supplies it.
	SendEAPOL func(mac domain.MAC, raw []byte) error

	// ExitPBCMode disarms WSC PBC and refreshes the beacon; wired by the
	// engine since this core has no beacon-building logic of its own. Called
	// once a WSC enrollee's association starts the registration, per the
	// rule that PBC mode is no longer advertised once a registration is in
	// progress.
	ExitPBCMode func(ctx context.Context)

	outcomes chan HandshakeOutcome
	stopped  chan struct{}
}

func New(transport ports.Transport, clock ports.Clock, state *domain.ApState, sink domain.EventSink, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		transport: transport,
		clock:     clock,
		state:     state,
		sink:      sink,
		log:       log,
		outcomes:  make(chan HandshakeOutcome, 16),
		stopped:   make(chan struct{}),
	}
}

// Outcomes is the channel the Engine selects on alongside frames, command
// replies, and timer fires.
func (o *Orchestrator) Outcomes() <-chan HandshakeOutcome { return o.outcomes }

// Close stops accepting new outcomes; live sessions' pump goroutines exit on
// their next send attempt.
func (o *Orchestrator) Close() { close(o.stopped) }

// OnRSNAssociated starts a 4-Way Handshake session for sta, wired as
// station.Hooks.OnRSNAssociated.
func (o *Orchestrator) OnRSNAssociated(ctx context.Context, sta *domain.Station) {
	if err := o.ensureGTK(ctx); err != nil {
		o.log.Error("gtk installation failed", "err", err)
		o.outcomes <- HandshakeOutcome{MAC: sta.Addr, Event: domain.HandshakeEvent{Kind: domain.HandshakeSettingKeysFailed}}
		return
	}

	rsc, err := o.transport.QueryGroupRSC(ctx, o.state.IfIndex, o.state.GTKIndex)
	if err != nil {
		rsc = 0
	}

	pairwise := ratepolicy.PrimaryPairwise(o.state.PairwiseCiphers)
	params := ports.FourWayParams{
		PMK:               o.state.Config.PSK,
		SupplicantRSNE:    sta.AssocRSNE,
		AuthenticatorRSNE: o.state.AdvertisedRSNE,
		GTK:               o.state.GTK,
		GTKIndex:          o.state.GTKIndex,
		GTKRSC:            rsc,
		Pairwise:          pairwise,
		AID:               sta.AID,
		AuthenticatorMAC:  o.state.OwnMAC,
		SupplicantMAC:     sta.Addr,
	}

	hs := eapol.NewAuthenticator(params, o.sendFor(sta.Addr), o.log)
	sta.Handshake = hs
	if err := hs.Start(ctx); err != nil {
		o.outcomes <- HandshakeOutcome{MAC: sta.Addr, Event: domain.HandshakeEvent{Kind: domain.HandshakeFailed, Reason: domain.Reason4WayHandshakeTimout}}
		return
	}
	go o.pump(sta.Addr, hs.Events())
}

// OnWSCAssociated starts the EAP-WSC session for a WSC-only association,
// wired as station.Hooks.OnWSCAssociated. A registration now being in
// progress, PBC mode is no longer advertised.
func (o *Orchestrator) OnWSCAssociated(ctx context.Context, sta *domain.Station) {
	o.sink.HandleEvent(domain.Event{Kind: domain.EventRegistrationStart, MAC: sta.Addr})
	if o.state.WSCPBCArmed && o.ExitPBCMode != nil {
		o.ExitPBCMode(ctx)
	}

	params := ports.WSCParams{
		SSID:             o.state.Config.SSID,
		Passphrase:       o.state.Config.Passphrase,
		PSK:              o.state.Config.PSK,
		UUIDE:            sta.WSCUUIDE,
		UUIDR:            o.state.Config.WSC.UUIDR,
		AuthenticatorMAC: o.state.OwnMAC,
		SupplicantMAC:    sta.Addr,
	}
	hs := wsc.NewEAPSession(params, o.log)
	sta.Handshake = hs
	if err := hs.Start(ctx); err != nil {
		o.outcomes <- HandshakeOutcome{MAC: sta.Addr, Event: domain.HandshakeEvent{Kind: domain.HandshakeFailed, Reason: domain.ReasonUnspecified}}
		return
	}
	go o.pump(sta.Addr, hs.Events())
}

// OnDropHandshake stops any live session for sta, wired as
// station.Hooks.OnDropHandshake (called when a station is removed while its
// handshake is still in flight).
func (o *Orchestrator) OnDropHandshake(sta *domain.Station) {
	if hs, ok := sta.Handshake.(ports.Handshake); ok && hs != nil {
		hs.Stop()
	}
	sta.Handshake = nil
}

// OnRekeyRequest re-queries the GTK's Tx-RSC and retransmits Message 3 for
// sta's live 4-Way Handshake, for when the kernel reports SetKeyFail and
// retries the group key install after Message 2 has already landed. A
// no-op if sta has no live RSN handshake (already complete, WSC session,
// or handshake not yet started).
func (o *Orchestrator) OnRekeyRequest(ctx context.Context, sta *domain.Station) error {
	hs, ok := sta.Handshake.(*eapol.Authenticator)
	if !ok || hs == nil {
		return nil
	}
	rsc, err := o.transport.QueryGroupRSC(ctx, o.state.IfIndex, o.state.GTKIndex)
	if err != nil {
		return err
	}
	return hs.Rekey(rsc)
}

func (o *Orchestrator) sendFor(mac domain.MAC) eapol.TxFunc {
	return func(raw []byte) error {
		if o.SendEAPOL == nil {
			return fmt.Errorf("handshake: no EAPOL transport configured")
		}
		return o.SendEAPOL(mac, raw)
	}
}

func (o *Orchestrator) pump(mac domain.MAC, ch <-chan domain.HandshakeEvent) {
	for ev := range ch {
		select {
		case o.outcomes <- HandshakeOutcome{MAC: mac, Event: ev}:
		case <-o.stopped:
			return
		}
	}
}

// HandleOutcome applies a HandshakeOutcome's effect on the station table,
// called from the Engine's event loop.
func (o *Orchestrator) HandleOutcome(ctx context.Context, out HandshakeOutcome) {
	sta, ok := o.state.Stations[out.MAC]
	if !ok {
		return
	}

	switch out.Event.Kind {
	case domain.HandshakeComplete:
		sta.State = domain.StationRsnaEstablished
		sta.Handshake = nil
		if token, err := o.transport.SetStationAuthorized(ctx, o.state.IfIndex, sta.Addr); err == nil {
			sta.TrackToken(token)
		}
		o.sink.HandleEvent(domain.Event{Kind: domain.EventStationAdded, MAC: sta.Addr, AssocIEs: sta.AssocIEs})

	case domain.HandshakeFailed:
		o.dropStation(ctx, sta, out.Event.Reason)

	case domain.HandshakeSettingKeysFailed:
		o.dropStation(ctx, sta, domain.ReasonUnspecified)

	case domain.HandshakeEapNotify:
		o.log.Debug("eap-wsc notify", "mac", sta.Addr, "code", out.Event.Notify)
		if out.Event.Notify == domain.EapNotifyCredentialSent {
			o.state.ClearProbesForMAC(sta.Addr)
			o.sink.HandleEvent(domain.Event{Kind: domain.EventRegistrationSuccess, MAC: sta.Addr})
		}
	}
}

// OnSessionOverlap fails mac's in-progress WSC session, if any, with
// DISASSOC_AP_BUSY and removes the station, wired from the engine's probe
// request handling when a second, distinct PBC enrollee is observed while
// PBC mode is armed.
func (o *Orchestrator) OnSessionOverlap(ctx context.Context, mac domain.MAC) {
	sta, ok := o.state.Stations[mac]
	if !ok {
		return
	}
	o.OnDropHandshake(sta)
	o.dropStation(ctx, sta, domain.ReasonDisassocAPBusy)
}

func (o *Orchestrator) dropStation(ctx context.Context, sta *domain.Station, reason domain.ReasonCode) {
	for _, tok := range sta.CancelTokens() {
		o.transport.CancelToken(tok)
	}
	o.state.RemoveStation(sta.Addr)
	if token, err := o.transport.DelStation(ctx, o.state.IfIndex, sta.Addr, reason, true); err == nil {
		o.transport.CancelToken(token)
	}
	o.sink.HandleEvent(domain.Event{Kind: domain.EventStationRemoved, MAC: sta.Addr, Reason: reason})
}

// ensureGTK generates and installs the Group Temporal Key exactly once per
// AP lifetime; the GTK is never
// rotated within this core's scope.
func (o *Orchestrator) ensureGTK(ctx context.Context) error {
	if o.state.GTKSet {
		return nil
	}

	size := o.state.GroupCipher.KeySize()
	if size == 0 {
		return nil
	}
	gtk := make([]byte, size)
	if _, err := rand.Read(gtk); err != nil {
		return err
	}
	if o.state.GroupCipher == domain.CipherTKIP {
		gtk = eapol.SwapTKIPMICHalves(gtk)
	}

	const groupKeyID uint8 = 1
	token, err := o.transport.NewKeyGroup(ctx, o.state.IfIndex, o.state.GroupCipher, groupKeyID, gtk, 0)
	if err != nil {
		return err
	}
	o.transport.CancelToken(token)
	if token, err := o.transport.SetKeyDefaultGroup(ctx, o.state.IfIndex, groupKeyID); err == nil {
		o.transport.CancelToken(token)
	}

	o.state.GTK = gtk
	o.state.GTKIndex = groupKeyID
	o.state.GTKSet = true
	return nil
}
