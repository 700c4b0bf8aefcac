// Package station implements the per-STA record and the authentication,
// (re)association, disassociation, and deauthentication state machines.
// Grounded on the service-layer composition shape used for explicit port
// dependencies, adapted from session bookkeeping to 802.11 STA lifecycle.
package station

import (
	"context"
	"log/slog"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/core/ports"
	"github.com/kestrelwifi/apd/internal/frame"
	"github.com/kestrelwifi/apd/internal/frame/ie"
	"github.com/kestrelwifi/apd/internal/wsc"
)

// Hooks are the Table's collaborators, wired by the engine at composition
// time. OnRSNAssociated/OnWSCAssociated hand control to the Handshake
// Orchestrator once a Station is confirmed Associated; station avoids
// importing the orchestrator package directly to keep the dependency
// pointing the leaf-first way (station does not depend on handshake).
type Hooks struct {
	Transport ports.Transport
	Clock     ports.Clock
	Events    domain.EventSink
	NextSeq   func() uint16
	// Registrar re-validates the WSC PBC overlap rule at association time
	// (fresh against the current time, not just the last probe's snapshot).
	// May be nil in tests that don't exercise the WSC path.
	Registrar *wsc.Registrar

	OnRSNAssociated func(sta *domain.Station)
	OnWSCAssociated func(sta *domain.Station)
	// OnDropHandshake stops a live handshake/RSNA session for sta before a
	// new (re)association response is sent.
	OnDropHandshake func(sta *domain.Station)

	Log *slog.Logger
}

// Table owns Station lookup and lifecycle transitions over one ApState.
type Table struct {
	state *domain.ApState
	hooks Hooks
}

func New(state *domain.ApState, hooks Hooks) *Table {
	if hooks.Log == nil {
		hooks.Log = slog.Default()
	}
	return &Table{state: state, hooks: hooks}
}

func (t *Table) reply(ctx context.Context, dst domain.MAC, waitForAck bool, frameBytes []byte) (uint64, error) {
	return t.hooks.Transport.SendMgmtFrame(ctx, t.state.IfIndex, 0, frameBytes, waitForAck, false)
}

// HandleAuth processes an Open System Authentication request. Shared-Key authentication is not supported: any other
// algorithm or transaction sequence gets UNSPECIFIED.
func (t *Table) HandleAuth(ctx context.Context, src, bssid domain.MAC, body []byte) error {
	if bssid != t.state.OwnMAC {
		return nil
	}
	req, err := frame.ParseAuthRequest(body)
	if err != nil {
		return err
	}

	status := domain.StatusUnspecified
	switch {
	case len(t.state.Config.AuthorizedMAC) > 0 && !containsMAC(t.state.Config.AuthorizedMAC, src):
		status = domain.StatusUnspecified
	case req.Algorithm == domain.AuthAlgoOpenSystem && req.TransactionSeqNum == 1:
		if _, exists := t.state.Stations[src]; !exists {
			t.state.AddStation(domain.NewStation(src))
		}
		status = domain.StatusSuccess
	}

	resp, err := frame.BuildAuthResponse(src, t.state.OwnMAC, t.hooks.NextSeq(), status)
	if err != nil {
		return err
	}
	_, err = t.reply(ctx, src, false, resp)
	return err
}

func containsMAC(list []domain.MAC, mac domain.MAC) bool {
	for _, m := range list {
		if m == mac {
			return true
		}
	}
	return false
}

// wscOUI is the Wi-Fi Alliance vendor-specific OUI and WSC vendor type,
// matching internal/frame's own unexported constant of the same value.
var wscOUI = [4]byte{0x00, 0x50, 0xf2, 0x04}

// assocDecision is the outcome of validating an (re)Association Request.
type assocDecision struct {
	status domain.StatusCode
	isWSC  bool
}

func (t *Table) validateAssoc(sta *domain.Station, req frame.AssocRequestBody, reassoc bool) assocDecision {
	if reassoc && sta.State != domain.StationAssociated && sta.State != domain.StationRsnaEstablished {
		return assocDecision{status: domain.StatusUnspecified}
	}
	if req.SSID != t.state.Config.SSID {
		return assocDecision{status: domain.StatusInvalidIE}
	}
	if basic, ok := t.state.Rates.Min(); !ok || !req.Rates.Has(basic) {
		return assocDecision{status: domain.StatusUnspecified}
	}

	hasRSN := req.RSNE != nil
	hasWSC := req.WSC != nil
	switch {
	case hasWSC:
		return t.validateWSC(sta, req)
	case hasRSN:
		return t.validateRSN(req)
	default:
		return assocDecision{status: domain.StatusInvalidIE}
	}
}

func (t *Table) validateRSN(req frame.AssocRequestBody) assocDecision {
	rsn := req.RSNE
	if rsn.Capabilities.MFPRequired && rsn.Capabilities.SPPA_MSDURequired {
		return assocDecision{status: domain.StatusUnspecified}
	}
	if len(rsn.PairwiseCiphers) != 1 || !t.state.PairwiseCiphers.Has(rsn.PairwiseCiphers[0]) {
		return assocDecision{status: domain.StatusInvalidPairwiseCipher}
	}
	if len(rsn.AKMSuites) != 1 || rsn.AKMSuites[0] != domain.AKMPSK {
		return assocDecision{status: domain.StatusInvalidAKMP}
	}
	return assocDecision{status: domain.StatusSuccess}
}

func (t *Table) validateWSC(sta *domain.Station, req frame.AssocRequestBody) assocDecision {
	if !req.WSC.HasRequestType || req.WSC.RequestType != ie.RequestTypeEnrolleeOpen8021X {
		return assocDecision{status: domain.StatusUnspecified, isWSC: true}
	}
	if t.hooks.Registrar != nil {
		if err := t.hooks.Registrar.CheckAssocOverlap(t.state, sta.Addr); err != nil {
			return assocDecision{status: domain.StatusUnspecified, isWSC: true}
		}
	}
	if !t.state.WSCPBCArmed || len(t.state.WSCPBCProbes) != 1 || t.state.WSCPBCProbes[0].MAC != sta.Addr {
		return assocDecision{status: domain.StatusUnspecified, isWSC: true}
	}
	return assocDecision{status: domain.StatusSuccess, isWSC: true}
}

// HandleAssoc processes an Association or Reassociation Request.
func (t *Table) HandleAssoc(ctx context.Context, src, bssid domain.MAC, seq uint16, body []byte, reassoc bool) error {
	if bssid != t.state.OwnMAC {
		return nil
	}
	sta, exists := t.state.Stations[src]
	if !exists {
		return t.sendAssocReject(ctx, src, seq, domain.StatusUnspecified, reassoc)
	}
	if sta.Pending != nil {
		// At most one response in flight per Station.
		return nil
	}

	req, err := frame.ParseAssocRequest(body, reassoc)
	if err != nil {
		return t.sendAssocRejectTracked(ctx, sta, seq, domain.StatusInvalidIE, reassoc)
	}

	decision := t.validateAssoc(sta, req, reassoc)
	if decision.status != domain.StatusSuccess {
		return t.sendAssocRejectTracked(ctx, sta, seq, decision.status, reassoc)
	}

	if sta.State == domain.StationAssociated || sta.State == domain.StationRsnaEstablished {
		if t.hooks.OnDropHandshake != nil {
			t.hooks.OnDropHandshake(sta)
		}
	}

	aid := sta.AID
	if sta.State != domain.StationAssociated && sta.State != domain.StationRsnaEstablished {
		aid = t.state.NextAID()
	}
	sta.AID = aid
	sta.Capability = req.Capability
	sta.ListenInterval = req.ListenInterval
	sta.Rates = req.Rates
	sta.AssocIEs = append([]byte(nil), req.RawIEs...)
	sta.AssocRSNE = nil
	sta.WSCHasUUID = false

	if decision.isWSC {
		sta.WSCHasUUID = true
		sta.WSCUUIDE = req.WSC.UUIDE
		sta.WSCV2 = req.WSC.Version2
	} else {
		elems, _ := ie.Parse(sta.AssocIEs)
		if rsneData, ok := ie.Find(elems, ie.IDRSN); ok {
			sta.AssocRSNE = rsneData
		}
	}

	respFrame, err := t.buildAssocResp(src, seq, domain.StatusSuccess, aid, reassoc)
	if err != nil {
		return err
	}
	token, err := t.reply(ctx, src, true, respFrame)
	if err != nil {
		return err
	}
	sta.Pending = &domain.PendingResponseTag{Token: token, Reassoc: reassoc, Accepting: true}
	sta.TrackToken(token)
	return nil
}

// sendAssocReject handles the case where no Station record exists at all
// (nothing to track a pending response against).
func (t *Table) sendAssocReject(ctx context.Context, src domain.MAC, seq uint16, status domain.StatusCode, reassoc bool) error {
	respFrame, err := t.buildAssocResp(src, seq, status, 0, reassoc)
	if err != nil {
		return err
	}
	_, err = t.reply(ctx, src, true, respFrame)
	return err
}

// sendAssocRejectTracked sends a failure response for an existing Station,
// tracking the pending token exactly like an accepted response.
func (t *Table) sendAssocRejectTracked(ctx context.Context, sta *domain.Station, seq uint16, status domain.StatusCode, reassoc bool) error {
	respFrame, err := t.buildAssocResp(sta.Addr, seq, status, sta.AID, reassoc)
	if err != nil {
		return err
	}
	token, err := t.reply(ctx, sta.Addr, true, respFrame)
	if err != nil {
		return err
	}
	sta.Pending = &domain.PendingResponseTag{Token: token, Reassoc: reassoc, Accepting: false}
	sta.TrackToken(token)
	return nil
}

func (t *Table) buildAssocResp(dst domain.MAC, seq uint16, status domain.StatusCode, aid uint16, reassoc bool) ([]byte, error) {
	params := frame.AssocResponseParams{
		Capability: capabilityField(t.state),
		Status:     status,
		AID:        aid,
		Rates:      t.state.Rates,
	}
	if status == domain.StatusSuccess {
		params.RSNE = advertisedRSNE(t.state)
	}
	if reassoc {
		return frame.BuildReassocResponse(dst, t.state.OwnMAC, seq, params)
	}
	return frame.BuildAssocResponse(dst, t.state.OwnMAC, seq, params)
}

// CapabilityField computes the ESS|PRIVACY Capability field value
// advertised in Beacons, Probe Responses, and (Re)Association Responses.
func CapabilityField(state *domain.ApState) uint16 {
	const (
		capESS     = 0x0001
		capPrivacy = 0x0010
)
	cap := uint16(capESS)
	if state.Config.HasPSK || state.Config.Passphrase != "" {
		cap |= capPrivacy
	}
	return cap
}

func capabilityField(state *domain.ApState) uint16 { return CapabilityField(state) }

func advertisedRSNE(state *domain.ApState) []byte {
	// Assigned by engine.Start; when it is nil the response carries no RSNE.
	// Every successful response carries it, WSC-only associations included.
	return state.AdvertisedRSNE
}

// OnAssocResponseAck completes the deferred state transition once the
// kernel reports whether the (re)association response was ACKed.
func (t *Table) OnAssocResponseAck(ctx context.Context, src domain.MAC, token uint64, ackErr error) {
	sta, ok := t.state.Stations[src]
	if !ok || sta.Pending == nil || sta.Pending.Token != token {
		return
	}
	pending := sta.Pending
	sta.Pending = nil

	if ackErr != nil {
		if sta.State == domain.StationAssociated || sta.State == domain.StationRsnaEstablished {
			sta.State = domain.StationAuthenticated
		} else {
			tokens := t.state.RemoveStation(src)
			for _, tok := range tokens {
				t.hooks.Transport.CancelToken(tok)
			}
		}
		return
	}
	if !pending.Accepting {
		return
	}

	wasAssociated := sta.State == domain.StationAssociated || sta.State == domain.StationRsnaEstablished
	flags := ports.StationFlags{Authenticated: true, Associated: true}
	if wasAssociated {
		t.hooks.Transport.SetStationAssociated(ctx, t.state.IfIndex, src, sta.AID)
	} else {
		t.hooks.Transport.NewStation(ctx, t.state.IfIndex, src, flags, sta.AID, sta.Rates, sta.ListenInterval, sta.Capability)
	}
	sta.State = domain.StationAssociated
	t.startHandshake(ctx, sta)
}

// startHandshake hands sta to the Handshake Orchestrator once it is
// Associated, choosing the RSN or WSC path by which IE its association
// carried.
func (t *Table) startHandshake(ctx context.Context, sta *domain.Station) {
	if sta.WSCHasUUID && t.hooks.OnWSCAssociated != nil {
		t.hooks.OnWSCAssociated(sta)
	} else if sta.AssocRSNE != nil && t.hooks.OnRSNAssociated != nil {
		t.hooks.OnRSNAssociated(sta)
	}
}

// AdmitExisting registers a Station the kernel already reports Associated
// (e.g. after a hostapd-style NEW_STATION hardware event or a restart that
// inherited live stations), parsing its association IEs exactly like
// HandleAssoc would and handing it straight to the Handshake Orchestrator
// without sending any (re)association response of our own.
func (t *Table) AdmitExisting(ctx context.Context, src domain.MAC, aid uint16, capability, listenInterval uint16, rates domain.RateSet, assocIEs []byte) error {
	sta, exists := t.state.Stations[src]
	if !exists {
		sta = domain.NewStation(src)
		t.state.AddStation(sta)
	}
	sta.AID = aid
	sta.Capability = capability
	sta.ListenInterval = listenInterval
	sta.Rates = rates
	sta.AssocIEs = append([]byte(nil), assocIEs...)
	sta.AssocRSNE = nil
	sta.WSCHasUUID = false

	elems, err := ie.Parse(assocIEs)
	if err != nil {
		return err
	}
	if rsneData, ok := ie.Find(elems, ie.IDRSN); ok {
		sta.AssocRSNE = rsneData
	}
	if vendor := ie.FindAll(elems, ie.IDVendorSpecific); len(vendor) > 0 {
		for _, v := range vendor {
			if len(v) >= 4 && [4]byte(v[0:4]) == wscOUI {
				payload, err := ie.ParseWSC(v[4:])
				if err != nil {
					return err
				}
				sta.WSCHasUUID = true
				sta.WSCUUIDE = payload.UUIDE
				sta.WSCV2 = payload.Version2
			}
		}
	}

	sta.State = domain.StationAssociated
	t.startHandshake(ctx, sta)
	return nil
}

// HandleDisassoc processes a Disassociation frame.
func (t *Table) HandleDisassoc(ctx context.Context, src, bssid domain.MAC, reason domain.ReasonCode) {
	if bssid != t.state.OwnMAC {
		return
	}
	sta, ok := t.state.Stations[src]
	if !ok {
		return
	}
	if sta.State == domain.StationAssociated || sta.State == domain.StationRsnaEstablished {
		if sta.State == domain.StationRsnaEstablished && t.hooks.OnDropHandshake != nil {
			t.hooks.OnDropHandshake(sta)
		}
		sta.State = domain.StationAuthenticated
	}
	for _, tok := range sta.CancelTokens() {
		t.hooks.Transport.CancelToken(tok)
	}
}

// HandleDeauth processes a Deauthentication frame; the Station is removed
// entirely.
func (t *Table) HandleDeauth(ctx context.Context, src, bssid domain.MAC, reason domain.ReasonCode) {
	if bssid != t.state.OwnMAC {
		return
	}
	sta, ok := t.state.Stations[src]
	if !ok {
		return
	}
	if sta.State == domain.StationRsnaEstablished && t.hooks.OnDropHandshake != nil {
		t.hooks.OnDropHandshake(sta)
	}
	tokens := t.state.RemoveStation(src)
	for _, tok := range tokens {
		t.hooks.Transport.CancelToken(tok)
	}
	t.hooks.Events.HandleEvent(domain.Event{Kind: domain.EventStationRemoved, MAC: src, Reason: reason})
}
