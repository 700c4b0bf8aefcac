package engine

import (
	"context"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/core/ports"
	"github.com/kestrelwifi/apd/internal/frame"
	"github.com/kestrelwifi/apd/internal/frame/ie"
)

// Run is the single-goroutine event loop: it selects over
// inbound frames, kernel command replies, timer fires, and handshake
// outcomes until ctx is cancelled, then stops the AP instance.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.Stop(context.Background())
			return
		case raw, ok := <-e.Inbound:
			if !ok {
				return
			}
			e.dispatch(ctx, raw)
		case res, ok := <-e.transport.Replies():
			if !ok {
				return
			}
			e.handleCmdResult(ctx, res)
		case t, ok := <-e.clock.Fires():
			if !ok {
				return
			}
			e.handleTimer(ctx, t)
		case out, ok := <-e.orchestrator.Outcomes():
			if !ok {
				return
			}
			e.orchestrator.HandleOutcome(ctx, out)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, raw []byte) {
	in, ok, err := frame.Parse(raw)
	if err != nil {
		e.log.Debug("dropping malformed frame", "err", err)
		return
	}
	if !ok {
		return
	}

	switch in.Subtype {
	case domain.SubtypeProbeRequest:
		e.handleProbeRequest(ctx, in)
	case domain.SubtypeAuthentication:
		if err := e.stations.HandleAuth(ctx, in.Src, in.BSSID, in.Body); err != nil {
			e.log.Debug("auth handling failed", "src", in.Src, "err", err)
		}
	case domain.SubtypeAssociationRequest:
		if err := e.stations.HandleAssoc(ctx, in.Src, in.BSSID, in.Seq, in.Body, false); err != nil {
			e.log.Debug("assoc handling failed", "src", in.Src, "err", err)
		}
	case domain.SubtypeReassociationRequest:
		if err := e.stations.HandleAssoc(ctx, in.Src, in.BSSID, in.Seq, in.Body, true); err != nil {
			e.log.Debug("reassoc handling failed", "src", in.Src, "err", err)
		}
	case domain.SubtypeDisassociation:
		if body, err := frame.ParseDeauthDisassoc(in.Body); err == nil {
			e.stations.HandleDisassoc(ctx, in.Src, in.BSSID, body.Reason)
		}
	case domain.SubtypeDeauthentication:
		if body, err := frame.ParseDeauthDisassoc(in.Body); err == nil {
			e.stations.HandleDeauth(ctx, in.Src, in.BSSID, body.Reason)
		}
	}
}

// handleProbeRequest filters for this AP's SSID (or wildcard), feeds WSC
// PBC probe tracking, and replies with a Probe Response.
func (e *Engine) handleProbeRequest(ctx context.Context, in frame.Inbound) {
	req, err := frame.ParseProbeRequest(in.Body)
	if err != nil {
		return
	}
	if req.SSID != "" && req.SSID != e.state.Config.SSID {
		return
	}
	if elems, err := ie.Parse(in.Body); err == nil {
		if dsss, ok := ie.Find(elems, ie.IDDSSSParamSet); ok {
			if ch, ok := ie.ParseChannel(dsss); ok && ch != 0 && ch != e.channel {
				return
			}
		}
	}

	before := e.state.WSCPBCArmed
	overlapMAC, overlapped := e.registrar.OnProbeRequest(e.state, in.Src, req.WSC)
	if overlapped {
		e.orchestrator.OnSessionOverlap(ctx, overlapMAC)
	}
	if before != e.state.WSCPBCArmed {
		e.sink.HandleEvent(domain.Event{Kind: domain.EventPbcModeExit})
		e.refreshBeacon(ctx)
	}

	p := e.probeResponseParams(e.channel)
	resp, err := frame.BuildProbeResponse(in.Src, e.state.OwnMAC, e.nextSeq(), p)
	if err != nil {
		e.log.Debug("probe response build failed", "err", err)
		return
	}
	if _, err := e.transport.SendMgmtFrame(ctx, e.ifIndex, 0, resp, false, false); err != nil {
		e.log.Debug("probe response send failed", "err", err)
	}
}

// handleCmdResult correlates a kernel command reply to the Station whose
// (re)association response is pending, if any; every other token is
// fire-and-forget.
func (e *Engine) handleCmdResult(ctx context.Context, res ports.CmdResult) {
	for mac, sta := range e.state.Stations {
		if sta.Pending != nil && sta.Pending.Token == res.Token {
			e.stations.OnAssocResponseAck(ctx, mac, res.Token, res.Err)
			return
		}
	}
	if res.Err != nil {
		e.log.Warn("kernel command failed", "token", res.Token, "err", res.Err)
	}
}

func (e *Engine) handleTimer(ctx context.Context, t ports.TimerFired) {
	if e.registrar.OnWalkTimeout(e.state, t.Token) {
		e.sink.HandleEvent(domain.Event{Kind: domain.EventPbcModeExit})
		e.refreshBeacon(ctx)
	}
}

// PushButton arms WSC PBC mode (exported so the caller's control surface —
// D-Bus, CLI, whatever drives it — can trigger it;).
func (e *Engine) PushButton(ctx context.Context) error {
	_, err := e.registrar.PushButton(e.state)
	if err != nil {
		return err
	}
	e.refreshBeacon(ctx)
	return nil
}
