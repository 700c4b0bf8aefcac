package engine

import (
	"context"

	"github.com/kestrelwifi/apd/internal/frame"
	"github.com/kestrelwifi/apd/internal/station"
	"github.com/kestrelwifi/apd/internal/wsc"
)

func (e *Engine) beaconParams(channel int) frame.BeaconParams {
	return frame.BeaconParams{
		IntervalTU: e.state.BeaconInterval,
		Capability: station.CapabilityField(e.state),
		SSID:       e.state.Config.SSID,
		Rates:      e.state.Rates,
		Channel:    channel,
		RSNE:       e.state.AdvertisedRSNE,
		WSCIE:      wsc.BeaconTail(e.state.Config.WSC, e.state.Config.AuthorizedMAC, e.state),
	}
}

// probeResponseParams is beaconParams with the Probe-Response-only WSC
// attributes (response_type, UUID-R, primary device type, device name,
// config_methods) in place of the plain beacon tail.
func (e *Engine) probeResponseParams(channel int) frame.BeaconParams {
	p := e.beaconParams(channel)
	p.WSCIE = wsc.ProbeResponseTail(e.state.Config.WSC, e.state.Config.AuthorizedMAC, e.state)
	return p
}

func (e *Engine) buildBeacon(channel int) (head, tail []byte) {
	e.channel = channel
	p := e.beaconParams(channel)
	return frame.BuildBeaconHead(p), frame.BuildBeaconTail(p)
}

// refreshBeacon rebuilds and pushes the beacon head+tail, called whenever
// WSC PBC arms or disarms.
func (e *Engine) refreshBeacon(ctx context.Context) {
	head, tail := e.buildBeacon(e.channel)
	token, err := e.transport.SetBeacon(ctx, e.ifIndex, head, tail)
	if err != nil {
		e.log.Warn("beacon refresh failed", "err", err)
		return
	}
	e.transport.CancelToken(token)
}
