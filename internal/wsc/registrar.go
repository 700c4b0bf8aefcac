// Package wsc implements the Wi-Fi Simple Configuration Push-Button
// Configuration registrar: probe-request monitoring, session-overlap
// detection, and the walk-time arming window.
// Grounded on deauth_engine.go session-lifecycle shape
// (uuid-tagged sessions, explicit arm/disarm) adapted to WSC's PBC rules.
package wsc

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/core/ports"
	"github.com/kestrelwifi/apd/internal/frame/ie"
)

// Registrar arms and disarms PBC mode on an ApState and enforces the
// overlap rule on both probe requests and association attempts.
type Registrar struct {
	clock ports.Clock
	log   *slog.Logger
}

func New(clock ports.Clock, log *slog.Logger) *Registrar {
	if log == nil {
		log = slog.Default()
	}
	return &Registrar{clock: clock, log: log}
}

// PushButton arms PBC mode on state for WalkTime. It first prunes stale
// probe records and checks for an overlap among enrollees that already
// sent a PBC probe request within MonitorTime; an overlap aborts arming.
func (r *Registrar) PushButton(state *domain.ApState) (timerToken uint64, err error) {
	now := r.clock.Now()
	state.PruneProbes(now.UnixNano(), int64(domain.MonitorTime), domain.MAC{}, false)

	if len(state.WSCPBCProbes) >= 2 {
		r.log.Warn("wsc pbc overlap on push button", "probes", len(state.WSCPBCProbes), "session", uuid.New())
		return 0, domain.ErrSessionOverlap
	}

	state.WSCPBCArmed = true
	state.WSCDPID = ie.DevicePasswordIDPushButton
	token := r.clock.After(domain.WalkTime)
	state.WSCTimer = token
	r.log.Info("wsc pbc armed", "walk_time", domain.WalkTime, "token", token)
	return token, nil
}

// Disarm clears PBC mode, cancelling the walk-time timer if still armed.
func (r *Registrar) Disarm(state *domain.ApState) {
	if state.WSCTimer != 0 {
		r.clock.Cancel(state.WSCTimer)
	}
	state.WSCPBCArmed = false
	state.WSCDPID = 0
	state.WSCTimer = 0
	state.WSCPBCProbes = nil
}

// OnWalkTimeout disarms PBC after WalkTime elapses with no successful
// registration.
func (r *Registrar) OnWalkTimeout(state *domain.ApState, token uint64) bool {
	if !state.WSCPBCArmed || state.WSCTimer != token {
		return false
	}
	r.Disarm(state)
	return true
}

// OnProbeRequest records a PBC-indicating probe request for overlap
// tracking. PBC is indicated when the frame's WSC IE advertises
// device_password_id PUSH_BUTTON and the Push Button config method in its
// Selected Registrar Config Methods or Config Methods attribute.
//
// If PBC mode is already armed and mac is a second, distinct enrollee
// probing within MonitorTime of the first, this is a session overlap: PBC
// mode is disarmed immediately (the caller observes this via
// state.WSCPBCArmed flipping and reacts with PbcModeExit/beacon refresh),
// and the first enrollee's MAC is returned so the caller can fail its
// in-progress WSC session with DISASSOC_AP_BUSY.
func (r *Registrar) OnProbeRequest(state *domain.ApState, mac domain.MAC, wsc *ie.WSCPayload) (overlapMAC domain.MAC, overlapped bool) {
	if wsc == nil {
		return domain.MAC{}, false
	}
	if wsc.DevicePasswordID != ie.DevicePasswordIDPushButton {
		return domain.MAC{}, false
	}
	if !ie.ConfigMethodsHas(wsc.ConfigMethods, ie.ConfigMethodPushButton) &&
		!ie.ConfigMethodsHas(wsc.SelectedRegConfigMethods, ie.ConfigMethodPushButton) {
		return domain.MAC{}, false
	}

	now := r.clock.Now()
	state.PruneProbes(now.UnixNano(), int64(domain.MonitorTime), mac, true)

	if state.WSCPBCArmed && len(state.WSCPBCProbes) > 0 {
		first := state.WSCPBCProbes[0].MAC
		if first != mac {
			r.Disarm(state)
			return first, true
		}
	}

	state.WSCPBCProbes = append(state.WSCPBCProbes, domain.ProbeRecord{
		MAC:       mac,
		UUIDE:     wsc.UUIDE,
		Timestamp: now,
	})
	return domain.MAC{}, false
}

// CheckAssocOverlap re-validates the overlap rule at association time: more
// than one distinct enrollee MAC observed within MonitorTime (excluding the
// associating station itself) means PBC session overlap, and the
// association must be refused.
func (r *Registrar) CheckAssocOverlap(state *domain.ApState, mac domain.MAC) error {
	now := r.clock.Now()
	state.PruneProbes(now.UnixNano(), int64(domain.MonitorTime), domain.MAC{}, false)

	others := 0
	for _, rec := range state.WSCPBCProbes {
		if rec.MAC != mac {
			others++
		}
	}
	if others > 0 {
		return domain.ErrSessionOverlap
	}
	return nil
}

// BeaconTail returns the WSC IE content to advertise in the current
// Beacon/Probe Response given state's PBC arming status.
func BeaconTail(desc domain.WSCDescriptor, authorizedMACs []domain.MAC, state *domain.ApState) []byte {
	return ie.BuildWSCBeaconTail(authorizedMACs, state.WSCPBCArmed)
}

// ProbeResponseTail returns the WSC IE content for a Probe Response.
func ProbeResponseTail(desc domain.WSCDescriptor, authorizedMACs []domain.MAC, state *domain.ApState) []byte {
	return ie.BuildWSCProbeResponseTail(desc, authorizedMACs, state.WSCPBCArmed)
}
