// Package ports declares the interfaces the AP core consumes but does not
// implement: the kernel netlink command surface, a clock/timer facility,
// and the EAPoL authenticator state machine. Concrete implementations
// (nl80211 binding, wall-clock timers, a real EAPoL engine) are supplied by
// the caller; internal/transport/mock provides an in-memory Transport
// usable for tests and the reference cmd/apd binary.
package ports

import (
	"context"

	"github.com/kestrelwifi/apd/internal/core/domain"
)

// CmdResult is the outcome of an asynchronous kernel command.
type CmdResult struct {
	Token uint64
	Err   error
}

// StationFlags requested when creating or updating a kernel STA entry.
type StationFlags struct {
	Authenticated bool
	Associated    bool
}

// StartAPParams mirrors the abstract start_ap surface of
type StartAPParams struct {
	IfIndex            uint32
	BeaconHead         []byte
	BeaconTail         []byte
	SSID               string
	Hidden             bool
	DTIM               uint8
	BeaconIntervalTU   uint16
	Channel            int
	WidthMHz           int
	PairwiseCiphers    []domain.Cipher
	GroupCipher        domain.Cipher
	WPAVersion         int
	AKM                domain.AKM
	SocketOwner        bool
	ControlPortOverNL  bool
}

// Transport is the abstract kernel command surface. Every method
// returns a command token immediately; the outcome lands later as a
// CmdResult delivered to the Engine's event loop via the channel returned
// by Replies.
type Transport interface {
	// Replies is the single channel every issued command's CmdResult
	// arrives on; the Engine's event loop selects on it.
	Replies() <-chan CmdResult

	StartAP(ctx context.Context, p StartAPParams) (uint64, error)
	StopAP(ctx context.Context, ifIndex uint32) (uint64, error)
	SetBeacon(ctx context.Context, ifIndex uint32, head, tail []byte) (uint64, error)
	RegisterFrame(ctx context.Context, ifIndex uint32, subtype domain.FrameSubtype, prefix []byte) (uint64, error)
	UnregisterFrame(ctx context.Context, ifIndex uint32, subtype domain.FrameSubtype) (uint64, error)

	// SendMgmtFrame transmits frame on freq; if waitForACK, the resulting
	// CmdResult.Err is nil only once the ACK is observed (no-ACK or
	// timeout surface as a non-nil Err).
	SendMgmtFrame(ctx context.Context, ifIndex uint32, freqMHz int, frame []byte, waitForACK bool, noCCK bool) (uint64, error)

	NewStation(ctx context.Context, ifIndex uint32, mac domain.MAC, flags StationFlags, aid uint16, rates domain.RateSet, listenInterval uint16, capability uint16) (uint64, error)
	SetStationAssociated(ctx context.Context, ifIndex uint32, mac domain.MAC, aid uint16) (uint64, error)
	SetStationAuthorized(ctx context.Context, ifIndex uint32, mac domain.MAC) (uint64, error)
	SetStationUnauthorized(ctx context.Context, ifIndex uint32, mac domain.MAC) (uint64, error)
	DelStation(ctx context.Context, ifIndex uint32, mac domain.MAC, reason domain.ReasonCode, disassoc bool) (uint64, error)

	NewKeyGroup(ctx context.Context, ifIndex uint32, cipher domain.Cipher, keyID uint8, key []byte, rsc uint64) (uint64, error)
	SetKeyDefaultGroup(ctx context.Context, ifIndex uint32, keyID uint8) (uint64, error)
	DelKey(ctx context.Context, ifIndex uint32, keyID uint8, mac *domain.MAC) (uint64, error)

	NewKeyPairwise(ctx context.Context, ifIndex uint32, cipher domain.Cipher, mac domain.MAC, key []byte) (uint64, error)
	SetKeyDefaultPairwise(ctx context.Context, ifIndex uint32, mac domain.MAC) (uint64, error)

	// QueryGroupRSC returns the kernel's current Tx-RSC for the installed
	// GTK. Some drivers return a non-zero initial value; callers must not assume zero without
	// calling this.
	QueryGroupRSC(ctx context.Context, ifIndex uint32, keyID uint8) (uint64, error)

	// CancelToken best-effort cancels a previously issued command so its
	// CmdResult, if still pending, is dropped rather than delivered.
	CancelToken(token uint64)
}
