package ports

import (
	"context"

	"github.com/kestrelwifi/apd/internal/core/domain"
)

// Handshake is the EAPoL component's per-station session surface, consumed
// by the orchestrator as an external collaborator. A RSN 4-Way Handshake session and an
// EAP-WSC registration session both implement it.
type Handshake interface {
	// Start registers and begins the exchange. It must not block past
	// issuing the first message.
	Start(ctx context.Context) error

	// Stop tears the session down immediately; safe to call more than
	// once and safe to call from within an Events callback via an idle
	// hook.
	Stop()

	// Events is the channel this session's HandshakeEvents arrive on.
	Events() <-chan domain.HandshakeEvent
}

// FourWayParams configures a new RSN 4-Way Handshake authenticator
// session.
type FourWayParams struct {
	PMK              [32]byte
	SupplicantRSNE   []byte // STA's RSNE from the (re)association request
	AuthenticatorRSNE []byte // AP's advertised RSNE
	GTK              []byte
	GTKIndex         uint8
	GTKRSC           uint64
	Pairwise         domain.Cipher
	AID              uint16
	AuthenticatorMAC domain.MAC
	SupplicantMAC    domain.MAC
}

// WSCParams configures a new EAP-WSC registration session.
type WSCParams struct {
	SSID             string
	Passphrase       string
	PSK              [32]byte
	UUIDE            [16]byte
	UUIDR            [16]byte
	AuthenticatorMAC domain.MAC
	SupplicantMAC    domain.MAC
}
