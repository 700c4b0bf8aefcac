package eapol

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/core/ports"
)

// TxFunc delivers a built EAPOL-Key frame to the supplicant. Wiring it onto
// the controlled-port data plane is outside this core's scope; callers
// (the orchestrator, or a test's mock supplicant) supply it.
type TxFunc func(raw []byte) error

var gtkKDEOUI = [3]byte{0x00, 0x0f, 0xac}

const gtkKDEDataType = 1

// Authenticator drives the authenticator side of the RSN 4-Way Handshake
// and implements ports.Handshake.
type Authenticator struct {
	mu      sync.Mutex // guards params.GTKRSC and ptk, touched by run() and by Rekey from the orchestrator's goroutine
	params  ports.FourWayParams
	version uint8
	anonce  [32]byte
	ptk     PTK

	tx     TxFunc
	rx     chan []byte
	events chan domain.HandshakeEvent
	done   chan struct{}
	once   sync.Once

	log *slog.Logger
}

func NewAuthenticator(p ports.FourWayParams, tx TxFunc, log *slog.Logger) *Authenticator {
	if log == nil {
		log = slog.Default()
	}
	return &Authenticator{
		params:  p,
		version: DescriptorVersion(p.Pairwise),
		tx:      tx,
		rx:      make(chan []byte, 2),
		events:  make(chan domain.HandshakeEvent, 4),
		done:    make(chan struct{}),
		log:     log,
	}
}

func (a *Authenticator) Events() <-chan domain.HandshakeEvent { return a.events }

// Deliver hands an inbound EAPOL-Key frame (Message 2 or Message 4) to the
// session.
func (a *Authenticator) Deliver(raw []byte) {
	select {
	case a.rx <- raw:
	case <-a.done:
	}
}

func (a *Authenticator) Stop() {
	a.once.Do(func() { close(a.done) })
}

// Start generates ANonce, sends Message 1, and begins the background wait
// for Message 2 and Message 4.
func (a *Authenticator) Start(ctx context.Context) error {
	if _, err := rand.Read(a.anonce[:]); err != nil {
		return err
	}

	msg1 := KeyFrame{
		DescriptorType: keyDescriptorTypeRSN,
		KeyInfo:        uint16(a.version) | KeyInfoKeyType | KeyInfoKeyAck,
		KeyLength:      uint16(a.params.Pairwise.KeySize()),
		ReplayCounter:  1,
		Nonce:          a.anonce,
	}
	if err := a.tx(Build(msg1)); err != nil {
		return err
	}

	go a.run(ctx)
	return nil
}

func (a *Authenticator) run(ctx context.Context) {
	defer close(a.events)

	select {
	case <-ctx.Done():
		return
	case <-a.done:
		return
	case raw := <-a.rx:
		if !a.handleMessage2(raw) {
			return
		}
	}

	select {
	case <-ctx.Done():
		return
	case <-a.done:
		return
	case raw := <-a.rx:
		a.handleMessage4(raw)
	}
}

func (a *Authenticator) handleMessage2(raw []byte) bool {
	frame, err := Parse(raw)
	if err != nil || !frame.HasMIC() || frame.HasAck() || frame.ReplayCounter != 1 {
		a.fail(domain.Reason4WayHandshakeTimout)
		return false
	}

	a.mu.Lock()
	a.ptk = DerivePTK(a.params.PMK[:], a.params.AuthenticatorMAC, a.params.SupplicantMAC, a.anonce, frame.Nonce, a.params.Pairwise)
	ptk := a.ptk
	a.mu.Unlock()

	check := frame
	check.MIC = [16]byte{}
	want := ComputeMIC(ptk.KCK, Build(check), a.version)
	if want != frame.MIC {
		a.fail(domain.Reason4WayHandshakeTimout)
		return false
	}

	msg3, err := a.buildMessage3()
	if err != nil {
		a.emit(domain.HandshakeEvent{Kind: domain.HandshakeSettingKeysFailed})
		return false
	}
	if err := a.tx(msg3); err != nil {
		a.fail(domain.Reason4WayHandshakeTimout)
		return false
	}
	return true
}

func (a *Authenticator) buildMessage3() ([]byte, error) {
	a.mu.Lock()
	params, ptk := a.params, a.ptk
	a.mu.Unlock()

	keyData := append([]byte{}, params.AuthenticatorRSNE...)
	if len(params.GTK) > 0 {
		keyData = append(keyData, buildGTKKDE(params.GTK, params.GTKIndex)...)
	}
	keyData = append(keyData, 0xdd, 0x00) // terminating KDE

	var iv [16]byte
	if _, err := rand.Read(iv[:]); err != nil {
		return nil, err
	}
	wrapped, err := WrapKeyData(ptk.KEK, iv, pad8(keyData), a.version)
	if err != nil {
		return nil, err
	}

	keyInfo := uint16(a.version) | KeyInfoKeyType | KeyInfoInstall | KeyInfoKeyAck | KeyInfoKeyMIC | KeyInfoSecure
	if a.version == DescriptorVersionHMACSHA1AES {
		keyInfo |= KeyInfoEncryptedKeyData
	}
	frame := KeyFrame{
		DescriptorType: keyDescriptorTypeRSN,
		KeyInfo:        keyInfo,
		KeyLength:      uint16(params.Pairwise.KeySize()),
		ReplayCounter:  2,
		Nonce:          a.anonce,
		KeyIV:          iv,
		KeyRSC:         params.GTKRSC,
		KeyData:        wrapped,
	}
	raw := Build(frame)
	mic := ComputeMIC(ptk.KCK, raw, a.version)
	copy(raw[77:93], mic[:])
	return raw, nil
}

// Rekey rebuilds and retransmits Message 3 with a freshly queried GTK RSC,
// for when the kernel reports a SetKeyFail and retries the group key
// install after Message 2 has already been processed. A no-op before the
// PTK has been derived (no Message 2 seen yet).
func (a *Authenticator) Rekey(rsc uint64) error {
	a.mu.Lock()
	ready := a.ptk.KCK != nil
	if ready {
		a.params.GTKRSC = rsc
	}
	a.mu.Unlock()
	if !ready {
		return nil
	}

	msg3, err := a.buildMessage3()
	if err != nil {
		return err
	}
	return a.tx(msg3)
}

func (a *Authenticator) handleMessage4(raw []byte) {
	frame, err := Parse(raw)
	if err != nil || !frame.HasMIC() || frame.HasAck() || frame.ReplayCounter != 2 {
		a.fail(domain.Reason4WayHandshakeTimout)
		return
	}
	a.mu.Lock()
	kck := a.ptk.KCK
	a.mu.Unlock()

	check := frame
	check.MIC = [16]byte{}
	want := ComputeMIC(kck, Build(check), a.version)
	if want != frame.MIC {
		a.fail(domain.Reason4WayHandshakeTimout)
		return
	}
	a.emit(domain.HandshakeEvent{Kind: domain.HandshakeComplete})
}

func (a *Authenticator) fail(reason domain.ReasonCode) {
	a.emit(domain.HandshakeEvent{Kind: domain.HandshakeFailed, Reason: reason})
}

func (a *Authenticator) emit(e domain.HandshakeEvent) {
	select {
	case a.events <- e:
	case <-a.done:
	}
}

// TK returns the derived Temporal Key, valid once Message 2 has been
// processed (after Events() has delivered nothing yet but before Complete,
// the orchestrator should not read this).
func (a *Authenticator) TK() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ptk.TK
}

func buildGTKKDE(gtk []byte, keyID uint8) []byte {
	body := make([]byte, 0, 2+len(gtk))
	body = append(body, keyID&0x03, 0x00)
	body = append(body, gtk...)

	kde := make([]byte, 0, 2+3+1+len(body))
	kde = append(kde, 0xdd, byte(3+1+len(body)))
	kde = append(kde, gtkKDEOUI[:]...)
	kde = append(kde, gtkKDEDataType)
	kde = append(kde, body...)
	return kde
}

func pad8(data []byte) []byte {
	rem := len(data) % 8
	if rem == 0 {
		return data
	}
	return append(data, make([]byte, 8-rem)...)
}
