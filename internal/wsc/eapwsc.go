package wsc

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/core/ports"
)

// EAPSession stands in for the full EAP-WSC registration protocol on the
// WSC-only association path. It implements
// ports.Handshake identically to the 4-Way Handshake authenticator so the
// orchestrator drives both uniformly. It runs no EAP-WSC M1..M8 exchange and
// sends nothing to the enrollee; it only reports the credential as sent and
// then reports completion.
type EAPSession struct {
	params ports.WSCParams
	events chan domain.HandshakeEvent
	done   chan struct{}
	once   sync.Once
	log    *slog.Logger
}

func NewEAPSession(p ports.WSCParams, log *slog.Logger) *EAPSession {
	if log == nil {
		log = slog.Default()
	}
	return &EAPSession{
		params: p,
		events: make(chan domain.HandshakeEvent, 2),
		done:   make(chan struct{}),
		log:    log,
	}
}

func (s *EAPSession) Events() <-chan domain.HandshakeEvent { return s.events }

func (s *EAPSession) Stop() {
	s.once.Do(func() { close(s.done) })
}

// Start immediately reports the credential as delivered; there is no
// supplicant exchange to wait on in this core.
func (s *EAPSession) Start(ctx context.Context) error {
	go func() {
		defer close(s.events)
		select {
		case <-s.done:
			return
		default:
		}
		select {
		case s.events <- domain.HandshakeEvent{Kind: domain.HandshakeEapNotify, Notify: domain.EapNotifyCredentialSent}:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
		select {
		case s.events <- domain.HandshakeEvent{Kind: domain.HandshakeComplete}:
		case <-s.done:
		case <-ctx.Done():
		}
	}()
	return nil
}
