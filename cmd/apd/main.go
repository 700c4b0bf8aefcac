package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrelwifi/apd/internal/clock"
	"github.com/kestrelwifi/apd/internal/config"
	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/driver"
	"github.com/kestrelwifi/apd/internal/engine"
	"github.com/kestrelwifi/apd/internal/ratepolicy"
	"github.com/kestrelwifi/apd/internal/transport/mock"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("apd starting")

	settings := config.Load()
	if logger := newLevelLogger(settings.Debug); logger != nil {
		slog.SetDefault(logger)
	}

	ifIndex, ownMAC, err := resolveInterface(settings.Interface)
	if err != nil {
		slog.Error("failed to resolve interface", "interface", settings.Interface, "err", err)
		os.Exit(1)
	}

	cfg, err := settings.BuildApConfig(ownMAC)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	caps := ratepolicy.WiphyCaps{Pairwise: domain.CipherMask(0).Add(domain.CipherCCMP).Add(domain.CipherTKIP)}
	if !settings.SkipDriverSetup {
		slog.Info("stopping conflicting network services", "interface", settings.Interface)
		if err := driver.KillConflictingProcesses(); err != nil {
			slog.Warn("failed to stop conflicting services, AP mode may be unstable", "err", err)
		}

		if hwCaps, err := driver.GetCipherCapabilities(settings.Interface); err != nil {
			slog.Warn("cipher capability probe failed, assuming CCMP+TKIP", "err", err)
		} else {
			caps = hwCaps
		}

		if err := driver.PrepareAPInterface(settings.Interface, cfg.Channel); err != nil {
			slog.Error("failed to bring interface into AP mode", "interface", settings.Interface, "err", err)
			os.Exit(1)
		}
		defer driver.RestoreManagedInterface(settings.Interface)
		defer func() {
			if err := driver.RestoreNetworkServices(); err != nil {
				slog.Warn("failed to restore network services", "err", err)
			}
		}()
	}

	// No real nl80211 binding is wired into this reference binary; the in-memory
	// transport.mock.Transport stands in so the full start/dispatch/stop
	// lifecycle is still exercised end to end. driver.PrepareAPInterface
	// above still does the real iw/ip interface setup against the
	// configured card.
	transport := mock.New()
	wallClock := clock.New()

	sink := domain.EventSinkFunc(func(e domain.Event) {
		slog.Info("ap event", "kind", e.Kind, "mac", e.MAC, "reason", e.Reason, "err", e.Err)
	})

	eng := engine.New(ifIndex, transport, wallClock, sink, caps, logger)
	eng.SendEAPOL = func(mac domain.MAC, raw []byte) error {
		slog.Debug("eapol-key frame ready for controlled-port delivery", "mac", mac, "len", len(raw))
		return nil
	}

	if err := eng.Start(ctx, cfg, ownMAC); err != nil {
		slog.Error("failed to start AP", "err", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: ":9110", Handler: mux}
	go func() {
		slog.Info("metrics listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "err", err)
		}
	}()

	slog.Info("apd started, press ctrl+c to exit", "ssid", cfg.SSID, "ifindex", ifIndex)
	eng.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	slog.Info("apd stopped")
}

// resolveInterface looks up the kernel ifindex and hardware address of name,
// standing in for the netlink NEW_INTERFACE lookup a real nl80211 binding
// would perform.
func resolveInterface(name string) (uint32, domain.MAC, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return 0, domain.MAC{}, fmt.Errorf("resolve interface %q: %w", name, err)
	}
	mac, err := domain.MACFromBytes(iface.HardwareAddr)
	if err != nil {
		return 0, domain.MAC{}, fmt.Errorf("interface %q has no usable hardware address: %w", name, err)
	}
	return uint32(iface.Index), mac, nil
}

func newLevelLogger(debug bool) *slog.Logger {
	if !debug {
		return nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
