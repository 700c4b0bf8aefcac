// Package config loads the AP's configuration from flags and environment
// variables and derives its key material. Adapted from
// internal/config/config.go flag+env pattern.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"crypto/sha1"

	"github.com/kestrelwifi/apd/internal/core/domain"
)

const pbkdf2Iterations = 4096

// uuidRNamespace is a fixed namespace used to derive a stable, deterministic
// UUID-R from the AP's own MAC.
var uuidRNamespace = uuid.MustParse("b15a1e00-6f2b-4a2b-9a3b-2f8b6a2c9e10")

// Settings is the raw, unvalidated configuration surface loaded from flags
// and environment variables, before cipher/rate negotiation and PSK
// derivation (which belong to the engine's Start sequence).
type Settings struct {
	Interface     string
	SSID          string
	Passphrase    string
	Channel       int
	NoCCKRates    bool
	AuthorizedMAC []string
	DeviceName    string
	Debug         bool

	// SkipDriverSetup bypasses the iw/ip interface preparation in
	// cmd/apd, for running the reference binary against
	// internal/transport/mock without a real wireless card.
	SkipDriverSetup bool
}

// Load parses command-line flags and environment variables into Settings.
// Flags take precedence over environment variables, matching the reference implementation's
// Load() precedence.
func Load() *Settings {
	s := &Settings{}

	iface := getEnv("APD_INTERFACE", "wlan0")
	ssid := getEnv("APD_SSID", "")
	passphrase := getEnv("APD_PASSPHRASE", "")
	channel := int(getEnvFloat("APD_CHANNEL", 6))
	noCCK := getEnvBool("APD_NO_CCK", false)
	authorizedCSV := getEnv("APD_AUTHORIZED_MACS", "")
	deviceName := getEnv("APD_DEVICE_NAME", "apd")
	skipDriverSetup := getEnvBool("APD_SKIP_DRIVER_SETUP", false)

	flag.StringVar(&iface, "i", iface, "Network interface to bring the AP up on")
	flag.StringVar(&ssid, "ssid", ssid, "AP SSID")
	flag.StringVar(&passphrase, "passphrase", passphrase, "WPA2-PSK passphrase (8-63 chars)")
	flag.IntVar(&channel, "channel", channel, "2.4GHz channel number")
	flag.BoolVar(&noCCK, "no-cck", noCCK, "Disable 802.11b CCK rates, advertise OFDM-only")
	flag.StringVar(&authorizedCSV, "authorized-macs", authorizedCSV, "Comma-separated MAC allow-list (empty means any station)")
	flag.StringVar(&deviceName, "device-name", deviceName, "WSC device name advertised to enrollees")
	flag.BoolVar(&s.Debug, "debug", false, "Enable verbose debug logging")
	flag.BoolVar(&skipDriverSetup, "skip-driver-setup", skipDriverSetup, "Skip iw/ip interface preparation (for use with a mock transport)")

	flag.Parse()

	s.Interface = iface
	s.SSID = ssid
	s.Passphrase = passphrase
	s.Channel = channel
	s.NoCCKRates = noCCK
	s.AuthorizedMAC = parseCSV(authorizedCSV)
	s.DeviceName = deviceName
	s.SkipDriverSetup = skipDriverSetup
	return s
}

// BuildApConfig validates Settings and derives the PSK/UUID-R, producing the
// ApConfig the engine consumes.
func (s *Settings) BuildApConfig(ownMAC domain.MAC) (*domain.ApConfig, error) {
	var authorized []domain.MAC
	for _, raw := range s.AuthorizedMAC {
		mac, err := domain.ParseMAC(raw)
		if err != nil {
			return nil, fmt.Errorf("config: invalid authorized MAC %q: %w", raw, err)
		}
		authorized = append(authorized, mac)
	}

	cfg := &domain.ApConfig{
		SSID:          s.SSID,
		Passphrase:    s.Passphrase,
		Channel:       s.Channel,
		NoCCKRates:    s.NoCCKRates,
		AuthorizedMAC: authorized,
		WSC: domain.WSCDescriptor{
			DeviceName: s.DeviceName,
			UUIDR:      deriveUUIDR(ownMAC),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Passphrase != "" {
		cfg.PSK = derivePSK(cfg.Passphrase, cfg.SSID)
		cfg.HasPSK = true
	}
	return cfg, nil
}

// derivePSK derives the 32-byte PSK via PBKDF2-HMAC-SHA1 with the SSID as
// salt.
func derivePSK(passphrase, ssid string) [32]byte {
	var psk [32]byte
	copy(psk[:], pbkdf2.Key([]byte(passphrase), []byte(ssid), pbkdf2Iterations, 32, sha1.New))
	return psk
}

// deriveUUIDR computes a stable, deterministic UUID-R from the AP's own MAC.
func deriveUUIDR(mac domain.MAC) [16]byte {
	id := uuid.NewSHA1(uuidRNamespace, mac.Bytes())
	var out [16]byte
	copy(out[:], id[:])
	return out
}

func parseCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
