// Package driver shells out to iw/ip to discover a wireless interface's
// cipher capabilities and to bring it into AP mode. Adapted from a prior
// sniffer driver package that queried phy capabilities to plan channel
// hops; here the same "iw dev" / "iw phy info" parsing instead discovers
// the CCMP/TKIP cipher suites a card's firmware advertises, feeding
// ratepolicy.WiphyCaps.
package driver

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/ratepolicy"
)

// CommandExecutor abstracts system command execution so tests can stub it.
type CommandExecutor interface {
	Execute(name string, args...string) ([]byte, error)
}

// SystemCommandExecutor runs commands via os/exec.
type SystemCommandExecutor struct{}

func (e *SystemCommandExecutor) Execute(name string, args...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// WirelessDriver interacts with a wireless interface through iw/ip.
type WirelessDriver struct {
	executor CommandExecutor
}

// DefaultDriver is the package-level instance used by the free functions.
var DefaultDriver = &WirelessDriver{executor: &SystemCommandExecutor{}}

func SetExecutor(e CommandExecutor) { DefaultDriver.executor = e }

func New(e CommandExecutor) *WirelessDriver { return &WirelessDriver{executor: e} }

// GetCipherCapabilities reports the pairwise ciphers iface's phy advertises
// in "iw phy <phy> info"'s Supported Ciphers block, for ratepolicy.ChooseCiphers.
func GetCipherCapabilities(iface string) (ratepolicy.WiphyCaps, error) {
	return DefaultDriver.GetCipherCapabilities(iface)
}

func (d *WirelessDriver) GetCipherCapabilities(iface string) (ratepolicy.WiphyCaps, error) {
	phy, err := d.getPhyForInterface(iface)
	if err != nil {
		return ratepolicy.WiphyCaps{}, err
	}
	return d.getPhyCiphers(phy)
}

func (d *WirelessDriver) getPhyForInterface(iface string) (string, error) {
	out, err := d.executor.Execute("iw", "dev")
	if err != nil {
		return "", fmt.Errorf("driver: iw dev: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	currentPhy := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "phy#"):
			currentPhy = strings.TrimPrefix(line, "phy#")
		case strings.HasPrefix(line, "Interface "+iface):
			return currentPhy, nil
		}
	}
	return "", fmt.Errorf("driver: interface %s not found in iw dev output", iface)
}

func (d *WirelessDriver) getPhyCiphers(phy string) (ratepolicy.WiphyCaps, error) {
	out, err := d.executor.Execute("iw", "phy", "phy"+phy, "info")
	if err != nil {
		return ratepolicy.WiphyCaps{}, fmt.Errorf("driver: iw phy phy%s info: %w", phy, err)
	}

	var caps ratepolicy.WiphyCaps
	scanner := bufio.NewScanner(bytes.NewReader(out))
	inCiphers := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "Supported Ciphers:" {
			inCiphers = true
			continue
		}
		if !inCiphers {
			continue
		}
		if !strings.HasPrefix(line, "*") {
			break
		}
		switch {
		case strings.Contains(line, "CCMP"):
			caps.Pairwise = caps.Pairwise.Add(domain.CipherCCMP)
		case strings.Contains(line, "TKIP"):
			caps.Pairwise = caps.Pairwise.Add(domain.CipherTKIP)
		}
	}
	return caps, nil
}

// PrepareAPInterface takes iface down, switches its type to __ap (soft-AP
// master mode), sets channel, and brings it back up.
func PrepareAPInterface(iface string, channel int) error {
	return DefaultDriver.PrepareAPInterface(iface, channel)
}

func (d *WirelessDriver) PrepareAPInterface(iface string, channel int) error {
	if err := d.runCmd("ip", "link", "set", iface, "down"); err != nil {
		return err
	}
	if err := d.runCmd("iw", iface, "set", "type", "__ap"); err != nil {
		return fmt.Errorf("driver: set %s to AP mode: %w (hint: run 'iw dev %s del' first if busy)", iface, err, iface)
	}
	if channel > 0 {
		if err := d.SetInterfaceChannel(iface, channel); err != nil {
			return err
		}
	}
	return d.runCmd("ip", "link", "set", iface, "up")
}

// RestoreManagedInterface takes iface back down and into managed mode.
func RestoreManagedInterface(iface string) {
	DefaultDriver.RestoreManagedInterface(iface)
}

func (d *WirelessDriver) RestoreManagedInterface(iface string) {
	_ = d.runCmd("ip", "link", "set", iface, "down")
	_ = d.runCmd("iw", iface, "set", "type", "managed")
	_ = d.runCmd("ip", "link", "set", iface, "up")
}

func SetInterfaceChannel(iface string, channel int) error {
	return DefaultDriver.SetInterfaceChannel(iface, channel)
}

func (d *WirelessDriver) SetInterfaceChannel(iface string, channel int) error {
	if channel <= 0 {
		return fmt.Errorf("driver: invalid channel %d", channel)
	}
	if err := d.runCmd("iw", iface, "set", "channel", fmt.Sprintf("%d", channel)); err != nil {
		return fmt.Errorf("driver: set channel %d on %s: %w", channel, iface, err)
	}
	return nil
}

func SetInterfaceChannelWithRetry(iface string, channel int, maxRetries int) error {
	return DefaultDriver.SetInterfaceChannelWithRetry(iface, channel, maxRetries)
}

func (d *WirelessDriver) SetInterfaceChannelWithRetry(iface string, channel int, maxRetries int) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := d.SetInterfaceChannel(iface, channel); err == nil {
			return nil
		} else {
			lastErr = err
			time.Sleep(100 * time.Millisecond * time.Duration(i+1))
		}
	}
	return fmt.Errorf("driver: failed after %d retries: %w", maxRetries, lastErr)
}

// KillConflictingProcesses stops services that fight over the interface
// (NetworkManager, wpa_supplicant) before the AP claims it.
func KillConflictingProcesses() error { return DefaultDriver.KillConflictingProcesses() }

func (d *WirelessDriver) KillConflictingProcesses() error {
	for _, args := range [][]string{{"systemctl", "stop", "NetworkManager"}, {"systemctl", "stop", "wpa_supplicant"}} {
		if out, err := d.executor.Execute(args[0], args[1:]...); err != nil {
			return fmt.Errorf("driver: %s %v: %w (%s)", args[0], args[1:], err, string(out))
		}
	}
	return nil
}

// RestoreNetworkServices restarts services KillConflictingProcesses stopped.
func RestoreNetworkServices() error { return DefaultDriver.RestoreNetworkServices() }

func (d *WirelessDriver) RestoreNetworkServices() error {
	var lastErr error
	for _, args := range [][]string{{"systemctl", "start", "wpa_supplicant"}, {"systemctl", "start", "NetworkManager"}} {
		if out, err := d.executor.Execute(args[0], args[1:]...); err != nil {
			lastErr = fmt.Errorf("driver: %s %v: %w (%s)", args[0], args[1:], err, string(out))
		}
	}
	return lastErr
}

func (d *WirelessDriver) runCmd(name string, args...string) error {
	if out, err := d.executor.Execute(name, args...); err != nil {
		return fmt.Errorf("driver: %s %v failed: %w (%s)", name, args, err, string(out))
	}
	return nil
}
