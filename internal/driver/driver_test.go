package driver_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/driver"
)

type fakeExecutor struct {
	outputs map[string][]byte
	errs    map[string]error
	calls   [][]string
}

func (f *fakeExecutor) Execute(name string, args...string) ([]byte, error) {
	key := name
	for _, a := range args {
		key += " " + a
	}
	f.calls = append(f.calls, append([]string{name}, args...))
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return f.outputs[key], nil
}

const ivDevOutput = `phy#0
	Interface wlan0
		ifindex 3
		type managed
`

const ivPhyInfoOutput = `Wiphy phy0
	Supported Ciphers:
		* WEP40 (00-0f-ac:1)
		* WEP104 (00-0f-ac:5)
		* TKIP (00-0f-ac:2)
		* CCMP-128 (00-0f-ac:4)
	Band 1:
`

func TestGetCipherCapabilities(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string][]byte{
		"iw dev":           []byte(ivDevOutput),
		"iw phy phy0 info": []byte(ivPhyInfoOutput),
	}}
	d := driver.New(exec)

	caps, err := d.GetCipherCapabilities("wlan0")
	require.NoError(t, err)
	assert.True(t, caps.Pairwise.Has(domain.CipherCCMP))
	assert.True(t, caps.Pairwise.Has(domain.CipherTKIP))
}

func TestGetCipherCapabilities_InterfaceNotFound(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string][]byte{"iw dev": []byte(ivDevOutput)}}
	d := driver.New(exec)

	_, err := d.GetCipherCapabilities("wlan9")
	assert.Error(t, err)
}

func TestPrepareAPInterface(t *testing.T) {
	exec := &fakeExecutor{outputs: map[string][]byte{}}
	d := driver.New(exec)

	err := d.PrepareAPInterface("wlan0", 6)
	require.NoError(t, err)
	require.Len(t, exec.calls, 4)
	assert.Equal(t, []string{"ip", "link", "set", "wlan0", "down"}, exec.calls[0])
	assert.Equal(t, []string{"iw", "wlan0", "set", "type", "__ap"}, exec.calls[1])
	assert.Equal(t, []string{"iw", "wlan0", "set", "channel", "6"}, exec.calls[2])
	assert.Equal(t, []string{"ip", "link", "set", "wlan0", "up"}, exec.calls[3])
}

func TestPrepareAPInterface_SetTypeFails(t *testing.T) {
	exec := &fakeExecutor{errs: map[string]error{
		"iw wlan0 set type __ap": fmt.Errorf("device or resource busy"),
	}}
	d := driver.New(exec)

	err := d.PrepareAPInterface("wlan0", 6)
	assert.Error(t, err)
}

func TestSetInterfaceChannelWithRetry(t *testing.T) {
	attempts := 0
	d := driver.New(execFunc(func(name string, args...string) ([]byte, error) {
		attempts++
		if attempts < 3 {
			return nil, fmt.Errorf("busy")
		}
		return nil, nil
	}))

	err := d.SetInterfaceChannelWithRetry("wlan0", 6, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

type execFunc func(name string, args...string) ([]byte, error)

func (f execFunc) Execute(name string, args...string) ([]byte, error) { return f(name, args...) }
