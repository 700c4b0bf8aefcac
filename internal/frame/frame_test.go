package frame

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/frame/ie"
)

var (
	testBSSID = domain.MAC{0, 1, 2, 3, 4, 5}
	testSTA   = domain.MAC{6, 5, 4, 3, 2, 1}
)

func TestBuildProbeResponseSerializes(t *testing.T) {
	// Probe Response is an outbound-only frame type; Parse's classify()
	// only recognizes inbound subtypes, so this
	// only exercises that gopacket accepts the encoding without error.
	p := BeaconParams{
		IntervalTU: 100,
		Capability: 0x0411,
		SSID:       "testnet",
		Rates:      domain.NewRateSet(2, 11, 22, 12),
		Channel:    6,
	}
	raw, err := BuildProbeResponse(testSTA, testBSSID, 1, p)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestBuildParseAuthResponseRoundTrip(t *testing.T) {
	raw, err := BuildAuthResponse(testSTA, testBSSID, 5, domain.StatusSuccess)
	require.NoError(t, err)

	// Authentication Response shares its Dot11 Type with Authentication
	// Request, so Parse classifies both as SubtypeAuthentication; direction
	// is the engine's responsibility, not the wire classifier's.
	in, ok, err := Parse(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SubtypeAuthentication, in.Subtype)
	assert.Equal(t, testSTA, in.Dst)
	assert.Equal(t, testBSSID, in.Src)
}

func TestBuildParseDeauthDisassocRoundTrip(t *testing.T) {
	raw, err := BuildDeauth(testSTA, testBSSID, 1, domain.Reason4WayHandshakeTimout)
	require.NoError(t, err)

	in, ok, err := Parse(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SubtypeDeauthentication, in.Subtype)

	body, err := ParseDeauthDisassoc(in.Body)
	require.NoError(t, err)
	assert.Equal(t, domain.Reason4WayHandshakeTimout, body.Reason)
}

func TestParseDeauthDisassocTooShort(t *testing.T) {
	_, err := ParseDeauthDisassoc([]byte{0x01})
	assert.ErrorIs(t, err, domain.ErrFrameMalformed)
}

func TestParseAuthRequest(t *testing.T) {
	body := make([]byte, 6)
	binary.LittleEndian.PutUint16(body[0:2], uint16(domain.AuthAlgoOpenSystem))
	binary.LittleEndian.PutUint16(body[2:4], 1)
	binary.LittleEndian.PutUint16(body[4:6], uint16(domain.StatusSuccess))

	parsed, err := ParseAuthRequest(body)
	require.NoError(t, err)
	assert.Equal(t, domain.AuthAlgoOpenSystem, parsed.Algorithm)
	assert.Equal(t, uint16(1), parsed.TransactionSeqNum)
}

func TestParseAuthRequestTooShort(t *testing.T) {
	_, err := ParseAuthRequest([]byte{0x00, 0x00})
	assert.ErrorIs(t, err, domain.ErrFrameMalformed)
}

func TestParseProbeRequestWildcard(t *testing.T) {
	var body []byte
	body = ie.Append(body, ie.IDSSID, nil)
	body = ie.Append(body, ie.IDSupportedRates, []byte{0x82, 0x84})

	parsed, err := ParseProbeRequest(body)
	require.NoError(t, err)
	assert.Equal(t, "", parsed.SSID)
	assert.Nil(t, parsed.WSC)
}

func TestParseProbeRequestWithWSC(t *testing.T) {
	var body []byte
	body = ie.Append(body, ie.IDSSID, []byte("testnet"))
	wscAttrs := ie.BuildWSCBeaconTail(nil, true)
	body = ie.Append(body, ie.IDVendorSpecific, append(append([]byte{}, 0x00, 0x50, 0xf2, 0x04), wscAttrs...))

	parsed, err := ParseProbeRequest(body)
	require.NoError(t, err)
	assert.Equal(t, "testnet", parsed.SSID)
	require.NotNil(t, parsed.WSC)
	assert.True(t, parsed.WSC.SelectedRegistrar)
}

func TestParseAssocRequestBasic(t *testing.T) {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint16(body[0:2], 0x0411)
	binary.LittleEndian.PutUint16(body[2:4], 10)
	body = ie.Append(body, ie.IDSSID, []byte("testnet"))
	body = ie.Append(body, ie.IDSupportedRates, []byte{0x82, 0x84})

	parsed, err := ParseAssocRequest(body, false)
	require.NoError(t, err)
	assert.Equal(t, "testnet", parsed.SSID)
	assert.Equal(t, uint16(10), parsed.ListenInterval)
	assert.Nil(t, parsed.RSNE)
}

func TestParseAssocRequestReassocCarriesCurrentAP(t *testing.T) {
	body := make([]byte, 10)
	binary.LittleEndian.PutUint16(body[0:2], 0x0411)
	binary.LittleEndian.PutUint16(body[2:4], 10)
	copy(body[4:10], testBSSID.Bytes())
	body = ie.Append(body, ie.IDSSID, []byte("testnet"))

	parsed, err := ParseAssocRequest(body, true)
	require.NoError(t, err)
	assert.Equal(t, testBSSID, parsed.CurrentAPAddress)
}

func TestParseAssocRequestWithRSNE(t *testing.T) {
	body := make([]byte, 4)
	rsnBody := ie.BuildRSNBody(domain.CipherCCMP, domain.CipherCCMP, domain.AKMPSK, ie.RSNCapabilities{})
	body = ie.Append(body, ie.IDSSID, []byte("testnet"))
	body = ie.Append(body, ie.IDRSN, rsnBody)

	parsed, err := ParseAssocRequest(body, false)
	require.NoError(t, err)
	require.NotNil(t, parsed.RSNE)
	assert.Equal(t, domain.CipherCCMP, parsed.RSNE.GroupCipher)
}

func TestParseAssocRequestTooShort(t *testing.T) {
	_, err := ParseAssocRequest([]byte{0x01}, false)
	assert.ErrorIs(t, err, domain.ErrFrameMalformed)
}

func TestBuildAssocResponseSerializes(t *testing.T) {
	// Association Response is likewise outbound-only; see the comment on
	// TestBuildProbeResponseSerializes.
	p := AssocResponseParams{
		Capability: 0x0411,
		Status:     domain.StatusSuccess,
		AID:        5,
		Rates:      domain.NewRateSet(2, 11),
	}
	raw, err := BuildAssocResponse(testSTA, testBSSID, 2, p)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}
