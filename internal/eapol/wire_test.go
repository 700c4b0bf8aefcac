package eapol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelwifi/apd/internal/core/domain"
)

func sampleFrame() KeyFrame {
	f := KeyFrame{
		DescriptorType: keyDescriptorTypeRSN,
		KeyInfo:        uint16(DescriptorVersionHMACSHA1AES) | KeyInfoKeyType | KeyInfoKeyAck | KeyInfoKeyMIC | KeyInfoSecure,
		KeyLength:      16,
		ReplayCounter:  7,
		KeyRSC:         3,
		KeyID:          0,
		KeyData:        []byte{0x01, 0x02, 0x03, 0x04},
	}
	for i := range f.Nonce {
		f.Nonce[i] = byte(i)
	}
	for i := range f.KeyIV {
		f.KeyIV[i] = byte(0xa0 + i)
	}
	for i := range f.MIC {
		f.MIC[i] = byte(0xee)
	}
	return f
}

func TestBuildParseRoundTrip(t *testing.T) {
	f := sampleFrame()
	raw := Build(f)
	require.Len(t, raw, fixedFrameLen+len(f.KeyData))

	got, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestParseTooShort(t *testing.T) {
	_, err := Parse(make([]byte, fixedFrameLen-1))
	assert.ErrorIs(t, err, domain.ErrFrameMalformed)
}

func TestParseTruncatedKeyData(t *testing.T) {
	f := sampleFrame()
	raw := Build(f)
	_, err := Parse(raw[:len(raw)-1])
	assert.ErrorIs(t, err, domain.ErrFrameMalformed)
}

func TestKeyInfoHelpers(t *testing.T) {
	f := KeyFrame{KeyInfo: KeyInfoKeyMIC | KeyInfoKeyType | KeyInfoSecure}
	assert.True(t, f.HasMIC())
	assert.False(t, f.HasAck())
	assert.True(t, f.IsPairwise())
	assert.True(t, f.IsSecure())

	g := KeyFrame{KeyInfo: KeyInfoKeyAck}
	assert.False(t, g.HasMIC())
	assert.True(t, g.HasAck())
	assert.False(t, g.IsPairwise())
	assert.False(t, g.IsSecure())
}

func TestDescriptorVersion(t *testing.T) {
	assert.Equal(t, DescriptorVersionHMACMD5RC4, DescriptorVersion(domain.CipherTKIP))
	assert.Equal(t, DescriptorVersionHMACSHA1AES, DescriptorVersion(domain.CipherCCMP))
	assert.Equal(t, DescriptorVersionHMACSHA1AES, DescriptorVersion(domain.CipherWRAP))
}

func TestBuildZeroesNothingOfCaller(t *testing.T) {
	// Build must not mutate the MIC the caller set; clearing it for the MIC
	// computation is the caller's own responsibility (authenticator.go
	// zeroes a copy before computing).
	f := sampleFrame()
	raw := Build(f)
	assert.Equal(t, f.MIC[:], raw[77:93])
}
