package eapol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelwifi/apd/internal/core/domain"
)

func TestPRFDeterministicAndLength(t *testing.T) {
	key := []byte("some pmk material padded to 32 bytes!!")
	data := []byte("fixed context data")

	a := PRF(key, []byte("Pairwise key expansion"), data, 48)
	b := PRF(key, []byte("Pairwise key expansion"), data, 48)
	assert.Equal(t, a, b)
	assert.Len(t, a, 48)

	c := PRF(key, []byte("Pairwise key expansion"), data, 64)
	assert.Len(t, c, 64)
	assert.Equal(t, a, c[:48])
}

func TestDerivePTKAddressNonceOrderingIsSymmetric(t *testing.T) {
	pmk := make([]byte, 32)
	for i := range pmk {
		pmk[i] = byte(i)
	}
	aa := domain.MAC{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	spa := domain.MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	var anonce, snonce [32]byte
	for i := range anonce {
		anonce[i] = byte(i)
		snonce[i] = byte(31 - i)
	}

	ptk1 := DerivePTK(pmk, aa, spa, anonce, snonce, domain.CipherCCMP)
	// Swapping which side is "authenticator" vs "supplicant" in the call
	// must not change the result: DerivePTK itself orders addresses and
	// nonces by min/max, not by argument position.
	ptk2 := DerivePTK(pmk, spa, aa, anonce, snonce, domain.CipherCCMP)

	assert.Equal(t, ptk1.KCK, ptk2.KCK)
	assert.Equal(t, ptk1.KEK, ptk2.KEK)
	assert.Equal(t, ptk1.TK, ptk2.TK)

	assert.Len(t, ptk1.KCK, 16)
	assert.Len(t, ptk1.KEK, 16)
	assert.Len(t, ptk1.TK, domain.CipherCCMP.KeySize())
}

func TestDerivePTKTKIPKeyLength(t *testing.T) {
	pmk := make([]byte, 32)
	aa := domain.MAC{1, 2, 3, 4, 5, 6}
	spa := domain.MAC{6, 5, 4, 3, 2, 1}
	var anonce, snonce [32]byte

	ptk := DerivePTK(pmk, aa, spa, anonce, snonce, domain.CipherTKIP)
	assert.Len(t, ptk.TK, domain.CipherTKIP.KeySize())
}

func TestComputeMICDiffersByVersion(t *testing.T) {
	kck := make([]byte, 16)
	frame := []byte("eapol key frame bytes with mic zeroed")

	md5MIC := ComputeMIC(kck, frame, DescriptorVersionHMACMD5RC4)
	sha1MIC := ComputeMIC(kck, frame, DescriptorVersionHMACSHA1AES)
	assert.NotEqual(t, md5MIC, sha1MIC)

	// deterministic
	again := ComputeMIC(kck, frame, DescriptorVersionHMACSHA1AES)
	assert.Equal(t, sha1MIC, again)
}

func TestWrapUnwrapKeyDataCCMP(t *testing.T) {
	kek := make([]byte, 16)
	for i := range kek {
		kek[i] = byte(i + 1)
	}
	var iv [16]byte
	plain := []byte("0123456789abcdef") // 16 bytes, multiple of 8

	wrapped, err := WrapKeyData(kek, iv, plain, DescriptorVersionHMACSHA1AES)
	require.NoError(t, err)
	assert.Len(t, wrapped, len(plain)+8)
	assert.NotEqual(t, plain, wrapped[:len(plain)])

	unwrapped, err := UnwrapKeyData(kek, iv, wrapped, DescriptorVersionHMACSHA1AES)
	require.NoError(t, err)
	assert.Equal(t, plain, unwrapped)
}

func TestWrapKeyDataCCMPRejectsNonMultipleOf8(t *testing.T) {
	kek := make([]byte, 16)
	var iv [16]byte
	_, err := WrapKeyData(kek, iv, []byte("odd"), DescriptorVersionHMACSHA1AES)
	assert.Error(t, err)
}

func TestUnwrapKeyDataCCMPRejectsTamperedIntegrity(t *testing.T) {
	kek := make([]byte, 16)
	var iv [16]byte
	plain := []byte("0123456789abcdef")
	wrapped, err := WrapKeyData(kek, iv, plain, DescriptorVersionHMACSHA1AES)
	require.NoError(t, err)

	wrapped[0] ^= 0xff
	_, err = UnwrapKeyData(kek, iv, wrapped, DescriptorVersionHMACSHA1AES)
	assert.Error(t, err)
}

func TestWrapUnwrapKeyDataTKIP(t *testing.T) {
	kek := make([]byte, 16)
	for i := range kek {
		kek[i] = byte(0xf0 + i)
	}
	var iv [16]byte
	for i := range iv {
		iv[i] = byte(i)
	}
	plain := []byte("arbitrary tkip key data payload")

	wrapped, err := WrapKeyData(kek, iv, plain, DescriptorVersionHMACMD5RC4)
	require.NoError(t, err)
	assert.NotEqual(t, plain, wrapped)
	assert.Len(t, wrapped, len(plain))

	unwrapped, err := UnwrapKeyData(kek, iv, wrapped, DescriptorVersionHMACMD5RC4)
	require.NoError(t, err)
	assert.Equal(t, plain, unwrapped)
}

func TestSwapTKIPMICHalves(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	swapped := SwapTKIPMICHalves(key)

	assert.Equal(t, key[:16], swapped[:16])
	assert.Equal(t, key[16:24], swapped[24:32])
	assert.Equal(t, key[24:32], swapped[16:24])

	// swapping twice restores the original
	assert.Equal(t, key, SwapTKIPMICHalves(swapped))
}

func TestSwapTKIPMICHalvesWrongLength(t *testing.T) {
	key := make([]byte, 16)
	assert.Equal(t, key, SwapTKIPMICHalves(key))
}
