package eapol

import (
	"bytes"
	"crypto/aes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha1"
	"encoding/binary"
	"hash"

	"github.com/kestrelwifi/apd/internal/core/domain"
)

// PRF implements the IEEE 802.11i Pseudo-Random Function built on
// HMAC-SHA1, used to derive the PTK from the PMK (802.11-2016 §12.7.1.2).
func PRF(key, label, data []byte, lenBytes int) []byte {
	out := make([]byte, 0, lenBytes+sha1.Size)
	for i := 0; lenBytes > len(out); i++ {
		h := hmac.New(sha1.New, key)
		h.Write(label)
		h.Write([]byte{0x00})
		h.Write(data)
		h.Write([]byte{byte(i)})
		out = append(out, h.Sum(nil)...)
	}
	return out[:lenBytes]
}

// PTK holds the derived Pairwise Transient Key, split into its three
// sub-keys (802.11-2016 §12.7.1.3).
type PTK struct {
	KCK []byte // Key Confirmation Key, 16 bytes
	KEK []byte // Key Encryption Key, 16 bytes
	TK  []byte // Temporal Key, cipher-dependent length
}

// DerivePTK derives the PTK for a pairwise cipher. aa/spa are the
// authenticator/supplicant MACs, anonce/snonce the two handshake nonces.
// min/max ordering of the two address and nonce pairs follows the standard
// exactly (802.11-2016 §12.7.1.3).
func DerivePTK(pmk []byte, aa, spa domain.MAC, anonce, snonce [32]byte, pairwise domain.Cipher) PTK {
	data := make([]byte, 0, 76)
	a, b := aa.Bytes(), spa.Bytes()
	if bytes.Compare(a, b) <= 0 {
		data = append(data, a...)
		data = append(data, b...)
	} else {
		data = append(data, b...)
		data = append(data, a...)
	}
	if bytes.Compare(anonce[:], snonce[:]) <= 0 {
		data = append(data, anonce[:]...)
		data = append(data, snonce[:]...)
	} else {
		data = append(data, snonce[:]...)
		data = append(data, anonce[:]...)
	}

	tkLen := pairwise.KeySize()
	total := 32 + tkLen
	raw := PRF(pmk, []byte("Pairwise key expansion"), data, total)
	return PTK{
		KCK: raw[0:16],
		KEK: raw[16:32],
		TK:  raw[32 : 32+tkLen],
	}
}

// ComputeMIC computes the EAPOL-Key MIC over frame (with the MIC field
// already zeroed), using HMAC-MD5 for descriptor version 1 (TKIP) and
// HMAC-SHA1-128 for version 2 (CCMP), per 802.11-2016 §12.7.2.
func ComputeMIC(kck []byte, frame []byte, version uint8) [16]byte {
	var mac hash.Hash
	if version == DescriptorVersionHMACMD5RC4 {
		mac = hmac.New(md5.New, kck)
	} else {
		mac = hmac.New(sha1.New, kck)
	}
	mac.Write(frame)
	var out [16]byte
	copy(out[:], mac.Sum(nil)[:16])
	return out
}

// WrapKeyData encrypts the Key Data field for installation in Message 3.
// CCMP (descriptor v2) uses AES Key Wrap (RFC 3394); TKIP (v1) uses RC4
// keyed by the EAPOL-Key IV prepended to the KEK, discarding the first 256
// keystream bytes (802.11-2016 §12.7.2, WPA legacy RC4 handling).
func WrapKeyData(kek []byte, iv [16]byte, plain []byte, version uint8) ([]byte, error) {
	if version == DescriptorVersionHMACMD5RC4 {
		return rc4Transform(append(iv[:], kek...), plain)
	}
	return aesKeyWrap(kek, plain)
}

func UnwrapKeyData(kek []byte, iv [16]byte, wrapped []byte, version uint8) ([]byte, error) {
	if version == DescriptorVersionHMACMD5RC4 {
		return rc4Transform(append(iv[:], kek...), wrapped)
	}
	return aesKeyUnwrap(kek, wrapped)
}

func rc4Transform(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	discard := make([]byte, 256)
	c.XORKeyStream(discard, discard)
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

var aesKeyWrapIV = [8]byte{0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6}

// aesKeyWrap implements RFC 3394 key wrap with AES as the block cipher.
func aesKeyWrap(kek, plain []byte) ([]byte, error) {
	if len(plain)%8 != 0 {
		return nil, domain.ErrFrameMalformed
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	n := len(plain) / 8
	r := make([][]byte, n)
	for i := range r {
		r[i] = append([]byte{}, plain[i*8:i*8+8]...)
	}
	a := append([]byte{}, aesKeyWrapIV[:]...)

	buf := make([]byte, 16)
	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			copy(buf[:8], a)
			copy(buf[8:], r[i-1])
			block.Encrypt(buf, buf)
			t := uint64(n*j + i)
			msb := buf[:8]
			binary.BigEndian.PutUint64(msb, binary.BigEndian.Uint64(msb)^t)
			a = append([]byte{}, msb...)
			r[i-1] = append([]byte{}, buf[8:]...)
		}
	}
	out := append([]byte{}, a...)
	for _, blk := range r {
		out = append(out, blk...)
	}
	return out, nil
}

// aesKeyUnwrap implements RFC 3394 key unwrap.
func aesKeyUnwrap(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped)%8 != 0 || len(wrapped) < 16 {
		return nil, domain.ErrFrameMalformed
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	n := len(wrapped)/8 - 1
	a := append([]byte{}, wrapped[:8]...)
	r := make([][]byte, n)
	for i := range r {
		r[i] = append([]byte{}, wrapped[(i+1)*8:(i+2)*8]...)
	}

	buf := make([]byte, 16)
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			msb := append([]byte{}, a...)
			binary.BigEndian.PutUint64(msb, binary.BigEndian.Uint64(msb)^t)
			copy(buf[:8], msb)
			copy(buf[8:], r[i-1])
			block.Decrypt(buf, buf)
			a = append([]byte{}, buf[:8]...)
			r[i-1] = append([]byte{}, buf[8:]...)
		}
	}
	if !hmac.Equal(a, aesKeyWrapIV[:]) {
		return nil, domain.ErrFrameMalformed
	}
	out := make([]byte, 0, n*8)
	for _, blk := range r {
		out = append(out, blk...)
	}
	return out, nil
}

// SwapTKIPMICHalves exchanges a TKIP key's Tx-MIC and Rx-MIC halves (bytes
// 16-23 and 24-31) before kernel installation. Preserved exactly per the
// reference implementation's WPA-spec-cited behavior; do not remove
// without validating against the same reference.
func SwapTKIPMICHalves(key []byte) []byte {
	if len(key) != 32 {
		return key
	}
	out := append([]byte{}, key...)
	copy(out[16:24], key[24:32])
	copy(out[24:32], key[16:24])
	return out
}
