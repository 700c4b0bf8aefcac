// Package eapol implements the wire format and authenticator-side state
// machine for the 802.11i 4-Way Handshake. The rest of this core treats
// EAPoL as an external component; this package is the concrete
// reference implementation used by the handshake orchestrator and by
// tests, grounded on read-only
// internal/adapters/sniffer/handshake/eapol_parser.go, extended into a
// bidirectional codec plus the authenticator FSM itself.
package eapol

import (
	"encoding/binary"

	"github.com/kestrelwifi/apd/internal/core/domain"
)

// Key Information bit masks (IEEE 802.11-2016 Figure 12-34), reproduced
// from parser.
const (
	KeyInfoDescriptorVersionMask uint16 = 0x0007
	KeyInfoKeyType               uint16 = 1 << 3
	KeyInfoKeyIndexMask          uint16 = 0x0030
	KeyInfoInstall               uint16 = 1 << 6
	KeyInfoKeyAck                uint16 = 1 << 7
	KeyInfoKeyMIC                uint16 = 1 << 8
	KeyInfoSecure                uint16 = 1 << 9
	KeyInfoError                uint16 = 1 << 10
	KeyInfoRequest               uint16 = 1 << 11
	KeyInfoEncryptedKeyData      uint16 = 1 << 12
)

// Descriptor versions: 1 = HMAC-MD5/RC4 (TKIP), 2 = HMAC-SHA1-128/AES (CCMP).
const (
	DescriptorVersionHMACMD5RC4   uint8 = 1
	DescriptorVersionHMACSHA1AES  uint8 = 2
)

const keyDescriptorTypeRSN uint8 = 2

const fixedFrameLen = 95 // DescType(1)+KeyInfo(2)+KeyLen(2)+Replay(8)+Nonce(32)+IV(16)+RSC(8)+ID(8)+MIC(16)+DataLen(2)

// KeyFrame is one EAPOL-Key frame (the payload that follows the 4-byte
// EAPOL header: Version, Type, Length).
type KeyFrame struct {
	DescriptorType uint8
	KeyInfo        uint16
	KeyLength      uint16
	ReplayCounter  uint64
	Nonce          [32]byte
	KeyIV          [16]byte
	KeyRSC         uint64
	KeyID          uint64
	MIC            [16]byte
	KeyData        []byte
}

func DescriptorVersion(cipher domain.Cipher) uint8 {
	if cipher == domain.CipherTKIP {
		return DescriptorVersionHMACMD5RC4
	}
	return DescriptorVersionHMACSHA1AES
}

// Build encodes f into a raw EAPOL-Key payload, copying f.MIC into the MIC
// field as given — to compute a MIC the caller builds the frame with MIC
// zeroed and patches the result into bytes 77..92 afterwards (the MIC covers
// the whole EAPOL frame with MIC zeroed).
func Build(f KeyFrame) []byte {
	buf := make([]byte, fixedFrameLen, fixedFrameLen+len(f.KeyData))
	buf[0] = f.DescriptorType
	binary.BigEndian.PutUint16(buf[1:3], f.KeyInfo)
	binary.BigEndian.PutUint16(buf[3:5], f.KeyLength)
	binary.BigEndian.PutUint64(buf[5:13], f.ReplayCounter)
	copy(buf[13:45], f.Nonce[:])
	copy(buf[45:61], f.KeyIV[:])
	binary.BigEndian.PutUint64(buf[61:69], f.KeyRSC)
	binary.BigEndian.PutUint64(buf[69:77], f.KeyID)
	copy(buf[77:93], f.MIC[:])
	binary.BigEndian.PutUint16(buf[93:95], uint16(len(f.KeyData)))
	return append(buf, f.KeyData...)
}

// Parse decodes a raw EAPOL-Key payload (fixed-offset layout,
// unchanged).
func Parse(payload []byte) (KeyFrame, error) {
	if len(payload) < fixedFrameLen {
		return KeyFrame{}, domain.ErrFrameMalformed
	}
	var f KeyFrame
	f.DescriptorType = payload[0]
	f.KeyInfo = binary.BigEndian.Uint16(payload[1:3])
	f.KeyLength = binary.BigEndian.Uint16(payload[3:5])
	f.ReplayCounter = binary.BigEndian.Uint64(payload[5:13])
	copy(f.Nonce[:], payload[13:45])
	copy(f.KeyIV[:], payload[45:61])
	f.KeyRSC = binary.BigEndian.Uint64(payload[61:69])
	f.KeyID = binary.BigEndian.Uint64(payload[69:77])
	copy(f.MIC[:], payload[77:93])
	dataLen := int(binary.BigEndian.Uint16(payload[93:95]))
	if fixedFrameLen+dataLen > len(payload) {
		return KeyFrame{}, domain.ErrFrameMalformed
	}
	f.KeyData = payload[fixedFrameLen : fixedFrameLen+dataLen]
	return f, nil
}

func (f KeyFrame) HasMIC() bool     { return f.KeyInfo&KeyInfoKeyMIC != 0 }
func (f KeyFrame) HasAck() bool     { return f.KeyInfo&KeyInfoKeyAck != 0 }
func (f KeyFrame) IsPairwise() bool { return f.KeyInfo&KeyInfoKeyType != 0 }
func (f KeyFrame) IsSecure() bool   { return f.KeyInfo&KeyInfoSecure != 0 }
