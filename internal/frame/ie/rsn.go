package ie

import (
	"encoding/binary"

	"github.com/kestrelwifi/apd/internal/core/domain"
)

var ouiSuiteBytes = [3]byte{0x00, 0x0f, 0xac}

// RSNCapabilities is the two-byte RSN Capabilities field (802.11-2016
// Figure 9-257).
type RSNCapabilities struct {
	PreAuth          bool
	NoPairwise       bool
	PTKSAReplayCount uint8
	GTKSAReplayCount uint8
	MFPRequired      bool
	MFPCapable       bool
	PeerKeyEnabled   bool
	SPPA_MSDUCapable bool
	SPPA_MSDURequired bool
}

func (c RSNCapabilities) encode() uint16 {
	var v uint16
	if c.PreAuth {
		v |= 0x0001
	}
	if c.NoPairwise {
		v |= 0x0002
	}
	v |= uint16(c.PTKSAReplayCount&0x03) << 2
	v |= uint16(c.GTKSAReplayCount&0x03) << 4
	if c.MFPRequired {
		v |= 0x0040
	}
	if c.MFPCapable {
		v |= 0x0080
	}
	if c.PeerKeyEnabled {
		v |= 0x0200
	}
	if c.SPPA_MSDUCapable {
		v |= 0x0400
	}
	if c.SPPA_MSDURequired {
		v |= 0x0800
	}
	return v
}

func decodeRSNCapabilities(v uint16) RSNCapabilities {
	return RSNCapabilities{
		PreAuth:           v&0x0001 != 0,
		NoPairwise:        v&0x0002 != 0,
		PTKSAReplayCount:  uint8((v >> 2) & 0x03),
		GTKSAReplayCount:  uint8((v >> 4) & 0x03),
		MFPRequired:       v&0x0040 != 0,
		MFPCapable:        v&0x0080 != 0,
		PeerKeyEnabled:    v&0x0200 != 0,
		SPPA_MSDUCapable:  v&0x0400 != 0,
		SPPA_MSDURequired: v&0x0800 != 0,
	}
}

// RSNInfo is the parsed RSN Information Element.
type RSNInfo struct {
	Version         uint16
	GroupCipher     domain.Cipher
	PairwiseCiphers []domain.Cipher
	AKMSuites       []domain.AKM
	Capabilities    RSNCapabilities
	PMKIDs          [][16]byte
}

// ParseRSN parses IE 48. Returns domain.ErrFrameMalformed if the element is
// too short to contain its mandatory fields.
func ParseRSN(data []byte) (*RSNInfo, error) {
	if len(data) < 2+4+2+2 {
		return nil, domain.ErrFrameMalformed
	}

	rsn := &RSNInfo{}
	offset := 0

	rsn.Version = binary.LittleEndian.Uint16(data[offset : offset+2])
	offset += 2

	if c, ok := domain.CipherFromOUISuffix(data[offset+3]); ok {
		rsn.GroupCipher = c
	}
	offset += 4

	count := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
	offset += 2
	for i := 0; i < count; i++ {
		if offset+4 > len(data) {
			return nil, domain.ErrFrameMalformed
		}
		if c, ok := domain.CipherFromOUISuffix(data[offset+3]); ok {
			rsn.PairwiseCiphers = append(rsn.PairwiseCiphers, c)
		}
		offset += 4
	}

	if offset+2 > len(data) {
		return nil, domain.ErrFrameMalformed
	}
	count = int(binary.LittleEndian.Uint16(data[offset : offset+2]))
	offset += 2
	for i := 0; i < count; i++ {
		if offset+4 > len(data) {
			return nil, domain.ErrFrameMalformed
		}
		if a, ok := domain.AKMFromOUISuffix(data[offset+3]); ok {
			rsn.AKMSuites = append(rsn.AKMSuites, a)
		}
		offset += 4
	}

	if offset+2 <= len(data) {
		rsn.Capabilities = decodeRSNCapabilities(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2
	}

	if offset+2 <= len(data) {
		pmkidCount := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2
		for i := 0; i < pmkidCount && offset+16 <= len(data); i++ {
			var id [16]byte
			copy(id[:], data[offset:offset+16])
			rsn.PMKIDs = append(rsn.PMKIDs, id)
			offset += 16
		}
	}

	return rsn, nil
}

// BuildRSNBody encodes a single-pairwise-cipher, single-AKM RSNE body (the
// AP always advertises exactly one pairwise cipher set and AKM=PSK) with
// no PMKIDs.
func BuildRSNBody(pairwise domain.Cipher, group domain.Cipher, akm domain.AKM, caps RSNCapabilities) []byte {
	buf := make([]byte, 0, 2+4+2+4+2+4+2)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // Version 1

	buf = append(buf, ouiSuiteBytes[:]...)
	buf = append(buf, group.OUISuffix())

	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = append(buf, ouiSuiteBytes[:]...)
	buf = append(buf, pairwise.OUISuffix())

	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = append(buf, ouiSuiteBytes[:]...)
	buf = append(buf, akm.OUISuffix())

	buf = binary.LittleEndian.AppendUint16(buf, caps.encode())
	// No PMKID list for the advertised RSNE.
	return buf
}
