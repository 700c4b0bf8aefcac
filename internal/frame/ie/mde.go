package ie

import (
	"encoding/binary"

	"github.com/kestrelwifi/apd/internal/core/domain"
)

// MobilityDomainInfo is the parsed Mobility Domain Element (IE 54). The
// core only parses MDEs so association frames carrying one don't fail as
// malformed; 802.11r Fast Transition itself is out of scope.
type MobilityDomainInfo struct {
	MDID        uint16
	OverDS      bool
	ResourceReq bool
}

// ParseMDE parses IE 54: MDID (2 octets LE) | FT Capability and Policy (1 octet).
func ParseMDE(data []byte) (*MobilityDomainInfo, error) {
	if len(data) < 3 {
		return nil, domain.ErrFrameMalformed
	}
	caps := data[2]
	return &MobilityDomainInfo{
		MDID:        binary.LittleEndian.Uint16(data[0:2]),
		OverDS:      caps&0x01 != 0,
		ResourceReq: caps&0x02 != 0,
	}, nil
}
