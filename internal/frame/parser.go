package frame

import (
	"encoding/binary"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/frame/ie"
)

// Inbound is a decoded management frame handed to the engine's dispatch
// table.
type Inbound struct {
	Subtype domain.FrameSubtype
	Src     domain.MAC
	Dst     domain.MAC
	BSSID   domain.MAC
	Seq     uint16
	Body    []byte // the fixed-field + IE payload, past the Dot11 header
}

// Parse decodes a raw radio frame (RadioTap + Dot11 + payload) captured off
// the wire and classifies its management subtype. Frames this core does not
// act on return ok=false rather than an error.
func Parse(raw []byte) (Inbound, bool, error) {
	packet := gopacket.NewPacket(raw, layers.LayerTypeRadioTap, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return Inbound{}, false, domain.ErrFrameMalformed
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok {
		return Inbound{}, false, domain.ErrFrameMalformed
	}

	subtype, ok := classify(dot11.Type)
	if !ok {
		return Inbound{}, false, nil
	}

	src, err := domain.MACFromBytes(dot11.Address2)
	if err != nil {
		return Inbound{}, false, domain.ErrFrameMalformed
	}
	dst, err := domain.MACFromBytes(dot11.Address1)
	if err != nil {
		return Inbound{}, false, domain.ErrFrameMalformed
	}
	bssid, err := domain.MACFromBytes(dot11.Address3)
	if err != nil {
		return Inbound{}, false, domain.ErrFrameMalformed
	}

	return Inbound{
		Subtype: subtype,
		Src:     src,
		Dst:     dst,
		BSSID:   bssid,
		Seq:     dot11.SequenceNumber,
		Body:    dot11.LayerPayload(),
	}, true, nil
}

func classify(t layers.Dot11Type) (domain.FrameSubtype, bool) {
	switch t {
	case layers.Dot11TypeMgmtProbeReq:
		return domain.SubtypeProbeRequest, true
	case layers.Dot11TypeMgmtAuth:
		return domain.SubtypeAuthentication, true
	case layers.Dot11TypeMgmtAssociationReq:
		return domain.SubtypeAssociationRequest, true
	case layers.Dot11TypeMgmtReassociationReq:
		return domain.SubtypeReassociationRequest, true
	case layers.Dot11TypeMgmtDisassociation:
		return domain.SubtypeDisassociation, true
	case layers.Dot11TypeMgmtDeauthentication:
		return domain.SubtypeDeauthentication, true
	default:
		return 0, false
	}
}

// ProbeRequestBody is the parsed body of a Probe Request frame.
type ProbeRequestBody struct {
	SSID  string // empty string means wildcard/broadcast probe
	Rates domain.RateSet
	WSC   *ie.WSCPayload // non-nil when the probe carries a WSC vendor IE
}

func ParseProbeRequest(body []byte) (ProbeRequestBody, error) {
	elems, err := ie.Parse(body)
	if err != nil {
		return ProbeRequestBody{}, err
	}
	ssid, _ := ie.Find(elems, ie.IDSSID)
	out := ProbeRequestBody{SSID: string(ssid), Rates: ie.ParseRates(elems)}
	for _, vendor := range ie.FindAll(elems, ie.IDVendorSpecific) {
		if len(vendor) >= 4 && [4]byte(vendor[0:4]) == wscOUI {
			wscPayload, err := ie.ParseWSC(vendor[4:])
			if err != nil {
				return ProbeRequestBody{}, err
			}
			out.WSC = wscPayload
		}
	}
	return out, nil
}

// AuthRequestBody is the parsed body of an Authentication frame.
type AuthRequestBody struct {
	Algorithm         domain.AuthAlgorithm
	TransactionSeqNum uint16
}

func ParseAuthRequest(body []byte) (AuthRequestBody, error) {
	if len(body) < 6 {
		return AuthRequestBody{}, domain.ErrFrameMalformed
	}
	return AuthRequestBody{
		Algorithm:         domain.AuthAlgorithm(binary.LittleEndian.Uint16(body[0:2])),
		TransactionSeqNum: binary.LittleEndian.Uint16(body[2:4]),
	}, nil
}

// AssocRequestBody is the parsed body of an Association or Reassociation
// Request frame.
type AssocRequestBody struct {
	Capability       uint16
	ListenInterval   uint16
	CurrentAPAddress domain.MAC // reassociation requests only
	SSID             string
	Rates            domain.RateSet
	RSNE             *ie.RSNInfo
	MDE              *ie.MobilityDomainInfo
	WSC              *ie.WSCPayload
	RawIEs           []byte
}

// ParseAssocRequest parses an Association Request body. reassoc selects the
// 6-octet Current AP Address field reassociation requests carry before the
// listen interval (802.11-2016 §9.3.3.6/.7).
func ParseAssocRequest(body []byte, reassoc bool) (AssocRequestBody, error) {
	offset := 4 // Capability(2) + ListenInterval(2)
	if reassoc {
		offset += 6
	}
	if len(body) < offset {
		return AssocRequestBody{}, domain.ErrFrameMalformed
	}

	out := AssocRequestBody{
		Capability:     binary.LittleEndian.Uint16(body[0:2]),
		ListenInterval: binary.LittleEndian.Uint16(body[2:4]),
	}
	if reassoc {
		mac, err := domain.MACFromBytes(body[4:10])
		if err != nil {
			return AssocRequestBody{}, domain.ErrFrameMalformed
		}
		out.CurrentAPAddress = mac
	}

	ieBytes := body[offset:]
	out.RawIEs = ieBytes
	elems, err := ie.Parse(ieBytes)
	if err != nil {
		return AssocRequestBody{}, err
	}

	if ssid, ok := ie.Find(elems, ie.IDSSID); ok {
		out.SSID = string(ssid)
	}
	out.Rates = ie.ParseRates(elems)

	if rsnData, ok := ie.Find(elems, ie.IDRSN); ok {
		rsn, err := ie.ParseRSN(rsnData)
		if err != nil {
			return AssocRequestBody{}, err
		}
		out.RSNE = rsn
	}
	if mdeData, ok := ie.Find(elems, ie.IDMDE); ok {
		mde, err := ie.ParseMDE(mdeData)
		if err != nil {
			return AssocRequestBody{}, err
		}
		out.MDE = mde
	}
	for _, vendor := range ie.FindAll(elems, ie.IDVendorSpecific) {
		if len(vendor) >= 4 && [4]byte(vendor[0:4]) == wscOUI {
			wsc, err := ie.ParseWSC(vendor[4:])
			if err != nil {
				return AssocRequestBody{}, err
			}
			out.WSC = wsc
		}
	}

	return out, nil
}

// DeauthDisassocBody is the parsed body of a Disassociation or
// Deauthentication frame.
type DeauthDisassocBody struct {
	Reason domain.ReasonCode
}

func ParseDeauthDisassoc(body []byte) (DeauthDisassocBody, error) {
	if len(body) < 2 {
		return DeauthDisassocBody{}, domain.ErrFrameMalformed
	}
	return DeauthDisassocBody{Reason: domain.ReasonCode(binary.LittleEndian.Uint16(body[0:2]))}, nil
}
