// Package frame builds and parses the 802.11 management frames this core
// sends and receives: Beacon, Probe Response, Authentication, (Re)Association
// Response on the way out; Probe Request, Authentication, (Re)Association
// Request, Disassociation, and Deauthentication on the way in. IE payloads
// are delegated to internal/frame/ie. Adapted from the reference implementation's
// injection/builders.go RadioTap+Dot11+raw-payload technique.
package frame

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/kestrelwifi/apd/internal/core/domain"
	"github.com/kestrelwifi/apd/internal/frame/ie"
)

func hwAddr(m domain.MAC) net.HardwareAddr { return net.HardwareAddr(m.Bytes()) }

func radiotap() *layers.RadioTap {
	return &layers.RadioTap{Present: layers.RadioTapPresentRate, Rate: 2}
}

func serialize(typ layers.Dot11Type, dst, src, bssid domain.MAC, seq uint16, body []byte) ([]byte, error) {
	dot11 := &layers.Dot11{
		Type:           typ,
		Address1:       hwAddr(dst),
		Address2:       hwAddr(src),
		Address3:       hwAddr(bssid),
		SequenceNumber: seq,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, radiotap(), dot11, gopacket.Payload(body)); err != nil {
		return nil, fmt.Errorf("frame: serialize %v: %w", typ, err)
	}
	return buf.Bytes(), nil
}

// BeaconParams describes the fixed fields and IEs of a Beacon or Probe
// Response frame body (they share the same layout).
type BeaconParams struct {
	Timestamp      uint64
	IntervalTU     uint16
	Capability     uint16
	SSID           string
	Rates          domain.RateSet
	Channel        int
	RSNE           []byte // nil when the AP is open
	WSCIE          []byte // pre-built WSC IE content (see ie.BuildWSC*Tail), nil when WSC is disabled
	MDE            []byte // pass-through Mobility Domain Element, nil unless echoed
}

func buildIEs(p BeaconParams) []byte {
	var body []byte
	body = ie.Append(body, ie.IDSSID, []byte(p.SSID))
	body = ie.Append(body, ie.IDSupportedRates, ie.BuildRatesIE(p.Rates))
	body = ie.Append(body, ie.IDDSSSParamSet, ie.BuildDSSSParamSetIE(p.Channel))
	if p.RSNE != nil {
		body = ie.Append(body, ie.IDRSN, p.RSNE)
	}
	if p.MDE != nil {
		body = ie.Append(body, ie.IDMDE, p.MDE)
	}
	if p.WSCIE != nil {
		body = ie.Append(body, ie.IDVendorSpecific, wscVendorBody(p.WSCIE))
	}
	return body
}

// wscOUI is the Wi-Fi Alliance vendor-specific OUI and WSC vendor type.
var wscOUI = [4]byte{0x00, 0x50, 0xf2, 0x04}

func wscVendorBody(attrs []byte) []byte {
	return append(append([]byte{}, wscOUI[:]...), attrs...)
}

// BuildBeaconHead encodes the nl80211 "beacon head": the fixed
// timestamp/interval/capability fields plus SSID, Supported Rates, and DSSS
// Parameter Set, in that order.
func BuildBeaconHead(p BeaconParams) []byte {
	head := make([]byte, 12)
	binary.LittleEndian.PutUint64(head[0:8], p.Timestamp)
	binary.LittleEndian.PutUint16(head[8:10], p.IntervalTU)
	binary.LittleEndian.PutUint16(head[10:12], p.Capability)
	head = ie.Append(head, ie.IDSSID, []byte(p.SSID))
	head = ie.Append(head, ie.IDSupportedRates, ie.BuildRatesIE(p.Rates))
	head = ie.Append(head, ie.IDDSSSParamSet, ie.BuildDSSSParamSetIE(p.Channel))
	return head
}

// BuildBeaconTail encodes the nl80211 "beacon tail": RSNE then the WSC
// vendor IE.
func BuildBeaconTail(p BeaconParams) []byte {
	var tail []byte
	if p.RSNE != nil {
		tail = ie.Append(tail, ie.IDRSN, p.RSNE)
	}
	if p.WSCIE != nil {
		tail = ie.Append(tail, ie.IDVendorSpecific, wscVendorBody(p.WSCIE))
	}
	return tail
}

// BuildBeacon encodes a full Beacon frame.
func BuildBeacon(bssid domain.MAC, seq uint16, p BeaconParams) ([]byte, error) {
	body := make([]byte, 12)
	binary.LittleEndian.PutUint64(body[0:8], p.Timestamp)
	binary.LittleEndian.PutUint16(body[8:10], p.IntervalTU)
	binary.LittleEndian.PutUint16(body[10:12], p.Capability)
	body = append(body, buildIEs(p)...)
	return serialize(layers.Dot11TypeMgmtBeacon, domain.BroadcastMAC, bssid, bssid, seq, body)
}

// BuildProbeResponse encodes a full Probe Response frame addressed to dst.
func BuildProbeResponse(dst, bssid domain.MAC, seq uint16, p BeaconParams) ([]byte, error) {
	body := make([]byte, 12)
	binary.LittleEndian.PutUint64(body[0:8], p.Timestamp)
	binary.LittleEndian.PutUint16(body[8:10], p.IntervalTU)
	binary.LittleEndian.PutUint16(body[10:12], p.Capability)
	body = append(body, buildIEs(p)...)
	return serialize(layers.Dot11TypeMgmtProbeResp, dst, bssid, bssid, seq, body)
}

// BuildAuthResponse encodes an Open System Authentication response (the
// second and final frame of the exchange).
func BuildAuthResponse(dst, bssid domain.MAC, seq uint16, status domain.StatusCode) ([]byte, error) {
	body := make([]byte, 6)
	binary.LittleEndian.PutUint16(body[0:2], uint16(domain.AuthAlgoOpenSystem))
	binary.LittleEndian.PutUint16(body[2:4], 2) // transaction sequence 2 of 2
	binary.LittleEndian.PutUint16(body[4:6], uint16(status))
	return serialize(layers.Dot11TypeMgmtAuth, dst, bssid, bssid, seq, body)
}

// AssocResponseParams carries the fields of a (Re)Association Response.
type AssocResponseParams struct {
	Capability uint16
	Status     domain.StatusCode
	AID        uint16
	Rates      domain.RateSet
	RSNE       []byte
	WSCIE      []byte
}

func buildAssocRespBody(p AssocResponseParams) []byte {
	body := make([]byte, 6)
	binary.LittleEndian.PutUint16(body[0:2], p.Capability)
	binary.LittleEndian.PutUint16(body[2:4], uint16(p.Status))
	binary.LittleEndian.PutUint16(body[4:6], p.AID|0xc000) // top two bits reserved as 1
	if p.Status != domain.StatusSuccess {
		return body
	}
	body = ie.Append(body, ie.IDSupportedRates, ie.BuildRatesIE(p.Rates))
	if p.RSNE != nil {
		body = ie.Append(body, ie.IDRSN, p.RSNE)
	}
	if p.WSCIE != nil {
		body = ie.Append(body, ie.IDVendorSpecific, wscVendorBody(p.WSCIE))
	}
	return body
}

// BuildAssocResponse encodes an Association Response.
func BuildAssocResponse(dst, bssid domain.MAC, seq uint16, p AssocResponseParams) ([]byte, error) {
	return serialize(layers.Dot11TypeMgmtAssociationResp, dst, bssid, bssid, seq, buildAssocRespBody(p))
}

// BuildReassocResponse encodes a Reassociation Response (identical body
// layout to Association Response).
func BuildReassocResponse(dst, bssid domain.MAC, seq uint16, p AssocResponseParams) ([]byte, error) {
	return serialize(layers.Dot11TypeMgmtReassociationResp, dst, bssid, bssid, seq, buildAssocRespBody(p))
}

// BuildDeauth encodes a Deauthentication frame.
func BuildDeauth(dst, bssid domain.MAC, seq uint16, reason domain.ReasonCode) ([]byte, error) {
	body := make([]byte, 2)
	binary.LittleEndian.PutUint16(body, uint16(reason))
	return serialize(layers.Dot11TypeMgmtDeauthentication, dst, bssid, bssid, seq, body)
}

// BuildDisassoc encodes a Disassociation frame.
func BuildDisassoc(dst, bssid domain.MAC, seq uint16, reason domain.ReasonCode) ([]byte, error) {
	body := make([]byte, 2)
	binary.LittleEndian.PutUint16(body, uint16(reason))
	return serialize(layers.Dot11TypeMgmtDisassociation, dst, bssid, bssid, seq, body)
}
