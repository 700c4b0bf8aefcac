package ie

import (
	"encoding/binary"

	"github.com/kestrelwifi/apd/internal/core/domain"
)

// WSC attribute types (WSC 2.0.5 §12). Adapted from the reference implementation's
// read-only attribute switch into a bidirectional attribute TLV codec.
const (
	AttrAPSetupLocked        uint16 = 0x1057
	AttrAuthorizedMACs       uint16 = 0x1004
	AttrConfigMethods        uint16 = 0x1008
	AttrDeviceName           uint16 = 0x1011
	AttrDevicePasswordID     uint16 = 0x1012
	AttrManufacturer         uint16 = 0x1021
	AttrModelName            uint16 = 0x1023
	AttrModelNumber          uint16 = 0x1024
	AttrPrimaryDeviceType    uint16 = 0x1054
	AttrRequestType          uint16 = 0x103A
	AttrResponseType         uint16 = 0x103B
	AttrSelectedRegistrar    uint16 = 0x1041
	AttrSelRegConfigMethods  uint16 = 0x1053
	AttrUUIDE                uint16 = 0x1047
	AttrUUIDR                uint16 = 0x1048
	AttrVendorExtension      uint16 = 0x1049
	AttrWSCState             uint16 = 0x1044
)

// Device Password ID values.
const DevicePasswordIDPushButton uint16 = 0x0004

// Config Methods bitmask values.
const ConfigMethodPushButton uint16 = 0x0080

// WSC State values (attribute 0x1044).
const (
	WSCStateUnconfigured byte = 1
	WSCStateConfigured   byte = 2
)

// Request/Response Type values relevant to this core.
const (
	RequestTypeEnrolleeOpen8021X byte = 1
	ResponseTypeAP               byte = 3
)

var wfaVendorExtOUI = [3]byte{0x00, 0x37, 0x2a}

// Attr is one parsed WSC TLV attribute (2-byte type, 2-byte length).
type Attr struct {
	Type uint16
	Data []byte
}

// ParseAttrs parses a WSC Data Element's attribute stream.
func ParseAttrs(data []byte) ([]Attr, error) {
	var out []Attr
	offset := 0
	for offset < len(data) {
		if offset+4 > len(data) {
			return nil, domain.ErrFrameMalformed
		}
		t := binary.BigEndian.Uint16(data[offset : offset+2])
		length := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4
		if offset+length > len(data) {
			return nil, domain.ErrFrameMalformed
		}
		out = append(out, Attr{Type: t, Data: data[offset : offset+length]})
		offset += length
	}
	return out, nil
}

func FindAttr(attrs []Attr, t uint16) ([]byte, bool) {
	for _, a := range attrs {
		if a.Type == t {
			return a.Data, true
		}
	}
	return nil, false
}

func AppendAttr(buf []byte, t uint16, data []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, t)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(data)))
	return append(buf, data...)
}

// WSCPayload is the subset of a WSC Data Element this core acts on.
type WSCPayload struct {
	Version2                bool
	State                   byte
	SelectedRegistrar       bool
	DevicePasswordID        uint16
	SelectedRegConfigMethods uint16
	ConfigMethods           uint16
	HasRequestType          bool
	RequestType             byte
	HasResponseType         bool
	ResponseType            byte
	HasUUIDE                bool
	UUIDE                   [16]byte
	HasUUIDR                bool
	UUIDR                   [16]byte
	DeviceName              string
	AuthorizedMACs          []domain.MAC
}

// ParseWSC parses a WSC Data Element (the payload of the WSC vendor IE,
// after the OUI/type header has already been stripped).
func ParseWSC(data []byte) (*WSCPayload, error) {
	attrs, err := ParseAttrs(data)
	if err != nil {
		return nil, err
	}
	p := &WSCPayload{}
	for _, a := range attrs {
		switch a.Type {
		case AttrWSCState:
			if len(a.Data) >= 1 {
				p.State = a.Data[0]
			}
		case AttrSelectedRegistrar:
			if len(a.Data) >= 1 {
				p.SelectedRegistrar = a.Data[0] != 0
			}
		case AttrDevicePasswordID:
			if len(a.Data) >= 2 {
				p.DevicePasswordID = binary.BigEndian.Uint16(a.Data)
			}
		case AttrSelRegConfigMethods:
			if len(a.Data) >= 2 {
				p.SelectedRegConfigMethods = binary.BigEndian.Uint16(a.Data)
			}
		case AttrConfigMethods:
			if len(a.Data) >= 2 {
				p.ConfigMethods = binary.BigEndian.Uint16(a.Data)
			}
		case AttrRequestType:
			if len(a.Data) >= 1 {
				p.HasRequestType = true
				p.RequestType = a.Data[0]
			}
		case AttrResponseType:
			if len(a.Data) >= 1 {
				p.HasResponseType = true
				p.ResponseType = a.Data[0]
			}
		case AttrUUIDE:
			if len(a.Data) == 16 {
				p.HasUUIDE = true
				copy(p.UUIDE[:], a.Data)
			}
		case AttrUUIDR:
			if len(a.Data) == 16 {
				p.HasUUIDR = true
				copy(p.UUIDR[:], a.Data)
			}
		case AttrDeviceName:
			p.DeviceName = string(a.Data)
		case AttrAuthorizedMACs:
			for off := 0; off+6 <= len(a.Data); off += 6 {
				if m, err := domain.MACFromBytes(a.Data[off : off+6]); err == nil {
					p.AuthorizedMACs = append(p.AuthorizedMACs, m)
				}
			}
		case AttrVendorExtension:
			if len(a.Data) >= 6 && [3]byte(a.Data[0:3]) == wfaVendorExtOUI {
				// sub-element 0x00 is Version2.
				if a.Data[3] == 0x00 {
					p.Version2 = true
				}
			}
		}
	}
	return p, nil
}

// ConfigMethodsHas reports whether the config methods bitmask includes m.
func ConfigMethodsHas(methods, m uint16) bool { return methods&m != 0 }

func appendVersion2(buf []byte) []byte {
	vendorData := append(append([]byte{}, wfaVendorExtOUI[:]...), 0x00, 0x01, 0x20)
	return AppendAttr(buf, AttrVendorExtension, vendorData)
}

// BuildWSCBeaconTail encodes the WSC IE content common to beacons and
// probe responses, plus the PBC-active attributes.
func BuildWSCBeaconTail(authorizedMACs []domain.MAC, pbcActive bool) []byte {
	var buf []byte
	buf = appendVersion2(buf)
	buf = AppendAttr(buf, AttrWSCState, []byte{WSCStateConfigured})
	if len(authorizedMACs) > 0 {
		macs := make([]byte, 0, 6*len(authorizedMACs))
		for _, m := range authorizedMACs {
			macs = append(macs, m.Bytes()...)
		}
		buf = AppendAttr(buf, AttrAuthorizedMACs, macs)
	}
	if pbcActive {
		buf = AppendAttr(buf, AttrSelectedRegistrar, []byte{1})
		dpid := make([]byte, 2)
		binary.BigEndian.PutUint16(dpid, DevicePasswordIDPushButton)
		buf = AppendAttr(buf, AttrDevicePasswordID, dpid)
		methods := make([]byte, 2)
		binary.BigEndian.PutUint16(methods, ConfigMethodPushButton)
		buf = AppendAttr(buf, AttrSelRegConfigMethods, methods)
	}
	return buf
}

// BuildWSCProbeResponseTail extends BuildWSCBeaconTail with the
// Probe-Response-only attributes.
func BuildWSCProbeResponseTail(desc domain.WSCDescriptor, authorizedMACs []domain.MAC, pbcActive bool) []byte {
	buf := BuildWSCBeaconTail(authorizedMACs, pbcActive)
	buf = AppendAttr(buf, AttrResponseType, []byte{ResponseTypeAP})
	buf = AppendAttr(buf, AttrUUIDR, desc.UUIDR[:])

	devType := make([]byte, 8)
	binary.BigEndian.PutUint16(devType[0:2], desc.PrimaryDeviceType.Category)
	copy(devType[2:6], desc.PrimaryDeviceType.OUI[:])
	binary.BigEndian.PutUint16(devType[6:8], desc.PrimaryDeviceType.Subcategory)
	buf = AppendAttr(buf, AttrPrimaryDeviceType, devType)

	buf = AppendAttr(buf, AttrDeviceName, []byte(desc.DeviceName))

	methods := make([]byte, 2)
	binary.BigEndian.PutUint16(methods, ConfigMethodPushButton)
	buf = AppendAttr(buf, AttrConfigMethods, methods)
	return buf
}

// BuildWSCAssocResponse encodes the minimal WSC association-response IE
// body for a successful WSC-only association.
func BuildWSCAssocResponse() []byte {
	var buf []byte
	buf = appendVersion2(buf)
	buf = AppendAttr(buf, AttrResponseType, []byte{ResponseTypeAP})
	return buf
}
