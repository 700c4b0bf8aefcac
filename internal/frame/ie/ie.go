// Package ie builds and parses the 802.11 TLV Information Elements carried
// in management frames: Supported Rates, DSSS Parameter Set, RSNE, Mobility
// Domain, and WSC. Adapted from read-only IE walker into a
// builder/parser pair usable on both the encode and decode path.
package ie

import "github.com/kestrelwifi/apd/internal/core/domain"

// Element IDs used by this core (802.11-2016 Table 9-77).
const (
	IDSSID          byte = 0
	IDSupportedRates byte = 1
	IDDSSSParamSet  byte = 3
	IDRSN           byte = 48
	IDExtSupportedRates byte = 50
	IDMDE           byte = 54
	IDVendorSpecific byte = 221
)

// Element is one parsed TLV.
type Element struct {
	ID   byte
	Data []byte
}

// Parse walks data as an ordered sequence of TLV elements. It returns
// domain.ErrFrameMalformed if any element's declared length would read
// past the end of data.
func Parse(data []byte) ([]Element, error) {
	var out []Element
	offset := 0
	for offset < len(data) {
		if offset+2 > len(data) {
			return nil, domain.ErrFrameMalformed
		}
		id := data[offset]
		length := int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			return nil, domain.ErrFrameMalformed
		}
		out = append(out, Element{ID: id, Data: data[offset : offset+length]})
		offset += length
	}
	return out, nil
}

// Find returns the first element's data with the given ID.
func Find(elems []Element, id byte) ([]byte, bool) {
	for _, e := range elems {
		if e.ID == id {
			return e.Data, true
		}
	}
	return nil, false
}

// FindAll returns every element's data with the given ID, in order.
func FindAll(elems []Element, id byte) [][]byte {
	var out [][]byte
	for _, e := range elems {
		if e.ID == id {
			out = append(out, e.Data)
		}
	}
	return out
}

// Append writes one TLV element to buf and returns the extended slice.
func Append(buf []byte, id byte, data []byte) []byte {
	buf = append(buf, id, byte(len(data)))
	return append(buf, data...)
}
