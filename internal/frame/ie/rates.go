package ie

import "github.com/kestrelwifi/apd/internal/core/domain"

// ParseRates collects Supported Rates and Extended Supported Rates IEs
// into a RateSet. Entries with value 0xFF (the BSS-membership selector)
// are skipped; the high "Basic Rate" bit is masked off.
func ParseRates(elems []Element) domain.RateSet {
	rates := make(domain.RateSet)
	for _, id := range []byte{IDSupportedRates, IDExtSupportedRates} {
		for _, data := range FindAll(elems, id) {
			for _, b := range data {
				if b == byte(domain.BSSMembershipSelector) {
					continue
				}
				rates.Add(domain.Rate(b &^ 0x80))
			}
		}
	}
	return rates
}

// BuildRatesIE encodes up to 8 rates into a single Supported Rates IE, with
// the lowest rate marked as the Basic Rate (high bit set). Callers are
// expected to pass at most 8 rates; extra entries are dropped
// rather than silently spilling into an Extended Supported Rates IE this
// core has no need to emit.
func BuildRatesIE(rates domain.RateSet) []byte {
	sorted := rates.Sorted()
	if len(sorted) > 8 {
		sorted = sorted[:8]
	}
	data := make([]byte, 0, len(sorted))
	for i, r := range sorted {
		b := byte(r)
		if i == 0 {
			b |= 0x80
		}
		data = append(data, b)
	}
	return data
}

// BuildDSSSParamSetIE encodes the current channel.
func BuildDSSSParamSetIE(channel int) []byte {
	return []byte{byte(channel)}
}

// ParseChannel extracts the channel from a DSSS Parameter Set IE's data.
func ParseChannel(data []byte) (int, bool) {
	if len(data) < 1 {
		return 0, false
	}
	return int(data[0]), true
}
