// Package ratepolicy chooses the AP's supported-rate set and negotiates
// pairwise/group ciphers.
package ratepolicy

import "github.com/kestrelwifi/apd/internal/core/domain"

// cckRates are the 802.11b rates permitted when CCK is allowed: 1, 5.5 and
// 11 Mbit/s in 500 kb/s units.
var cckRates = []domain.Rate{2, 11, 22}

// ofdmRates are the OFDM-only rates used when CCK is disabled.
var ofdmRates = []domain.Rate{12, 18, 24, 36, 48, 72, 96, 108}

// ChooseRates returns the AP's advertised rate set. The lowest rate in the
// set becomes the mandatory Basic Rate.
func ChooseRates(noCCK bool) domain.RateSet {
	if noCCK {
		return domain.NewRateSet(ofdmRates...)
	}
	return domain.NewRateSet(cckRates...)
}

// BasicRate returns the single mandatory rate: the lowest rate in the set.
func BasicRate(rates domain.RateSet) (domain.Rate, bool) {
	return rates.Min()
}

// WiphyCaps describes what the radio driver reports it can do; consumed
// only for its pairwise-cipher bitmask, mirroring the abstract
// "wiphy_caps" surface takes as input.
type WiphyCaps struct {
	Pairwise domain.CipherMask
	// GroupDisabled, when true, forces NO_GROUP_TRAFFIC regardless of
	// pairwise negotiation.
	GroupDisabled bool
}

// ChooseCiphers intersects the wiphy's capabilities with {CCMP, TKIP},
// then derives the group cipher as the weakest negotiated pairwise cipher,
// or NO_GROUP_TRAFFIC if group traffic is disabled.
func ChooseCiphers(caps WiphyCaps) (pairwise domain.CipherMask, group domain.Cipher) {
	var mask domain.CipherMask
	if caps.Pairwise.Has(domain.CipherCCMP) {
		mask = mask.Add(domain.CipherCCMP)
	}
	if caps.Pairwise.Has(domain.CipherTKIP) {
		mask = mask.Add(domain.CipherTKIP)
	}

	if caps.GroupDisabled || mask.Count() == 0 {
		return mask, domain.CipherNoGroupTraffic
	}

	// TKIP is weaker than CCMP; prefer it as group cipher when both are
	// negotiated, matching the source's policy of picking the weakest
	// negotiated pairwise cipher for broadcast traffic.
	if mask.Has(domain.CipherTKIP) {
		return mask, domain.CipherTKIP
	}
	return mask, domain.CipherCCMP
}

// AKM is fixed to PSK for this core.
const AKM = domain.AKMPSK

// PrimaryPairwise picks the single pairwise cipher advertised in the RSNE
// and used for the 4-Way Handshake, preferring CCMP over TKIP when both are
// negotiated.
func PrimaryPairwise(mask domain.CipherMask) domain.Cipher {
	for _, c := range []domain.Cipher{domain.CipherCCMP, domain.CipherTKIP, domain.CipherWEP104, domain.CipherWEP40} {
		if mask.Has(c) {
			return c
		}
	}
	return domain.CipherNone
}
