package domain

import "sort"

// Rate is a supported-rate value in units of 500 kb/s, as carried on the
// wire (without the Basic Rate high bit).
type Rate uint8

// BSSMembershipSelector is the reserved rate value that must be skipped, never treated as a rate.
const BSSMembershipSelector Rate = 0xFF

// RateSet is an unordered set of advertised rates.
type RateSet map[Rate]struct{}

func NewRateSet(rates...Rate) RateSet {
	s := make(RateSet, len(rates))
	for _, r := range rates {
		s[r] = struct{}{}
	}
	return s
}

func (s RateSet) Add(r Rate) { s[r] = struct{}{} }

func (s RateSet) Has(r Rate) bool {
	_, ok := s[r]
	return ok
}

// Sorted returns the rates in ascending order.
func (s RateSet) Sorted() []Rate {
	out := make([]Rate, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Min returns the lowest rate in the set; the mandatory Basic Rate is
// always the lowest rate of the advertised set.
func (s RateSet) Min() (Rate, bool) {
	sorted := s.Sorted()
	if len(sorted) == 0 {
		return 0, false
	}
	return sorted[0], true
}

// Intersects reports whether the two sets share at least one rate.
func (s RateSet) Intersects(other RateSet) bool {
	for r := range s {
		if other.Has(r) {
			return true
		}
	}
	return false
}
