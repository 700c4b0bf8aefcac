package domain

// ApState is the single mutable record of a running AP instance. It owns
// every Station and ProbeRecord; per's arena-style resolution of
// the source's cyclic Station<->ApState references, Station methods that
// need AP-wide data take an ApState (or a narrower view of it) explicitly
// rather than holding a back-pointer.
type ApState struct {
	Config *ApConfig

	OwnMAC  MAC
	IfIndex uint32

	PairwiseCiphers CipherMask
	GroupCipher     Cipher
	BeaconInterval  uint16
	AdvertisedRSNE  []byte // this AP's encoded RSNE, built once at start

	Rates RateSet

	GTK      []byte
	GTKIndex uint8
	GTKSet   bool

	LastAID uint16

	Stations map[MAC]*Station

	WSCPBCProbes []ProbeRecord
	WSCPBCArmed  bool
	WSCDPID      uint16 // device password ID while PBC is active
	WSCTimer     uint64 // timer token for the walk-time timer, 0 if unarmed

	Started  bool
	Stopping bool
}

// NewApState constructs an empty, not-yet-started ApState for ifIndex.
func NewApState(cfg *ApConfig, ownMAC MAC, ifIndex uint32) *ApState {
	return &ApState{
		Config:   cfg,
		OwnMAC:   ownMAC,
		IfIndex:  ifIndex,
		Stations: make(map[MAC]*Station),
	}
}

// NextAID issues the next monotonic association ID. Valid AIDs are
// 1..2007; the 14-bit field leaves headroom above that but the engine
// never allocates past that range in practice for a single AP's
// reasonable station count.
func (s *ApState) NextAID() uint16 {
	s.LastAID++
	return s.LastAID
}

// AddStation registers a new Station, replacing Non-existence.
func (s *ApState) AddStation(sta *Station) {
	s.Stations[sta.Addr] = sta
}

// RemoveStation deletes a Station and returns any command tokens that must
// be cancelled with the Transport.
func (s *ApState) RemoveStation(mac MAC) []uint64 {
	sta, ok := s.Stations[mac]
	if !ok {
		return nil
	}
	delete(s.Stations, mac)
	return sta.CancelTokens()
}

// PruneProbes removes WSC PBC probe records that are monitorNanos or more
// older than now and, when excludeMAC is set, every record for mac. It
// returns nothing; callers read the surviving records from WSCPBCProbes.
func (s *ApState) PruneProbes(now int64, monitorNanos int64, mac MAC, excludeMAC bool) {
	kept := s.WSCPBCProbes[:0]
	for _, rec := range s.WSCPBCProbes {
		if now-rec.Timestamp.UnixNano() >= monitorNanos {
			continue
		}
		if excludeMAC && rec.MAC == mac {
			continue
		}
		kept = append(kept, rec)
	}
	s.WSCPBCProbes = kept
}

// ClearProbesForMAC drops every recorded PBC probe from mac, called once
// mac's WSC registration completes so a finished enrollee no longer counts
// toward a future overlap check.
func (s *ApState) ClearProbesForMAC(mac MAC) {
	kept := s.WSCPBCProbes[:0]
	for _, rec := range s.WSCPBCProbes {
		if rec.MAC == mac {
			continue
		}
		kept = append(kept, rec)
	}
	s.WSCPBCProbes = kept
}
