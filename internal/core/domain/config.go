package domain

// WSCDeviceType is the WSC Primary Device Type attribute: a category, the
// vendor OUI, and a vendor-defined subcategory.
type WSCDeviceType struct {
	Category    uint16
	OUI         [4]byte
	Subcategory uint16
}

// WSCDescriptor holds the AP's self-description advertised in beacons,
// probe responses, and during PBC registration.
type WSCDescriptor struct {
	DeviceName        string
	PrimaryDeviceType WSCDeviceType
	UUIDR             [16]byte
}

// ApConfig is immutable once the Engine has started an AP instance.
type ApConfig struct {
	SSID          string
	Passphrase    string // optional; mutually exclusive alternative to PSK
	PSK           [32]byte
	HasPSK        bool
	Channel       int // 2.4GHz channel number, default 6
	NoCCKRates    bool
	AuthorizedMAC []MAC // empty = any station may authenticate
	WSC           WSCDescriptor

	BeaconIntervalTU uint16 // default 100
	DTIM             uint8  // default 3
}

// Validate enforces the structural invariants requires
// before the Engine is allowed to bring up an AP instance.
func (c *ApConfig) Validate() error {
	if len(c.SSID) == 0 || len(c.SSID) > 32 {
		return ErrConfigInvalid
	}
	if !c.HasPSK && c.Passphrase == "" {
		return ErrConfigInvalid
	}
	if c.Passphrase != "" && (len(c.Passphrase) < 8 || len(c.Passphrase) > 63) {
		return ErrConfigInvalid
	}
	return nil
}
