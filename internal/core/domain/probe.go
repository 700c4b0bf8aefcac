package domain

import "time"

// MonitorTime bounds how long a WSC PBC probe record is retained.
const MonitorTime = 120 * time.Second

// WalkTime is how long an armed PBC session stays active without a
// successful registration.
const WalkTime = 120 * time.Second

// ProbeRecord tracks one enrollee's PBC Probe Request within the monitor
// window. At most one record is retained per MAC.
type ProbeRecord struct {
	MAC       MAC
	UUIDE     [16]byte
	Timestamp time.Time
}
