// Package metrics registers the Prometheus counters and gauges for station
// lifecycle, handshake outcomes, and frame dispatch. Init only registers
// them: no code in this repository increments or sets them, so every series
// stays at zero. Grounded on internal/telemetry/metrics.go namespace +
// sync.Once registration pattern, adapted from packet-capture counters to
// AP control-plane counters.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	StationsAdded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apd",
			Name:      "stations_added_total",
			Help:      "Total number of stations that completed RSNA or WSC registration",
		},
		[]string{"ifindex"},
)

	StationsRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apd",
			Name:      "stations_removed_total",
			Help:      "Total number of stations removed from the table",
		},
		[]string{"ifindex", "reason"},
)

	HandshakeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apd",
			Name:      "handshake_outcomes_total",
			Help:      "Total number of 4-Way Handshake / EAP-WSC sessions by outcome",
		},
		[]string{"ifindex", "kind", "outcome"},
)

	FramesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apd",
			Name:      "frames_dispatched_total",
			Help:      "Total number of management frames dispatched by subtype",
		},
		[]string{"ifindex", "subtype"},
)

	StationsAssociated = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apd",
			Name:      "stations_associated",
			Help:      "Current number of associated stations",
		},
		[]string{"ifindex"},
)

	WSCPBCArmed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apd",
			Name:      "wsc_pbc_armed",
			Help:      "1 while WSC PBC mode is active, 0 otherwise",
		},
		[]string{"ifindex"},
)

	once sync.Once
)

// Init registers all metrics with the default Prometheus registry. Safe to
// call more than once.
func Init() {
	once.Do(func() {
		prometheus.DefaultRegisterer.MustRegister(
			StationsAdded,
			StationsRemoved,
			HandshakeOutcomes,
			FramesDispatched,
			StationsAssociated,
			WSCPBCArmed,
)
	})
}
