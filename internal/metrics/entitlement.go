// Package metrics exposes Prometheus instrumentation for the entitlement service.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const maxLabelLen = 32

func sanitizeLabel(s string) string {
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}

// Entitlement tracks purchase and device registration outcomes. A nil
// *Entitlement is valid and records nothing.
type Entitlement struct {
	purchasesCreated    *prometheus.CounterVec
	deviceRegistrations *prometheus.CounterVec
	playbackStarted     prometheus.Counter
	storeErrors         *prometheus.CounterVec
}

// NewEntitlement creates the collectors and registers them with reg.
func NewEntitlement(reg prometheus.Registerer) *Entitlement {
	m := &Entitlement{
		purchasesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reelpass",
				Subsystem: "entitlement",
				Name:      "purchases_created_total",
				Help:      "Total purchases created by tier",
			},
			[]string{"tier"},
		),
		deviceRegistrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reelpass",
				Subsystem: "entitlement",
				Name:      "device_registrations_total",
				Help:      "Total device registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		playbackStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "reelpass",
				Subsystem: "entitlement",
				Name:      "playback_started_total",
				Help:      "Total purchases whose playback window was opened",
			},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reelpass",
				Subsystem: "entitlement",
				Name:      "store_errors_total",
				Help:      "Total entitlement store failures by operation",
			},
			[]string{"op"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.purchasesCreated, m.deviceRegistrations, m.playbackStarted, m.storeErrors)
	}
	return m
}

func (m *Entitlement) PurchaseCreated(tier string) {
	if m == nil {
		return
	}
	m.purchasesCreated.WithLabelValues(sanitizeLabel(tier)).Inc()
}

func (m *Entitlement) DeviceRegistration(outcome string) {
	if m == nil {
		return
	}
	m.deviceRegistrations.WithLabelValues(sanitizeLabel(outcome)).Inc()
}

func (m *Entitlement) PlaybackStarted() {
	if m == nil {
		return
	}
	m.playbackStarted.Inc()
}

func (m *Entitlement) StoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(sanitizeLabel(op)).Inc()
}
