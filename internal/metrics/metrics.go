package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "license"

var (
	ActivationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "activation_requests_total",
		Help:      "Activation requests by outcome.",
	}, []string{"outcome"})

	DeviceDeactivations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "device_deactivations_total",
		Help:      "Devices removed from a license by an administrator.",
	})

	LifecycleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lifecycle_events_total",
		Help:      "License issue, update, renew and revoke operations.",
	}, []string{"event"})

	KeyCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "key_collisions_total",
		Help:      "Generated license keys rejected by the store as duplicates.",
	})

	LicensesByGraceState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_licenses",
		Help:      "Active (non-revoked) licenses by grace classification at the last scan.",
	}, []string{"state"})
)

// Activation outcomes.
const (
	OutcomeActivated   = "activated"
	OutcomeReactivated = "reactivated"
	OutcomeCheckIn     = "check_in"
	OutcomeInvalidKey  = "invalid_key"
	OutcomeRevoked     = "revoked"
	OutcomeExpired     = "expired"
	OutcomeLimit       = "device_limit"
	OutcomeError       = "error"
)
