package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VerificationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medbridge_verification_outcomes_total",
		Help: "Consent credential verification outcomes by reason.",
	}, []string{"outcome"})

	Revocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medbridge_revocations_total",
		Help: "Credential revocations accepted.",
	})

	EmergencyGrants = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medbridge_emergency_grants_total",
		Help: "Emergency access decisions by outcome.",
	}, []string{"outcome"})

	IdentitiesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medbridge_identities_created_total",
		Help: "Patient identities enrolled.",
	})
)
