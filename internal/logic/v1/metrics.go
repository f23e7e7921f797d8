package v1

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	viewDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventgate_view_decisions_total",
		Help: "View resolutions by outcome state.",
	}, []string{"state"})

	profileSyncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventgate_profile_sync_failures_total",
		Help: "Profile sync failures that degraded a session.",
	}, []string{"operation"})

	navigationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventgate_navigation_events_total",
		Help: "Navigation events published, by delivery outcome.",
	}, []string{"outcome"})

	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventgate_auth_attempts_total",
		Help: "Sign-in and registration attempts by result.",
	}, []string{"operation", "result"})
)
