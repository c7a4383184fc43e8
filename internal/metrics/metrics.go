// Package metrics holds the Prometheus instruments exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Checkins counts verification attempts by outcome ("ok" or the
	// rejection reason code).
	Checkins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_checkins_total",
		Help: "Check-in verification attempts by result.",
	}, []string{"result"})

	// TokensRotated counts successfully persisted token rotations.
	TokensRotated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_tokens_rotated_total",
		Help: "Rotating tokens minted and persisted.",
	})

	// Approvals counts review decisions by action ("approve"/"reject").
	Approvals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_approvals_total",
		Help: "Pending-record review decisions by action.",
	}, []string{"action"})
)
