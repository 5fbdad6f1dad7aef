package editor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// mutationsTotal counts session mutations by operation and outcome
	// (committed, rejected, error).
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floorplan_mutations_total",
		Help: "Editing session mutations by operation and result",
	}, []string{"op", "result"})

	// savesTotal counts commit attempts by outcome.
	savesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floorplan_saves_total",
		Help: "Floor plan saves by result",
	}, []string{"result"})

	// saveDuration tracks the latency of the persistence call, retries
	// included.
	saveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "floorplan_save_duration_seconds",
		Help:    "Floor plan save duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	})

	// remotePatchesTotal counts real-time patches by outcome.
	remotePatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "floorplan_remote_patches_total",
		Help: "Real-time floor plan patches by result",
	}, []string{"result"})
)

const (
	resultCommitted = "committed"
	resultRejected  = "rejected"
	resultError     = "error"

	resultSaved      = "saved"
	resultConflict   = "conflict"
	resultTransient  = "transient"
	resultRolledBack = "rolled_back"
	resultStale      = "stale"

	resultApplied  = "applied"
	resultIgnored  = "ignored"
	resultMismatch = "mismatch"
	resultInvalid  = "invalid"
)
