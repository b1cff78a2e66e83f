package service

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/gym-roster/internal/model"
	"github.com/iliyamo/gym-roster/internal/repository"
)

var (
	enrollmentOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gym_roster",
		Subsystem: "enrollment",
		Name:      "operations_total",
		Help:      "Enroll and withdraw calls by outcome.",
	}, []string{"operation", "outcome"})
	catalogOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gym_roster",
		Subsystem: "catalog",
		Name:      "operations_total",
		Help:      "Activity create, update and delete calls by outcome.",
	}, []string{"operation", "outcome"})
	lockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gym_roster",
		Subsystem: "enrollment",
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for a per-activity lock.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})
	bulkItems = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gym_roster",
		Subsystem: "schedule",
		Name:      "generated_items_total",
		Help:      "Activities requested through bulk generation by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(enrollmentOps, catalogOps, lockWait, bulkItems)
}

// Outcome returns the metric label for err.
func Outcome(err error) string {
	var ve *model.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, repository.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, repository.ErrCapacityConflict):
		return "capacity_conflict"
	case errors.Is(err, repository.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, repository.ErrForbidden):
		return "forbidden"
	case errors.Is(err, repository.ErrUnavailable):
		return "unavailable"
	}
	return "error"
}

func observeLockWait(start time.Time) {
	lockWait.Observe(time.Since(start).Seconds())
}
