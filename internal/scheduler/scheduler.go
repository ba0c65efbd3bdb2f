// Package scheduler guarantees that a registered action fires at or after a
// target time. Two implementations exist behind one interface: a durable
// Postgres-backed queue that survives process restarts, and an in-process
// timer that must be paired with the orchestrator's startup recovery scan.
// The orchestrator never depends on which one a deployment runs.
package scheduler

import (
	"context"
	"errors"
	"time"
)

// Dispatch errors.
var (
	// ErrNoHandler means a job carries a type nobody registered for. The job
	// is left untouched for operator inspection, never silently dropped.
	ErrNoHandler = errors.New("no handler registered for job type")

	// ErrAlreadyStarted is returned when Register is called after Start.
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// HandlerFunc executes a scheduled action. The payload is the opaque bytes
// given to Enqueue. A non-nil error marks the job failed; it is never retried
// automatically.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Scheduler fires registered actions at or after a target time. Handlers must
// be registered before Start.
type Scheduler interface {
	// Enqueue schedules an action of the given type to fire after delay.
	Enqueue(ctx context.Context, jobType string, payload any, delay time.Duration) error

	// Register binds a handler to a job type.
	Register(jobType string, fn HandlerFunc) error

	// Start begins dispatching due jobs.
	Start()

	// Stop halts dispatching and waits for the in-flight tick to finish.
	Stop()
}
