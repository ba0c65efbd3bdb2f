package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Timer is the in-process scheduler. Jobs live only in memory, so a restart
// loses them; deployments running this mode rely on the orchestrator's
// startup recovery scan to re-drive games whose window elapsed while the
// process was down.
type Timer struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	timers   map[string]*time.Timer
	started  bool
	stopped  bool
}

// NewTimer creates an in-process scheduler.
func NewTimer() *Timer {
	return &Timer{
		handlers: make(map[string]HandlerFunc),
		timers:   make(map[string]*time.Timer),
	}
}

// Enqueue arms a timer that fires the registered handler after delay.
func (t *Timer) Enqueue(ctx context.Context, jobType string, payload any, delay time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return fmt.Errorf("scheduler stopped")
	}

	id := uuid.NewString()
	t.timers[id] = time.AfterFunc(delay, func() {
		t.fire(id, jobType, data)
	})

	log.Debug().
		Str("job_id", id).
		Str("job_type", jobType).
		Dur("delay", delay).
		Msg("Timer armed")

	return nil
}

// Register binds a handler to a job type. Must be called before Start.
func (t *Timer) Register(jobType string, fn HandlerFunc) error {
	if jobType == "" {
		return fmt.Errorf("job type cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrAlreadyStarted
	}
	t.handlers[jobType] = fn
	return nil
}

// Start marks the scheduler running. Timers armed before Start fire normally.
func (t *Timer) Start() {
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()
	log.Info().Msg("In-process timer scheduler started")
}

// Stop cancels every armed timer.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for id, tm := range t.timers {
		tm.Stop()
		delete(t.timers, id)
	}
	log.Info().Msg("In-process timer scheduler stopped")
}

func (t *Timer) fire(id, jobType string, payload []byte) {
	t.mu.Lock()
	delete(t.timers, id)
	handler, ok := t.handlers[jobType]
	t.mu.Unlock()

	if !ok {
		log.Error().
			Err(ErrNoHandler).
			Str("job_id", id).
			Str("job_type", jobType).
			Msg("Timer fired without handler")
		return
	}

	if err := handler(context.Background(), payload); err != nil {
		log.Error().
			Err(err).
			Str("job_id", id).
			Str("job_type", jobType).
			Msg("Timer handler failed")
	}
}
