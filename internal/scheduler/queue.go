package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chat-lottery-bot/internal/model"
)

// JobStore persists scheduled jobs. Implemented by repository.JobRepository.
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	// ListDue returns pending jobs whose execute_at has passed, ordered by
	// execute_at ascending.
	ListDue(ctx context.Context, now time.Time) ([]*model.Job, error)
	// Claim atomically flips a pending job to running. Returns false when the
	// job was already claimed by another poller.
	Claim(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// Queue is the durable scheduler. An interval poller scans for due pending
// jobs, claims each with a compare-and-swap on status so concurrent pollers
// never double-execute, and invokes the registered handler. Success deletes
// the job record; a handler error flips it to failed and leaves it for
// manual re-drive.
type Queue struct {
	store    JobStore
	interval time.Duration

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	started  bool

	stop chan struct{}
	done chan struct{}
}

// NewQueue creates a durable scheduler polling at the given interval.
func NewQueue(store JobStore, pollInterval time.Duration) *Queue {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Queue{
		store:    store,
		interval: pollInterval,
		handlers: make(map[string]HandlerFunc),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Enqueue persists a job row with an absolute execute_at timestamp.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload any, delay time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := &model.Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Payload:   data,
		ExecuteAt: time.Now().Add(delay),
		Status:    model.JobStatusPending,
	}

	if err := q.store.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Debug().
		Str("job_id", job.ID).
		Str("job_type", jobType).
		Time("execute_at", job.ExecuteAt).
		Msg("Job enqueued")

	return nil
}

// Register binds a handler to a job type. Must be called before Start.
func (q *Queue) Register(jobType string, fn HandlerFunc) error {
	if jobType == "" {
		return fmt.Errorf("job type cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return ErrAlreadyStarted
	}
	q.handlers[jobType] = fn
	return nil
}

// Start launches the poll loop.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	go q.loop()
	log.Info().Dur("interval", q.interval).Msg("Durable scheduler started")
}

// Stop halts the poll loop and waits for the current tick to finish.
func (q *Queue) Stop() {
	q.mu.RLock()
	started := q.started
	q.mu.RUnlock()
	if !started {
		return
	}

	close(q.stop)
	<-q.done
	log.Info().Msg("Durable scheduler stopped")
}

func (q *Queue) loop() {
	defer close(q.done)

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.Poll(context.Background())
		}
	}
}

// Poll runs one scan over due jobs. Exported so tests and the startup path
// can drive a tick without waiting for the ticker.
func (q *Queue) Poll(ctx context.Context) {
	jobs, err := q.store.ListDue(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list due jobs")
		return
	}

	for _, job := range jobs {
		q.dispatch(ctx, job)
	}
}

func (q *Queue) dispatch(ctx context.Context, job *model.Job) {
	q.mu.RLock()
	handler, ok := q.handlers[job.Type]
	q.mu.RUnlock()

	// Unregistered type: leave the job untouched so an operator can diagnose.
	if !ok {
		log.Error().
			Err(ErrNoHandler).
			Str("job_id", job.ID).
			Str("job_type", job.Type).
			Msg("Job left untouched")
		return
	}

	claimed, err := q.store.Claim(ctx, job.ID)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to claim job")
		return
	}
	if !claimed {
		// Another poller got there first.
		return
	}

	if err := handler(ctx, job.Payload); err != nil {
		log.Error().
			Err(err).
			Str("job_id", job.ID).
			Str("job_type", job.Type).
			Msg("Job handler failed, leaving job for manual inspection")
		if markErr := q.store.MarkFailed(ctx, job.ID); markErr != nil {
			log.Error().Err(markErr).Str("job_id", job.ID).Msg("Failed to mark job failed")
		}
		return
	}

	if err := q.store.Delete(ctx, job.ID); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to delete completed job")
	}
}
