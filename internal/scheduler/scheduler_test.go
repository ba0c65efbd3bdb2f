package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-lottery-bot/internal/model"
)

// fakeJobStore is an in-memory JobStore with the same claim semantics as the
// Postgres repository: a job can be claimed exactly once.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*model.Job)}
}

func (s *fakeJobStore) Create(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeJobStore) ListDue(ctx context.Context, now time.Time) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*model.Job
	for _, j := range s.jobs {
		if j.Status == model.JobStatusPending && !j.ExecuteAt.After(now) {
			cp := *j
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].ExecuteAt.Before(due[k].ExecuteAt) })
	return due, nil
}

func (s *fakeJobStore) Claim(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != model.JobStatusPending {
		return false, nil
	}
	j.Status = model.JobStatusRunning
	return true, nil
}

func (s *fakeJobStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *fakeJobStore) MarkFailed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Status = model.JobStatusFailed
	}
	return nil
}

func (s *fakeJobStore) get(id string) *model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		cp := *j
		return &cp
	}
	return nil
}

func (s *fakeJobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func pastJob(id, jobType string) *model.Job {
	return &model.Job{
		ID:        id,
		Type:      jobType,
		Payload:   []byte(`{}`),
		ExecuteAt: time.Now().Add(-time.Minute),
		Status:    model.JobStatusPending,
	}
}

func TestQueue_ExecutesDueJobAndDeletesIt(t *testing.T) {
	store := newFakeJobStore()
	q := NewQueue(store, time.Second)

	var handled []string
	require.NoError(t, q.Register("resolve", func(ctx context.Context, payload []byte) error {
		handled = append(handled, string(payload))
		return nil
	}))

	require.NoError(t, store.Create(context.Background(), pastJob("j1", "resolve")))

	q.Poll(context.Background())

	assert.Equal(t, []string{"{}"}, handled)
	assert.Equal(t, 0, store.count(), "job record must be deleted on success")
}

func TestQueue_HandlerErrorMarksJobFailed(t *testing.T) {
	store := newFakeJobStore()
	q := NewQueue(store, time.Second)

	require.NoError(t, q.Register("resolve", func(ctx context.Context, payload []byte) error {
		return errors.New("settlement blew up")
	}))

	require.NoError(t, store.Create(context.Background(), pastJob("j1", "resolve")))

	q.Poll(context.Background())

	job := store.get("j1")
	require.NotNil(t, job, "failed job must be kept for inspection")
	assert.Equal(t, model.JobStatusFailed, job.Status)

	// Failed jobs are never retried.
	q.Poll(context.Background())
	assert.Equal(t, model.JobStatusFailed, store.get("j1").Status)
}

func TestQueue_UnregisteredTypeLeftUntouched(t *testing.T) {
	store := newFakeJobStore()
	q := NewQueue(store, time.Second)

	require.NoError(t, store.Create(context.Background(), pastJob("j1", "mystery")))

	q.Poll(context.Background())

	job := store.get("j1")
	require.NotNil(t, job)
	assert.Equal(t, model.JobStatusPending, job.Status, "unregistered job must not be claimed")
}

func TestQueue_FutureJobNotExecuted(t *testing.T) {
	store := newFakeJobStore()
	q := NewQueue(store, time.Second)

	fired := false
	require.NoError(t, q.Register("resolve", func(ctx context.Context, payload []byte) error {
		fired = true
		return nil
	}))

	require.NoError(t, q.Enqueue(context.Background(), "resolve", map[string]string{"game_id": "g1"}, time.Hour))

	q.Poll(context.Background())

	assert.False(t, fired)
	assert.Equal(t, 1, store.count())
}

func TestQueue_ClaimPreventsDoubleExecution(t *testing.T) {
	store := newFakeJobStore()

	require.NoError(t, store.Create(context.Background(), pastJob("j1", "resolve")))

	claimed, err := store.Claim(context.Background(), "j1")
	require.NoError(t, err)
	require.True(t, claimed)

	// A second poller observing the same listing loses the race.
	claimed, err = store.Claim(context.Background(), "j1")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestQueue_DueJobsOrderedByExecuteAt(t *testing.T) {
	store := newFakeJobStore()
	q := NewQueue(store, time.Second)

	var order []string
	require.NoError(t, q.Register("resolve", func(ctx context.Context, payload []byte) error {
		order = append(order, string(payload))
		return nil
	}))

	late := pastJob("late", "resolve")
	late.ExecuteAt = time.Now().Add(-time.Minute)
	late.Payload = []byte("late")
	early := pastJob("early", "resolve")
	early.ExecuteAt = time.Now().Add(-time.Hour)
	early.Payload = []byte("early")

	require.NoError(t, store.Create(context.Background(), late))
	require.NoError(t, store.Create(context.Background(), early))

	q.Poll(context.Background())

	assert.Equal(t, []string{"early", "late"}, order)
}

func TestQueue_RegisterAfterStartRejected(t *testing.T) {
	store := newFakeJobStore()
	q := NewQueue(store, time.Hour)

	q.Start()
	defer q.Stop()

	err := q.Register("resolve", func(ctx context.Context, payload []byte) error { return nil })
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestTimer_FiresHandler(t *testing.T) {
	tm := NewTimer()

	done := make(chan []byte, 1)
	require.NoError(t, tm.Register("resolve", func(ctx context.Context, payload []byte) error {
		done <- payload
		return nil
	}))
	tm.Start()
	defer tm.Stop()

	require.NoError(t, tm.Enqueue(context.Background(), "resolve", map[string]string{"game_id": "g1"}, 10*time.Millisecond))

	select {
	case payload := <-done:
		assert.JSONEq(t, `{"game_id":"g1"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTimer_StopCancelsPending(t *testing.T) {
	tm := NewTimer()

	fired := make(chan struct{}, 1)
	require.NoError(t, tm.Register("resolve", func(ctx context.Context, payload []byte) error {
		fired <- struct{}{}
		return nil
	}))
	tm.Start()

	require.NoError(t, tm.Enqueue(context.Background(), "resolve", nil, 50*time.Millisecond))
	tm.Stop()

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(200 * time.Millisecond):
	}
}
