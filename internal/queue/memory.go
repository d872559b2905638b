package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type memoryQueue struct {
	jobs      map[string][]byte
	waiting   []string
	delayed   map[string]time.Time
	active    map[string]time.Time
	completed [][]byte
	dead      [][]byte
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{
		jobs:    make(map[string][]byte),
		delayed: make(map[string]time.Time),
		active:  make(map[string]time.Time),
	}
}

// MemoryBackend keeps jobs in process memory. It follows the same state machine as
// RedisBackend and is used for tests and single-process development.
type MemoryBackend struct {
	mu     sync.Mutex
	queues map[string]*memoryQueue
	opts   BackendOptions
}

func NewMemoryBackend(opts BackendOptions) *MemoryBackend {
	opts.SetDefaults()
	return &MemoryBackend{
		queues: make(map[string]*memoryQueue),
		opts:   opts,
	}
}

func (m *MemoryBackend) queue(name string) *memoryQueue {
	q, ok := m.queues[name]
	if !ok {
		q = newMemoryQueue()
		m.queues[name] = q
	}
	return q
}

func (m *MemoryBackend) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return &BackendOperationError{Operation: "Enqueue", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue(job.Queue)
	q.jobs[job.ID] = data
	if job.ScheduledFor.After(m.opts.Now()) {
		q.delayed[job.ID] = job.ScheduledFor
	} else {
		q.waiting = append(q.waiting, job.ID)
	}
	return nil
}

func (m *MemoryBackend) Claim(ctx context.Context, queue string, lease time.Duration) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Now()
	q := m.queue(queue)

	q.waiting = append(q.waiting, dueIDs(q.active, now)...)
	q.waiting = append(q.waiting, dueIDs(q.delayed, now)...)

	for len(q.waiting) > 0 {
		id := q.waiting[0]
		q.waiting = q.waiting[1:]

		data, ok := q.jobs[id]
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, &BackendOperationError{Operation: "Claim", Err: err}
		}
		q.active[id] = now.Add(lease)
		job.State = StateActive
		return &job, nil
	}
	return nil, nil
}

// dueIDs removes and returns entries scored at or before now, oldest first.
func dueIDs(scores map[string]time.Time, now time.Time) []string {
	var due []string
	for id, at := range scores {
		if !at.After(now) {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return scores[due[i]].Before(scores[due[j]])
	})
	for _, id := range due {
		delete(scores, id)
	}
	return due
}

func (m *MemoryBackend) Ack(ctx context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue(job.Queue)
	if _, ok := q.active[job.ID]; !ok {
		return &JobNotFoundError{JobID: job.ID}
	}
	delete(q.active, job.ID)
	delete(q.jobs, job.ID)

	finished := m.opts.Now()
	job.State = StateCompleted
	job.FinishedAt = &finished
	data, err := json.Marshal(job)
	if err != nil {
		return &BackendOperationError{Operation: "Ack", Err: err}
	}
	q.completed = keepLatest(q.completed, data, m.opts.KeepCompleted)
	return nil
}

func (m *MemoryBackend) Fail(ctx context.Context, job *Job, retryAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue(job.Queue)
	if _, ok := q.active[job.ID]; !ok {
		return &JobNotFoundError{JobID: job.ID}
	}
	delete(q.active, job.ID)

	if retryAt != nil {
		job.State = StateDelayed
		job.ScheduledFor = *retryAt
		data, err := json.Marshal(job)
		if err != nil {
			return &BackendOperationError{Operation: "Fail", Err: err}
		}
		q.jobs[job.ID] = data
		q.delayed[job.ID] = *retryAt
		return nil
	}

	delete(q.jobs, job.ID)
	finished := m.opts.Now()
	job.State = StateDead
	job.FinishedAt = &finished
	data, err := json.Marshal(job)
	if err != nil {
		return &BackendOperationError{Operation: "Fail", Err: err}
	}
	q.dead = keepLatest(q.dead, data, m.opts.KeepFailed)
	return nil
}

// keepLatest prepends item and trims the list to limit entries.
func keepLatest(list [][]byte, item []byte, limit int) [][]byte {
	list = append([][]byte{item}, list...)
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

func (m *MemoryBackend) Stats(ctx context.Context, queue string) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue(queue)
	return &Stats{
		Waiting:   int64(len(q.waiting)),
		Active:    int64(len(q.active)),
		Delayed:   int64(len(q.delayed)),
		Completed: int64(len(q.completed)),
		Dead:      int64(len(q.dead)),
	}, nil
}

func (m *MemoryBackend) RetryDead(ctx context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue(queue)
	var moved int64
	// dead is newest first; requeue oldest first
	for i := len(q.dead) - 1; i >= 0; i-- {
		var job Job
		if err := json.Unmarshal(q.dead[i], &job); err != nil {
			return moved, &BackendOperationError{Operation: "RetryDead", Err: err}
		}
		resetForRetry(&job, m.opts.Now())
		data, err := json.Marshal(&job)
		if err != nil {
			return moved, &BackendOperationError{Operation: "RetryDead", Err: err}
		}
		q.jobs[job.ID] = data
		q.waiting = append(q.waiting, job.ID)
		moved++
	}
	q.dead = nil
	return moved, nil
}

func resetForRetry(job *Job, now time.Time) {
	job.Attempts = 0
	job.LastError = ""
	job.State = StateWaiting
	job.ScheduledFor = now
	job.FinishedAt = nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
