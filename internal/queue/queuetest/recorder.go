// Package queuetest provides an in-process Enqueuer that records what was queued.
package queuetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/frahmantamala/payment-gateway/internal/queue"
)

// Enqueued is one recorded Enqueue call.
type Enqueued struct {
	Job   *queue.Job
	Delay time.Duration
}

// Recorder implements queue.Enqueuer. Set Err to make every call fail, or
// FailNext to fail only that many upcoming calls.
type Recorder struct {
	Err      error
	FailNext int

	mu    sync.Mutex
	calls []Enqueued
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Enqueue(ctx context.Context, name string, payload interface{}, opts ...queue.EnqueueOption) (*queue.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if r.FailNext > 0 {
		r.FailNext--
		return nil, errors.New("queue unavailable")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	job := &queue.Job{
		ID:          fmt.Sprintf("job-%d", len(r.calls)+1),
		Queue:       name,
		Payload:     raw,
		State:       queue.StateWaiting,
		MaxAttempts: 3,
		EnqueuedAt:  time.Now(),
	}
	r.calls = append(r.calls, Enqueued{Job: job, Delay: queue.ResolveOptions(opts...).Delay})
	return job, nil
}

// Calls returns the recorded calls for one queue, oldest first.
func (r *Recorder) Calls(name string) []Enqueued {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Enqueued
	for _, c := range r.calls {
		if c.Job.Queue == name {
			out = append(out, c)
		}
	}
	return out
}

// Jobs is Calls without the delays.
func (r *Recorder) Jobs(name string) []*queue.Job {
	calls := r.Calls(name)
	out := make([]*queue.Job, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Job)
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
