package queue

import (
	"context"
	"log/slog"
	"sync"
)

// Worker runs jobs handed to it through JobChannel. An idle worker parks its
// channel in WorkerPool so the claimer only takes jobs there is capacity for.
type Worker struct {
	ID         int
	Queue      string
	WorkerPool chan chan *Job
	JobChannel chan *Job
	Logger     *slog.Logger
}

func NewWorker(id int, queue string, workerPool chan chan *Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		Queue:      queue,
		WorkerPool: workerPool,
		JobChannel: make(chan *Job),
		Logger:     logger,
	}
}

// Start loops until stop is cancelled. A job already received is always run to
// completion before the worker exits.
func (w *Worker) Start(stop context.Context, wg *sync.WaitGroup, processFunc func(*Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "queue", w.Queue, "worker_id", w.ID, "job_id", job.ID)
				processFunc(job)
			case <-stop.Done():
				w.Logger.Debug("worker shutting down", "queue", w.Queue, "worker_id", w.ID)
				return
			}
		}
	}()
}

type pool struct {
	queue   string
	idle    chan chan *Job
	workers []*Worker
}

func newPool(queue string, size int, logger *slog.Logger) *pool {
	if size <= 0 {
		size = 1
	}
	p := &pool{
		queue: queue,
		idle:  make(chan chan *Job, size),
	}
	for i := 0; i < size; i++ {
		p.workers = append(p.workers, NewWorker(i, queue, p.idle, logger))
	}
	return p
}

func (p *pool) start(stop context.Context, wg *sync.WaitGroup, processFunc func(*Job)) {
	for _, w := range p.workers {
		w.Start(stop, wg, processFunc)
	}
}

// tryAcquire returns an idle worker's channel without blocking.
func (p *pool) tryAcquire() (chan *Job, bool) {
	select {
	case ch := <-p.idle:
		return ch, true
	default:
		return nil, false
	}
}

func (p *pool) release(ch chan *Job) {
	p.idle <- ch
}
