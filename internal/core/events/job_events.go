package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventJobActive    = "job.active"
	EventJobCompleted = "job.completed"
	EventJobRetrying  = "job.retrying"
	EventJobDead      = "job.dead"
)

// JobEvent describes a queue job lifecycle transition.
type JobEvent struct {
	BaseEvent
	Queue    string
	JobID    string
	Attempts int
	Err      error
}

func NewJobEvent(eventType, queue, jobID string, attempts int, err error) *JobEvent {
	data := map[string]interface{}{
		"queue":    queue,
		"job_id":   jobID,
		"attempts": attempts,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return &JobEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data:      data,
		},
		Queue:    queue,
		JobID:    jobID,
		Attempts: attempts,
		Err:      err,
	}
}
