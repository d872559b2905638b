package queue

import (
	"errors"
	"fmt"
)

type BackendOperationError struct {
	Operation string
	Err       error
}

func (e *BackendOperationError) Error() string {
	return fmt.Sprintf("backend operation %s failed: %v", e.Operation, e.Err)
}

func (e *BackendOperationError) Unwrap() error {
	return e.Err
}

func IsBackendOperation(err error) bool {
	var boe *BackendOperationError
	return errors.As(err, &boe)
}

// JobNotFoundError is returned when a job is no longer owned by the caller,
// typically because its lease expired and it was handed to another worker.
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job not found: %s", e.JobID)
}

func IsJobNotFound(err error) bool {
	var jnf *JobNotFoundError
	return errors.As(err, &jnf)
}

type HandlerNotRegisteredError struct {
	Queue string
}

func (e *HandlerNotRegisteredError) Error() string {
	return fmt.Sprintf("no handler registered for queue: %s", e.Queue)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The job goes straight to the dead list.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
