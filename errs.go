package tasks

import "fmt"

// TaskError defines the error type for the tasks package. TaskError satisfies the error
// interface and can be used safely with other error handlers
type TaskError struct {
	Err string `json:"err"`
	// contextErr passes the actual error as part of the error message
	contextErr error
}

// Error is used for implementing the error interface, and for creating
// a proper error string
func (e *TaskError) Error() string {
	if e.contextErr != nil {
		return fmt.Sprintf("%s: %s", e.Err, e.contextErr.Error())
	}

	return e.Err
}

// Unwrap allows errors.Is/errors.As to reach the wrapped cause
func (e *TaskError) Unwrap() error {
	return e.contextErr
}

// Context is used for creating a new instance of the error with the contextual error attached
func (e *TaskError) Context(err error) *TaskError {
	ctxErr := new(TaskError)
	*ctxErr = *e
	ctxErr.contextErr = err

	return ctxErr
}

// newTaskErr creates a new TaskError
func newTaskErr(msg string) *TaskError {
	e := new(TaskError)
	e.Err = msg
	return e
}

// ErrConfiguration missing or invalid startup configuration
var ErrConfiguration = newTaskErr("invalid task module configuration")

// ErrInvalidProgression an unknown wait progression was requested when constructing a Task
var ErrInvalidProgression = newTaskErr("unknown wait progression")

// ErrUndefinedPool a pool has no registered queue adapter
var ErrUndefinedPool = newTaskErr("undefined task pool adapter")

// ErrStrictTaskNotRegistered the producer requires the task to be registered locally and it isn't
var ErrStrictTaskNotRegistered = newTaskErr("task not registered in strict pool")

// ErrGetMessage fires when a request to retrieve messages from the queue fails
var ErrGetMessage = newTaskErr("unable to retrieve message")

// ErrUnableToDelete fires when a message cannot be deleted from the queue
var ErrUnableToDelete = newTaskErr("unable to delete message")

// ErrUnableToExtend fires when a visibility extension request fails
var ErrUnableToExtend = newTaskErr("unable to extend message visibility")

// ErrPublish fires when sending a command to the queue fails
var ErrPublish = newTaskErr("unable to publish task command")

// ErrMarshal fires when a task's attributes cannot be encoded
var ErrMarshal = newTaskErr("unable to marshal task attributes")

// ErrQueueURL fires when a queue's URL cannot be resolved or created
var ErrQueueURL = newTaskErr("unable to resolve queue url")

// ErrMalformedCommand fires when a received message is missing the attributes a command requires
var ErrMalformedCommand = newTaskErr("received malformed task command")

// ErrInvalidWhen fires when a when header cannot be parsed as dd/mm/yy HH:MM:SS
var ErrInvalidWhen = newTaskErr("unable to parse when header")

// ErrScaling fires when querying the approximate queue depth fails
var ErrScaling = newTaskErr("unable to query queue depth")
