package tasks

import (
	"context"
	"time"
)

// whenLayout is the wire format for the `when` message attribute: UTC,
// dd/mm/yy HH:MM:SS, per SPEC_FULL.md §3/§6.
const whenLayout = "02/01/06 15:04:05"

// MaxReceiveBatch is the largest batch a single Receive call may return,
// per the QueueAdapter contract in SPEC_FULL.md §4.1. Exported so concrete
// QueueAdapter implementations outside this package clamp to the same
// ceiling the Consumer logs against.
const MaxReceiveBatch = 10

// maxDeferSeconds is the longest visibility extension a single
// ChangeVisibility call may request, matching the target queue's own limit
// (SPEC_FULL.md §4.4/§9).
const maxDeferSeconds = 18000

// Message is the wire envelope for a task execution command, carried as a
// single queue message. Attributes/SystemAttributes follow SPEC_FULL.md §3.
type Message struct {
	// Body is the JSON-encoded attribute object, opaque to the core.
	Body []byte
	// Attributes holds task_name, exec_id and when.
	Attributes map[string]string
	// SystemAttributes holds ApproximateReceiveCount and SentTimestamp.
	SystemAttributes map[string]string
	// Handle is an adapter-specific opaque reference used for Delete and
	// ChangeVisibility (e.g. an SQS receipt handle).
	Handle interface{}
}

// TaskName returns the task_name message attribute, or "" if absent.
func (m *Message) TaskName() string {
	return m.Attributes["task_name"]
}

// ExecID returns the exec_id message attribute, or "" if absent.
func (m *Message) ExecID() string {
	return m.Attributes["exec_id"]
}

// When returns the when message attribute, or "" if absent.
func (m *Message) When() string {
	return m.Attributes["when"]
}

// ParseWhen parses the when attribute as a UTC dd/mm/yy HH:MM:SS timestamp.
func (m *Message) ParseWhen() (time.Time, error) {
	w := m.When()
	if w == "" {
		return time.Time{}, ErrInvalidWhen
	}
	t, err := time.Parse(whenLayout, w)
	if err != nil {
		return time.Time{}, ErrInvalidWhen.Context(err)
	}
	return t, nil
}

// ReceiveCount returns the ApproximateReceiveCount system attribute, the
// queue's authoritative count of delivery attempts for this message. 0 if
// absent or unparseable.
func (m *Message) ReceiveCount() int {
	return atoiOrZero(m.SystemAttributes["ApproximateReceiveCount"])
}

// QueueAdapter is the thin interface the Consumer and Producer require of the
// remote queue: send, long-poll receive, delete, change-visibility and an
// approximate depth indicator, per SPEC_FULL.md §4.1. Connection setup and
// lazy queue creation are an adapter's own responsibility, not part of this
// contract.
type QueueAdapter interface {
	// Send enqueues a task execution command. If execID is empty a new
	// UUIDv4 is generated. If when is the zero Time, it defaults to now.
	// delay is the server-side visibility delay before the message becomes
	// receivable.
	Send(ctx context.Context, taskName string, attrs interface{}, delay time.Duration, execID string, when time.Time) error
	// Receive long-polls for up to max messages. Requests above
	// MaxReceiveBatch (10) are clamped to it; the adapters do not log this,
	// the Consumer logs a warning before it asks for more.
	Receive(ctx context.Context, max int) ([]*Message, error)
	// Delete acknowledges and fully consumes a message.
	Delete(ctx context.Context, m *Message) error
	// ChangeVisibility extends or shortens a message's visibility window.
	// Failures are swallowed and reported as false; the caller decides how
	// to recover.
	ChangeVisibility(ctx context.Context, m *Message, newTimeout time.Duration) bool
	// ApproximateDepth returns an indicator of queue length, used by the
	// scaling controller.
	ApproximateDepth(ctx context.Context) (int, error)
}

// Clock abstracts wall-clock time so the scheduling loop can be driven by a
// fake clock in tests instead of sleeping in real time (generalizes the
// teacher's habit of building *consumer literals directly for fast tests).
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func atoiOrZero(s string) int {
	n := 0
	neg := false
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n
}
