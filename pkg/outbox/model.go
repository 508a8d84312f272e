package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is a message that could not be published directly and waits in the
// outbox table for the relay.
type Event struct {
	ID         int64
	Queue      string
	Key        string
	Payload    []byte
	Headers    map[string]string
	CreatedAt  time.Time
	Status     Status
	RetryCount int
	LastError  *string
}
