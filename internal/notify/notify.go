package notify

import (
	"context"
	"time"
)

// Notification is one queued outbound message. Rows live in the same SQLite
// datastore as the ledgers, so enqueued work survives a process restart;
// delivery is at-least-once.
type Notification struct {
	ID          int64      `json:"id"`
	Recipient   string     `json:"recipient"`
	Body        string     `json:"body"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	NextTryAt   *time.Time `json:"next_try_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Created     time.Time  `json:"created"`
	Updated     time.Time  `json:"updated"`
}

// Queue is the enqueue-only view the core components depend on. Enqueuing is
// fire-and-forget: the core never blocks on delivery.
type Queue interface {
	Enqueue(ctx context.Context, recipient, body string) (int64, error)
}

// Sender delivers one message to one recipient. The real WhatsApp transport
// lives outside this repository; tests and the default wiring plug in fakes.
type Sender interface {
	Send(ctx context.Context, recipient, body string) error
}

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	max := 5 * time.Minute
	if d > max {
		return max
	}
	return d
}
