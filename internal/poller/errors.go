package poller

import "fmt"

// InitError reports a failure to construct the queue client. The poller
// returns to Idle and does not retry on its own.
type InitError struct {
	Backend string
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Backend, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// FetchError reports a failed receive from a running backend. The loop
// waits out the retry delay and tries again.
type FetchError struct {
	Backend string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s: %v", e.Backend, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AckError reports that a committed message could not be removed from the
// queue. It will be redelivered and re-upserted idempotently.
type AckError struct {
	MessageID string
	Err       error
}

func (e *AckError) Error() string {
	return fmt.Sprintf("ack message %s: %v", e.MessageID, e.Err)
}

func (e *AckError) Unwrap() error { return e.Err }
