package chat

import "fmt"

// LoadError indicates the initial case or transcript fetch failed. The
// synchronizer is left closed; re-opening retries.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("chat: initial load failed: %v", e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// SendError indicates a send was rejected locally or failed remotely. The
// placeholder for the send is removed and the input is handed back to the
// composer; nothing else in the transcript is touched.
type SendError struct {
	Reason string
	Err    error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat: send failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("chat: send failed: %s", e.Reason)
}
func (e *SendError) Unwrap() error { return e.Err }

// SubscriptionError indicates the broadcast subscription was lost or could
// not be established. The transcript stays intact but becomes stale until a
// re-open succeeds.
type SubscriptionError struct {
	Err error
}

func (e *SubscriptionError) Error() string { return fmt.Sprintf("chat: subscription lost: %v", e.Err) }
func (e *SubscriptionError) Unwrap() error { return e.Err }
