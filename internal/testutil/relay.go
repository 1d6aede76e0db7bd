package testutil

import (
	"context"
	"errors"
	"sync"

	"sabot-go/internal/sabot"
)

// ErrRelayDown is returned by RecordingRelay while it is failing.
var ErrRelayDown = errors.New("relay down")

// RecordingRelay keeps every delivered message and notice.
type RecordingRelay struct {
	mu       sync.Mutex
	messages []sabot.Message
	notices  []string
	failures int
	attempts int
}

var _ sabot.Relay = (*RecordingRelay)(nil)

func NewRecordingRelay() *RecordingRelay {
	return &RecordingRelay{}
}

// FailNext makes the next n Deliver calls return ErrRelayDown.
func (r *RecordingRelay) FailNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = n
}

func (r *RecordingRelay) Deliver(_ context.Context, msg sabot.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.failures > 0 {
		r.failures--
		return ErrRelayDown
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *RecordingRelay) Notify(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, text)
	return nil
}

// Messages returns the successfully delivered messages.
func (r *RecordingRelay) Messages() []sabot.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sabot.Message(nil), r.messages...)
}

// Notices returns the operator notices.
func (r *RecordingRelay) Notices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notices...)
}

// Attempts returns how many times Deliver was called.
func (r *RecordingRelay) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}
