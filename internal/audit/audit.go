// Package audit captures the append-only stream of notable engine actions:
// count events, resets, and scan decisions. Emission is best effort and never
// blocks or fails the command path; the authoritative audit trail is the
// count_events table itself.
package audit

import (
	"context"
	"sync"
	"time"

	id "clicr/pkg/domain"
)

// Kind classifies an audit event.
type Kind string

const (
	KindCountEvent   Kind = "count_event"
	KindCountReset   Kind = "count_reset"
	KindScanDecision Kind = "scan_decision"
	KindStaffBan     Kind = "staff_ban"
	KindPatronBan    Kind = "patron_ban"
)

// Event is one structured audit record.
type Event struct {
	Kind       Kind          `json:"kind"`
	BusinessID id.BusinessID `json:"business_id"`
	VenueID    id.VenueID    `json:"venue_id,omitempty"`
	AreaID     id.AreaID     `json:"area_id,omitempty"`
	UserID     id.UserID     `json:"user_id,omitempty"`
	Delta      int           `json:"delta,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Emitter is the sink interface services publish through.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// MemorySink buffers events in memory. Used in tests and as the default sink
// when Kafka is not configured.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink constructs an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Emit(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything emitted so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
