package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event types emitted by the engine.
const (
	EventLoginSuccess        = "login_success"
	EventLoginDenied         = "login_denied"
	EventAdminLoginDenied    = "admin_login_denied"
	EventAdminMFADenied      = "admin_mfa_denied"
	EventAdminMFAVerified    = "admin_mfa_verified"
	EventRefreshRotated      = "refresh_rotated"
	EventRefreshReuse        = "refresh_reuse_detected"
	EventFamilyRevoked       = "refresh_family_revoked"
	EventLogout              = "logout"
	EventChallengeReplay     = "mfa_challenge_replay"
	EventDeviceMismatch      = "mfa_device_mismatch"
	EventStoreUnavailable    = "auth_store_unavailable"
	EventAttemptsExceeded    = "mfa_attempts_exceeded"
	EventRefreshUserInactive = "refresh_user_inactive"
)

// Event is the canonical security event record.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	FamilyID  string            `json:"family_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink buffers events in a channel, for consumers that drain them
// on their own schedule (tests, external shippers).
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line. Marshal failures are
// silently dropped; an audit sink never propagates errors into auth flows.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
