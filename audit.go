package authgate

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	sentry "github.com/getsentry/sentry-go"
)

// AuditEvent is one security-relevant occurrence: a login, a rotation, a
// reuse detection, a throttle decision.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	FamilyID  string            `json:"family_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the engine's dispatcher goroutine. Emit
// must not block indefinitely; slow sinks cause drops, not stalls.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a channel for in-process consumers.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan AuditEvent, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
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

// SentrySink forwards failed events to Sentry as security messages.
// Successful events are ignored; Sentry is for things that went wrong.
type SentrySink struct {
	hub *sentry.Hub
}

// NewSentrySink wraps a hub. Pass nil to use the current global hub.
func NewSentrySink(hub *sentry.Hub) *SentrySink {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentrySink{hub: hub}
}

func (s *SentrySink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.hub == nil || event.Success {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("event_type", event.EventType)
		if event.UserID != "" {
			scope.SetTag("user_id", event.UserID)
		}
		if event.IP != "" {
			scope.SetTag("ip", event.IP)
		}
		if event.Error != "" {
			scope.SetExtra("error", event.Error)
		}
		for k, v := range event.Metadata {
			scope.SetExtra(k, v)
		}
		s.hub.CaptureMessage("auth: " + event.EventType)
	})
}
