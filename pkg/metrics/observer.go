package metrics

import "time"

// Event names emitted by the responder.
const (
	EventTurnHandled       = "turn_handled"
	EventGenerationFailed  = "generation_failed"
	EventMessageSent       = "message_sent"
	EventTranscribed       = "voice_note_transcribed"
	EventRateLimit         = "rate_limit"
	EventBreakerOpen       = "breaker_open"
	EventBreakerClose      = "breaker_close"
	EventBreakerDenied     = "breaker_denied"
	EventWebhookRejected   = "webhook_rejected"
	EventWebhookRecovered  = "webhook_recovered"
	EventConsoleConnection = "console_connection"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
