package metrics

import (
	"context"
	"log/slog"
)

// LoggerObserver logs events at debug level.
type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log}
}

func (o *LoggerObserver) RecordEvent(ev MetricsEvent) {
	o.log.LogAttrs(context.TODO(), slog.LevelDebug, "metrics", eventAttrs(ev)...)
}

// MultiObserver fans an event out to every non-nil observer.
type MultiObserver struct {
	list []Observer
}

func NewMultiObserver(list ...Observer) *MultiObserver {
	return &MultiObserver{list: list}
}

func (m *MultiObserver) RecordEvent(ev MetricsEvent) {
	for _, obs := range m.list {
		if obs != nil {
			obs.RecordEvent(ev)
		}
	}
}
