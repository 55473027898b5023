package metrics

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// JSONLObserver writes one JSON object per event.
type JSONLObserver struct {
	logger *slog.Logger
	closer io.Closer
	once   sync.Once
}

func NewJSONLObserver(w io.Writer) *JSONLObserver {
	if w == nil {
		return &JSONLObserver{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
	}
	o := &JSONLObserver{logger: slog.New(slog.NewJSONHandler(w, nil))}
	if c, ok := w.(io.Closer); ok {
		o.closer = c
	}
	return o
}

func (o *JSONLObserver) RecordEvent(ev MetricsEvent) {
	o.logger.LogAttrs(context.TODO(), slog.LevelInfo, "metrics", eventAttrs(ev)...)
}

// Close closes the underlying writer when it is closable.
func (o *JSONLObserver) Close() error {
	var err error
	o.once.Do(func() {
		if o.closer != nil {
			err = o.closer.Close()
		}
	})
	return err
}

func eventAttrs(ev MetricsEvent) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("name", ev.Name),
		slog.Time("time", ev.Time),
		slog.Float64("value", ev.Value),
	}
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}
