package persist

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/opsdesk/internal/action"
	"github.com/roach88/opsdesk/internal/metrics"
)

type options struct {
	logger  *slog.Logger
	metrics *metrics.Collectors
	runID   string
	redact  map[action.Type]bool
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.Must(uuid.NewV7()).String()
	}
	return o
}

// Option configures a Persistor or a Journal.
type Option func(*options)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records writes on m.
func WithMetrics(m *metrics.Collectors) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRunID sets the journal run id. Default: a fresh UUIDv7.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}

// WithRedactedTypes makes the journal record "[redacted]" instead of the
// payload of the given action types.
func WithRedactedTypes(types ...action.Type) Option {
	return func(o *options) {
		if o.redact == nil {
			o.redact = make(map[action.Type]bool, len(types))
		}
		for _, t := range types {
			o.redact[t] = true
		}
	}
}
