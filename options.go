package strands

import (
	"io"
	"log/slog"

	"github.com/ygrebnov/strands/clock"
	"github.com/ygrebnov/strands/metrics"
)

// Option configures a Run.
type Option func(*config)

type config struct {
	clock   clock.Clock
	logger  *slog.Logger
	metrics metrics.Provider
}

// defaultConfig centralizes the defaults applied by Run before options.
func defaultConfig() config {
	return config{
		clock:   clock.NewSystem(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: metrics.NewNoopProvider(),
	}
}

// WithClock sets the time source consulted when no strand is ready.
// Default: the wall clock.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) {
		if c == nil {
			panic("nil clock")
		}
		cfg.clock = c
	}
}

// WithLogger sets the structured logger for scheduler debug events.
// Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l == nil {
			panic("nil logger")
		}
		cfg.logger = l
	}
}

// WithMetrics sets the metrics provider the scheduler records through.
// Default: noop.
func WithMetrics(p metrics.Provider) Option {
	return func(cfg *config) {
		if p == nil {
			panic("nil metrics provider")
		}
		cfg.metrics = p
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			panic("nil strands option")
		}
		opt(&cfg)
	}
	return cfg
}
