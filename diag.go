package armemu

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Observation is one diagnostic record of a facade call.
type Observation struct {
	Op      string
	Attrs   []slog.Attr
	Elapsed time.Duration
	Err     error
}

// Sink receives observations. Enabled is consulted before every call; when it
// returns false the facade neither reads the clock nor builds attributes.
type Sink interface {
	Enabled() bool
	Observe(obs Observation)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Enabled() bool       { return false }
func (NopSink) Observe(Observation) {}

// SlogSink writes observations to Logger at Level.
type SlogSink struct {
	Logger *slog.Logger
	Level  slog.Level
}

// NewSlogSink returns a sink logging at debug level under module=armemu.
func NewSlogSink(l *slog.Logger) *SlogSink {
	if l == nil {
		l = slog.Default()
	}
	return &SlogSink{Logger: l.With("module", "armemu"), Level: slog.LevelDebug}
}

func (s *SlogSink) Enabled() bool {
	return s.Logger.Enabled(context.Background(), s.Level)
}

func (s *SlogSink) Observe(obs Observation) {
	attrs := make([]slog.Attr, 0, len(obs.Attrs)+2)
	attrs = append(attrs, obs.Attrs...)
	attrs = append(attrs, slog.Duration("elapsed", obs.Elapsed))
	if obs.Err != nil {
		attrs = append(attrs, slog.Any("err", obs.Err))
	}
	s.Logger.LogAttrs(context.Background(), s.Level, obs.Op, attrs...)
}

func hexAttr(key string, v uint64) slog.Attr {
	return slog.String(key, fmt.Sprintf("0x%x", v))
}
