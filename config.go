package armemu

import (
	"log/slog"
	"os"
	"strconv"
)

// Config selects the engine and diagnostics of new contexts.
type Config struct {
	// Engine is the registered engine name. Empty means DefaultEngine.
	Engine string
	// Debug routes observations to stderr at debug level when no sink is
	// given explicitly.
	Debug bool
}

// ConfigFromEnv reads ARMEMU_ENGINE and ARMEMU_DEBUG.
func ConfigFromEnv() Config {
	cfg := Config{Engine: os.Getenv("ARMEMU_ENGINE")}
	if cfg.Engine == "" {
		cfg.Engine = DefaultEngine
	}
	if v, err := strconv.ParseBool(os.Getenv("ARMEMU_DEBUG")); err == nil {
		cfg.Debug = v
	}
	return cfg
}

type options struct {
	cfg  Config
	sink Sink
}

// Option configures New.
type Option func(*options)

// WithConfig replaces the environment derived configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithEngine selects the engine by name.
func WithEngine(name string) Option {
	return func(o *options) {
		o.cfg.Engine = name
	}
}

// WithSink sets the diagnostics sink.
func WithSink(s Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithLogger logs observations to l at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.sink = NewSlogSink(l)
	}
}

func (o *options) resolve() {
	if o.cfg.Engine == "" {
		o.cfg.Engine = DefaultEngine
	}
	if o.sink != nil {
		return
	}
	if o.cfg.Debug {
		o.sink = NewSlogSink(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		return
	}
	o.sink = NewSlogSink(slog.Default())
}
