// Package log provides the engine's structured logging, covering protocol
// selection, fallback, and evaluator error decisions. It is not a metrics
// surface — telemetry counters are an out-of-scope external collaborator.
package log

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu      sync.Mutex
	current *zap.Logger
)

// New builds a production zap.Logger writing JSON lines to stderr, the
// same shape the teacher's caddy-plugin sibling receives from its host's
// ctx.Logger(). Callers outside a caddy context construct their own here
// instead of being handed one.
func New() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		// A logger that can't construct its own sink falls back to a
		// discard logger rather than taking the process down over
		// something this unimportant to correctness.
		return zap.NewNop()
	}
	return logger
}

// Default returns the process-wide logger, constructing it on first use.
func Default() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		current = New()
	}
	return current
}

// SetDefault replaces the process-wide logger returned by Default.
func SetDefault(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = l
}

// Development builds a human-readable console logger for local CLI use.
func Development() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// WithCorrelationID returns a child logger tagging every subsequent entry
// with id, the pattern cmd/streamdump uses to carry one google/uuid value
// through an entire run's log lines.
func WithCorrelationID(l *zap.Logger, id string) *zap.Logger {
	return l.With(zap.String("correlation_id", id))
}

// ProtocolDecision logs AutoStrategy's initial protocol choice for origin
// (§4.9 step 2).
func ProtocolDecision(l *zap.Logger, origin, protocol string) {
	l.Info("protocol selected",
		zap.String("origin", origin),
		zap.String("protocol", protocol))
}

// ProtocolFallback logs AutoStrategy moving on after a failed attempt over
// protocol from (§4.9 steps 4-6); to names what it tries next.
func ProtocolFallback(l *zap.Logger, origin, from, to string, err error) {
	l.Warn("protocol fallback",
		zap.String("origin", origin),
		zap.String("from", from),
		zap.String("to", to),
		zap.Error(err))
}

// AltSvcRewrite logs a request being replayed against an Alt-Svc endpoint
// (§4.9 step 5).
func AltSvcRewrite(l *zap.Logger, origin, endpoint, protocol string) {
	l.Info("alt-svc rewrite",
		zap.String("origin", origin),
		zap.String("endpoint", endpoint),
		zap.String("protocol", protocol))
}

// EvaluatorError logs a terminal tokenizer/evaluator error (§4.4.7), which
// always ends the stream.
func EvaluatorError(l *zap.Logger, offset int64, err error) {
	l.Error("evaluator terminated",
		zap.Int64("offset", offset),
		zap.Error(err))
}
