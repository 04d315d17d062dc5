package streamshard

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/streamshard/streamshard/internal/chunk"
	"github.com/streamshard/streamshard/internal/config"
	"github.com/streamshard/streamshard/internal/intelligence"
	"github.com/streamshard/streamshard/internal/jsonpath"
	"github.com/streamshard/streamshard/internal/protocol/h2"
	"github.com/streamshard/streamshard/internal/protocol/h3"
	"github.com/streamshard/streamshard/internal/telemetry/log"
)

// Engine owns the protocol strategies, intelligence table, and resource
// ceilings every Execute call shares. It is safe for concurrent use.
type Engine struct {
	auto   *AutoStrategy
	table  *intelligence.Table
	cfg    config.Config
	logger *zap.Logger
}

type engineOptions struct {
	cfg    *config.Config
	logger *zap.Logger
}

// EngineOption configures a new Engine.
type EngineOption func(*engineOptions)

// WithConfig overrides the engine's resource/protocol/intelligence config,
// config.Defaults() otherwise.
func WithConfig(cfg config.Config) EngineOption {
	return func(o *engineOptions) { o.cfg = &cfg }
}

// WithLogger overrides the engine's zap logger, log.Default() otherwise.
func WithLogger(l *zap.Logger) EngineOption {
	return func(o *engineOptions) { o.logger = l }
}

// NewEngine assembles an Engine from its config, protocol strategies, and
// intelligence collaborators — the same composition-root shape as the
// teacher's NewClient, generalized across two wire protocols instead of
// one implicit transport.
func NewEngine(opts ...EngineOption) *Engine {
	o := &engineOptions{}
	for _, opt := range opts {
		opt(o)
	}
	cfg := config.Defaults()
	if o.cfg != nil {
		cfg = *o.cfg
	}
	logger := o.logger
	if logger == nil {
		logger = log.Default()
	}

	table := intelligence.New()
	table.TTL = cfg.Resources.IntelligenceTTL
	table.ScoreThreshold = cfg.Intelligence.ScoreThreshold
	table.BaseBackoff = cfg.Intelligence.BaseBackoff
	table.MaxBackoff = cfg.Intelligence.MaxBackoff

	h2s := h2.New()
	h3s := h3.New(
		h3.WithEnable0RTT(cfg.Protocol.Enable0RTT),
		h3.WithEnableDecompression(cfg.Protocol.EnableDecompression),
		h3.WithMaxRequestBody(cfg.Resources.MaxRequestBodyBytes),
	)

	auto := NewAutoStrategy(h2s, h3s, table, logger)
	return &Engine{auto: auto, table: table, cfg: cfg, logger: logger}
}

type executeOptions struct {
	path *jsonpath.Program
	hint ProtocolHint
}

// ExecuteOption customizes a single Execute call.
type ExecuteOption func(*executeOptions)

// WithPath compiles matched records through prog instead of emitting raw
// body chunks; Next then yields json.RawMessage per matched record.
func WithPath(prog *jsonpath.Program) ExecuteOption {
	return func(o *executeOptions) { o.path = prog }
}

// WithProtocolHint overrides the request's ProtocolHint for this call.
func WithProtocolHint(hint ProtocolHint) ExecuteOption {
	return func(o *executeOptions) { o.hint = hint }
}

// Execute dispatches req over the protocol AutoStrategy (or ProtocolHint)
// selects and returns a ResponseStream the caller drains. This is the
// engine's single entry point (§6).
func (e *Engine) Execute(ctx context.Context, req *Request, opts ...ExecuteOption) (*ResponseStream, error) {
	if req.URL == nil {
		return nil, newEngineError("execute", KindInvalidRequest, "", fmt.Errorf("request has no URL"))
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return nil, newEngineError("execute", KindInvalidRequest, req.URL.Scheme, ErrUnsupportedScheme)
	}
	if req.Body != nil && e.cfg.Resources.MaxRequestBodyBytes > 0 {
		b, err := req.Body.Reader()
		if err == nil && int64(len(b)) > e.cfg.Resources.MaxRequestBodyBytes {
			return nil, newEngineError("execute", KindInvalidRequest, req.URL.Scheme, ErrBodyTooLarge)
		}
	}

	o := &executeOptions{hint: req.ProtocolHint}
	for _, opt := range opts {
		opt(o)
	}

	execCtx, cancel := context.WithCancel(ctx)
	ch, err := e.dispatch(execCtx, req, o.hint)
	if err != nil {
		cancel()
		return nil, err
	}
	limits := resourceLimits{
		maxRecordSpanBytes: e.cfg.Resources.MaxRecordSpanBytes,
		maxDepth:           e.cfg.Resources.MaxDepth,
		maxRetainedBytes:   e.cfg.Resources.MaxRetainedBytes,
	}
	return newResponseStream(cancel, ch, o.path, limits), nil
}

func (e *Engine) dispatch(ctx context.Context, req *Request, hint ProtocolHint) (*chunk.Channel, error) {
	switch hint {
	case ProtocolH2:
		return e.auto.h2.Execute(ctx, toWireRequest(req))
	case ProtocolH3:
		return e.auto.h3.Execute(ctx, toWireRequest(req))
	default:
		return e.auto.Execute(ctx, req)
	}
}

// Table exposes the engine's intelligence table for inspection (e.g. by
// cmd/streamdump to print origin state); callers should treat it as
// read-mostly.
func (e *Engine) Table() *intelligence.Table { return e.table }
