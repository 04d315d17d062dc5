package log

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return zap.New(core), logs
}

func TestProtocolDecisionLogsFields(t *testing.T) {
	l, logs := observedLogger()
	ProtocolDecision(l, "example.com:443", "h3")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["origin"] != "example.com:443" || ctx["protocol"] != "h3" {
		t.Fatalf("unexpected fields: %+v", ctx)
	}
}

func TestProtocolFallbackLogsWarn(t *testing.T) {
	l, logs := observedLogger()
	ProtocolFallback(l, "example.com:443", "h3", "h2", errors.New("boom"))

	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zap.WarnLevel {
		t.Fatalf("expected 1 warn entry, got %+v", entries)
	}
}

func TestWithCorrelationIDTagsChildLogger(t *testing.T) {
	l, logs := observedLogger()
	tagged := WithCorrelationID(l, "run-123")
	tagged.Info("hello")

	ctx := logs.All()[0].ContextMap()
	if ctx["correlation_id"] != "run-123" {
		t.Fatalf("expected correlation_id field, got %+v", ctx)
	}
}

func TestDefaultLoggerIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Fatalf("expected Default() to return the same logger instance")
	}
}
