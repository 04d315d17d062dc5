// Package config loads the engine's layered configuration: built-in
// defaults, overridden by an optional YAML file, overridden by environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds every tunable named in the resource-ceiling table (§5) plus
// initial protocol preference and backoff parameters (§4.8/§4.9). Its
// zero value, once defaulted by Load, reproduces the spec's stated
// defaults exactly.
type Config struct {
	Resources  ResourceLimits  `koanf:"resources"`
	Protocol   ProtocolConfig  `koanf:"protocol"`
	Intelligence IntelligenceConfig `koanf:"intelligence"`
}

// ResourceLimits mirrors §5's table.
type ResourceLimits struct {
	MaxRecordSpanBytes     int64         `koanf:"max_record_span_bytes"`
	MaxDepth               int           `koanf:"max_depth"`
	MaxRetainedBytes       int64         `koanf:"max_retained_bytes"`
	MaxRequestBodyBytes    int64         `koanf:"max_request_body_bytes"`
	MaxConcurrentH3Streams int64         `koanf:"max_concurrent_h3_streams"`
	IntelligenceTTL        time.Duration `koanf:"intelligence_ttl"`
}

// ProtocolConfig carries defaults the caller can override per request via
// Request.ProtocolHint.
type ProtocolConfig struct {
	// Preferred is loaded ("h3" or "h2") but not read by the engine: a
	// brand-new origin with no intelligence history always tries H3 first,
	// whatever this field says.
	Preferred       string `koanf:"preferred"`
	Enable0RTT      bool   `koanf:"enable_0rtt"`
	EnableDecompression bool `koanf:"enable_decompression"`
}

// IntelligenceConfig parameterizes the backoff/cooldown math in
// internal/intelligence.
type IntelligenceConfig struct {
	ScoreThreshold int           `koanf:"score_threshold"`
	BaseBackoff    time.Duration `koanf:"base_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
}

// Defaults returns the §5/§4.8 stated defaults, used both as Load's
// starting point and as the engine's behavior when no config is loaded at
// all.
func Defaults() Config {
	return Config{
		Resources: ResourceLimits{
			MaxRecordSpanBytes:     64 * 1024 * 1024,
			MaxDepth:               512,
			MaxRetainedBytes:       16 * 1024 * 1024,
			MaxRequestBodyBytes:    100 * 1024 * 1024,
			MaxConcurrentH3Streams: 100,
			IntelligenceTTL:        24 * time.Hour,
		},
		Protocol: ProtocolConfig{
			Preferred: "h3",
		},
		Intelligence: IntelligenceConfig{
			ScoreThreshold: -2,
			BaseBackoff:    time.Second,
			MaxBackoff:     5 * time.Minute,
		},
	}
}

// Load reads configuration starting from Defaults, layering a YAML file at
// path (if non-empty and present) and then "STREAMSHARD_"-prefixed
// environment variables on top, the same layering order as the teacher's
// koanf-based loader.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("STREAMSHARD_", ".", func(s string) string {
		// Only the first underscore separates the section from the field;
		// field names keep theirs (RESOURCES_MAX_DEPTH -> resources.max_depth).
		return strings.Replace(
			strings.ToLower(strings.TrimPrefix(s, "STREAMSHARD_")),
			"_", ".", 1,
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	// Start from the spec's stated defaults; koanf's mapstructure decode
	// only overwrites fields actually present in the loaded file/env keys,
	// so anything neither names falls through to these defaults.
	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
