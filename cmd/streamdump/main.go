// Command streamdump executes a single streaming request against a URL
// and dumps each matched (or raw) record as it arrives, with an offset,
// byte length, and elapsed time per record. Run with:
//
//	go run ./cmd/streamdump -url https://example.com/events -path '$.items[*]'
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/streamshard/streamshard"
	"github.com/streamshard/streamshard/internal/jsonpath"
	"github.com/streamshard/streamshard/internal/telemetry/log"
)

func main() {
	_ = godotenv.Load()

	var (
		rawURL   = flag.String("url", "", "request URL (required)")
		pathExpr = flag.String("path", "", "JSONPath expression to match records against; raw body chunks if empty")
		protocol = flag.String("protocol", "auto", "protocol hint: auto, h2, or h3")
		timeout  = flag.Duration("timeout", 0, "request timeout, 0 for none")
	)
	flag.Parse()

	if *rawURL == "" {
		fmt.Fprintln(os.Stderr, "streamdump: -url is required")
		os.Exit(2)
	}

	if err := run(*rawURL, *pathExpr, *protocol, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "streamdump:", err)
		os.Exit(1)
	}
}

func run(rawURL, pathExpr, protocol string, timeout time.Duration) error {
	logger := log.Default()
	defer logger.Sync()

	correlationID := uuid.NewString()
	logger = log.WithCorrelationID(logger, correlationID)

	hint, err := parseProtocolHint(protocol)
	if err != nil {
		return err
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}

	var prog *jsonpath.Program
	if pathExpr != "" {
		prog, err = jsonpath.Compile(pathExpr)
		if err != nil {
			return fmt.Errorf("compiling path: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	engine := streamshard.NewEngine(streamshard.WithLogger(logger))

	req := &streamshard.Request{
		Method: "GET",
		URL:    u,
		Header: streamshard.NewHeader(),
	}

	opts := []streamshard.ExecuteOption{streamshard.WithProtocolHint(hint)}
	if prog != nil {
		opts = append(opts, streamshard.WithPath(prog))
	}

	started := time.Now()
	resp, err := engine.Execute(ctx, req, opts...)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	defer resp.Close()

	header, status, _ := resp.Header()
	fmt.Printf("status=%d content-type=%s\n", status, header.Get("Content-Type"))

	var offset int64
	for {
		v, err := resp.Next()
		if errors.Is(err, streamshard.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		b := recordBytes(v)
		fmt.Println(prettyJSON(b))
		logger.Info("record",
			zap.Int64("offset", offset),
			zap.Int("bytes", len(b)),
			zap.Duration("elapsed", time.Since(started)),
		)
		offset += int64(len(b))
	}
	return nil
}

func prettyJSON(b []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		return string(b)
	}
	return buf.String()
}

func recordBytes(v any) []byte {
	switch t := v.(type) {
	case []byte:
		return t
	case json.RawMessage:
		return t
	default:
		return nil
	}
}

func parseProtocolHint(s string) (streamshard.ProtocolHint, error) {
	switch s {
	case "", "auto":
		return streamshard.ProtocolAuto, nil
	case "h2":
		return streamshard.ProtocolH2, nil
	case "h3":
		return streamshard.ProtocolH3, nil
	default:
		return 0, fmt.Errorf("unknown protocol hint %q", s)
	}
}
