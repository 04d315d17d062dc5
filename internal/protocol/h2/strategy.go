// Package h2 implements the HTTP/2 protocol strategy (C6): one pooled
// TLS+TCP connection per origin, dispatched through golang.org/x/net/http2
// directly rather than net/http's implicit upgrade, so flow control stays
// visible to the chunk channel that backpressures it.
package h2

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/streamshard/streamshard/internal/chunk"
	"github.com/streamshard/streamshard/internal/protocol"
)

// Strategy executes requests over HTTP/2. A single Strategy is safe for
// concurrent use and pools connections per origin internally, the same
// pooling contract as http.Transport.
type Strategy struct {
	transport *http2.Transport
}

// dialTimeout and keepAlive mirror the teacher's http.Transport dialer
// tuning (client.go), reused here since http2.Transport does its own
// dialing rather than delegating to an http.Transport.
const (
	dialTimeout           = 30 * time.Second
	dialKeepAlive         = 30 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	readIdleTimeout       = 90 * time.Second
	pingTimeout           = 15 * time.Second
)

// New returns a Strategy with a fresh connection pool.
func New() *Strategy {
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: dialKeepAlive}
	return &Strategy{
		transport: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
				conn, err := dialer.DialContext(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				tlsConn := tls.Client(conn, cfg)
				hctx, cancel := context.WithTimeout(ctx, tlsHandshakeTimeout)
				defer cancel()
				if err := tlsConn.HandshakeContext(hctx); err != nil {
					conn.Close()
					return nil, err
				}
				return tlsConn, nil
			},
			ReadIdleTimeout: readIdleTimeout,
			PingTimeout:     pingTimeout,
		},
	}
}

func (s *Strategy) ProtocolName() string { return "h2" }

func (s *Strategy) SupportsPush() bool { return false }

// MaxConcurrentStreams is negotiated entirely by the remote peer's SETTINGS
// frame; http2.Transport honors it natively, so the strategy imposes no
// local ceiling of its own.
func (s *Strategy) MaxConcurrentStreams() int64 { return 0 }

// Execute dials (or reuses) a connection and returns a Channel fed by a
// background goroutine translating HEADERS/DATA/trailers into Frames.
func (s *Strategy) Execute(ctx context.Context, req *protocol.Request) (*chunk.Channel, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("h2: building request: %w", err)
	}
	for _, f := range req.Header {
		httpReq.Header.Add(f.Name, f.Value)
	}
	if req.ContentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	ch := chunk.New()
	go s.produce(ctx, httpReq, ch)
	return ch, nil
}

func (s *Strategy) produce(ctx context.Context, httpReq *http.Request, ch *chunk.Channel) {
	resp, err := s.transport.RoundTrip(httpReq)
	if err != nil {
		ch.Send(ctx, chunk.ErrorFrame{Message: err.Error()})
		ch.Close()
		return
	}
	defer resp.Body.Close()

	if err := ch.Send(ctx, chunk.HeadersFrame{
		Status: resp.StatusCode,
		Header: nameValues(resp.Header),
	}); err != nil {
		ch.Close()
		return
	}

	buf := make([]byte, 32*1024)
	var offset int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			b := make([]byte, n)
			copy(b, buf[:n])
			sendErr := ch.Send(ctx, chunk.BodyFrame{
				Bytes:   b,
				Offset:  offset,
				IsFinal: readErr == io.EOF,
			})
			offset += int64(n)
			if sendErr != nil {
				ch.Close()
				return
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				if trailers := nameValues(resp.Trailer); len(trailers) > 0 {
					ch.Send(ctx, chunk.TrailersFrame{Header: trailers})
				}
				ch.Send(ctx, chunk.EndFrame{})
			} else {
				ch.Send(ctx, chunk.ErrorFrame{Message: readErr.Error()})
			}
			ch.Close()
			return
		}
	}
}

func nameValues(h http.Header) []chunk.NameValue {
	if len(h) == 0 {
		return nil
	}
	out := make([]chunk.NameValue, 0, len(h))
	for name, values := range h {
		for _, v := range values {
			out = append(out, chunk.NameValue{Name: name, Value: v})
		}
	}
	return out
}
