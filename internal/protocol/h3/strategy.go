// Package h3 implements the HTTP/3 protocol strategy (C7): QUIC transport
// via quic-go, structured headers QPACK-encoded transitively through
// quic-go/http3, and the dispatch-time loopback-plaintext skip rule.
package h3

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/streamshard/streamshard/internal/chunk"
	"github.com/streamshard/streamshard/internal/protocol"
)

// defaultMaxRequestBody is the §5 request-body buffering cap.
const defaultMaxRequestBody = 100 * 1024 * 1024

// ErrRequestBodyTooLarge is returned synchronously by Execute when the
// request body exceeds the configured cap; H3 must buffer the whole body
// up front (QUIC streams don't support the chunked-trailer replay H2 gets
// from net/http), so this check happens before any I/O.
var ErrRequestBodyTooLarge = errors.New("h3: request body exceeds buffering cap")

// Strategy executes requests over HTTP/3. A single Strategy pools QUIC
// connections per origin internally via http3.RoundTripper.
type Strategy struct {
	roundTripper        *http3.RoundTripper
	enable0RTT          bool
	enableDecompression bool
	maxRequestBody      int64
}

// Option configures a Strategy at construction time.
type Option func(*Strategy)

// WithEnable0RTT enables QUIC 0-RTT/early-data, off by default per spec.
func WithEnable0RTT(v bool) Option { return func(s *Strategy) { s.enable0RTT = v } }

// WithEnableDecompression turns on response Content-Encoding handling.
func WithEnableDecompression(v bool) Option {
	return func(s *Strategy) { s.enableDecompression = v }
}

// WithMaxRequestBody overrides the §5 100 MiB default.
func WithMaxRequestBody(n int64) Option { return func(s *Strategy) { s.maxRequestBody = n } }

// New returns a Strategy with a fresh QUIC connection pool.
func New(opts ...Option) *Strategy {
	s := &Strategy{maxRequestBody: defaultMaxRequestBody}
	for _, o := range opts {
		o(s)
	}
	s.roundTripper = &http3.RoundTripper{
		TLSClientConfig: &tls.Config{NextProtos: []string{"h3"}},
		QUICConfig:      &quic.Config{Allow0RTT: s.enable0RTT},
		Dial:            dialWithResolvedLocalAddr,
	}
	return s
}

// dialWithResolvedLocalAddr is http3.RoundTripper's Dial hook: it resolves
// the remote address, binds a local UDP socket matching its family per
// resolveLocalAddr, and hands the bound socket to quic-go for the actual
// handshake. quic-go generates the connection ID itself (seeded from
// crypto/rand), so there is nothing left to seed here.
func dialWithResolvedLocalAddr(ctx context.Context, addr string, tlsCfg *tls.Config, cfg *quic.Config) (quic.EarlyConnection, error) {
	remote, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", resolveLocalAddr(remote))
	if err != nil {
		return nil, err
	}
	return quic.DialEarly(ctx, conn, remote, tlsCfg, cfg)
}

func (s *Strategy) ProtocolName() string { return "h3" }

func (s *Strategy) SupportsPush() bool { return false }

// MaxConcurrentStreams reports the §5 default ceiling of 100 in-flight
// streams. The value is fixed: config's MaxConcurrentH3Streams is not
// passed to the strategy, and the strategy does not itself limit how many
// requests run at once.
func (s *Strategy) MaxConcurrentStreams() int64 { return 100 }

// Excluded reports whether dispatch must skip HTTP/3 for req per §4.7: a
// plaintext http:// URL whose host resolves to loopback, since QUIC
// requires UDP+TLS and a loopback plaintext URL never carries one. This is
// policy the source preserves, not a property of the protocol itself —
// https:// loopback is permitted.
func Excluded(u *url.URL) bool {
	if u.Scheme != "http" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// resolveLocalAddr picks a bind address matching remote's family per the
// dual-stack rule: IPv4 remote binds the IPv4 unspecified address, IPv6
// remote binds the IPv6 unspecified address. A nil remote IP (unresolved)
// falls back to letting the OS pick, matching net.Dial's own behavior.
func resolveLocalAddr(remote *net.UDPAddr) *net.UDPAddr {
	if remote == nil || remote.IP == nil {
		return nil
	}
	if remote.IP.To4() != nil {
		return &net.UDPAddr{IP: net.IPv4zero, Port: 0}
	}
	return &net.UDPAddr{IP: net.IPv6unspecified, Port: 0}
}

// Execute dials (or reuses) a QUIC connection and returns a Channel fed by
// a background goroutine translating the HTTP/3 response into Frames.
func (s *Strategy) Execute(ctx context.Context, req *protocol.Request) (*chunk.Channel, error) {
	if int64(len(req.Body)) > s.maxRequestBody {
		return nil, ErrRequestBodyTooLarge
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("h3: building request: %w", err)
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
	resp, err := s.roundTripper.RoundTrip(httpReq)
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

	body := io.ReadCloser(resp.Body)
	if s.enableDecompression {
		if wrap, ok := decompressor(resp.Header.Get("Content-Encoding")); ok {
			body = wrap(resp.Body)
			defer body.Close()
		}
	}

	buf := make([]byte, 32*1024)
	var offset int64
	for {
		n, readErr := body.Read(buf)
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
