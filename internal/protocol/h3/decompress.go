package h3

import (
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// decompressor returns a streaming wrapper for the named Content-Encoding,
// or ok=false when encoding is something this strategy doesn't recognize
// (including identity/empty, left to the caller as a pass-through).
func decompressor(encoding string) (func(io.Reader) io.ReadCloser, bool) {
	switch encoding {
	case "gzip":
		return func(r io.Reader) io.ReadCloser { return &gzipReadCloser{r: r} }, true
	case "deflate":
		return func(r io.Reader) io.ReadCloser { return flate.NewReader(r) }, true
	case "br":
		return func(r io.Reader) io.ReadCloser { return io.NopCloser(brotli.NewReader(r)) }, true
	default:
		return nil, false
	}
}

// gzipReadCloser defers gzip.NewReader's header parse, which can itself
// fail, until the first Read, since decompressor commits to returning a
// ReadCloser unconditionally rather than an (io.ReadCloser, error) pair.
type gzipReadCloser struct {
	r   io.Reader
	gz  *gzip.Reader
	err error
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	if g.gz == nil && g.err == nil {
		g.gz, g.err = gzip.NewReader(g.r)
	}
	if g.err != nil {
		return 0, g.err
	}
	return g.gz.Read(p)
}

func (g *gzipReadCloser) Close() error {
	if g.gz != nil {
		return g.gz.Close()
	}
	return nil
}
