package h3

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
)

func TestDecompressorUnknownEncoding(t *testing.T) {
	if _, ok := decompressor("identity"); ok {
		t.Errorf("expected identity to be unrecognized, not a decompressor case")
	}
	if _, ok := decompressor(""); ok {
		t.Errorf("expected empty encoding to be unrecognized")
	}
}

func TestDecompressorGzipRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte("hello gzip"))
	gw.Close()

	wrap, ok := decompressor("gzip")
	if !ok {
		t.Fatalf("expected gzip to be recognized")
	}
	rc := wrap(&buf)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello gzip" {
		t.Fatalf("got %q, want %q", got, "hello gzip")
	}
}

func TestDecompressorDeflateRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	fw.Write([]byte("hello deflate"))
	fw.Close()

	wrap, ok := decompressor("deflate")
	if !ok {
		t.Fatalf("expected deflate to be recognized")
	}
	rc := wrap(&buf)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello deflate" {
		t.Fatalf("got %q, want %q", got, "hello deflate")
	}
}

func TestDecompressorBrotliRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	bw.Write([]byte("hello brotli"))
	bw.Close()

	wrap, ok := decompressor("br")
	if !ok {
		t.Fatalf("expected br to be recognized")
	}
	rc := wrap(&buf)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello brotli" {
		t.Fatalf("got %q, want %q", got, "hello brotli")
	}
}

func TestGzipReadCloserSurfacesBadHeaderError(t *testing.T) {
	wrap, _ := decompressor("gzip")
	rc := wrap(bytes.NewReader([]byte("not gzip data")))
	defer rc.Close()
	_, err := io.ReadAll(rc)
	if err == nil {
		t.Fatalf("expected an error reading a non-gzip stream")
	}
}
