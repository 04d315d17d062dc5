package h3

import (
	"net"
	"net/url"
	"testing"
)

func TestExcludedSkipsPlaintextLoopback(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{"http://localhost:8080/x", true},
		{"http://127.0.0.1:8080/x", true},
		{"http://[::1]:8080/x", true},
		{"https://localhost:8080/x", false},
		{"http://example.com/x", false},
		{"https://example.com/x", false},
	}
	for _, c := range cases {
		u, err := url.Parse(c.raw)
		if err != nil {
			t.Fatalf("url.Parse(%q): %v", c.raw, err)
		}
		if got := Excluded(u); got != c.want {
			t.Errorf("Excluded(%q) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestResolveLocalAddrMatchesRemoteFamily(t *testing.T) {
	v4 := &net.UDPAddr{IP: net.ParseIP("93.184.216.34"), Port: 443}
	local := resolveLocalAddr(v4)
	if local == nil || local.IP.To4() == nil {
		t.Fatalf("expected IPv4 unspecified local addr for IPv4 remote, got %+v", local)
	}

	v6 := &net.UDPAddr{IP: net.ParseIP("2606:2800:220:1:248:1893:25c8:1946"), Port: 443}
	local6 := resolveLocalAddr(v6)
	if local6 == nil || local6.IP.To4() != nil {
		t.Fatalf("expected IPv6 unspecified local addr for IPv6 remote, got %+v", local6)
	}
}

func TestResolveLocalAddrNilRemoteLeavesChoiceToOS(t *testing.T) {
	if got := resolveLocalAddr(nil); got != nil {
		t.Fatalf("expected nil for unresolved remote, got %+v", got)
	}
}

func TestMaxConcurrentStreamsAndProtocolName(t *testing.T) {
	s := New()
	if s.ProtocolName() != "h3" {
		t.Errorf("ProtocolName: got %q, want h3", s.ProtocolName())
	}
	if s.SupportsPush() {
		t.Errorf("SupportsPush: expected false")
	}
	if s.MaxConcurrentStreams() != 100 {
		t.Errorf("MaxConcurrentStreams: got %d, want 100", s.MaxConcurrentStreams())
	}
}

func TestWithMaxRequestBodyOption(t *testing.T) {
	s := New(WithMaxRequestBody(10))
	if s.maxRequestBody != 10 {
		t.Errorf("maxRequestBody: got %d, want 10", s.maxRequestBody)
	}
}
