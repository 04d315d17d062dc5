package intelligence

import (
	"strconv"
	"strings"
	"time"
)

// parseAltSvc parses an RFC 7838 Alt-Svc header value. A bare "clear"
// token is reported as a nil, non-empty-meaning slice (the caller
// distinguishes "clear" from "no value" by checking the raw header before
// calling this, via the empty-vs-non-empty parsed result together with the
// literal value — see SetAltSvc). Unrecognized entries are skipped rather
// than causing the whole header to be rejected.
func parseAltSvc(header string, now time.Time) []AltSvcEndpoint {
	header = strings.TrimSpace(header)
	if header == "" || header == "clear" {
		return nil
	}
	var out []AltSvcEndpoint
	for _, entry := range splitTopLevel(header, ',') {
		ep, ok := parseAltSvcEntry(entry, now)
		if ok {
			out = append(out, ep)
		}
	}
	return out
}

// parseAltSvcEntry parses one entry: protocol-id="host:port" followed by
// zero or more ";"-separated parameters, the only one this engine honors
// being ma=N (max-age in seconds).
func parseAltSvcEntry(entry string, now time.Time) (AltSvcEndpoint, bool) {
	parts := splitTopLevel(entry, ';')
	if len(parts) == 0 {
		return AltSvcEndpoint{}, false
	}
	proto, authority, ok := splitProtoAuthority(strings.TrimSpace(parts[0]))
	if !ok {
		return AltSvcEndpoint{}, false
	}
	host, port, ok := splitAuthority(authority)
	if !ok {
		return AltSvcEndpoint{}, false
	}
	maxAge := 24 * time.Hour // RFC 7838 default when ma is absent
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		name, val, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(name) != "ma" {
			continue // unknown directives (e.g. persist) are ignored
		}
		secs, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			continue
		}
		maxAge = time.Duration(secs) * time.Second
	}
	return AltSvcEndpoint{
		Protocol: proto,
		Host:     host,
		Port:     port,
		Expiry:   now.Add(maxAge),
	}, true
}

// splitProtoAuthority splits `h3="host:port"` into ("h3", "host:port").
func splitProtoAuthority(s string) (proto, authority string, ok bool) {
	proto, rest, ok := strings.Cut(s, "=")
	if !ok {
		return "", "", false
	}
	proto = strings.TrimSpace(proto)
	rest = strings.TrimSpace(rest)
	rest = strings.Trim(rest, `"`)
	return proto, rest, proto != ""
}

// splitAuthority splits "host:port" (host may be empty, meaning "same host
// as the origin") into its parts.
func splitAuthority(authority string) (host string, port int, ok bool) {
	idx := strings.LastIndex(authority, ":")
	if idx < 0 {
		return "", 0, false
	}
	host = authority[:idx]
	p, err := strconv.Atoi(authority[idx+1:])
	if err != nil {
		return "", 0, false
	}
	return host, p, true
}

// splitTopLevel splits s on sep, ignoring occurrences of sep inside a
// double-quoted section — Alt-Svc authorities are quoted and may not
// themselves contain the separator, but a defensive split avoids breaking
// on a stray comma/semicolon a future parameter value might carry.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	start := 0
	inQuotes := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case sep:
			if !inQuotes {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}
