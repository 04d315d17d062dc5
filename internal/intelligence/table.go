// Package intelligence tracks, per origin, which wire protocol has been
// working and what RFC 7838 Alt-Svc endpoints a server has advertised
// (spec §4.8). State lives only for the process lifetime.
package intelligence

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Protocol is one of the two baseline wire protocols this engine dispatches
// over. It is distinct from request.ProtocolHint: a hint can ask for
// "auto", a Protocol here never can.
type Protocol int

const (
	H2 Protocol = iota
	H3
)

func (p Protocol) String() string {
	if p == H3 {
		return "h3"
	}
	return "h2"
}

// ValidationStatus tracks whether an Alt-Svc-advertised endpoint has been
// tried and whether that trial succeeded.
type ValidationStatus int

const (
	Untried ValidationStatus = iota
	Valid
	Invalid
)

// AltSvcEndpoint is one entry parsed from an RFC 7838 Alt-Svc header.
type AltSvcEndpoint struct {
	Protocol         string // the ALPN-style token, e.g. "h3", "h2"
	Host             string // empty means "same host as origin"
	Port             int
	Expiry           time.Time
	ValidationStatus ValidationStatus
}

func (e AltSvcEndpoint) key() string {
	return e.Protocol + "|" + e.Host + "|" + itoa(e.Port)
}

// Origin identifies the scheme+host+port tuple an intelligence entry is
// keyed by.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

type entry struct {
	h2Score          int
	h3Score          int
	h2Failures       int
	h3Failures       int
	h2CooldownUntil  time.Time
	h3CooldownUntil  time.Time
	altSvc           []AltSvcEndpoint
	lastAccess       time.Time

	// dialPace independently throttles how often a new attempt may be
	// made against this origin at all, regardless of the exponential
	// cooldown above — a token-bucket floor under the backoff curve so a
	// caller retrying in a tight loop still can't exceed one dial per
	// BaseBackoff interval even right after a cooldown clears.
	dialPace *rate.Limiter
}

func (e *entry) cooldownUntil(proto Protocol) time.Time {
	if proto == H2 {
		return e.h2CooldownUntil
	}
	return e.h3CooldownUntil
}

// Table is the per-origin intelligence map (§4.8). The zero value is not
// usable; construct with New. Table exposes only the four mutators and
// three queries named in the spec — the lock itself is never exported.
// ShouldRetry is a query in name only: it consumes a dial-pacing token as
// a side effect (see its own doc comment), so calling it outside an
// actual retry decision silently affects later calls.
type Table struct {
	mu      sync.RWMutex
	origins map[Origin]*entry

	// TTL is how long an entry survives without being accessed before it
	// is pruned (default 24h per §5).
	TTL time.Duration

	// ScoreThreshold is how negative a protocol's score must go before a
	// cooldown is applied (default -2: two unanswered failures).
	ScoreThreshold int

	// BaseBackoff and MaxBackoff parameterize the exponential cooldown
	// computed in backoff (default 1s / 5m).
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	now func() time.Time
}

const (
	defaultTTL            = 24 * time.Hour
	defaultScoreThreshold = -2
	defaultBaseBackoff    = time.Second
	defaultMaxBackoff     = 5 * time.Minute
)

// New returns an empty Table with the §5 defaults.
func New() *Table {
	return &Table{
		origins:        make(map[Origin]*entry),
		TTL:            defaultTTL,
		ScoreThreshold: defaultScoreThreshold,
		BaseBackoff:    defaultBaseBackoff,
		MaxBackoff:     defaultMaxBackoff,
		now:            time.Now,
	}
}

// entryFor returns the entry for origin, creating it if absent, and prunes
// it first if it has gone stale past TTL. Caller must hold mu for writing.
func (t *Table) entryFor(origin Origin) *entry {
	now := t.now()
	e, ok := t.origins[origin]
	if ok && now.Sub(e.lastAccess) > t.TTL {
		delete(t.origins, origin)
		ok = false
	}
	if !ok {
		e = &entry{dialPace: rate.NewLimiter(rate.Every(t.BaseBackoff), 1)}
		t.origins[origin] = e
	}
	e.lastAccess = now
	return e
}

// TrackSuccess records a successful connection over protocol for origin:
// the protocol's score is incremented and any cooldown is cleared.
func (t *Table) TrackSuccess(origin Origin, proto Protocol) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryFor(origin)
	switch proto {
	case H2:
		e.h2Score++
		e.h2Failures = 0
		e.h2CooldownUntil = time.Time{}
	case H3:
		e.h3Score++
		e.h3Failures = 0
		e.h3CooldownUntil = time.Time{}
	}
}

// TrackFailure records a failed connection attempt over protocol for
// origin: the protocol's score is decremented, and if it crosses
// ScoreThreshold a cooldown is set to now + backoff(failureCount).
func (t *Table) TrackFailure(origin Origin, proto Protocol) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryFor(origin)
	var score, failures *int
	var cooldown *time.Time
	switch proto {
	case H2:
		score, failures, cooldown = &e.h2Score, &e.h2Failures, &e.h2CooldownUntil
	case H3:
		score, failures, cooldown = &e.h3Score, &e.h3Failures, &e.h3CooldownUntil
	}
	*score--
	*failures++
	if *score <= t.ScoreThreshold {
		*cooldown = t.now().Add(backoff(*failures, t.BaseBackoff, t.MaxBackoff))
	}
}

// backoff computes an exponential delay capped at max: base * 2^failures.
func backoff(failures int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < failures && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

// SetAltSvc parses an RFC 7838 Alt-Svc header value and replaces origin's
// endpoint list per §4.8's parsing contract: the bare token "clear" wipes
// the list; each "proto=\"host:port\"; ma=N" entry yields an endpoint
// expiring at now+N seconds; unknown directives are ignored; duplicate
// (protocol, host, port) tuples coalesce with the latest expiry/status
// winning.
func (t *Table) SetAltSvc(origin Origin, header string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryFor(origin)
	if strings.TrimSpace(header) == "clear" {
		e.altSvc = nil
		return
	}
	parsed := parseAltSvc(header, t.now())
	byKey := make(map[string]int, len(e.altSvc))
	for i, ep := range e.altSvc {
		byKey[ep.key()] = i
	}
	for _, ep := range parsed {
		if i, ok := byKey[ep.key()]; ok {
			e.altSvc[i].Expiry = ep.Expiry
			e.altSvc[i].ValidationStatus = ep.ValidationStatus
			continue
		}
		e.altSvc = append(e.altSvc, ep)
		byKey[ep.key()] = len(e.altSvc) - 1
	}
}

// SetEndpointStatus updates the validation status of the Alt-Svc endpoint
// matching proto/host/port for origin, if one is present.
func (t *Table) SetEndpointStatus(origin Origin, proto, host string, port int, status ValidationStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryFor(origin)
	for i := range e.altSvc {
		ep := &e.altSvc[i]
		if ep.Protocol == proto && ep.Host == host && ep.Port == port {
			ep.ValidationStatus = status
			return
		}
	}
}

// PreferredProtocol returns which baseline protocol a fresh request to
// origin should try first: whichever of H2/H3 is not in cooldown and has
// the higher score; H3 by default if both are cooled down or tied.
func (t *Table) PreferredProtocol(origin Origin) Protocol {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryFor(origin)
	now := t.now()
	h2Cool := e.h2CooldownUntil.After(now)
	h3Cool := e.h3CooldownUntil.After(now)
	switch {
	case h3Cool && !h2Cool:
		return H2
	case h2Cool && !h3Cool:
		return H3
	case h2Cool && h3Cool:
		return H3
	case e.h2Score > e.h3Score:
		return H2
	default:
		return H3
	}
}

// AltSvcEndpoints returns a copy-on-read snapshot of origin's current
// Alt-Svc endpoint list, in insertion order, with expired entries dropped.
func (t *Table) AltSvcEndpoints(origin Origin) []AltSvcEndpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryFor(origin)
	now := t.now()
	out := make([]AltSvcEndpoint, 0, len(e.altSvc))
	for _, ep := range e.altSvc {
		if ep.Expiry.After(now) {
			out = append(out, ep)
		}
	}
	return out
}

// ShouldRetry reports whether origin's entry permits a further attempt
// over proto right now: true unless proto is presently in cooldown or the
// origin's dial-pacing floor has no token available. Unlike the other two
// queries, a true result consumes a dial-pacing token — ShouldRetry is the
// gate a caller checks immediately before actually retrying, not a
// peekable status. Calling it diagnostically, or more than once per retry
// decision, consumes tokens the next genuine retry would have needed and
// will make it return false.
func (t *Table) ShouldRetry(origin Origin, proto Protocol) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entryFor(origin)
	now := t.now()
	if e.cooldownUntil(proto).After(now) {
		return false
	}
	return e.dialPace.AllowN(now, 1)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
