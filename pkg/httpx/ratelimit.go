package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/mediscan/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket: RequestsPerWindow refill over Window,
// with up to Burst requests served at once.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// Profiles by endpoint sensitivity. Each can be overridden from the
// environment with ParseRateLimitFromEnv.
var (
	// StrictLimit guards credential endpoints.
	StrictLimit = RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	// LoginLimit guards password login per address and email. Its burst
	// must stay above the lockout threshold so a locked account answers
	// 401 before the limiter answers 429.
	LoginLimit = RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10}

	// ModerateLimit guards authenticated writes and calls to paid upstreams.
	ModerateLimit = RateLimitConfig{RequestsPerWindow: 20, Window: time.Minute, Burst: 20}

	// LenientLimit guards authenticated reads.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 100, Window: time.Minute, Burst: 100}

	// PublicLimit guards unauthenticated probes and docs.
	PublicLimit = RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
)

// ParseRateLimitFromEnv overlays RATELIMIT_<prefix>_REQUESTS,
// RATELIMIT_<prefix>_WINDOW_SEC and RATELIMIT_<prefix>_BURST onto def.
// Invalid or non-positive values are ignored.
func ParseRateLimitFromEnv(prefix string, def RateLimitConfig) RateLimitConfig {
	cfg := def

	positive := func(name string) (int, bool) {
		v, err := strconv.Atoi(os.Getenv("RATELIMIT_" + prefix + "_" + name))
		return v, err == nil && v > 0
	}

	if v, ok := positive("REQUESTS"); ok {
		cfg.RequestsPerWindow = v
	}
	if v, ok := positive("WINDOW_SEC"); ok {
		cfg.Window = time.Duration(v) * time.Second
	}
	if v, ok := positive("BURST"); ok {
		cfg.Burst = v
	}
	return cfg
}

// KeyExtractor groups requests into buckets. An empty key skips limiting.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor keys by client address, honouring X-Forwarded-For and
// X-Real-IP set by a fronting proxy.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// UserIDKeyExtractor keys by the authenticated caller.
func UserIDKeyExtractor(r *http.Request) string {
	return UserIDFrom(r.Context())
}

// CompositeKeyExtractor joins the non-empty keys of several extractors.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, ex := range extractors {
			if k := ex(r); k != "" {
				parts = append(parts, k)
			}
		}
		return strings.Join(parts, sep)
	}
}

// JSONFieldKeyExtractor keys by a top-level string field of a JSON body,
// lower-cased. The body is restored for the handler.
func JSONFieldKeyExtractor(field string) KeyExtractor {
	return func(r *http.Request) string {
		if r.Body == nil {
			return ""
		}

		buf, err := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(buf))
		if err != nil {
			return ""
		}

		var fields map[string]json.RawMessage
		if json.Unmarshal(buf, &fields) != nil {
			return ""
		}
		var v string
		if json.Unmarshal(fields[field], &v) != nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(v))
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one bucket per key. Buckets idle for longer than ttl are
// dropped on the next sweep.
type limiterSet struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	return &limiterSet{
		buckets:   make(map[string]*bucket),
		limit:     rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:     cfg.Burst,
		ttl:       max(cfg.Window*2, 5*time.Minute),
		lastSweep: time.Now(),
	}
}

// reserve takes a token for key. It returns zero when the request may go
// ahead, otherwise how long until a token is available.
func (s *limiterSet) reserve(key string, now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > s.ttl {
		for k, b := range s.buckets {
			if now.Sub(b.lastSeen) > s.ttl {
				delete(s.buckets, k)
			}
		}
		s.lastSweep = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now

	if b.limiter.AllowN(now, 1) {
		return 0
	}

	r := b.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return delay
}

// RateLimitMiddleware rejects requests beyond cfg per key with 429.
func RateLimitMiddleware(cfg RateLimitConfig, key KeyExtractor) Middleware {
	set := newLimiterSet(cfg)
	limitHeader := strconv.Itoa(cfg.RequestsPerWindow)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				slogx.FromContext(r.Context()).Warn("rate limit: no key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			delay := set.reserve(k, time.Now())
			if delay == 0 {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := max(int(delay.Round(time.Second).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", limitHeader)
			w.Header().Set("X-RateLimit-Window", cfg.Window.String())

			slogx.FromContext(r.Context()).Warn("rate limit exceeded", "key", k, "retry_after", retryAfter)
			WriteError(w, r, TooManyRequests("Too many requests, please try again later"))
		})
	}
}

// RateLimitByIP limits each client address.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, IPKeyExtractor)
}

// RateLimitByUser limits each authenticated caller, per address.
func RateLimitByUser(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":", UserIDKeyExtractor, IPKeyExtractor))
}

// RateLimitByIPAndJSONField limits each address and body field pair, such
// as login attempts per email.
func RateLimitByIPAndJSONField(cfg RateLimitConfig, field string) Middleware {
	return RateLimitMiddleware(cfg, CompositeKeyExtractor(":", IPKeyExtractor, JSONFieldKeyExtractor(field)))
}
