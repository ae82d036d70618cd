package server

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig bounds per-client request rates on the API. Writes (which
// admit jobs or mutate collections) and reads have separate buckets.
type RateLimitConfig struct {
	Enabled    bool
	ReadRPS    float64
	ReadBurst  float64
	WriteRPS   float64
	WriteBurst float64
}

type tokenBucket struct {
	tokens float64
	last   time.Time
}

type clientBuckets struct {
	read tokenBucket
	wr   tokenBucket
	last time.Time
}

type rateLimiter struct {
	mu   sync.Mutex
	cfg  RateLimitConfig
	bkt  map[string]*clientBuckets
	ttl  time.Duration
	stop chan struct{}
}

// DefaultRateLimitConfig returns the per-client limits used when a field is zero.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:    true,
		ReadRPS:    200,
		ReadBurst:  400,
		WriteRPS:   20,
		WriteBurst: 40,
	}
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	def := DefaultRateLimitConfig()
	if cfg.ReadRPS <= 0 {
		cfg.ReadRPS = def.ReadRPS
	}
	if cfg.ReadBurst <= 0 {
		cfg.ReadBurst = def.ReadBurst
	}
	if cfg.WriteRPS <= 0 {
		cfg.WriteRPS = def.WriteRPS
	}
	if cfg.WriteBurst <= 0 {
		cfg.WriteBurst = def.WriteBurst
	}
	rl := &rateLimiter{
		cfg:  cfg,
		bkt:  map[string]*clientBuckets{},
		ttl:  10 * time.Minute,
		stop: make(chan struct{}),
	}
	if cfg.Enabled {
		go rl.cleanupLoop()
	}
	return rl
}

func (r *rateLimiter) cleanupLoop() {
	t := time.NewTicker(1 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-t.C:
			cutoff := time.Now().Add(-r.ttl)
			r.mu.Lock()
			for k, v := range r.bkt {
				if v.last.Before(cutoff) {
					delete(r.bkt, k)
				}
			}
			r.mu.Unlock()
		}
	}
}

func (r *rateLimiter) close() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

func (r *rateLimiter) allow(key string, isWrite bool, now time.Time) bool {
	if !r.cfg.Enabled {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.bkt[key]
	if c == nil {
		c = &clientBuckets{
			read: tokenBucket{tokens: r.cfg.ReadBurst, last: now},
			wr:   tokenBucket{tokens: r.cfg.WriteBurst, last: now},
		}
		r.bkt[key] = c
	}
	c.last = now
	if isWrite {
		return takeToken(&c.wr, r.cfg.WriteRPS, r.cfg.WriteBurst, now)
	}
	return takeToken(&c.read, r.cfg.ReadRPS, r.cfg.ReadBurst, now)
}

func takeToken(b *tokenBucket, rps, burst float64, now time.Time) bool {
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+elapsed*rps, burst)
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isWrite := isWriteMethod(r.Method)
		if !s.limiter.allow(rateLimitClientKey(r), isWrite, time.Now()) {
			rps := s.limiter.cfg.ReadRPS
			if isWrite {
				rps = s.limiter.cfg.WriteRPS
			}
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(1/rps))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE_LIMITED")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// rateLimitClientKey identifies the caller by credential when one is sent,
// otherwise by address. middleware.RealIP has already applied X-Forwarded-For.
func rateLimitClientKey(r *http.Request) string {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		return "auth:" + hashSensitive(auth)
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return "ip:" + host
	}
	if addr != "" {
		return "ip:" + addr
	}
	return "unknown"
}

func hashSensitive(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:8])
}
