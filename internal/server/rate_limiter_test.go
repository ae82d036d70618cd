package server

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterDisabledAllowsAll(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	defer rl.close()
	now := time.Now()
	for range 1000 {
		if !rl.allow("ip:1.2.3.4", true, now) {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestRateLimiterBurstThenRefill(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Enabled: true, WriteRPS: 10, WriteBurst: 2})
	defer rl.close()
	now := time.Now()

	if !rl.allow("k", true, now) || !rl.allow("k", true, now) {
		t.Fatal("burst rejected")
	}
	if rl.allow("k", true, now) {
		t.Fatal("request beyond burst allowed")
	}
	if !rl.allow("k", false, now) {
		t.Fatal("read shares the write bucket")
	}
	if !rl.allow("k", true, now.Add(100*time.Millisecond)) {
		t.Fatal("bucket did not refill")
	}
	if !rl.allow("other", true, now) {
		t.Fatal("clients share a bucket")
	}
}

func TestRateLimitClientKey(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/operations", nil)
	r.RemoteAddr = "10.0.0.7:5123"
	if got := rateLimitClientKey(r); got != "ip:10.0.0.7" {
		t.Errorf("key = %q", got)
	}
	r.Header.Set("Authorization", "Bearer secret")
	if got := rateLimitClientKey(r); got == "ip:10.0.0.7" || got == "auth:Bearer secret" {
		t.Errorf("key = %q, want hashed credential", got)
	}
}

func BenchmarkRateLimiterAllow(b *testing.B) {
	rl := newRateLimiter(RateLimitConfig{Enabled: true, ReadRPS: 10000, ReadBurst: 20000})
	defer rl.close()
	now := time.Now()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			rl.allow("ip:10.0.0.1", false, now)
		}
	})
}
