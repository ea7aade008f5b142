package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	limiter := New(2.0, 2) // 2 RPS, burst of 2

	if !limiter.Allow("fred") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("fred") {
		t.Error("Second request should be allowed")
	}
	if limiter.Allow("fred") {
		t.Error("Third request should be blocked")
	}
}

func TestLimiter_IndependentProviders(t *testing.T) {
	limiter := New(1.0, 1)

	if !limiter.Allow("fred") {
		t.Error("First request to fred should be allowed")
	}
	if !limiter.Allow("stooq") {
		t.Error("First request to stooq should be allowed")
	}
	if limiter.Allow("fred") {
		t.Error("Second request to fred should be blocked")
	}
	if limiter.Allow("stooq") {
		t.Error("Second request to stooq should be blocked")
	}
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	limiter := New(0.1, 1) // one token per 10s after burst
	if !limiter.Allow("fred") {
		t.Fatal("burst token should be available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx, "fred"); err == nil {
		t.Error("Wait should fail once the context deadline passes")
	}
}
