package middleware

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(true, time.Minute, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("ip:1.2.3.4") {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
	if rl.Allow("ip:1.2.3.4") {
		t.Errorf("Request over the limit should be rejected")
	}
}

func TestRateLimiter_PerClientWindows(t *testing.T) {
	rl := NewRateLimiter(true, time.Minute, 1)
	defer rl.Stop()

	if !rl.Allow("ip:1.2.3.4") {
		t.Fatalf("First client's request should be allowed")
	}
	if !rl.Allow("ip:5.6.7.8") {
		t.Errorf("Second client has its own window")
	}
	if rl.Allow("ip:1.2.3.4") {
		t.Errorf("First client is over its limit")
	}
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl := NewRateLimiter(true, 10*time.Millisecond, 1)
	defer rl.Stop()

	if !rl.Allow("ip:1.2.3.4") {
		t.Fatalf("First request should be allowed")
	}
	if rl.Allow("ip:1.2.3.4") {
		t.Fatalf("Second request in the same window should be rejected")
	}

	time.Sleep(20 * time.Millisecond)

	if !rl.Allow("ip:1.2.3.4") {
		t.Errorf("Request after window expiry should be allowed")
	}
}

func TestRateLimiter_DisabledAllowsEverything(t *testing.T) {
	rl := NewRateLimiter(false, time.Minute, 1)
	defer rl.Stop()

	for i := 0; i < 10; i++ {
		if !rl.Allow("ip:1.2.3.4") {
			t.Fatalf("Disabled limiter must allow everything")
		}
	}
}
