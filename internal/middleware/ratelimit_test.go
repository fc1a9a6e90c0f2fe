package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests rejected")
	}
	if rl.Allow("a") {
		t.Error("third request allowed")
	}
	if !rl.Allow("b") {
		t.Error("other key limited")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Error("request after window rejected")
	}
	if _, ok := rl.requests["b"]; ok {
		t.Error("idle key not swept")
	}
}
