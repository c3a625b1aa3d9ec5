package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinWindow(t *testing.T) {
	l := NewLimiter(2, time.Minute)
	defer l.Stop()

	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("user:1") || !l.Allow("user:1") {
		t.Fatalf("first two requests should pass")
	}
	if l.Allow("user:1") {
		t.Fatalf("third request should be throttled")
	}
	if !l.Allow("user:2") {
		t.Fatalf("other keys have their own bucket")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("user:1") {
		t.Fatalf("window should have slid")
	}
}

func TestAllowEmptyKeyAndDisabled(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	defer l.Stop()
	for i := 0; i < 5; i++ {
		if !l.Allow("") {
			t.Fatalf("empty key must not be throttled")
		}
	}

	off := NewLimiter(0, time.Minute)
	defer off.Stop()
	for i := 0; i < 5; i++ {
		if !off.Allow("ip:1.2.3.4") {
			t.Fatalf("disabled limiter must not throttle")
		}
	}
}

func TestAllowStrictIsSeparate(t *testing.T) {
	l := NewLimiter(100, time.Minute)
	defer l.Stop()

	if !l.AllowStrict("10.0.0.1", 1, time.Minute) {
		t.Fatalf("first strict request should pass")
	}
	if l.AllowStrict("10.0.0.1", 1, time.Minute) {
		t.Fatalf("second strict request should be throttled")
	}
	if !l.Allow("10.0.0.1") {
		t.Fatalf("strict bucket must not consume the default bucket")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	l.Stop()
	l.Stop()
}
