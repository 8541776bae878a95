package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	t.Parallel()

	limiter := New(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !limiter.Allow("1.2.3.4") {
			t.Fatalf("Allow() call %d = false, want true", i+1)
		}
	}
}

func TestBlocksOverLimit(t *testing.T) {
	t.Parallel()

	limiter := New(2, time.Minute)
	limiter.Allow("1.2.3.4")
	limiter.Allow("1.2.3.4")
	if limiter.Allow("1.2.3.4") {
		t.Fatal("Allow() third call = true, want false")
	}
}

func TestWindowSlides(t *testing.T) {
	t.Parallel()

	now := time.Now()
	limiter := New(1, time.Minute)
	limiter.nowFunc = func() time.Time { return now }

	if !limiter.Allow("k") {
		t.Fatal("Allow() first call = false, want true")
	}
	if limiter.Allow("k") {
		t.Fatal("Allow() within window = true, want false")
	}

	now = now.Add(61 * time.Second)
	if !limiter.Allow("k") {
		t.Fatal("Allow() after window elapsed = false, want true")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	t.Parallel()

	limiter := New(1, time.Minute)
	if !limiter.Allow("1.2.3.4") {
		t.Fatal("Allow(first key) = false, want true")
	}
	if !limiter.Allow("5.6.7.8") {
		t.Fatal("Allow(second key) = false, want true")
	}
}

func TestRejectedCallDoesNotExtendWindow(t *testing.T) {
	t.Parallel()

	now := time.Now()
	limiter := New(1, time.Minute)
	limiter.nowFunc = func() time.Time { return now }

	limiter.Allow("k")
	for i := 0; i < 5; i++ {
		now = now.Add(10 * time.Second)
		limiter.Allow("k")
	}

	// 60s after the only admitted call, the window is clear again even
	// though rejected attempts kept arriving.
	now = now.Add(11 * time.Second)
	if !limiter.Allow("k") {
		t.Fatal("Allow() after original window = false, want true")
	}
}
