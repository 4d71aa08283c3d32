package main

import (
	"testing"
	"time"
)

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TRACKER_TEST_STR", "  value  ")
	if got := envOrDefault("TRACKER_TEST_STR", "fallback"); got != "value" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
	if got := envOrDefault("TRACKER_TEST_STR_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestIntEnvFallsBackOnInvalid(t *testing.T) {
	t.Setenv("TRACKER_TEST_INT", "5")
	if got := intEnv("TRACKER_TEST_INT", 3); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	t.Setenv("TRACKER_TEST_INT_BAD", "many")
	if got := intEnv("TRACKER_TEST_INT_BAD", 3); got != 3 {
		t.Fatalf("expected fallback 3, got %d", got)
	}
}

func TestBoolEnv(t *testing.T) {
	t.Setenv("TRACKER_TEST_BOOL", "false")
	if got := boolEnv("TRACKER_TEST_BOOL", true); got {
		t.Fatalf("expected false")
	}
	t.Setenv("TRACKER_TEST_BOOL_BAD", "yep")
	if got := boolEnv("TRACKER_TEST_BOOL_BAD", true); !got {
		t.Fatalf("expected fallback true")
	}
}

func TestDurationEnvFallsBackOnInvalid(t *testing.T) {
	t.Setenv("TRACKER_TEST_DUR", "90s")
	if got := durationEnv("TRACKER_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	t.Setenv("TRACKER_TEST_DUR_BAD", "soon")
	if got := durationEnv("TRACKER_TEST_DUR_BAD", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback 1m, got %s", got)
	}
}

func TestClampJitterRatio(t *testing.T) {
	if got := clampJitterRatio(-0.1); got != 0 {
		t.Fatalf("expected clamp to 0, got %f", got)
	}
	if got := clampJitterRatio(1.5); got != 1 {
		t.Fatalf("expected clamp to 1, got %f", got)
	}
	if got := clampJitterRatio(0.4); got != 0.4 {
		t.Fatalf("expected passthrough 0.4, got %f", got)
	}
}

func TestJitteredIntervalWithSample(t *testing.T) {
	base := 10 * time.Second
	if got := jitteredIntervalWithSample(base, 0, 0.2); got != base {
		t.Fatalf("expected no jitter interval %s, got %s", base, got)
	}
	if got := jitteredIntervalWithSample(base, 0.2, 0); got != 8*time.Second {
		t.Fatalf("expected min jitter interval 8s, got %s", got)
	}
	if got := jitteredIntervalWithSample(base, 0.2, 0.5); got != 10*time.Second {
		t.Fatalf("expected midpoint jitter interval 10s, got %s", got)
	}
	if got := jitteredIntervalWithSample(base, 0.2, 1); got != 12*time.Second {
		t.Fatalf("expected max jitter interval 12s, got %s", got)
	}
}
