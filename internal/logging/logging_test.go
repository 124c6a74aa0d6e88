package logging

import (
	"log/slog"
	"testing"
	"time"
)

func TestLevelForVerbosity(t *testing.T) {
	cases := []struct {
		v    int
		want slog.Level
	}{
		{0, slog.LevelWarn},
		{1, slog.LevelInfo},
		{2, slog.LevelDebug},
		{5, slog.LevelDebug},
	}
	for _, tt := range cases {
		if got := LevelForVerbosity(tt.v); got != tt.want {
			t.Errorf("LevelForVerbosity(%d) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestRateLimiter_AllowsFirstThenSuppresses(t *testing.T) {
	rl := NewRateLimiter(time.Hour)
	if !rl.Allow("dest-a") {
		t.Error("expected first call to be allowed")
	}
	if rl.Allow("dest-a") {
		t.Error("expected second call within interval to be suppressed")
	}
}

func TestRateLimiter_IndependentKeys(t *testing.T) {
	rl := NewRateLimiter(time.Hour)
	if !rl.Allow("dest-a") {
		t.Error("expected dest-a to be allowed")
	}
	if !rl.Allow("dest-b") {
		t.Error("expected dest-b (different key) to be allowed")
	}
}

func TestRateLimiter_AllowsAgainAfterInterval(t *testing.T) {
	rl := NewRateLimiter(10 * time.Millisecond)
	if !rl.Allow("x") {
		t.Error("expected first call to be allowed")
	}
	time.Sleep(20 * time.Millisecond)
	if !rl.Allow("x") {
		t.Error("expected call after interval elapsed to be allowed")
	}
}
