package pace

import (
	"testing"
	"time"
)

func TestJitterBounds(t *testing.T) {
	t.Parallel()
	rng := NewLocked(1)
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		v := Jitter(rng, 10, 13)
		if v < 10 || v > 13 {
			t.Fatalf("Jitter(10,13) = %d", v)
		}
		seen[v] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected every value in range, saw %v", seen)
	}
}

func TestJitterDegenerate(t *testing.T) {
	t.Parallel()
	rng := NewLocked(1)
	tests := []struct {
		min, max, want int
	}{
		{min: 10, max: 10, want: 10},
		{min: 12, max: 5, want: 12},
		{min: -3, max: -5, want: 0},
		{min: 0, max: 0, want: 0},
	}
	for _, tt := range tests {
		if got := Jitter(rng, tt.min, tt.max); got != tt.want {
			t.Fatalf("Jitter(%d,%d) = %d, want %d", tt.min, tt.max, got, tt.want)
		}
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()
	step, ceiling := 5*time.Second, 30*time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 5 * time.Second},
		{attempt: 1, want: 5 * time.Second},
		{attempt: 3, want: 15 * time.Second},
		{attempt: 6, want: 30 * time.Second},
		{attempt: 9, want: 30 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(step, ceiling, tt.attempt); got != tt.want {
			t.Fatalf("Backoff(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
