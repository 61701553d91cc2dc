// Package pace draws the randomized pauses between sends and the waits
// between transport retries.
package pace

import (
	"math/rand"
	"sync"
	"time"
)

// Source is the randomness Jitter draws from. *rand.Rand satisfies it.
type Source interface {
	Intn(n int) int
}

// Jitter returns a uniform integer in [min, max]. When max <= min it returns
// min, clamped at zero.
func Jitter(rng Source, min, max int) int {
	if max <= min {
		if min < 0 {
			return 0
		}
		return min
	}
	if min < 0 {
		min = 0
	}
	return min + rng.Intn(max-min+1)
}

// Backoff is the wait before retry number attempt (1-based):
// min(step*attempt, ceiling).
func Backoff(step, ceiling time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := step * time.Duration(attempt)
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}

// Locked wraps a *rand.Rand for use from many goroutines.
type Locked struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewLocked(seed int64) *Locked {
	return &Locked{rng: rand.New(rand.NewSource(seed))}
}

func (l *Locked) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}
