// Package halt is the cooperative stop signal shared by a campaign's
// scheduler, its jobs and the operator.
package halt

import (
	"sync"
	"time"
)

// Signal is a one-shot stop request. The zero value is not usable; use New.
type Signal struct {
	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	reason string
}

func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Request stops the campaign. Only the first call's reason is kept.
func (s *Signal) Request(reason string) {
	s.once.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Signal) Requested() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed once a stop was requested.
func (s *Signal) Done() <-chan struct{} { return s.done }

func (s *Signal) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Sleep waits for d or until a stop is requested. It reports whether the full
// duration elapsed.
func (s *Signal) Sleep(d time.Duration) bool {
	if d <= 0 {
		return !s.Requested()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.done:
		return false
	}
}
