package transform

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// scheduler runs delayed retry callbacks on in-process timers. Scheduled
// retries do not survive a restart; the broker redelivers unacked messages,
// so only messages already acked into the retry path are lost.
type scheduler struct {
	base time.Duration
	max  time.Duration

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
	wg     sync.WaitGroup
}

func newScheduler(base, max time.Duration) *scheduler {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 60 * time.Second
	}
	return &scheduler{base: base, max: max, timers: map[*time.Timer]struct{}{}}
}

// delay returns the backoff interval before retry number attempt (1-based):
// base doubling per attempt, capped, with ±25% jitter.
func (s *scheduler) delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.base
	b.Multiplier = 2
	b.MaxInterval = s.max
	b.RandomizationFactor = 0.25
	b.MaxElapsedTime = 0
	b.Reset()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// after schedules fn to run once after d. Returns false when the scheduler
// is closed; fn is then never run.
func (s *scheduler) after(d time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		defer s.wg.Done()
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		delete(s.timers, t)
		s.mu.Unlock()
		fn()
	})
	s.timers[t] = struct{}{}
	return true
}

// Close cancels all pending timers and waits for in-flight callbacks.
func (s *scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, t)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
