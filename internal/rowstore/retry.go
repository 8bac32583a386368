package rowstore

import (
	"math/rand"
	"time"
)

// retryPolicy bounds how write statements respond to transient lock
// contention: a fixed number of attempts with a short randomized pause
// between them. Engines that lock whole files (the embedded and desktop
// backends) routinely reject a statement while another process holds the
// write lock for a few milliseconds; retrying almost always succeeds.
type retryPolicy struct {
	attempts int
	maxPause time.Duration

	// Seams for deterministic tests.
	sleep func(time.Duration)
	randf func() float64
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		attempts: 5,
		maxPause: 100 * time.Millisecond,
		sleep:    time.Sleep,
		randf:    rand.Float64,
	}
}

// run executes fn, retrying while isBusy classifies the failure as
// transient. Non-busy errors return immediately. The pause before each
// retry is a random fraction of maxPause, which spreads out competing
// writers instead of letting them collide on a fixed schedule.
func (p retryPolicy) run(isBusy func(error) bool, onRetry func(attempt int), fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			p.sleep(time.Duration(p.randf() * float64(p.maxPause)))
			if onRetry != nil {
				onRetry(attempt)
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		if isBusy == nil || !isBusy(err) {
			return err
		}
	}
	return err
}
