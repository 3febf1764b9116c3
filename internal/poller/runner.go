// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run polls live values on one ticker and alarm info on another, and emits
// every PollResult on out. One goroutine. No overlap. No retries.
// A first live cycle runs immediately.
func (p *Poller) Run(ctx context.Context, out chan<- PollResult) {
	live := time.NewTicker(p.cfg.LiveInterval)
	defer live.Stop()
	alarm := time.NewTicker(p.cfg.AlarmInterval)
	defer alarm.Stop()

	emit := func(r PollResult) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(p.PollOnce(ClassLive)) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-live.C:
			if !emit(p.PollOnce(ClassLive)) {
				return
			}
		case <-alarm.C:
			if !emit(p.PollOnce(ClassAlarm)) {
				return
			}
		}
	}
}
