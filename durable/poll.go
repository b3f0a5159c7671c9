package durable

import (
	"context"
	"time"

	"github.com/tailored-agentic-units/durable-kernel/config"
	"github.com/tailored-agentic-units/durable-kernel/observability"
)

// startPollLoop submits an empty checkpoint update on a fixed cadence so
// the runtime observes backend-driven transitions (a retry becoming
// READY, an externally-resolved Callback, a completed chained Invoke)
// even while every locally-started activity has finished its own work.
// It stops itself once the tracker suspends, since there is then nothing
// left for a poll response to wake up locally in this process; the
// caller's returned stop func additionally halts it once the handler
// reaches a terminal outcome.
func startPollLoop(goCtx context.Context, rt *runtime, cfg config.PollConfig) func() {
	stop := make(chan struct{})

	go func() {
		initial := cfg.InitialDelay
		if initial <= 0 {
			initial = config.DefaultPollConfig().InitialDelay
		}
		period := cfg.Period
		if period <= 0 {
			period = config.DefaultPollConfig().Period
		}

		timer := time.NewTimer(initial)
		defer timer.Stop()
		deadline := time.Now().Add(pollWindow)

		for {
			select {
			case <-stop:
				return
			case <-rt.tracker.Done():
				return
			case <-timer.C:
				if time.Now().After(deadline) {
					return
				}
				if rt.observer != nil {
					rt.observer.OnEvent(goCtx, observability.Event{Type: observability.EventPollTick, Level: observability.LevelVerbose, Source: "durable"})
				}
				<-rt.batcher.Poll()
				timer.Reset(period)
			}
		}
	}()

	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		close(stop)
	}
}
