package botutil

import (
	"context"
	"log/slog"
	"time"
)

const readyPoll = time.Second

// Every polls ready until it reports true, calls fn once, then calls it again
// on each tick of interval until ctx is done. A panicking fn is logged under
// name and does not end the loop.
func Every(ctx context.Context, log *slog.Logger, name string, ready func() bool, interval time.Duration, fn func()) {
	if !waitReady(ctx, ready) {
		return
	}
	log = log.With("loop", name)
	safeCall(log, fn)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			safeCall(log, fn)
		}
	}
}

func waitReady(ctx context.Context, ready func() bool) bool {
	poll := time.NewTicker(readyPoll)
	defer poll.Stop()
	for !ready() {
		select {
		case <-ctx.Done():
			return false
		case <-poll.C:
		}
	}
	return true
}

func safeCall(log *slog.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in loop", "error", r)
		}
	}()
	fn()
}
