package botutil

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// WaitForShutdown blocks until SIGINT or SIGTERM is received or ctx is done,
// then logs the shutdown.
func WaitForShutdown(ctx context.Context, log *slog.Logger, name string) {
	log.Info(name + " is running. Press Ctrl+C to exit.")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sc)
	select {
	case <-sc:
	case <-ctx.Done():
	}
	log.Info("Shutting down.")
}
