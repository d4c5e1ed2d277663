// Command cascade is the operator CLI for a cascade job store: it applies
// migrations, inspects jobs, replays dead letters, toggles recurring jobs
// and exports queue depth to Prometheus.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultOpener).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
