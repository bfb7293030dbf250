package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomgould/Scrape/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// restore default handling so a second signal kills the process
			stop()
			fmt.Fprintln(os.Stderr, "stopping: waiting for in-flight transfers, press Ctrl+C again to quit now")
		case <-finished:
		}
	}()

	err := cli.ExecuteContext(ctx)
	close(finished)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
