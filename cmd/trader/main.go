// Command trader backtests the momentum-oscillator strategy and tracks trades.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"momentum-trader/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
