// Command stackpilot provisions and deploys a containerized web stack onto
// Google Cloud Run. bootstrap creates everything an environment needs,
// deploy builds and rolls out images, and the remaining commands inspect or
// tear down what is there.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
