package main

// Main entry point of the application
// Initializes and executes Cobra commands
// Interrupts cancel the in-flight call

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"partyserver-client/cmd/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
