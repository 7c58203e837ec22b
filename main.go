// vmconn - attach to a remote debuggable process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vmconn/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "vmconn: %v\n", err)
		os.Exit(1)
	}
}
