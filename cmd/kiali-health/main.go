package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kiali/kiali-health/pkg/cmd"
)

func main() {
	flags := pflag.NewFlagSet("kiali-health", pflag.ExitOnError)
	pflag.CommandLine = flags

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cmd.NewMCPServer(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
