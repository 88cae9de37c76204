package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/happydevs-studio/wool-witch/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand()
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		format, _ := cmd.PersistentFlags().GetString("format")
		out := &cli.OutputFormatter{Format: format, Writer: os.Stdout, ErrWriter: os.Stderr}
		out.Error(err)
	}
	stop()
	os.Exit(cli.GetExitCode(err))
}
