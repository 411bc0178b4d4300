package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jmylchreest/keylight2mqtt/cmd/keylight2mqtt/commands"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// A missing .env is normal; the environment may already be set.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.NewRootCommand(version, commit, buildDate).ExecuteContext(ctx)
	stop()

	os.Exit(commands.ExitCode(err))
}
