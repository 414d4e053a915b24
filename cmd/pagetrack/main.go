package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ocrhub/pagetrack/internal/cli"
	"github.com/ocrhub/pagetrack/internal/store"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cli.Version = version
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pagetrack: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes caller mistakes from missing data, in the spirit
// of sysexits: 2 for invalid input, 3 for unknown requests, 1 otherwise.
func exitCode(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidArgument):
		return 2
	case errors.Is(err, store.ErrNotFound):
		return 3
	default:
		return 1
	}
}
