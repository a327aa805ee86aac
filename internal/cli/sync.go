package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sabristratos/athneaeum-sub004/internal/config"
	"github.com/sabristratos/athneaeum-sub004/internal/entrypoint"
	"github.com/sabristratos/athneaeum-sub004/internal/syncengine"
)

// SyncCommand runs one immediate sync cycle and exits.
type SyncCommand struct {
	Timeout time.Duration
}

func NewSyncCommand() *SyncCommand {
	return &SyncCommand{}
}

// ParseFlags parses command line flags
func (cmd *SyncCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	fs.DurationVar(&cmd.Timeout, "timeout", 10*time.Minute, "Abort the sync after this long")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sync [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Push local changes and pull server changes once, then exit.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}

// Run executes the sync command
func (cmd *SyncCommand) Run() error {
	cfg := config.NewConfig()
	app, err := entrypoint.Build(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cmd.Timeout)
	defer cancel()

	// One probe so the engine knows whether the server is reachable.
	app.Monitor.CheckNow(ctx)

	result := app.Triggers.SyncNow(ctx)
	fmt.Println(result)

	switch result.Status {
	case syncengine.StatusSuccess:
		return nil
	case syncengine.StatusOffline:
		return fmt.Errorf("server unreachable at %s", cfg.Server.URL)
	default:
		return fmt.Errorf("sync did not complete: %s", result.Status)
	}
}
