package cli

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sabristratos/athneaeum-sub004/internal/config"
	"github.com/sabristratos/athneaeum-sub004/internal/database"
	"github.com/sabristratos/athneaeum-sub004/internal/database/syncstate"
	"github.com/sabristratos/athneaeum-sub004/internal/entities"
	"github.com/sabristratos/athneaeum-sub004/internal/tokenstore"
)

// StatusCommand prints sync state: credential, watermarks and pending counts.
type StatusCommand struct{}

func NewStatusCommand() *StatusCommand {
	return &StatusCommand{}
}

// ParseFlags parses command line flags
func (cmd *StatusCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s status\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Show stored credential, sync watermarks and pending change counts.\n")
	}
	return fs.Parse(args)
}

// Run executes the status command
func (cmd *StatusCommand) Run() error {
	cfg := config.NewConfig()

	tokens, err := tokenstore.New(tokenstore.Config{DatabasePath: cfg.Database.TokensPath})
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	defer tokens.Close()

	if cred, err := tokens.Get(); err == nil {
		fmt.Printf("Signed in as %s at %s\n", cred.Username, cred.ServerURL)
	} else {
		fmt.Println("Not signed in")
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	state, err := syncstate.NewRepository(db).Get()
	if err != nil {
		return fmt.Errorf("failed to read sync state: %w", err)
	}
	fmt.Printf("Last pulled: %s\n", formatWatermark(state.LastPulledAt))
	fmt.Printf("Last pushed: %s\n", formatWatermark(state.LastPushedAt))

	fmt.Println("Pending changes:")
	total := int64(0)
	for _, table := range entities.SyncTableOrder {
		var count int64
		err := db.DB.Table(table).Where("is_pending_sync = ?", true).Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to count pending %s: %w", table, err)
		}
		if count > 0 {
			fmt.Printf("  %-18s %d\n", table, count)
		}
		total += count
	}
	if total == 0 {
		fmt.Println("  none")
	}
	return nil
}

func formatWatermark(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}
