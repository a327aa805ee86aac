package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/sabristratos/athneaeum-sub004/internal/config"
	"github.com/sabristratos/athneaeum-sub004/internal/tokenstore"
)

// LogoutCommand removes the stored sync credential.
type LogoutCommand struct{}

func NewLogoutCommand() *LogoutCommand {
	return &LogoutCommand{}
}

// ParseFlags parses command line flags
func (cmd *LogoutCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s logout\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Remove the stored sync credential. Local data is untouched.\n")
	}
	return fs.Parse(args)
}

// Run executes the logout command
func (cmd *LogoutCommand) Run() error {
	cfg := config.NewConfig()
	tokens, err := tokenstore.New(tokenstore.Config{DatabasePath: cfg.Database.TokensPath})
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	defer tokens.Close()

	if err := tokens.Clear(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}

	fmt.Println("Signed out. Local library data is preserved.")
	return nil
}
