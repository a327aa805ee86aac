// Package cli implements the agent's subcommands.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sabristratos/athneaeum-sub004/internal/config"
	"github.com/sabristratos/athneaeum-sub004/internal/syncapi"
	"github.com/sabristratos/athneaeum-sub004/internal/tokenstore"
)

// LoginCommand exchanges credentials for a bearer token and stores it.
type LoginCommand struct {
	ServerURL string
	Username  string
	Password  string
}

func NewLoginCommand() *LoginCommand {
	return &LoginCommand{}
}

// ParseFlags parses command line flags
func (cmd *LoginCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)

	cfg := config.NewConfig()
	fs.StringVar(&cmd.ServerURL, "server", cfg.Server.URL, "Sync server base URL")
	fs.StringVar(&cmd.Username, "username", "", "Account username")
	fs.StringVar(&cmd.Password, "password", "", "Account password (or set SYNC_PASSWORD)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s login [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Sign in to the sync server and store the token locally (encrypted).\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Password == "" {
		cmd.Password = os.Getenv("SYNC_PASSWORD")
	}
	if cmd.Username == "" || cmd.Password == "" {
		return fmt.Errorf("username and password are required")
	}
	return nil
}

// Run executes the login command
func (cmd *LoginCommand) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	token, err := syncapi.Login(ctx, cmd.ServerURL, cmd.Username, cmd.Password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	cfg := config.NewConfig()
	tokens, err := tokenstore.New(tokenstore.Config{DatabasePath: cfg.Database.TokensPath})
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	defer tokens.Close()

	err = tokens.Save(tokenstore.Credential{
		ServerURL: cmd.ServerURL,
		Username:  cmd.Username,
		Token:     token,
	})
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	fmt.Printf("Signed in as %s at %s\n", cmd.Username, cmd.ServerURL)
	return nil
}
