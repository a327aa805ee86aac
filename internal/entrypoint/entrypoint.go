// Package entrypoint wires the record store, sync engine, triggers and
// background workers together and runs them until the process is signalled.
package entrypoint

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sabristratos/athneaeum-sub004/internal/config"
	"github.com/sabristratos/athneaeum-sub004/internal/covers"
	"github.com/sabristratos/athneaeum-sub004/internal/database"
	"github.com/sabristratos/athneaeum-sub004/internal/database/books"
	"github.com/sabristratos/athneaeum-sub004/internal/database/goals"
	"github.com/sabristratos/athneaeum-sub004/internal/database/preferences"
	"github.com/sabristratos/athneaeum-sub004/internal/database/sessions"
	"github.com/sabristratos/athneaeum-sub004/internal/database/syncstate"
	"github.com/sabristratos/athneaeum-sub004/internal/database/tags"
	"github.com/sabristratos/athneaeum-sub004/internal/database/userbooks"
	"github.com/sabristratos/athneaeum-sub004/internal/network"
	"github.com/sabristratos/athneaeum-sub004/internal/scheduler"
	"github.com/sabristratos/athneaeum-sub004/internal/syncapi"
	"github.com/sabristratos/athneaeum-sub004/internal/syncengine"
	"github.com/sabristratos/athneaeum-sub004/internal/tasks"
	"github.com/sabristratos/athneaeum-sub004/internal/tokenstore"
)

// App holds the wired agent for embedders (tests, the seed command) that want
// to drive sync directly rather than run the process loop.
type App struct {
	DB       *database.Database
	Tokens   *tokenstore.TokenStore
	Engine   *syncengine.Engine
	Triggers *syncengine.Triggers
	Monitor  *network.Monitor

	Books       *books.Repository
	UserBooks   *userbooks.Repository
	Throughs    *sessions.ThroughRepository
	Sessions    *sessions.Repository
	Tags        *tags.Repository
	Goals       *goals.Repository
	Preferences *preferences.Repository

	background *scheduler.BackgroundSync
	taskClient *tasks.Client
	taskCancel context.CancelFunc
	observeOff func()
	networkOff func()
}

// Build constructs the full agent from configuration without starting any
// background loops.
func Build(cfg *config.Config) (*App, error) {
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	tokens, err := tokenstore.New(tokenstore.Config{DatabasePath: cfg.Database.TokensPath})
	if err != nil {
		db.Close()
		return nil, err
	}

	staging, err := covers.NewStaging(cfg.Covers.StagingDir)
	if err != nil {
		db.Close()
		tokens.Close()
		return nil, err
	}

	client := syncapi.NewClient(cfg.Server.URL, tokens.Token)

	app := &App{
		DB:          db,
		Tokens:      tokens,
		Books:       books.NewRepository(db),
		UserBooks:   userbooks.NewRepository(db),
		Throughs:    sessions.NewThroughRepository(db),
		Sessions:    sessions.NewRepository(db),
		Tags:        tags.NewRepository(db),
		Goals:       goals.NewRepository(db),
		Preferences: preferences.NewRepository(db),
	}

	// Parent tables before children, so pushed children can reference their
	// parents' freshly assigned remote ids.
	syncers := []syncengine.TableSyncer{
		app.Tags,
		app.Books,
		app.UserBooks,
		app.Throughs,
		app.Sessions,
		app.Goals,
		app.Preferences,
	}

	var purgeQueue syncengine.PurgeQueue
	if cfg.Tasks.Enabled {
		taskClient, err := tasks.NewClient(cfg.Database.Path, tasks.Config{
			Workers:         cfg.Tasks.Workers,
			ReleaseAfter:    cfg.Tasks.ReleaseAfter,
			CleanupInterval: cfg.Tasks.CleanupInterval,
		})
		if err != nil {
			app.Close()
			return nil, err
		}

		purgers := make([]tasks.TombstonePurger, len(syncers))
		for i, s := range syncers {
			purgers[i] = s
		}
		taskClient.Register(tasks.NewPurgeTombstonesQueue(purgers))

		app.taskClient = taskClient
		purgeQueue = &tasks.PurgeEnqueuer{Client: taskClient}
	}

	monitor := network.NewMonitor(client.Ping, cfg.Network.ProbeInterval)

	engine := syncengine.New(syncengine.Config{
		API:         client,
		Syncers:     syncers,
		State:       syncstate.NewRepository(db),
		Creds:       tokens,
		Network:     monitor,
		CoverSource: app.Books,
		CoverFiles:  staging,
		PurgeQueue:  purgeQueue,
	})

	app.Engine = engine
	app.Monitor = monitor
	app.Triggers = syncengine.NewTriggers(engine, cfg.Sync.MutationDebounce, cfg.Sync.ReconnectDebounce)

	if cfg.Sync.BackgroundEnabled {
		app.background = scheduler.NewBackgroundSync(engine, cfg.Sync.BackgroundSchedule)
	}

	return app, nil
}

// Start launches the background loops: task workers, the reachability probe,
// mutation-triggered sync and the periodic safety-net sync.
func (a *App) Start(ctx context.Context) error {
	if a.taskClient != nil {
		var taskCtx context.Context
		taskCtx, a.taskCancel = context.WithCancel(context.Background())
		go a.taskClient.Start(taskCtx)
	}

	// Local writes schedule a debounced sync; writes applied by the sync
	// engine itself do not.
	a.observeOff = a.DB.ObserveAll(func(e database.Event) {
		if e.Origin == database.OriginLocal {
			a.Triggers.OnMutation()
		}
	})

	a.networkOff = a.Monitor.Subscribe(func(online bool) {
		if online {
			a.Triggers.OnReconnect()
		}
	})
	a.Monitor.Start(ctx)

	if a.background != nil {
		if err := a.background.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop shuts the background loops down in reverse dependency order.
func (a *App) Stop(ctx context.Context) {
	if a.background != nil {
		a.background.Stop()
	}
	a.Triggers.Stop()
	if a.networkOff != nil {
		a.networkOff()
	}
	if a.observeOff != nil {
		a.observeOff()
	}
	a.Monitor.Stop()

	if a.taskClient != nil {
		a.taskClient.Stop(ctx)
		if a.taskCancel != nil {
			a.taskCancel()
		}
	}
}

// Close releases storage resources. Call after Stop.
func (a *App) Close() {
	if a.taskClient != nil {
		if err := a.taskClient.Close(); err != nil {
			log.Printf("Error closing task client: %v", err)
		}
	}
	if err := a.Tokens.Close(); err != nil {
		log.Printf("Error closing token store: %v", err)
	}
	if err := a.DB.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// Run builds the agent and blocks until SIGINT or SIGTERM.
func Run(cfg *config.Config, version string) {
	log.Printf("Starting Athenaeum sync agent v%s", version)

	app, err := Build(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	off := app.Engine.Broadcaster().Subscribe(func(r syncengine.Result) {
		if r.AuthExpired {
			log.Printf("Sync credential expired; sign in again to resume syncing")
		}
	})
	defer off()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second
	log.Printf("Shutting down, waiting up to %v for background work", timeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	app.Stop(shutdownCtx)
	log.Println("Agent exiting")
}
