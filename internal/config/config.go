package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		Server
		Database
		Covers
		Sync
		Network
		Tasks
		Global
	}

	Server struct {
		URL string // Base URL of the sync server
	}
	Database struct {
		Path       string
		TokensPath string // Separate store for the encrypted credential
	}
	Covers struct {
		StagingDir string
	}
	Sync struct {
		MutationDebounce   time.Duration // Wait after a local edit before syncing
		ReconnectDebounce  time.Duration // Wait after connectivity returns
		BackgroundSchedule string        // Cron format: "*/15 * * * *" = every 15 minutes
		BackgroundEnabled  bool
	}
	Network struct {
		ProbeInterval time.Duration
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("server_url", DefaultServerURL)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("tokens_path", DefaultTokensPath)
	v.SetDefault("covers_staging_dir", DefaultCoversStagingDir)
	v.SetDefault("shutdown_timeout_in_seconds", 2)

	// Sync defaults
	v.SetDefault("sync_mutation_debounce", "2s")
	v.SetDefault("sync_reconnect_debounce", "1s")
	v.SetDefault("sync_background_enabled", true)
	v.SetDefault("sync_background_schedule", "*/15 * * * *") // Every 15 minutes
	v.SetDefault("network_probe_interval", "30s")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 1)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	return &Config{
		Server: Server{
			URL: v.GetString("SERVER_URL"),
		},
		Database: Database{
			Path:       v.GetString("DATABASE_PATH"),
			TokensPath: v.GetString("TOKENS_PATH"),
		},
		Covers: Covers{
			StagingDir: v.GetString("COVERS_STAGING_DIR"),
		},
		Sync: Sync{
			MutationDebounce:   v.GetDuration("SYNC_MUTATION_DEBOUNCE"),
			ReconnectDebounce:  v.GetDuration("SYNC_RECONNECT_DEBOUNCE"),
			BackgroundEnabled:  v.GetBool("SYNC_BACKGROUND_ENABLED"),
			BackgroundSchedule: v.GetString("SYNC_BACKGROUND_SCHEDULE"),
		},
		Network: Network{
			ProbeInterval: v.GetDuration("NETWORK_PROBE_INTERVAL"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
	}
}
