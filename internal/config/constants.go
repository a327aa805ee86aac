package config

// Default paths and endpoints
const (
	// DefaultDatabasePath is the default path for the main record store
	DefaultDatabasePath = "./athenaeum.db"

	// DefaultTokensPath is the default path for the credential store
	DefaultTokensPath = "./athenaeum-tokens.db"

	// DefaultCoversStagingDir is where cover images wait for upload
	DefaultCoversStagingDir = "./covers-staging"

	// DefaultServerURL is the default sync server endpoint
	DefaultServerURL = "http://localhost:8188"
)
