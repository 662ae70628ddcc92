package env

const (
	// Prefix is the env var prefix for all service configuration
	Prefix = "RATEFEED"

	// DBURLSuffix completes the postgres DSN env var name
	DBURLSuffix = "_DB_URL"

	// APIKeySuffix completes the rates API key env var name
	APIKeySuffix = "_API_KEY"
)
