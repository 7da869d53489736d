package config

import "time"

// Default returns the built-in configuration every load starts from.
func Default() *Config {
	return &Config{
		ProjectPath: ".",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Spawn: SpawnConfig{
			WorktreeRoot: "/private/tmp",
			DefaultModel: "sonnet",
			ClaudePath:   "claude",
		},
		Session: SessionConfig{
			IdleTimeout: Duration(180 * time.Second),
		},
		GitHub: GitHubConfig{
			BaseBranch: "main",
		},
		Cleanup: CleanupConfig{
			Interval:         Duration(time.Minute),
			CheckinRetention: Duration(time.Hour),
		},
	}
}
