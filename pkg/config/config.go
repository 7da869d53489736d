// Package config holds the runtime configuration model and its loader.
// Resolution order: built-in defaults, then herd.yaml (with {{.ENV_VAR}}
// expansion), then HERD_* environment overrides, then validation.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "90s" or "3m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("%w: %q is not a duration", ErrInvalidValue, value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the resolved runtime configuration.
type Config struct {
	// ProjectPath anchors the data directory and the repository the Repo
	// adapter operates on.
	ProjectPath string `yaml:"project_path"`

	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	Identity IdentityConfig `yaml:"identity"`
	Spawn    SpawnConfig    `yaml:"spawn"`
	Session  SessionConfig  `yaml:"session"`
	Slack    SlackConfig    `yaml:"slack"`
	Linear   LinearConfig   `yaml:"linear"`
	GitHub   GitHubConfig   `yaml:"github"`
	Memory   MemoryConfig   `yaml:"memory"`
	Harvest  HarvestConfig  `yaml:"harvest"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`

	// Roster extends the built-in agent roster.
	Roster []RoleConfig `yaml:"roster"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	Token            string   `yaml:"token"` // empty disables bearer auth
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// IdentityConfig seeds the process identity. Values set here are exported
// into the environment at startup so spawned instances inherit them;
// per-call identity still resolves param → env.
type IdentityConfig struct {
	AgentName  string `yaml:"agent_name"`
	InstanceID string `yaml:"instance_id"`
	Team       string `yaml:"team"`
	Org        string `yaml:"org"`
	Host       string `yaml:"host"`
}

// SpawnConfig controls worktree placement and context payload assembly.
type SpawnConfig struct {
	WorktreeRoot       string `yaml:"worktree_root"`
	RolesDir           string `yaml:"roles_dir"`
	CraftStandardsPath string `yaml:"craft_standards_path"`
	GuidelinesPath     string `yaml:"guidelines_path"`
	StatusDocPath      string `yaml:"status_doc_path"`
	DefaultModel       string `yaml:"default_model"`
	ClaudePath         string `yaml:"claude_path"`
}

// SessionConfig controls the chat session manager.
type SessionConfig struct {
	IdleTimeout  Duration `yaml:"idle_timeout"`
	SystemPrompt string   `yaml:"system_prompt"`
}

// SlackConfig configures the Notify adapter. An empty token leaves the
// adapter unconfigured.
type SlackConfig struct {
	Token            string `yaml:"token"`
	Channel          string `yaml:"channel"`
	DecisionsChannel string `yaml:"decisions_channel"`
}

// LinearConfig configures the Tickets adapter.
type LinearConfig struct {
	APIKey  string `yaml:"api_key"`
	TeamKey string `yaml:"team_key"`
}

// GitHubConfig configures the PR half of the Repo adapter.
type GitHubConfig struct {
	Token      string `yaml:"token"`
	Repo       string `yaml:"repo"` // owner/name
	BaseBranch string `yaml:"base_branch"`
}

// MemoryConfig selects the embedder. Empty endpoint falls back to the
// local hash embedder.
type MemoryConfig struct {
	EmbedEndpoint string `yaml:"embed_endpoint"`
	EmbedAPIKey   string `yaml:"embed_api_key"`
	EmbedModel    string `yaml:"embed_model"`
}

// HarvestConfig locates claude transcript directories for token harvesting.
type HarvestConfig struct {
	ClaudeProjectsDir string `yaml:"claude_projects_dir"`
}

// CleanupConfig controls the background janitor.
type CleanupConfig struct {
	Interval         Duration `yaml:"interval"`
	CheckinRetention Duration `yaml:"checkin_retention"`
}

// RoleConfig is one roster extension entry.
type RoleConfig struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Tier        string `yaml:"tier"`
	Description string `yaml:"description"`
}

// DataDir returns the directory holding every embedded store.
func (c *Config) DataDir() string { return filepath.Join(c.ProjectPath, "data") }

// BusPath is the bbolt mirror behind the message bus.
func (c *Config) BusPath() string { return filepath.Join(c.DataDir(), "messages", "messages.db") }

// StorePath is the operational store's sqlite file.
func (c *Config) StorePath() string { return filepath.Join(c.DataDir(), "herd.db") }

// MemoryPath is the vector memory's sqlite file.
func (c *Config) MemoryPath() string { return filepath.Join(c.DataDir(), "memory.db") }

// GraphPath is the structural graph's sqlite file.
func (c *Config) GraphPath() string { return filepath.Join(c.DataDir(), "graph.db") }

// RolePath is the role-definition file for an agent code.
func (c *Config) RolePath(code string) string { return filepath.Join(c.Spawn.RolesDir, code+".md") }

// Addr renders the API listen address.
func (c *Config) Addr() string { return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port) }

var (
	logLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	logFormats = map[string]bool{"text": true, "json": true}
	tierNames  = map[string]bool{"leader": true, "senior": true, "mechanical": true, "execution": true}
)

// Validate fails fast on values the runtime cannot start with.
func (c *Config) Validate() error {
	if c.ProjectPath == "" {
		return NewValidationError("core", "project_path", ErrMissingRequiredField)
	}
	if !logLevels[c.Log.Level] {
		return NewValidationError("log", "level", fmt.Errorf("%w: %q", ErrInvalidValue, c.Log.Level))
	}
	if !logFormats[c.Log.Format] {
		return NewValidationError("log", "format", fmt.Errorf("%w: %q", ErrInvalidValue, c.Log.Format))
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		return NewValidationError("api", "port", fmt.Errorf("%w: %d", ErrInvalidValue, c.API.Port))
	}
	if c.Session.IdleTimeout.Std() <= 0 {
		return NewValidationError("session", "idle_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.Cleanup.Interval.Std() <= 0 {
		return NewValidationError("cleanup", "interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.GitHub.Repo != "" && !strings.Contains(c.GitHub.Repo, "/") {
		return NewValidationError("github", "repo", fmt.Errorf("%w: %q must be owner/name", ErrInvalidValue, c.GitHub.Repo))
	}
	for _, role := range c.Roster {
		if role.Code == "" {
			return NewValidationError("roster", "code", ErrMissingRequiredField)
		}
		if !tierNames[role.Tier] {
			return NewValidationError("roster", role.Code, fmt.Errorf("%w: tier %q", ErrInvalidValue, role.Tier))
		}
	}
	return nil
}
