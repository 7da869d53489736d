package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked for in the working directory when no explicit
// path is given.
const DefaultFileName = "herd.yaml"

// Load resolves the full configuration: defaults, then the YAML file, then
// HERD_* environment overrides, then validation. An explicitly given path
// must exist; the default herd.yaml is optional.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	switch {
	case err == nil:
		fileCfg := &Config{}
		if err := yaml.Unmarshal(ExpandEnv(data), fileCfg); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, err)
		}
		slog.Info("configuration file loaded", "path", path)
	case os.IsNotExist(err):
		if explicit {
			return nil, NewLoadError(path, fmt.Errorf("%w: %s", ErrConfigNotFound, path))
		}
		slog.Debug("no configuration file, using defaults", "path", path)
	default:
		return nil, NewLoadError(path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps HERD_* variables onto their config fields. Env
// always wins over file values.
func applyEnvOverrides(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	set(&cfg.ProjectPath, "HERD_PROJECT_PATH")
	set(&cfg.API.Host, "HERD_API_HOST")
	set(&cfg.API.Token, "HERD_API_TOKEN")
	set(&cfg.Identity.AgentName, "HERD_AGENT_NAME")
	set(&cfg.Identity.InstanceID, "HERD_INSTANCE_ID")
	set(&cfg.Identity.Team, "HERD_TEAM")
	set(&cfg.Identity.Org, "HERD_ORG")
	set(&cfg.Identity.Host, "HERD_HOST")
	set(&cfg.Slack.Token, "HERD_SLACK_TOKEN")
	set(&cfg.Slack.Channel, "HERD_SLACK_CHANNEL")
	set(&cfg.Linear.APIKey, "HERD_LINEAR_API_KEY")
	set(&cfg.GitHub.Token, "HERD_GITHUB_TOKEN")
	set(&cfg.GitHub.Repo, "HERD_GITHUB_REPO")

	if v := os.Getenv("HERD_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		} else {
			slog.Warn("ignoring invalid HERD_API_PORT", "value", v)
		}
	}
	if v := os.Getenv("HERD_IDLE_TIMEOUT"); v != "" {
		if d, err := parseTimeout(v); err == nil {
			cfg.Session.IdleTimeout = Duration(d)
		} else {
			slog.Warn("ignoring invalid HERD_IDLE_TIMEOUT", "value", v)
		}
	}
}

// parseTimeout accepts duration strings ("240s") or bare seconds ("240").
func parseTimeout(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, v)
	}
	return time.Duration(secs) * time.Second, nil
}
