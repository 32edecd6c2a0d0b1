// Package config loads the gateway's YAML configuration file, grounded on
// the teacher's config.Load pattern but collapsed to a single file since this
// gateway has one concern (not the teacher's tiers/tasks/route_classes
// split).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the gateway's runtime configuration (§6.4 of the spec).
type Config struct {
	ListenPort string `yaml:"listen_port"`

	// TokenPath is where the external auth provider's token cache lives.
	TokenPath string `yaml:"token_path"`

	// Editor identification triple, injected into every upstream request
	// (§6.2) as opaque strings owned by configuration.
	EditorVersion        string `yaml:"editor_version"`
	EditorPluginVersion  string `yaml:"editor_plugin_version"`
	CopilotIntegrationID string `yaml:"copilot_integration_id"`

	// DefaultModelID is used when an inbound request omits `model` and the
	// ModelProvider has no active selection.
	DefaultModelID string `yaml:"default_model_id"`

	// CopilotBaseURL is the upstream endpoint's base, e.g.
	// "https://api.githubcopilot.com".
	CopilotBaseURL string `yaml:"copilot_base_url"`

	// TelemetryDBPath is where the SQLite telemetry database lives. Empty
	// means telemetry is disabled.
	TelemetryDBPath string `yaml:"telemetry_db_path"`
}

const (
	defaultListenPort           = "11434"
	defaultEditorVersion        = "vscode/1.95.0"
	defaultEditorPluginVersion  = "copilot-chat/0.23.0"
	defaultCopilotIntegrationID = "vscode-chat"
	defaultModelID               = "gpt-4o-2024-11-20"
	defaultCopilotBaseURL       = "https://api.githubcopilot.com"
)

// Load reads the YAML configuration at path and fills in defaults for any
// blank field. A missing file is not an error — Load returns the all-default
// Config — but a malformed file is.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenPort == "" {
		cfg.ListenPort = defaultListenPort
	}
	if cfg.EditorVersion == "" {
		cfg.EditorVersion = defaultEditorVersion
	}
	if cfg.EditorPluginVersion == "" {
		cfg.EditorPluginVersion = defaultEditorPluginVersion
	}
	if cfg.CopilotIntegrationID == "" {
		cfg.CopilotIntegrationID = defaultCopilotIntegrationID
	}
	if cfg.DefaultModelID == "" {
		cfg.DefaultModelID = defaultModelID
	}
	if cfg.CopilotBaseURL == "" {
		cfg.CopilotBaseURL = defaultCopilotBaseURL
	}
}
