// Package config provides configuration types and defaults for the
// pipeline daemon: storage locations, queue/engine tick pacing, and
// outbound notification targets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// NotifyConfig configures the Notifier's outbound sinks.
type NotifyConfig struct {
	WebhookURL   string `mapstructure:"webhook_url"`
	SlackToken   string `mapstructure:"slack_token"`
	SlackChannel string `mapstructure:"slack_channel"`
}

// Config holds all configuration options for the pipeline daemon.
type Config struct {
	// DatabasePath is the sqlite file backing the queue, ledger and
	// branch stores.
	DatabasePath string `mapstructure:"database_path"`

	// FileFetchURLBase is prefixed to relative attachment URLs when the
	// Applier downloads patch files.
	FileFetchURLBase string `mapstructure:"file_fetch_url_base"`

	// LocalPatchBurnerDir is the scratch root under which each branch
	// gets its own apply/build/test working directory.
	LocalPatchBurnerDir string `mapstructure:"local_patch_burner_dir"`

	// TemplateRepoDir is the pristine git checkout the Applier clones
	// from for every new attempt.
	TemplateRepoDir string `mapstructure:"template_repo_dir"`

	// ApplyScriptPath is the external apply-one-patch.sh the Applier
	// invokes per patch file.
	ApplyScriptPath string `mapstructure:"apply_script_path"`

	// TickInterval is how often the ticker drains the queue and steps
	// the Engine for in-flight branches.
	TickInterval time.Duration `mapstructure:"tick_interval"`

	// HTTPAddr is a listen address carried in the config file and the
	// --http-addr flag; no component of this repository listens on it.
	HTTPAddr string `mapstructure:"http_addr"`

	Notify NotifyConfig `mapstructure:"notify"`
}

// Defaults returns the baseline configuration used when no config file
// overrides a value.
func Defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DatabasePath:        filepath.Join(home, ".cfbotcore", "cfbotcore.db"),
		FileFetchURLBase:    "https://commitfest.postgresql.org",
		LocalPatchBurnerDir: filepath.Join(home, ".cfbotcore", "work"),
		TemplateRepoDir:     filepath.Join(home, ".cfbotcore", "template-repo"),
		ApplyScriptPath:     filepath.Join(home, ".cfbotcore", "apply-one-patch.sh"),
		TickInterval:        30 * time.Second,
		HTTPAddr:            "127.0.0.1:8734",
	}
}

// Validate rejects a configuration that cannot be used to run the
// daemon: the fields below are load-bearing paths/intervals the Engine
// and stage drivers assume are set.
func Validate(cfg Config) error {
	if cfg.DatabasePath == "" {
		return fmt.Errorf("config: database_path is required")
	}
	if cfg.LocalPatchBurnerDir == "" {
		return fmt.Errorf("config: local_patch_burner_dir is required")
	}
	if cfg.TemplateRepoDir == "" {
		return fmt.Errorf("config: template_repo_dir is required")
	}
	if cfg.TickInterval <= 0 {
		return fmt.Errorf("config: tick_interval must be positive")
	}
	return nil
}

// DefaultConfigTemplate renders the YAML written by WriteDefaultConfig.
func DefaultConfigTemplate() string {
	d := Defaults()
	return fmt.Sprintf(`# cfbotcore configuration
database_path: %q
file_fetch_url_base: %q
local_patch_burner_dir: %q
template_repo_dir: %q
apply_script_path: %q
tick_interval: %s
http_addr: %q

notify:
  webhook_url: ""
  slack_token: ""
  slack_channel: ""
`, d.DatabasePath, d.FileFetchURLBase, d.LocalPatchBurnerDir, d.TemplateRepoDir, d.ApplyScriptPath, d.TickInterval, d.HTTPAddr)
}

// WriteDefaultConfig writes the default config template to path,
// creating parent directories as needed.
func WriteDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		return fmt.Errorf("config: write default config: %w", err)
	}
	return nil
}
