// Package cmd implements the cfbotcore CLI: a cobra root command plus
// subcommands for running the daemon, enqueueing a patch set, and
// inspecting the ring queue.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	viperlib "github.com/spf13/viper"

	"github.com/cfbotcore/pipeline/internal/config"
	"github.com/cfbotcore/pipeline/internal/log"
)

var (
	version   = "dev"
	cfgFile   string
	cfg       config.Config
	debugFlag bool

	// viper uses "::" as its key delimiter instead of "." so nested
	// config sections (notify::slack_token) never collide with a flat
	// key that happens to contain a dot.
	viper = viperlib.NewWithOptions(viperlib.KeyDelimiter("::"))
)

var rootCmd = &cobra.Command{
	Use:     "cfbotcore",
	Short:   "Patch-review pipeline core: ring queue, branch engine, and notifier",
	Long:    `cfbotcore drives patch sets through apply/compile/test and reports the result, grounded on the commitfest buildfarm's branch manager.`,
	Version: version,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.cfbotcore/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"enable debug logging (also: CFBOTCORE_DEBUG=1)")
	rootCmd.PersistentFlags().String("database-path", "", "path to the sqlite database file")
	rootCmd.PersistentFlags().String("http-addr", "", "listen address stored in the config (no command serves HTTP on it)")

	_ = viper.BindPFlag("database_path", rootCmd.PersistentFlags().Lookup("database-path"))
	_ = viper.BindPFlag("http_addr", rootCmd.PersistentFlags().Lookup("http-addr"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("database_path", defaults.DatabasePath)
	viper.SetDefault("file_fetch_url_base", defaults.FileFetchURLBase)
	viper.SetDefault("local_patch_burner_dir", defaults.LocalPatchBurnerDir)
	viper.SetDefault("template_repo_dir", defaults.TemplateRepoDir)
	viper.SetDefault("apply_script_path", defaults.ApplyScriptPath)
	viper.SetDefault("tick_interval", defaults.TickInterval)
	viper.SetDefault("http_addr", defaults.HTTPAddr)
	viper.SetDefault("notify::webhook_url", defaults.Notify.WebhookURL)
	viper.SetDefault("notify::slack_token", defaults.Notify.SlackToken)
	viper.SetDefault("notify::slack_channel", defaults.Notify.SlackChannel)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .cfbotcore/config.yaml (current directory)
		// 2. ~/.cfbotcore/config.yaml (user config)
		if _, err := os.Stat(".cfbotcore/config.yaml"); err == nil {
			viper.SetConfigFile(".cfbotcore/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".cfbotcore"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viperlib.ConfigFileNotFoundError
		if errors.As(err, &configNotFound) {
			defaultPath := ".cfbotcore/config.yaml"
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
				log.Info(log.CatConfig, "config loaded", "path", defaultPath)
			}
		}
	} else {
		log.Info(log.CatConfig, "config loaded", "path", viper.ConfigFileUsed())
	}

	_ = viper.Unmarshal(&cfg)
}

func initLogging(component string) (func(), error) {
	debug := os.Getenv("CFBOTCORE_DEBUG") != "" || debugFlag
	if !debug {
		return func() {}, nil
	}

	logPath := os.Getenv("CFBOTCORE_LOG")
	if logPath == "" {
		logPath = "debug.log"
	}

	cleanup, err := log.Init(logPath)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	log.Info(log.CatConfig, component+" starting", "version", version, "debug", true, "logPath", logPath)
	return cleanup, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
