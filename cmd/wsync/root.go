package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mschirtzinger/wallasync/internal/config"
	"github.com/mschirtzinger/wallasync/internal/store"
	"github.com/mschirtzinger/wallasync/internal/sync"
	"github.com/mschirtzinger/wallasync/internal/wallabag"
)

var (
	cfgFile string
	logFile string
)

var rootCmd = &cobra.Command{
	Use:   "wsync",
	Short: "Local sync client for wallabag",
	Long: `wsync keeps a local SQLite copy of your wallabag articles, tags, and
annotations, and reconciles it with the server in both directions.

Reads work offline against the local cache. Writes made while offline are
queued and pushed on the next sync. Conflicting edits are resolved by
last-writer-wins on the entity's update timestamp.

Configuration lives in a TOML file (see 'wsync configure'); the most
common settings can also be supplied via WSYNC_* environment variables.`,
	SilenceUsage: true,
}

// Execute runs the root command. Exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/wsync/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "append logs to this file instead of stderr (rotated at 10MB)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "browse", Title: "Browse Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)
}

// initEnv wires WSYNC_* environment overrides for the config file values.
func initEnv() {
	viper.SetEnvPrefix("wsync")
	viper.AutomaticEnv()
}

// loadConfig reads the config file and applies environment overrides.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = viper.GetString("config")
	}
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no config at %s, run 'wsync configure' first", path)
		}
		return nil, err
	}

	if v := viper.GetString("db_file"); v != "" {
		cfg.DBFile = v
	}
	if v := viper.GetString("base_url"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := viper.GetString("client_id"); v != "" {
		cfg.Server.ClientID = config.Secret{Literal: v}
	}
	if v := viper.GetString("client_secret"); v != "" {
		cfg.Server.ClientSecret = config.Secret{Literal: v}
	}
	if v := viper.GetString("username"); v != "" {
		cfg.Server.Username = config.Secret{Literal: v}
	}
	if v := viper.GetString("password"); v != "" {
		cfg.Server.Password = config.Secret{Literal: v}
	}
	return cfg, nil
}

// openStore opens the cache named by the config. The store must have been
// created with 'wsync init'.
func openStore(cfg *config.Config) (*store.Store, error) {
	if _, err := os.Stat(cfg.DBFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("no cache at %s, run 'wsync init' first", cfg.DBFile)
	}
	return store.Open(cfg.DBFile)
}

// newClient builds an API client from the config, resolving any
// command-backed secrets.
func newClient(cfg *config.Config) (*wallabag.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientID, err := cfg.Server.ClientID.Resolve()
	if err != nil {
		return nil, err
	}
	clientSecret, err := cfg.Server.ClientSecret.Resolve()
	if err != nil {
		return nil, err
	}
	username, err := cfg.Server.Username.Resolve()
	if err != nil {
		return nil, err
	}
	password, err := cfg.Server.Password.Resolve()
	if err != nil {
		return nil, err
	}

	return wallabag.NewClient(wallabag.Config{
		BaseURL:      cfg.Server.BaseURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Username:     username,
		Password:     password,
	}), nil
}

// newSyncer wires a sync engine for the given store and config.
func newSyncer(cfg *config.Config, st *store.Store, prefix string) (*sync.Syncer, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return sync.New(st, client, newLogger(prefix)), nil
}

// newLogger builds a logger honoring --log-file.
func newLogger(prefix string) *log.Logger {
	var out io.Writer = os.Stderr
	if logFile != "" {
		out = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	return log.New(out, prefix, log.LstdFlags)
}

// fatal prints an error and exits, matching the command output style.
func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
