// Package config loads and writes the wsync configuration file.
//
// The file is TOML. Credential fields accept either a literal string or an
// inline table {cmd = [...]} naming a command whose stdout supplies the
// value, so secrets can live in a password manager instead of on disk.
package config

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Secret is a configuration value that is either a literal string or the
// output of a command.
type Secret struct {
	Literal string
	Cmd     []string
}

// UnmarshalTOML implements toml.Unmarshaler.
func (s *Secret) UnmarshalTOML(v interface{}) error {
	switch val := v.(type) {
	case string:
		s.Literal = val
		return nil
	case map[string]interface{}:
		raw, ok := val["cmd"]
		if !ok {
			return fmt.Errorf("secret table must have a cmd key")
		}
		parts, ok := raw.([]interface{})
		if !ok || len(parts) == 0 {
			return fmt.Errorf("cmd must be a non-empty array of strings")
		}
		s.Cmd = s.Cmd[:0]
		for _, part := range parts {
			str, ok := part.(string)
			if !ok {
				return fmt.Errorf("cmd must be a non-empty array of strings")
			}
			s.Cmd = append(s.Cmd, str)
		}
		return nil
	default:
		return fmt.Errorf("secret must be a string or {cmd = [...]}, got %T", v)
	}
}

// MarshalTOML implements toml.Marshaler.
func (s Secret) MarshalTOML() ([]byte, error) {
	if len(s.Cmd) == 0 {
		return []byte(fmt.Sprintf("%q", s.Literal)), nil
	}
	var buf bytes.Buffer
	buf.WriteString("{cmd = [")
	for i, part := range s.Cmd {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%q", part)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// Resolve returns the secret's value, running the command if one is
// configured. Trailing newlines in command output are stripped.
func (s Secret) Resolve() (string, error) {
	if len(s.Cmd) == 0 {
		return s.Literal, nil
	}
	out, err := exec.Command(s.Cmd[0], s.Cmd[1:]...).Output()
	if err != nil {
		return "", fmt.Errorf("failed to run secret command %s: %w", s.Cmd[0], err)
	}
	return strings.TrimRight(string(out), "\r\n"), nil
}

// IsSet reports whether the secret has either form configured.
func (s Secret) IsSet() bool {
	return s.Literal != "" || len(s.Cmd) > 0
}

// Duration is a time.Duration that decodes from a TOML string like "15m".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Server holds the connection settings for the wallabag server.
type Server struct {
	BaseURL      string `toml:"base_url"`
	ClientID     Secret `toml:"client_id"`
	ClientSecret Secret `toml:"client_secret"`
	Username     Secret `toml:"username"`
	Password     Secret `toml:"password"`
}

// Daemon holds the background-sync settings.
type Daemon struct {
	// Interval between sync passes. Zero disables periodic syncing.
	Interval Duration `toml:"interval,omitempty"`

	// InboxDir, when set, is watched for dropped *.url files whose
	// contents are queued for saving.
	InboxDir string `toml:"inbox_dir,omitempty"`
}

// Dashboard holds the local status dashboard settings.
type Dashboard struct {
	Addr string `toml:"addr,omitempty"`
}

// Config is the full wsync configuration.
type Config struct {
	DBFile    string    `toml:"db_file"`
	Server    Server    `toml:"server"`
	Daemon    Daemon    `toml:"daemon"`
	Dashboard Dashboard `toml:"dashboard"`
}

// DefaultDir returns the directory the config and database live in by
// default.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(base, "wsync"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at path, applying defaults for unset fields.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.DBFile == "" {
		dir, err := DefaultDir()
		if err != nil {
			return err
		}
		c.DBFile = filepath.Join(dir, "cache.db")
	}
	var err error
	if c.DBFile, err = expandHome(c.DBFile); err != nil {
		return err
	}
	if c.Daemon.InboxDir != "" {
		if c.Daemon.InboxDir, err = expandHome(c.Daemon.InboxDir); err != nil {
			return err
		}
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = "127.0.0.1:8846"
	}
	return nil
}

// Validate checks that the fields needed to reach the server are present.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is not set")
	}
	for _, field := range []struct {
		name  string
		value Secret
	}{
		{"server.client_id", c.Server.ClientID},
		{"server.client_secret", c.Server.ClientSecret},
		{"server.username", c.Server.Username},
		{"server.password", c.Server.Password},
	} {
		if !field.value.IsSet() {
			return fmt.Errorf("%s is not set", field.name)
		}
	}
	return nil
}

// Save writes the config to path, creating parent directories as needed.
// The file is written with owner-only permissions since it may hold
// literal credentials.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
