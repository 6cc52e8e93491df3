package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvConfigPath is the env var that points to the JSON config file when
	// no --config flag is given.
	EnvConfigPath = "MAILPAGE_CONFIG"
	// EnvPrefix prefixes env overrides of individual keys, e.g.
	// MAILPAGE_MAIL_PAGE_PAGE_SIZE=50.
	EnvPrefix = "MAILPAGE"
)

// Page defaults.
const (
	DefaultPageSize = 20
	DefaultTimeout  = 20 * time.Second
)

// ProtocolSettings holds connection settings common to IMAP and SMTP.
type ProtocolSettings struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password,omitempty" mapstructure:"password"`

	// SSL enables implicit TLS (connect directly over TLS).
	SSL bool `json:"ssl" mapstructure:"ssl"`
	// StartTLS enables opportunistic TLS upgrade after connecting in plaintext.
	StartTLS bool `json:"starttls" mapstructure:"starttls"`
	// Auth selects the IMAP auth mechanism: "login" (default) or "plain".
	Auth string `json:"auth,omitempty" mapstructure:"auth"`

	// ConnectRate caps new IMAP connections per second. Zero means unlimited.
	ConnectRate float64 `json:"connect_rate,omitempty" mapstructure:"connect_rate"`
	// DialTimeout bounds the IMAP TCP dial, e.g. "10s". Zero uses the
	// client default.
	DialTimeout time.Duration `json:"dial_timeout,omitempty" mapstructure:"dial_timeout"`
}

// MarshalJSON writes DialTimeout as a duration string.
func (p ProtocolSettings) MarshalJSON() ([]byte, error) {
	type plain ProtocolSettings
	out := struct {
		plain
		DialTimeout string `json:"dial_timeout,omitempty"`
	}{plain: plain(p)}
	if p.DialTimeout > 0 {
		out.DialTimeout = p.DialTimeout.String()
	}
	return json.Marshal(out)
}

// AccountConfig holds email account configuration
//
// See ExampleRootConfig for the expected JSON shape.
type AccountConfig struct {
	Name     string `json:"name" mapstructure:"name"`
	Email    string `json:"email" mapstructure:"email"`
	FromName string `json:"from_name,omitempty" mapstructure:"from_name"`

	IMAP ProtocolSettings `json:"imap" mapstructure:"imap"`
	SMTP ProtocolSettings `json:"smtp" mapstructure:"smtp"`
}

// Domain returns the domain part of the account email address.
// Returns "localhost" if no domain can be extracted.
func (a *AccountConfig) Domain() string {
	if idx := strings.LastIndex(a.Email, "@"); idx >= 0 {
		return a.Email[idx+1:]
	}
	return "localhost"
}

// PageSettings tunes the page listing.
type PageSettings struct {
	PageSize int           `json:"page_size" mapstructure:"page_size"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
}

// MarshalJSON writes Timeout as a duration string such as "20s".
func (p PageSettings) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PageSize int    `json:"page_size"`
		Timeout  string `json:"timeout"`
	}{p.PageSize, p.Timeout.String()})
}

// Config holds the application configuration
//
// accounts is a map keyed by account name. Keys are case-insensitive.
// default_account selects the account when none is specified.
type Config struct {
	Accounts       map[string]AccountConfig `json:"accounts" mapstructure:"accounts"`
	DefaultAccount string                   `json:"default_account,omitempty" mapstructure:"default_account"`
	Page           PageSettings             `json:"page" mapstructure:"page"`
}

// RootConfig wraps the app config under the "mail" key.
type RootConfig struct {
	Mail Config `json:"mail" mapstructure:"mail"`
}

// ResolvePath returns path, or the value of EnvConfigPath when path is empty.
func ResolvePath(path string) (string, error) {
	if path = strings.TrimSpace(path); path != "" {
		return path, nil
	}
	path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	if path == "" {
		return "", fmt.Errorf("no config file given: use --config or set %s", EnvConfigPath)
	}
	return path, nil
}

// Load reads and validates the JSON config at path (see ResolvePath).
// Environment variables prefixed with EnvPrefix override file values.
func Load(path string) (*Config, error) {
	path, err := ResolvePath(path)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetDefault("mail.page.page_size", DefaultPageSize)
	v.SetDefault("mail.page.timeout", DefaultTimeout.String())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var root RootConfig
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &root.Mail
	if cfg.Accounts == nil {
		return nil, errors.New("missing required key: mail.accounts")
	}
	if cfg.Page.PageSize <= 0 {
		cfg.Page.PageSize = DefaultPageSize
	}
	if cfg.Page.Timeout <= 0 {
		cfg.Page.Timeout = DefaultTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves configuration to a JSON file path.
func SaveConfig(path string, root *RootConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetAccount returns an account by key, name or email. An empty identifier
// selects the default account, or the first key in sorted order.
func (c *Config) GetAccount(identifier string) (*AccountConfig, error) {
	if len(c.Accounts) == 0 {
		return nil, errors.New("no accounts configured")
	}

	if identifier == "" {
		if c.DefaultAccount != "" {
			identifier = c.DefaultAccount
		} else {
			keys := make([]string, 0, len(c.Accounts))
			for k := range c.Accounts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			identifier = keys[0]
		}
	}

	if key, ok := c.accountKey(identifier); ok {
		acc := c.Accounts[key]
		if acc.Name == "" {
			acc.Name = key
		}
		return &acc, nil
	}

	for name, acc := range c.Accounts {
		if acc.Name == identifier || strings.EqualFold(acc.Email, identifier) {
			if acc.Name == "" {
				acc.Name = name
			}
			return &acc, nil
		}
	}

	return nil, fmt.Errorf("account not found: %s", identifier)
}

// accountKey finds the map key matching identifier, ignoring case.
func (c *Config) accountKey(identifier string) (string, bool) {
	if _, ok := c.Accounts[identifier]; ok {
		return identifier, true
	}
	for k := range c.Accounts {
		if strings.EqualFold(k, identifier) {
			return k, true
		}
	}
	return "", false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return errors.New("no accounts configured")
	}

	for name, acc := range c.Accounts {
		if acc.Name == "" {
			acc.Name = name
		}
		if acc.Email == "" {
			return fmt.Errorf("account %s: email is required", acc.Name)
		}
		if acc.IMAP.Host == "" {
			return fmt.Errorf("account %s: imap.host is required", acc.Name)
		}
		if acc.IMAP.ConnectRate < 0 {
			return fmt.Errorf("account %s: imap.connect_rate must not be negative", acc.Name)
		}
		if acc.IMAP.DialTimeout < 0 {
			return fmt.Errorf("account %s: imap.dial_timeout must not be negative", acc.Name)
		}
		switch strings.ToLower(acc.IMAP.Auth) {
		case "", "login", "plain":
		default:
			return fmt.Errorf("account %s: unsupported imap.auth %q", acc.Name, acc.IMAP.Auth)
		}
	}

	if c.DefaultAccount != "" {
		if _, ok := c.accountKey(c.DefaultAccount); !ok {
			return fmt.Errorf("default_account not found: %s", c.DefaultAccount)
		}
	}

	return nil
}

// ExampleRootConfig returns an example configuration for "init".
func ExampleRootConfig() *RootConfig {
	return &RootConfig{
		Mail: Config{
			DefaultAccount: "work",
			Accounts: map[string]AccountConfig{
				"work": {
					Name:     "Work Account",
					Email:    "user@example.com",
					FromName: "Your Name",
					IMAP: ProtocolSettings{
						Host:     "imap.example.com",
						Port:     993,
						Username: "user@example.com",
						SSL:      true,
					},
					SMTP: ProtocolSettings{
						Host:     "smtp.example.com",
						Port:     587,
						Username: "user@example.com",
						StartTLS: true,
					},
				},
			},
			Page: PageSettings{
				PageSize: DefaultPageSize,
				Timeout:  DefaultTimeout,
			},
		},
	}
}
