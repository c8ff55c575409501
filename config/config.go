// Package config carries runtime configuration for ledgerfs: provider
// endpoints, token storage, cache lifetimes and mount settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultAPIBaseURL   = "https://api.monzo.com"
	DefaultAuthURL      = "https://auth.monzo.com"
	DefaultCallbackAddr = "localhost:1234"

	// DefaultTokenFile is the token file name, relative to the home dir
	DefaultTokenFile = ".ledgerfs"

	// DefaultFirstYear is the earliest year offered under transactions/
	DefaultFirstYear = 2015

	// Cache lifetimes. Account sets change rarely, transaction listings
	// for the current month churn, balances sit in between.
	DefaultAccountsTTL     = 24 * time.Hour
	DefaultTransactionsTTL = time.Minute
	DefaultTransactionTTL  = 5 * time.Minute
	DefaultBalanceTTL      = 30 * time.Second

	// DefaultAttrTimeout is the kernel attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the kernel entry cache timeout in seconds
	DefaultEntryTimeout = 1.0
)

// Config contains runtime configuration values for the filesystem.
type Config struct {
	MountOptions MountOptions

	APIBaseURL   string // Provider REST endpoint (Default https://api.monzo.com)
	AuthURL      string // OAuth authorization page (Default https://auth.monzo.com)
	CallbackAddr string // Local address for the OAuth redirect (Default localhost:1234)
	TokenPath    string // Persisted OAuth token location (Default ~/.ledgerfs)
	FirstYear    int    // Earliest year listed under transactions/ (Default 2015)

	AccountsTTL     time.Duration // Account listing cache lifetime (Default 24h)
	TransactionsTTL time.Duration // Month transaction listing cache lifetime (Default 1m)
	TransactionTTL  time.Duration // Per-transaction detail cache lifetime (Default 5m)
	BalanceTTL      time.Duration // Balance cache lifetime (Default 30s)

	AttrTimeout  float64 // Kernel attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // Kernel entry cache timeout in seconds (Default 1.0)
}

// Duration wraps time.Duration so overrides can be written as "90s" or
// "5m" in YAML and JSON files.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ConfigOverride uses pointer fields to distinguish between unset and zero
// values when loading partial configuration. See [Config] for field
// descriptions.
type ConfigOverride struct {
	FsName *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name   *string `yaml:"name,omitempty" json:"name,omitempty"`
	Debug  *bool   `yaml:"debug,omitempty" json:"debug,omitempty"`

	APIBaseURL   *string `yaml:"api_base_url,omitempty" json:"api_base_url,omitempty"`
	AuthURL      *string `yaml:"auth_url,omitempty" json:"auth_url,omitempty"`
	CallbackAddr *string `yaml:"callback_addr,omitempty" json:"callback_addr,omitempty"`
	TokenPath    *string `yaml:"token_path,omitempty" json:"token_path,omitempty"`
	FirstYear    *int    `yaml:"first_year,omitempty" json:"first_year,omitempty"`

	AccountsTTL     *Duration `yaml:"accounts_ttl,omitempty" json:"accounts_ttl,omitempty"`
	TransactionsTTL *Duration `yaml:"transactions_ttl,omitempty" json:"transactions_ttl,omitempty"`
	TransactionTTL  *Duration `yaml:"transaction_ttl,omitempty" json:"transaction_ttl,omitempty"`
	BalanceTTL      *Duration `yaml:"balance_ttl,omitempty" json:"balance_ttl,omitempty"`

	AttrTimeout  *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
}

// NewConfig creates a Config from defaults with any non-nil override
// fields applied on top.
func NewConfig(override *ConfigOverride) *Config {
	cfg := &Config{
		MountOptions: MountOptions{
			FsName: "ledgerfs",
			Name:   "ledgerfs",
		},
		APIBaseURL:      DefaultAPIBaseURL,
		AuthURL:         DefaultAuthURL,
		CallbackAddr:    DefaultCallbackAddr,
		TokenPath:       defaultTokenPath(),
		FirstYear:       DefaultFirstYear,
		AccountsTTL:     DefaultAccountsTTL,
		TransactionsTTL: DefaultTransactionsTTL,
		TransactionTTL:  DefaultTransactionTTL,
		BalanceTTL:      DefaultBalanceTTL,
		AttrTimeout:     DefaultAttrTimeout,
		EntryTimeout:    DefaultEntryTimeout,
	}
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultTokenFile
	}
	return filepath.Join(home, DefaultTokenFile)
}

// Merge applies non-nil values from override onto this Config.
func (c *Config) Merge(override *ConfigOverride) {
	if override.FsName != nil {
		c.MountOptions.FsName = *override.FsName
	}
	if override.Name != nil {
		c.MountOptions.Name = *override.Name
	}
	if override.Debug != nil {
		c.MountOptions.Debug = *override.Debug
	}
	if override.APIBaseURL != nil {
		c.APIBaseURL = *override.APIBaseURL
	}
	if override.AuthURL != nil {
		c.AuthURL = *override.AuthURL
	}
	if override.CallbackAddr != nil {
		c.CallbackAddr = *override.CallbackAddr
	}
	if override.TokenPath != nil {
		c.TokenPath = *override.TokenPath
	}
	if override.FirstYear != nil {
		c.FirstYear = *override.FirstYear
	}
	if override.AccountsTTL != nil {
		c.AccountsTTL = time.Duration(*override.AccountsTTL)
	}
	if override.TransactionsTTL != nil {
		c.TransactionsTTL = time.Duration(*override.TransactionsTTL)
	}
	if override.TransactionTTL != nil {
		c.TransactionTTL = time.Duration(*override.TransactionTTL)
	}
	if override.BalanceTTL != nil {
		c.BalanceTTL = time.Duration(*override.BalanceTTL)
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without
// merging. Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with
// defaults.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
