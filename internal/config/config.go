package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Errors
var (
	ErrInvalidThreads          = errors.New("max_threads must be at least 1")
	ErrInvalidAccountsPerProxy = errors.New("accounts_per_proxy must be at least 1")
	ErrInvalidDelay            = errors.New("delays must satisfy 0 <= delay_min <= delay_max")
	ErrInvalidRetries          = errors.New("retries must be at least 1")
	ErrNoKeysFile              = errors.New("must specify --keys")
	ErrNoProxiesFile           = errors.New("must specify --proxies")
	ErrNoOutput                = errors.New("must specify --output")
	ErrInvalidLogOutput        = errors.New("log output must be stdout, file or both")
	ErrNoLogFile               = errors.New("log output to file requires --log-file")
)

// LogConfig controls where and how logs are written
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, console
	Output     string `yaml:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
}

// Config holds the application configuration. It is read once at start
// and must not be mutated after the run begins.
type Config struct {
	RandomOrder           bool    `yaml:"random_order"`
	DelayMin              float64 `yaml:"delay_min"` // seconds
	DelayMax              float64 `yaml:"delay_max"` // seconds
	AccountsPerProxy      int     `yaml:"accounts_per_proxy"`
	ForceNetworkSelection bool    `yaml:"force_network_selection"`
	MaxThreads            int     `yaml:"max_threads"`

	KeysFile    string `yaml:"keys_file"`
	ProxiesFile string `yaml:"proxies_file"`
	Output      string `yaml:"output"`

	BaseURL        string        `yaml:"base_url"`
	TargetNetwork  string        `yaml:"target_network"`
	Retries        int           `yaml:"retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Treat a failed allocation lookup whose error body still reports
	// amount "0" as a confirmed zero allocation.
	ZeroOnFailedAllocation bool `yaml:"zero_on_failed_allocation"`

	Verbose     bool      `yaml:"verbose"`
	LogInterval int       `yaml:"log_interval"` // Progress logging interval in seconds
	Log         LogConfig `yaml:"log"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		RandomOrder:            true,
		DelayMin:               15,
		DelayMax:               25,
		AccountsPerProxy:       1,
		ForceNetworkSelection:  false,
		MaxThreads:             1,
		KeysFile:               "private_keys.txt",
		ProxiesFile:            "proxies.txt",
		Output:                 "results.xlsx",
		BaseURL:                "https://app.ether.fi",
		TargetNetwork:          "Swell",
		Retries:                3,
		RetryBackoff:           10 * time.Second,
		RequestTimeout:         10 * time.Second,
		ZeroOnFailedAllocation: true,
		LogInterval:            30,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
	}
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxThreads < 1 {
		return ErrInvalidThreads
	}
	if c.AccountsPerProxy < 1 {
		return ErrInvalidAccountsPerProxy
	}
	if c.DelayMin < 0 || c.DelayMax < c.DelayMin {
		return ErrInvalidDelay
	}
	if c.Retries < 1 {
		return ErrInvalidRetries
	}
	if c.KeysFile == "" {
		return ErrNoKeysFile
	}
	if c.ProxiesFile == "" {
		return ErrNoProxiesFile
	}
	if c.Output == "" {
		return ErrNoOutput
	}
	switch c.Log.Output {
	case "", "stdout":
	case "file", "both":
		if c.Log.FilePath == "" {
			return ErrNoLogFile
		}
	default:
		return ErrInvalidLogOutput
	}
	return nil
}

// DelayRange returns the pacing bounds as durations
func (c *Config) DelayRange() (time.Duration, time.Duration) {
	return seconds(c.DelayMin), seconds(c.DelayMax)
}

// GetOrderDescription returns a human-readable description of the dispatch order
func (c *Config) GetOrderDescription() string {
	if c.RandomOrder {
		return "random"
	}
	return "input order"
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
