// Package config loads the subsystem configuration and assembly plan
// files. Both are YAML, decoded strictly: unknown fields are rejected so
// a typo in a field name fails loudly instead of silently applying a
// default.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/avenalabs/regsub/internal/qc"
)

// GatewayConfig holds transport credentials and endpoint settings.
type GatewayConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
	User string `yaml:"user,omitempty"`

	// Password and PrivateKeyPath are alternative credentials.
	Password       string `yaml:"password,omitempty"`
	PrivateKeyPath string `yaml:"private_key_path,omitempty"`

	// HostKey is the gateway's expected public host key in authorized_keys
	// format. Empty skips verification (local development only).
	HostKey string `yaml:"host_key,omitempty"`

	// LocalDir switches transport to a directory-backed gateway rooted
	// there. Intended for tests and local development; mutually exclusive
	// with Host.
	LocalDir string `yaml:"local_dir,omitempty"`
}

// ValidatorConfig points at the external authority validator binary.
type ValidatorConfig struct {
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
}

// QCConfig caps the document quality gate.
type QCConfig struct {
	MaxSizeBytes int64 `yaml:"max_size_bytes,omitempty"`
	Workers      int   `yaml:"workers,omitempty"`
}

// PollConfig tunes the acknowledgment poller.
type PollConfig struct {
	// Interval is a Go duration string ("30m", "1h").
	Interval string `yaml:"interval,omitempty"`
}

// Config is the full subsystem configuration.
type Config struct {
	// BaseRoot is the storage root for sequence directories.
	BaseRoot string `yaml:"base_root"`

	// DBPath is the sqlite database location. Defaults to
	// <base_root>/regsub.db.
	DBPath string `yaml:"db_path,omitempty"`

	// Applicant and SubmissionID are stamped into generated region annexes.
	Applicant    string `yaml:"applicant"`
	SubmissionID string `yaml:"submission_id,omitempty"`

	// ProfileDir overrides the embedded region profiles with CUE files
	// from a directory.
	ProfileDir string `yaml:"profile_dir,omitempty"`

	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Validator ValidatorConfig `yaml:"validator,omitempty"`
	QC        QCConfig        `yaml:"qc,omitempty"`
	Poll      PollConfig      `yaml:"poll,omitempty"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes configuration bytes, applies defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" && c.BaseRoot != "" {
		c.DBPath = filepath.Join(c.BaseRoot, "regsub.db")
	}
	if c.QC.MaxSizeBytes == 0 {
		c.QC.MaxSizeBytes = qc.DefaultMaxSize
	}
	if c.QC.Workers == 0 {
		c.QC.Workers = qc.DefaultWorkers
	}
	if c.Poll.Interval == "" {
		c.Poll.Interval = "30m"
	}
}

func (c *Config) validate() error {
	if c.BaseRoot == "" {
		return fmt.Errorf("base_root is required")
	}
	if c.Applicant == "" {
		return fmt.Errorf("applicant is required")
	}
	if c.Gateway.Host != "" && c.Gateway.LocalDir != "" {
		return fmt.Errorf("gateway.host and gateway.local_dir are mutually exclusive")
	}
	if c.Gateway.Host != "" && c.Gateway.Password == "" && c.Gateway.PrivateKeyPath == "" {
		return fmt.Errorf("gateway.host set without credentials")
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	if c.QC.MaxSizeBytes < 0 {
		return fmt.Errorf("qc.max_size_bytes must be positive")
	}
	if c.QC.Workers < 0 {
		return fmt.Errorf("qc.workers must be positive")
	}
	return nil
}

// PollInterval parses the configured poll cadence.
func (c *Config) PollInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Poll.Interval)
	if err != nil {
		return 0, fmt.Errorf("poll.interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("poll.interval must be positive")
	}
	return d, nil
}
