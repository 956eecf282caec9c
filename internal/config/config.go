package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Config represents the global ~/.frontdesk/config.toml.
type Config struct {
	DefaultWorkspace string        `toml:"default_workspace"`
	Doctor           DoctorConfig  `toml:"doctor"`
	Backup           BackupConfig  `toml:"backup"`
	Metrics          MetricsConfig `toml:"metrics"`
	Log              LogConfig     `toml:"log"`
}

// DoctorConfig describes the link to the doctor application.
type DoctorConfig struct {
	URL        string `toml:"url"`
	SharedKey  string `toml:"shared_key"`
	ClientID   string `toml:"client_id"`
	ClientType string `toml:"client_type"`
	Version    string `toml:"version"`
}

// BackupConfig controls scheduled patient record backups.
type BackupConfig struct {
	// Schedule is a cron expression or descriptor such as "@daily". Empty disables scheduling.
	Schedule string `toml:"schedule"`
	Keep     int    `toml:"keep"`
}

// MetricsConfig controls the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// LogConfig controls log level and file rotation.
type LogConfig struct {
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

const (
	DefaultDoctorURL  = "ws://127.0.0.1:3001/ws"
	DefaultClientType = "reception"
	DefaultVersion    = "1.0.0"
	DefaultSharedKey  = "clinic-shared-key"
)

// Defaults returns a config with every field populated.
func Defaults() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	if c.Doctor.URL == "" {
		c.Doctor.URL = DefaultDoctorURL
	}
	if c.Doctor.ClientType == "" {
		c.Doctor.ClientType = DefaultClientType
	}
	if c.Doctor.Version == "" {
		c.Doctor.Version = DefaultVersion
	}
	if c.Doctor.SharedKey == "" {
		c.Doctor.SharedKey = DefaultSharedKey
	}
	if c.Backup.Keep <= 0 {
		c.Backup.Keep = 14
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 20
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 30
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads config from path, falling back to defaults when the file is missing.
// Defaults are applied in both cases.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// EnsureClientID assigns a stable client id on first use and persists it.
// The returned bool reports whether a new id was generated.
func EnsureClientID(path string, cfg *Config) (bool, error) {
	if cfg.Doctor.ClientID != "" {
		return false, nil
	}
	cfg.Doctor.ClientID = uuid.NewString()
	if err := Save(path, cfg); err != nil {
		return true, err
	}
	return true, nil
}
