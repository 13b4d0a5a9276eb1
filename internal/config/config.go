package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for ledgerbak.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	WorkDir    string           `toml:"work_dir"` // local snapshot directory
	Backup     BackupConfig     `toml:"backup"`
	Storage    StorageConfig    `toml:"storage"`
	Encryption EncryptionConfig `toml:"encryption"`
	History    HistoryConfig    `toml:"history"`
	Server     ServerConfig     `toml:"server"`
}

// BackupConfig controls which resources are tracked and how the worker runs.
type BackupConfig struct {
	Resources      []string `toml:"resources"`
	SnapshotMethod string   `toml:"snapshot_method"`         // "online" (default) or "vacuum"
	PollInterval   string   `toml:"poll_interval,omitempty"` // Go duration, default 5s
	Watch          bool     `toml:"watch"`
	Debounce       string   `toml:"debounce,omitempty"` // Go duration, default 2s
	Schedule       string   `toml:"schedule,omitempty"` // cron expression; empty disables
}

// StorageConfig represents configuration for the storage target.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type"` // "File", "Sftp", "S3", "Gcs" or "Memory" (case-insensitive)

	// Shared by File (root directory) and Sftp (remote directory).
	RemotePath string `toml:"remote_path,omitempty"`

	// Sftp-specific fields
	Host           string `toml:"host,omitempty"`
	Port           int    `toml:"port,omitempty"`
	Username       string `toml:"username,omitempty"`
	Password       string `toml:"password,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
	KnownHostsPath string `toml:"known_hosts_path,omitempty"`
	Timeout        string `toml:"timeout,omitempty"`

	// S3-specific fields
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
	S3UsePathStyle    bool   `toml:"s3_use_path_style,omitempty"`

	// Gcs-specific fields
	GCSBucket          string `toml:"gcs_bucket,omitempty"`
	GCSPrefix          string `toml:"gcs_prefix,omitempty"`
	GCSCredentialsFile string `toml:"gcs_credentials_file,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "" (disabled), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// HistoryConfig represents configuration for the cycle history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type HistoryConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "" (disabled)
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ServerConfig configures the HTTP notify endpoint.
type ServerConfig struct {
	Listen        string `toml:"listen,omitempty"` // e.g. "127.0.0.1:8411"; empty disables the server
	RestrictPaths bool   `toml:"restrict_paths"`   // only accept paths listed in backup.resources
}

const (
	defaultPollInterval = 5 * time.Second
	defaultDebounce     = 2 * time.Second
)

// NewConfig creates a new Config rooted at baseDir with default paths.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		WorkDir: filepath.Join(baseDir, "work"),
		Backup: BackupConfig{
			SnapshotMethod: "online",
			PollInterval:   defaultPollInterval.String(),
			Debounce:       defaultDebounce.String(),
		},
		Storage: StorageConfig{
			Type:       "File",
			RemotePath: filepath.Join(baseDir, "backups"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "ledgerbak.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "ledgerbak.key"),
		},
		History: HistoryConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
	}
}

// Validate checks values that can be verified without touching the network
// or filesystem. Storage type selection is validated by the storage factory.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("work_dir must be set")
	}
	if c.LogDir == "" {
		return fmt.Errorf("log_dir must be set")
	}
	switch strings.ToLower(c.Backup.SnapshotMethod) {
	case "", "online", "vacuum":
	default:
		return fmt.Errorf("unknown snapshot_method: %s", c.Backup.SnapshotMethod)
	}
	if _, err := c.Backup.PollIntervalDuration(); err != nil {
		return err
	}
	if _, err := c.Backup.DebounceDuration(); err != nil {
		return err
	}
	if _, err := c.Storage.TimeoutDuration(); err != nil {
		return err
	}
	switch c.Encryption.Type {
	case "", "age", "test":
	default:
		return fmt.Errorf("unknown encryption type: %s", c.Encryption.Type)
	}
	switch c.History.Type {
	case "", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown history type: %s", c.History.Type)
	}
	return nil
}

// PollIntervalDuration parses poll_interval, defaulting to 5s.
func (b BackupConfig) PollIntervalDuration() (time.Duration, error) {
	return parseDuration("poll_interval", b.PollInterval, defaultPollInterval)
}

// DebounceDuration parses debounce, defaulting to 2s.
func (b BackupConfig) DebounceDuration() (time.Duration, error) {
	return parseDuration("debounce", b.Debounce, defaultDebounce)
}

// TimeoutDuration parses the SFTP timeout. Zero means the provider default.
func (s StorageConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration("timeout", s.Timeout, 0)
}

func parseDuration(key, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, value)
	}
	return d, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold storage credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. It refuses to overwrite.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
