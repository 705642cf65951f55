package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"treebak/internal/treebak"
)

// Config represents the main configuration for treebak.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Backup     BackupConfig     `toml:"backup"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
}

// BackupConfig describes which tree is backed up and how backups are named.
// Empty fields fall back to the built-in layout.
type BackupConfig struct {
	Marker          string   `toml:"marker,omitempty"`
	Source          string   `toml:"source,omitempty"`
	Prefix          string   `toml:"prefix,omitempty"`
	TimestampLayout string   `toml:"timestamp_layout,omitempty"`
	Label           string   `toml:"label,omitempty"`
	Exclude         []string `toml:"exclude,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for pushes.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for a vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(hostID, baseDir string) *Config {
	cfg := &Config{
		HostID:  hostID,
		BaseDir: baseDir,
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with its default. Paths are derived
// from BaseDir, so BaseDir should be set first.
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" && c.BaseDir != "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}

	b := &c.Backup
	if b.Marker == "" {
		b.Marker = treebak.DefaultMarker
	}
	if b.Source == "" {
		b.Source = treebak.DefaultSource
	}
	if b.Prefix == "" {
		b.Prefix = treebak.DefaultPrefix
	}
	if b.TimestampLayout == "" {
		b.TimestampLayout = treebak.DefaultTimestampLayout
	}
	if b.Label == "" {
		b.Label = treebak.DefaultLabel
	}

	if c.Encryption.Type == "" {
		c.Encryption.Type = "none"
	}
	if c.BaseDir != "" {
		if c.Encryption.PublicKeyPath == "" {
			c.Encryption.PublicKeyPath = filepath.Join(c.BaseDir, "keys", "treebak.pub")
		}
		if c.Encryption.PrivateKeyPath == "" {
			c.Encryption.PrivateKeyPath = filepath.Join(c.BaseDir, "keys", "treebak.key")
		}
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type == "sqlite" && c.Database.DataDir == "" && c.BaseDir != "" {
		c.Database.DataDir = filepath.Join(c.BaseDir, "db")
	}
}

// Layout returns the backup layout described by the [backup] section.
func (c *Config) Layout() treebak.Layout {
	return treebak.Layout{
		Marker:          c.Backup.Marker,
		Source:          c.Backup.Source,
		Prefix:          c.Backup.Prefix,
		TimestampLayout: c.Backup.TimestampLayout,
		Label:           c.Backup.Label,
	}
}

// Validate rejects values that would make backups land outside the
// repository root or produce unparseable names.
func (c *Config) Validate() error {
	if !filepath.IsLocal(filepath.FromSlash(c.Backup.Source)) {
		return fmt.Errorf("backup source must be a relative path inside the repository: %q", c.Backup.Source)
	}
	if !filepath.IsLocal(c.Backup.Marker) {
		return fmt.Errorf("backup marker must be a plain name: %q", c.Backup.Marker)
	}
	if c.Backup.Prefix == "" || filepath.Base(c.Backup.Prefix) != c.Backup.Prefix {
		return fmt.Errorf("backup prefix must be a plain name: %q", c.Backup.Prefix)
	}
	for i, v := range c.Vaults {
		if v.Name == "" {
			return fmt.Errorf("vault %d: name is required", i)
		}
	}
	return nil
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

// Load reads the config at path and applies defaults. A missing file is not
// an error: the defaults alone describe a complete, vault-less setup.
// baseDir is used when the file does not set base_dir.
func Load(path, baseDir string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = baseDir
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
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

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
