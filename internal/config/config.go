package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for nrelay.
type Config struct {
	ListenAddr string `toml:"listen_addr"`
	BaseDir    string `toml:"base_dir"`
	LogDir     string `toml:"log_dir"`

	Relay    RelayConfig    `toml:"relay"`
	Info     InfoConfig     `toml:"info"`
	Database DatabaseConfig `toml:"database"`
	Bus      BusConfig      `toml:"bus"`
	Blob     BlobConfig     `toml:"blob"`
	Sweep    SweepConfig    `toml:"sweep"`
}

// RelayConfig holds the protocol-level policy knobs.
type RelayConfig struct {
	AuthRequired   bool `toml:"auth_required"`
	MaxContentSize int  `toml:"max_content_size"` // max message size in bytes; defaults to 64KB
	MaxFilters     int  `toml:"max_filters"`      // max filters per REQ; defaults to 20
	MaxLimit       int  `toml:"max_limit"`        // per-filter limit cap; defaults to 500

	Moderation ModerationConfig `toml:"moderation"`
}

// ModerationConfig controls the content policy applied at ingest.
type ModerationConfig struct {
	Enabled       bool     `toml:"enabled"`
	Keywords      []string `toml:"keywords,omitempty"`
	BannedPubkeys []string `toml:"banned_pubkeys,omitempty"`
}

// InfoConfig feeds the relay information document served over HTTP.
type InfoConfig struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Contact     string `toml:"contact"`
	Pubkey      string `toml:"pubkey,omitempty"`
}

// DatabaseConfig represents configuration for the event database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// BusConfig represents configuration for the event fan-out bus.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BusConfig struct {
	Type string `toml:"type"` // "memory" or "mqtt"

	// MQTT-specific fields (only used when Type == "mqtt")
	BrokerURL string `toml:"broker_url,omitempty"`
	ClientID  string `toml:"client_id,omitempty"`
	Username  string `toml:"username,omitempty"`
	Password  string `toml:"password,omitempty"`
}

// BlobConfig represents configuration for the media blob store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BlobConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", or "s3"

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`
}

// SweepConfig controls the background retention sweeper.
type SweepConfig struct {
	IntervalMinutes int `toml:"interval_minutes"` // defaults to 60
	RetentionDays   int `toml:"retention_days"`   // tombstones older than this are purged; defaults to 30
}

// NewConfig creates a new Config with the provided values and sensible defaults.
func NewConfig(baseDir string) *Config {
	return &Config{
		ListenAddr: ":7447",
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Relay: RelayConfig{
			MaxContentSize: 64 * 1024,
			MaxFilters:     20,
			MaxLimit:       500,
		},
		Info: InfoConfig{
			Name:        "nrelay",
			Description: "a nostr relay",
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Bus:  BusConfig{Type: "memory"},
		Blob: BlobConfig{Type: "filesystem", FSRoot: filepath.Join(baseDir, "media")},
		Sweep: SweepConfig{
			IntervalMinutes: 60,
			RetentionDays:   30,
		},
	}
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

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
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
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
