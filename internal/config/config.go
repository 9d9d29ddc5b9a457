package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for bridge.
type Config struct {
	UserID       string              `toml:"user_id"`
	BaseDir      string              `toml:"base_dir"`
	LogDir       string              `toml:"log_dir"`
	Log          LogConfig           `toml:"log"`
	Database     DatabaseConfig      `toml:"database"`
	Staging      StagingConfig       `toml:"staging"`
	Engine       EngineConfig        `toml:"engine"`
	Scheduler    SchedulerConfig     `toml:"scheduler"`
	Platforms    []PlatformConfig    `toml:"platforms"`
	Destinations []DestinationConfig `toml:"destinations"`
	Encryption   EncryptionConfig    `toml:"encryption"`
	HTTP         HTTPConfig          `toml:"http"`
}

// LogConfig controls log verbosity.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn or error
}

// DatabaseConfig represents configuration for the content database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// StagingConfig represents configuration for the temporary media area.
type StagingConfig struct {
	Type       string `toml:"type"`                  // "temp" or "filesystem"
	StagingDir string `toml:"staging_dir,omitempty"` // only used for type=filesystem
	MaxSize    int64  `toml:"max_size"`              // largest accepted download in bytes
}

// EngineConfig tunes the sync worker pool.
type EngineConfig struct {
	Workers         int      `toml:"workers"`
	MaxRetries      int      `toml:"max_retries"`
	InitialBackoff  Duration `toml:"initial_backoff"`
	MaxBackoff      Duration `toml:"max_backoff"`
	DownloadTimeout Duration `toml:"download_timeout"`
	UploadTimeout   Duration `toml:"upload_timeout"`
	ClaimLease      Duration `toml:"claim_lease"` // in-flight records older than this are failed on startup
	RecoverLimit    int      `toml:"recover_limit"`
}

// SchedulerConfig controls the auto-sync scan.
type SchedulerConfig struct {
	Enabled    bool     `toml:"enabled"`
	Spec       string   `toml:"spec"` // cron expression or descriptor such as "@every 5m"
	Staleness  Duration `toml:"staleness"`
	BatchLimit int      `toml:"batch_limit"`
}

// PlatformConfig configures one source platform client.
type PlatformConfig struct {
	Type              string  `toml:"type"` // "instagram" or "tiktok"
	BaseURL           string  `toml:"base_url,omitempty"`
	RequestsPerSecond float64 `toml:"requests_per_second,omitempty"`
	Burst             int     `toml:"burst,omitempty"`
}

// DestinationConfig represents configuration for an upload target.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DestinationConfig struct {
	Type string `toml:"type"` // "jwplayer", "s3", "filesystem" or "memory"
	Name string `toml:"name"`

	// JW Player fields (only used when Type == "jwplayer")
	JWSiteID    string `toml:"jw_site_id,omitempty"`
	JWAPISecret string `toml:"jw_api_secret,omitempty"`
	JWBaseURL   string `toml:"jw_base_url,omitempty"`

	// S3 fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// Filesystem fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// Circuit breaker, applies to every type.
	BreakerFailures uint32   `toml:"breaker_failures,omitempty"`
	BreakerTimeout  Duration `toml:"breaker_timeout,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used to seal platform tokens.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// HTTPConfig configures the API server started by `bridge serve`.
type HTTPConfig struct {
	Addr      string `toml:"addr"`
	JWTSecret string `toml:"jwt_secret,omitempty"`
}

// Duration is a time.Duration that reads and writes as "90s", "5m" and so on.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// NewConfig creates a new Config with the provided values and working defaults.
func NewConfig(userID, baseDir string) *Config {
	return &Config{
		UserID:  userID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Log:     LogConfig{Level: "info"},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Staging: StagingConfig{
			Type:       "filesystem",
			StagingDir: filepath.Join(baseDir, "staging"),
			MaxSize:    2 << 30,
		},
		Engine: EngineConfig{
			Workers:         2,
			MaxRetries:      3,
			InitialBackoff:  Duration{time.Second},
			MaxBackoff:      Duration{30 * time.Second},
			DownloadTimeout: Duration{60 * time.Second},
			UploadTimeout:   Duration{10 * time.Minute},
			ClaimLease:      Duration{2 * time.Hour},
			RecoverLimit:    500,
		},
		Scheduler: SchedulerConfig{
			Enabled:    true,
			Spec:       "@every 5m",
			Staleness:  Duration{24 * time.Hour},
			BatchLimit: 50,
		},
		Platforms: []PlatformConfig{
			{Type: "instagram", RequestsPerSecond: 3, Burst: 5},
			{Type: "tiktok", RequestsPerSecond: 3, Burst: 5},
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "bridge.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "bridge.key"),
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8080"},
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

// Load reads the file at path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Secrets may be stored in the file, so keep it private.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
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
