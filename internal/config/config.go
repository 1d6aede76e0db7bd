package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for sabot.
type Config struct {
	InstanceID string           `toml:"instance_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	EnvFile    string           `toml:"env_file,omitempty"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Media      MediaConfig      `toml:"media"`
	Relay      RelayConfig      `toml:"relay"`
	Sources    []SourceConfig   `toml:"sources"`
	Poller     PollerConfig     `toml:"poller"`
	History    HistoryConfig    `toml:"history"`
	RunLog     RunLogConfig     `toml:"runlog"`
	Archive    ArchiveConfig    `toml:"archive"`
	Encryption EncryptionConfig `toml:"encryption"`
	Web        WebConfig        `toml:"web"`
}

// LedgerConfig selects where the content ledger lives.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type LedgerConfig struct {
	Type string `toml:"type"` // "file" (default) or "memory"

	// File-specific fields (only used when Type == "file")
	Path             string `toml:"path,omitempty"`
	LegacyVideosPath string `toml:"legacy_videos_path,omitempty"` // one-time import of {"videos": [...]}
}

// MediaConfig controls the on-disk media store and its downloader.
type MediaConfig struct {
	Root           string `toml:"root"`
	Attempts       int    `toml:"attempts"`        // default 3
	BackoffSeconds int    `toml:"backoff_seconds"` // default 2
	TimeoutSeconds int    `toml:"timeout_seconds"` // per attempt, default 10
	UserAgent      string `toml:"user_agent,omitempty"`
	FFmpegPath     string `toml:"ffmpeg_path,omitempty"` // default "ffmpeg"
}

// RelayConfig selects the delivery destination.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
// Credentials are never stored here; see Secrets.
type RelayConfig struct {
	Type string `toml:"type"` // "telegram", "redis" or "log"

	// Redis-specific fields (only used when Type == "redis")
	RedisAddr         string `toml:"redis_addr,omitempty"`
	RedisDB           int    `toml:"redis_db,omitempty"`
	RedisChannel      string `toml:"redis_channel,omitempty"`
	RequireSubscriber bool   `toml:"require_subscriber,omitempty"`
}

// SourceConfig configures the adapter for one platform.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SourceConfig struct {
	Type     string `toml:"type"` // "feed", "page" or "video"
	Platform string `toml:"platform"`

	// URLTemplate is the upstream address; "{account}" is replaced with the
	// account handle. Used by feed and page sources.
	URLTemplate string `toml:"url_template,omitempty"`
	Limit       int    `toml:"limit,omitempty"` // max items per fetch, 0 = all

	// Page-specific fields (only used when Type == "page")
	ItemSelector  string `toml:"item_selector,omitempty"`
	LinkSelector  string `toml:"link_selector,omitempty"`
	TitleSelector string `toml:"title_selector,omitempty"`
	ImageSelector string `toml:"image_selector,omitempty"`

	// Video-specific fields (only used when Type == "video")
	YtDlpPath string `toml:"ytdlp_path,omitempty"`
}

// PollerConfig configures the background poller.
type PollerConfig struct {
	IntervalSeconds int      `toml:"interval_seconds"` // default 900, minimum 300
	Targets         []string `toml:"targets"`          // "platform/account"
	Autostart       bool     `toml:"autostart"`
}

// HistoryConfig configures history browsing.
type HistoryConfig struct {
	// DefaultAccounts maps a platform to the account offered when nothing
	// has been fetched for it yet.
	DefaultAccounts map[string]string `toml:"default_accounts,omitempty"`
}

// RunLogConfig represents configuration for the run history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RunLogConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ArchiveConfig represents configuration for the ledger archive backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type    string `toml:"type"` // "", "memory", "s3" or "filesystem"; "" disables archiving
	Name    string `toml:"name"`
	Encrypt bool   `toml:"encrypt"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for archive snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// WebConfig configures the operator HTTP API started by "sabot run".
type WebConfig struct {
	Listen string `toml:"listen"` // empty disables the API
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		EnvFile:    filepath.Join(baseDir, ".env"),
		Ledger: LedgerConfig{
			Type: "file",
			Path: filepath.Join(baseDir, "ledger.json"),
		},
		Media: MediaConfig{
			Root:           filepath.Join(baseDir, "media"),
			Attempts:       3,
			BackoffSeconds: 2,
			TimeoutSeconds: 10,
		},
		Relay: RelayConfig{Type: "log"},
		Poller: PollerConfig{
			IntervalSeconds: 900,
		},
		RunLog: RunLogConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "sabot.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "sabot.key"),
		},
		Web: WebConfig{Listen: "127.0.0.1:8089"},
	}
}

// Validate checks the tagged unions and required fields.
func (c *Config) Validate() error {
	switch c.Ledger.Type {
	case "", "file":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger: path is required for file ledger")
		}
	case "memory":
	default:
		return fmt.Errorf("ledger: unknown type %q", c.Ledger.Type)
	}

	if c.Media.Root == "" {
		return fmt.Errorf("media: root is required")
	}

	switch c.Relay.Type {
	case "", "telegram", "log":
	case "redis":
		if c.Relay.RedisAddr == "" || c.Relay.RedisChannel == "" {
			return fmt.Errorf("relay: redis_addr and redis_channel are required for redis relay")
		}
	default:
		return fmt.Errorf("relay: unknown type %q", c.Relay.Type)
	}

	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.Platform == "" {
			return fmt.Errorf("sources[%d]: platform is required", i)
		}
		if seen[s.Platform] {
			return fmt.Errorf("sources[%d]: duplicate source for platform %q", i, s.Platform)
		}
		seen[s.Platform] = true
		switch s.Type {
		case "feed":
			if s.URLTemplate == "" {
				return fmt.Errorf("sources[%d]: url_template is required for feed source", i)
			}
		case "page":
			if s.URLTemplate == "" || s.ItemSelector == "" {
				return fmt.Errorf("sources[%d]: url_template and item_selector are required for page source", i)
			}
		case "video":
		default:
			return fmt.Errorf("sources[%d]: unknown type %q", i, s.Type)
		}
	}

	switch c.Archive.Type {
	case "", "memory":
	case "s3":
		if c.Archive.S3Bucket == "" {
			return fmt.Errorf("archive: s3_bucket is required for s3 archive")
		}
	case "filesystem":
		if c.Archive.FSRoot == "" {
			return fmt.Errorf("archive: fs_root is required for filesystem archive")
		}
	default:
		return fmt.Errorf("archive: unknown type %q", c.Archive.Type)
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

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
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

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
