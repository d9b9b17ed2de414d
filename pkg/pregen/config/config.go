package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// ErrInvalidStorage wraps every storage configuration problem.
var ErrInvalidStorage = errors.New("invalid storage configuration")

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// S3Config holds the S3-compatible endpoint and credentials.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	Insecure  bool   `mapstructure:"insecure"`
}

// LocalConfig points at a directory tree mirroring the bucket.
type LocalConfig struct {
	Root    string `mapstructure:"root"`
	Prefix  string `mapstructure:"prefix"`
	Workers int    `mapstructure:"workers"` // 0 = tuned
}

// RetryConfig configures retries of failed storage calls.
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Kind is "s3" or "local". Empty selects local when a local root is
	// set and s3 otherwise.
	Kind  string      `mapstructure:"kind"`
	S3    S3Config    `mapstructure:"s3"`
	Local LocalConfig `mapstructure:"local"`
	Retry RetryConfig `mapstructure:"retry"`
}

// ScanConfig configures the scan phase.
type ScanConfig struct {
	Manifest string `mapstructure:"manifest"`
	Strategy string `mapstructure:"strategy"`
}

// GenerateConfig configures the generation phase.
type GenerateConfig struct {
	Scale   int     `mapstructure:"scale"`
	Cadence float64 `mapstructure:"cadence"` // seconds
	Quality int     `mapstructure:"quality"`
	Verify  bool    `mapstructure:"verify"`
}

// ReportConfig configures report rendering.
type ReportConfig struct {
	Format       string        `mapstructure:"format"`
	MissingLimit int           `mapstructure:"missing_limit"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
}

// JournalConfig configures the generation journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// EventsConfig configures generation events. No brokers disables them.
type EventsConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	// Textfile is written after scan and generate. Empty disables it.
	Textfile string `mapstructure:"textfile"`
}

// Config represents the application configuration.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Generate GenerateConfig `mapstructure:"generate"`
	Report   ReportConfig   `mapstructure:"report"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Events   EventsConfig   `mapstructure:"events"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Setup prepares v: config file search paths (or cfgFile when set),
// PREGEN_ environment binding, the S3_* aliases and defaults. A missing
// config file is not an error.
func Setup(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := ConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix("PREGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	keys := make([]string, 0, len(envAliases))
	for key := range envAliases {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env := "PREGEN_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		if err := v.BindEnv(key, env, envAliases[key]); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.kind", "")
	v.SetDefault("storage.s3.prefix", DefaultPrefix)
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.insecure", false)
	v.SetDefault("storage.local.prefix", DefaultPrefix)
	v.SetDefault("storage.local.workers", 0)
	v.SetDefault("storage.retry.max_retries", DefaultMaxRetries)
	v.SetDefault("storage.retry.initial_backoff", DefaultInitialBackoff)
	v.SetDefault("storage.retry.max_backoff", DefaultMaxBackoff)

	v.SetDefault("scan.manifest", DefaultManifestPath)
	v.SetDefault("scan.strategy", DefaultStrategy)

	v.SetDefault("generate.scale", DefaultScale)
	v.SetDefault("generate.cadence", DefaultCadence)
	v.SetDefault("generate.quality", DefaultQuality)
	v.SetDefault("generate.verify", false)

	v.SetDefault("report.format", DefaultReportFormat)
	v.SetDefault("report.missing_limit", DefaultMissingLimit)
	v.SetDefault("report.stale_after", DefaultStaleAfter)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "") // Empty means DefaultJournalPath

	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", DefaultEventsTopic)
	v.SetDefault("events.batch_timeout", 10*time.Millisecond)

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means logging.DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"scanner":   "info",
		"generator": "info",
		"storage":   "warn",
		"journal":   "warn",
		"events":    "warn",
	})
}

// Decode unmarshals v into a Config and expands ~ in paths.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.Storage.Local.Root, &cfg.Journal.Path, &cfg.Logging.Path, &cfg.Metrics.Textfile} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}
	return &cfg, nil
}

// Load reads configuration from the default file location and environment.
// Config file locations:
//   - $XDG_CONFIG_HOME/pregen/config.yaml
//   - $HOME/.config/pregen/config.yaml
//
// Environment variables are prefixed with PREGEN_ (e.g. PREGEN_GENERATE_SCALE).
func Load() (*Config, error) {
	v := viper.New()
	if err := Setup(v, ""); err != nil {
		return nil, err
	}
	return Decode(v)
}

// EffectiveKind resolves an empty Kind.
func (s StorageConfig) EffectiveKind() string {
	if s.Kind != "" {
		return strings.ToLower(s.Kind)
	}
	if s.Local.Root != "" {
		return KindLocal
	}
	return KindS3
}

// Validate reports every problem with the selected backend at once.
func (s StorageConfig) Validate() error {
	var problems []error
	switch s.EffectiveKind() {
	case KindLocal:
		if s.Local.Root == "" {
			problems = append(problems, errors.New("local root is required"))
		} else if info, err := os.Stat(s.Local.Root); err != nil {
			problems = append(problems, fmt.Errorf("local root %s: %w", s.Local.Root, err))
		} else if !info.IsDir() {
			problems = append(problems, fmt.Errorf("local root %s is not a directory", s.Local.Root))
		}
	case KindS3:
		required := []struct{ name, value string }{
			{"S3_ENDPOINT", s.S3.Endpoint},
			{"S3_BUCKET", s.S3.Bucket},
			{"S3_ACCESS_KEY", s.S3.AccessKey},
			{"S3_SECRET_KEY", s.S3.SecretKey},
		}
		for _, r := range required {
			if r.value == "" {
				problems = append(problems, fmt.Errorf("%s is required", r.name))
			}
		}
	default:
		problems = append(problems, fmt.Errorf("unknown storage kind %q", s.Kind))
	}
	if s.Retry.MaxRetries < 0 {
		problems = append(problems, errors.New("retry.max_retries cannot be negative"))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidStorage, errors.Join(problems...))
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "pregen"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "pregen"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	if err := EnsureConfigDir(); err != nil {
		return "", err
	}
	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig()), 0o600); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return configPath, nil
}

func defaultConfig() string {
	return fmt.Sprintf(`# pregen thumbnail pre-generation configuration

storage:
  # "s3" or "local"; empty picks local when local.root is set
  kind: ""
  s3:
    endpoint: ""      # or S3_ENDPOINT
    bucket: ""        # or S3_BUCKET
    prefix: %[1]s
    access_key: ""    # or S3_ACCESS_KEY
    secret_key: ""    # or S3_SECRET_KEY
    region: ""
    insecure: false
  local:
    root: ""
    prefix: %[1]s
    workers: 0        # 0 = size from CPU count
  retry:
    max_retries: %[2]d
    initial_backoff: %[3]s
    max_backoff: %[4]s

scan:
  manifest: %[5]s
  # full-index, on-demand or auto
  strategy: %[6]s

generate:
  scale: %[7]d
  cadence: %.1[8]f      # seconds between thumbnails
  quality: %[9]d
  verify: false

report:
  # pretty, plain, json, yaml, markdown or csv
  format: %[10]s
  missing_limit: %[11]d
  stale_after: %[12]s

journal:
  enabled: true
  # Empty means $XDG_CACHE_HOME/pregen/journal
  path: ""

events:
  # Kafka brokers; empty disables generation events
  brokers: []
  topic: %[13]s

metrics:
  # Prometheus textfile written after scan and generate
  textfile: ""

logging:
  # Log level: debug, info, warn, error
  level: info
  # Empty means $XDG_STATE_HOME/pregen/pregen.log
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    scanner: info
    generator: info
    storage: warn
`, DefaultPrefix, DefaultMaxRetries, DefaultInitialBackoff, DefaultMaxBackoff,
		DefaultManifestPath, DefaultStrategy, DefaultScale, DefaultCadence, DefaultQuality,
		DefaultReportFormat, DefaultMissingLimit, DefaultStaleAfter, DefaultEventsTopic)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// StateDir returns $XDG_STATE_HOME/pregen/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "pregen")
}

// CacheDir returns $XDG_CACHE_HOME/pregen/ for the journal.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "pregen")
}

// DefaultJournalPath returns the default badger directory of the journal.
func DefaultJournalPath() string {
	return filepath.Join(CacheDir(), "journal")
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}

// EnsureCacheDir creates the cache directory if it doesn't exist.
func EnsureCacheDir() error {
	if err := os.MkdirAll(CacheDir(), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	return nil
}
