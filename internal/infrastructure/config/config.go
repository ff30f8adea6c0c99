package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/automountd/internal/process"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AUTOMOUNTD_"

// Config is the root configuration structure for automountd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Tools    process.Tools  `yaml:"tools"`
	Policy   PolicyConfig   `yaml:"policy"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PathsConfig locates the directories the daemon watches and manages.
type PathsConfig struct {
	// WorkingDirectory receives one directory per accepted device.
	WorkingDirectory string `yaml:"working_directory"`

	// WatchDirectory holds the stable device links (normally /dev/disk/by-id).
	WatchDirectory string `yaml:"watch_directory"`

	// SymlinkDirectory receives label-named links to mountpoints. Empty
	// disables links.
	SymlinkDirectory string `yaml:"symlink_directory"`

	// WatchMountpoints is observed for mountpoints created by another agent.
	// Empty disables watch mode.
	WatchMountpoints string `yaml:"watch_mountpoints"`
}

// PolicyConfig controls which devices are mounted and how.
type PolicyConfig struct {
	DevicePrefixes []string          `yaml:"device_prefixes"`
	FSMountOptions map[string]string `yaml:"fs_mount_options"`
}

// DatabaseConfig contains SQLite journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped if the file does not exist
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AUTOMOUNTD_SECTION_KEY
// For example: AUTOMOUNTD_PATHS_WORKING_DIRECTORY, AUTOMOUNTD_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Defaults are complete; a config file is optional.
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.Tools = cfg.Tools.Named()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			WorkingDirectory: "/run/automountd",
			WatchDirectory:   "/dev/disk/by-id",
		},
		Tools: process.DefaultTools(),
		Policy: PolicyConfig{
			DevicePrefixes: []string{"usb-", "ata-"},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "automountd",
			},
			QoS:         1,
			TopicPrefix: "automountd",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:        "/var/lib/automountd/journal.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "automountd",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8470,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AUTOMOUNTD_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"PATHS_WORKING_DIRECTORY": &cfg.Paths.WorkingDirectory,
		"PATHS_WATCH_DIRECTORY":   &cfg.Paths.WatchDirectory,
		"PATHS_SYMLINK_DIRECTORY": &cfg.Paths.SymlinkDirectory,
		"PATHS_WATCH_MOUNTPOINTS": &cfg.Paths.WatchMountpoints,
		"TOOLS_MOUNT_BINARY":      &cfg.Tools.Mount.Binary,
		"TOOLS_MOUNT_OPTIONS":     &cfg.Tools.Mount.Options,
		"TOOLS_UNMOUNT_BINARY":    &cfg.Tools.Unmount.Binary,
		"DATABASE_PATH":           &cfg.Database.Path,
		"MQTT_HOST":               &cfg.MQTT.Broker.Host,
		"MQTT_USERNAME":           &cfg.MQTT.Auth.Username,
		"MQTT_PASSWORD":           &cfg.MQTT.Auth.Password,
		"MQTT_TOPIC_PREFIX":       &cfg.MQTT.TopicPrefix,
		"API_HOST":                &cfg.API.Host,
		"INFLUXDB_URL":            &cfg.InfluxDB.URL,
		"INFLUXDB_TOKEN":          &cfg.InfluxDB.Token,
		"LOGGING_LEVEL":           &cfg.Logging.Level,
		"LOGGING_FORMAT":          &cfg.Logging.Format,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"MQTT_ENABLED":     &cfg.MQTT.Enabled,
		"DATABASE_ENABLED": &cfg.Database.Enabled,
		"INFLUXDB_ENABLED": &cfg.InfluxDB.Enabled,
		"API_ENABLED":      &cfg.API.Enabled,
	}
	for key, dst := range bools {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("parsing %s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	if v := os.Getenv(EnvPrefix + "API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %sAPI_PORT: %w", EnvPrefix, err)
		}
		cfg.API.Port = port
	}

	if v := os.Getenv(EnvPrefix + "POLICY_DEVICE_PREFIXES"); v != "" {
		cfg.Policy.DevicePrefixes = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Paths
	if c.Paths.WorkingDirectory == "" {
		errs = append(errs, "paths.working_directory is required")
	} else if !filepath.IsAbs(c.Paths.WorkingDirectory) || filepath.Clean(c.Paths.WorkingDirectory) == "/" {
		errs = append(errs, "paths.working_directory must be an absolute path other than /")
	}
	if !filepath.IsAbs(c.Paths.WatchDirectory) {
		errs = append(errs, "paths.watch_directory must be an absolute path")
	}
	if c.Paths.SymlinkDirectory != "" && !filepath.IsAbs(c.Paths.SymlinkDirectory) {
		errs = append(errs, "paths.symlink_directory must be an absolute path")
	}
	if c.Paths.WatchMountpoints != "" && !filepath.IsAbs(c.Paths.WatchMountpoints) {
		errs = append(errs, "paths.watch_mountpoints must be an absolute path")
	}

	// Tools
	for _, t := range []process.Command{c.Tools.Mount, c.Tools.Unmount, c.Tools.Mountpoint, c.Tools.ProbeDevice, c.Tools.ProbeVolume} {
		if strings.TrimSpace(t.Binary) == "" {
			errs = append(errs, fmt.Sprintf("tools.%s.binary is required", t.Name))
		}
	}

	// Database
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
