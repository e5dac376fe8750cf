// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Paths() PathsConfig
	Watcher() WatcherConfig
	Cache() CacheConfig
	Server() ServerConfig
	Humanoid() HumanoidConfig

	// Setters used by CLI flag overrides.
	SetServerEnabled(bool)
	SetServerListenAddr(string)
	SetWatcherTargetAppID(string)
	SetCacheRefreshDepth(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	PathsCfg    PathsConfig    `mapstructure:"paths" yaml:"paths"`
	WatcherCfg  WatcherConfig  `mapstructure:"watcher" yaml:"watcher"`
	CacheCfg    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
	HumanoidCfg HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Paths() PathsConfig       { return c.PathsCfg }
func (c *Config) Watcher() WatcherConfig   { return c.WatcherCfg }
func (c *Config) Cache() CacheConfig       { return c.CacheCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }
func (c *Config) Humanoid() HumanoidConfig { return c.HumanoidCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetServerEnabled(b bool)         { c.ServerCfg.Enabled = b }
func (c *Config) SetServerListenAddr(a string)    { c.ServerCfg.ListenAddr = a }
func (c *Config) SetWatcherTargetAppID(id string) { c.WatcherCfg.TargetAppID = id }
func (c *Config) SetCacheRefreshDepth(d int)      { c.CacheCfg.RefreshDepth = d }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// PathsConfig locates the files shared with the external window-state writers.
type PathsConfig struct {
	// StateDir holds active_target_Bundle_ID.json and win_<app>.jsonl.
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`
	// NavDir holds one appNav_<app>_<window>.jsonl navigation map per context.
	NavDir string `mapstructure:"nav_dir" yaml:"nav_dir"`
	// JournalFile receives one JSON line per fired watcher event. Empty disables the journal.
	JournalFile string `mapstructure:"journal_file" yaml:"journal_file"`
}

// ActiveTargetFile returns the path of the active-target declaration.
func (p PathsConfig) ActiveTargetFile() string {
	return filepath.Join(p.StateDir, "active_target_Bundle_ID.json")
}

// WindowStateFile returns the path of the window-state declaration for an app.
func (p PathsConfig) WindowStateFile(appID string) string {
	return filepath.Join(p.StateDir, fmt.Sprintf("win_%s.jsonl", appID))
}

// WatcherConfig tunes the state watcher.
type WatcherConfig struct {
	// TargetAppID restricts the watcher to one application. Empty follows whatever app is declared.
	TargetAppID     string `mapstructure:"target_app_id" yaml:"target_app_id"`
	WindowRefPrefix string `mapstructure:"window_ref_prefix" yaml:"window_ref_prefix"`
	// WindowStateFile overrides the derived win_<app>.jsonl path.
	WindowStateFile string        `mapstructure:"window_state_file" yaml:"window_state_file"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	HandleRetries   int           `mapstructure:"handle_retries" yaml:"handle_retries"`
	HandleBackoff   time.Duration `mapstructure:"handle_backoff" yaml:"handle_backoff"`
	WriteBackStatus bool          `mapstructure:"write_back_status" yaml:"write_back_status"`
}

// CacheConfig tunes navigation map extraction and the click-point fallback.
type CacheConfig struct {
	RefreshDepth int `mapstructure:"refresh_depth" yaml:"refresh_depth"`
	MaxEntries   int `mapstructure:"max_entries" yaml:"max_entries"`
	// MaxPointAge expires cached click points. Zero keeps them forever.
	MaxPointAge time.Duration `mapstructure:"max_point_age" yaml:"max_point_age"`
	RowRoles    []string      `mapstructure:"row_roles" yaml:"row_roles"`
}

// ServerConfig configures the command endpoint.
type ServerConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	ListenAddr     string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	QueueTimeout   time.Duration `mapstructure:"queue_timeout" yaml:"queue_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// HumanoidConfig controls synthesized clicks on cached coordinates.
type HumanoidConfig struct {
	ClickHoldMinMs int `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs int `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "omenav")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Paths --
	v.SetDefault("paths.state_dir", "ome/data/windows")
	v.SetDefault("paths.nav_dir", "ome/data/nav")
	v.SetDefault("paths.journal_file", "ome/data/windows/events.jsonl")

	// -- Watcher --
	v.SetDefault("watcher.target_app_id", "com.apple.mail")
	v.SetDefault("watcher.window_ref_prefix", "Mail.messageViewer")
	v.SetDefault("watcher.window_state_file", "")
	v.SetDefault("watcher.poll_interval", "500ms")
	v.SetDefault("watcher.handle_retries", 20)
	v.SetDefault("watcher.handle_backoff", "500ms")
	v.SetDefault("watcher.write_back_status", true)

	// -- Cache --
	v.SetDefault("cache.refresh_depth", 12)
	v.SetDefault("cache.max_entries", 5000)
	v.SetDefault("cache.max_point_age", "10m")
	v.SetDefault("cache.row_roles", []string{"AXRow"})

	// -- Server --
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen_addr", "localhost:8765")
	v.SetDefault("server.queue_timeout", "2s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 5)

	// -- Humanoid --
	v.SetDefault("humanoid.click_hold_min_ms", 40)
	v.SetDefault("humanoid.click_hold_max_ms", 90)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.SetEnvPrefix("OMENAV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every configured path.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.PathsCfg.StateDir, &c.PathsCfg.NavDir, &c.PathsCfg.JournalFile, &c.WatcherCfg.WindowStateFile, &c.LoggerCfg.LogFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.PathsCfg.StateDir == "" {
		return fmt.Errorf("paths.state_dir is a required configuration field")
	}
	if c.PathsCfg.NavDir == "" {
		return fmt.Errorf("paths.nav_dir is a required configuration field")
	}
	if err := c.WatcherCfg.Validate(); err != nil {
		return fmt.Errorf("watcher configuration invalid: %w", err)
	}
	if err := c.CacheCfg.Validate(); err != nil {
		return fmt.Errorf("cache configuration invalid: %w", err)
	}
	if err := c.ServerCfg.Validate(); err != nil {
		return fmt.Errorf("server configuration invalid: %w", err)
	}
	if c.HumanoidCfg.ClickHoldMinMs < 0 || c.HumanoidCfg.ClickHoldMaxMs < c.HumanoidCfg.ClickHoldMinMs {
		return fmt.Errorf("humanoid.click_hold_max_ms must be >= click_hold_min_ms >= 0")
	}
	return nil
}

// Validate checks the WatcherConfig settings.
func (w *WatcherConfig) Validate() error {
	if w.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if w.HandleRetries < 0 {
		return fmt.Errorf("handle_retries must not be negative")
	}
	if w.HandleBackoff < 0 {
		return fmt.Errorf("handle_backoff must not be negative")
	}
	return nil
}

// Validate checks the CacheConfig settings.
func (c *CacheConfig) Validate() error {
	if c.RefreshDepth <= 0 {
		return fmt.Errorf("refresh_depth must be a positive integer")
	}
	if c.MaxEntries <= 0 {
		return fmt.Errorf("max_entries must be a positive integer")
	}
	if c.MaxPointAge < 0 {
		return fmt.Errorf("max_point_age must not be negative")
	}
	return nil
}

// Validate checks the ServerConfig settings.
func (s *ServerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required when the server is enabled")
	}
	if s.QueueTimeout < 0 {
		return fmt.Errorf("queue_timeout must not be negative")
	}
	if s.RateLimit < 0 || s.RateBurst < 0 {
		return fmt.Errorf("rate_limit and rate_burst must not be negative")
	}
	return nil
}
