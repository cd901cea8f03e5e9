// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/pilot/api/schemas"
)

// Config is the root configuration, unmarshaled by viper from file, env and defaults.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Desktop    DesktopConfig    `mapstructure:"desktop" yaml:"desktop"`
	Stability  StabilityConfig  `mapstructure:"stability" yaml:"stability"`
	Loading    LoadingConfig    `mapstructure:"loading" yaml:"loading"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	OmniParser OmniParserConfig `mapstructure:"omniparser" yaml:"omniparser"`
}

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

// BrowserConfig configures the headless browser backend and its settle delays.
type BrowserConfig struct {
	Headless        bool             `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool             `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string           `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string         `mapstructure:"args" yaml:"args"`
	Viewport        schemas.Viewport `mapstructure:"viewport" yaml:"viewport"`

	// RemoteURL, when set, attaches to an existing DevTools websocket instead of
	// spawning a local browser.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`

	// Platform overrides host detection for modifier normalization ("darwin" maps
	// Control to Meta). Empty means the host OS.
	Platform string `mapstructure:"platform" yaml:"platform"`

	NavigationTimeout   time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	NavigationWait      time.Duration `mapstructure:"navigation_wait" yaml:"navigation_wait"`
	ScrollIntoViewDelay time.Duration `mapstructure:"scroll_into_view_delay" yaml:"scroll_into_view_delay"`
	FocusDelay          time.Duration `mapstructure:"focus_delay" yaml:"focus_delay"`
	KeystrokeDelay      time.Duration `mapstructure:"keystroke_delay" yaml:"keystroke_delay"`
	ScrollDelta         float64       `mapstructure:"scroll_delta" yaml:"scroll_delta"`
	ScrollSettleDelay   time.Duration `mapstructure:"scroll_settle_delay" yaml:"scroll_settle_delay"`
	ActionTimeout       time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// DesktopConfig configures the container-hosted desktop backend. All delays are
// fixed settle times because the desktop exposes no structural readiness signal.
type DesktopConfig struct {
	Enabled       bool             `mapstructure:"enabled" yaml:"enabled"`
	Container     string           `mapstructure:"container" yaml:"container"`
	DockerHost    string           `mapstructure:"docker_host" yaml:"docker_host"`
	Display       string           `mapstructure:"display" yaml:"display"`
	User          string           `mapstructure:"user" yaml:"user"`
	TargetProcess string           `mapstructure:"target_process" yaml:"target_process"`
	BrowserClass  string           `mapstructure:"browser_class" yaml:"browser_class"`
	Viewport      schemas.Viewport `mapstructure:"viewport" yaml:"viewport"`
	HelperDir     string           `mapstructure:"helper_dir" yaml:"helper_dir"`

	ClickSettleDelay   time.Duration `mapstructure:"click_settle_delay" yaml:"click_settle_delay"`
	InputSettleDelay   time.Duration `mapstructure:"input_settle_delay" yaml:"input_settle_delay"`
	DoubleClickDelay   time.Duration `mapstructure:"double_click_delay" yaml:"double_click_delay"`
	TypeDelay          time.Duration `mapstructure:"type_delay" yaml:"type_delay"`
	ScrollClicks       int           `mapstructure:"scroll_clicks" yaml:"scroll_clicks"`
	ScrollClickDelay   time.Duration `mapstructure:"scroll_click_delay" yaml:"scroll_click_delay"`
	ScrollContentDelay time.Duration `mapstructure:"scroll_content_delay" yaml:"scroll_content_delay"`
	URLCacheTTL        time.Duration `mapstructure:"url_cache_ttl" yaml:"url_cache_ttl"`
	CommandTimeout     time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
}

// StabilityConfig tunes the convergence strategy used by the browser backend.
type StabilityConfig struct {
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
	StableSamples int           `mapstructure:"stable_samples" yaml:"stable_samples"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LoadingConfig tunes loading-indicator detection and polling.
type LoadingConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxDuration  time.Duration `mapstructure:"max_duration" yaml:"max_duration"`
	Selectors    []string      `mapstructure:"selectors" yaml:"selectors"`
}

// ServerConfig configures the HTTP and websocket surface.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// OmniParserConfig points at the optional external element-detection service.
type OmniParserConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// DefaultLoadingSelectors are the indicator selectors probed when a
// detectLoading directive names none.
var DefaultLoadingSelectors = []string{
	".loading",
	".spinner",
	".loader",
	".skeleton",
	"[aria-busy='true']",
	"[role='progressbar']",
	"progress",
}

// NewDefaultConfig creates a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
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
	v.SetDefault("logger.service_name", "pilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport.width", 900)
	v.SetDefault("browser.viewport.height", 600)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.navigation_wait", "3s")
	v.SetDefault("browser.scroll_into_view_delay", "300ms")
	v.SetDefault("browser.focus_delay", "100ms")
	v.SetDefault("browser.keystroke_delay", "50ms")
	v.SetDefault("browser.scroll_delta", 600)
	v.SetDefault("browser.scroll_settle_delay", "300ms")
	v.SetDefault("browser.action_timeout", "15s")

	// -- Desktop --
	v.SetDefault("desktop.enabled", false)
	v.SetDefault("desktop.display", ":1")
	v.SetDefault("desktop.target_process", "firefox")
	v.SetDefault("desktop.browser_class", "firefox")
	v.SetDefault("desktop.viewport.width", 1280)
	v.SetDefault("desktop.viewport.height", 800)
	v.SetDefault("desktop.helper_dir", "/tmp")
	v.SetDefault("desktop.click_settle_delay", "2s")
	v.SetDefault("desktop.input_settle_delay", "500ms")
	v.SetDefault("desktop.double_click_delay", "100ms")
	v.SetDefault("desktop.type_delay", "12ms")
	v.SetDefault("desktop.scroll_clicks", 2)
	v.SetDefault("desktop.scroll_click_delay", "100ms")
	v.SetDefault("desktop.scroll_content_delay", "1s")
	v.SetDefault("desktop.url_cache_ttl", "2s")
	v.SetDefault("desktop.command_timeout", "30s")

	// -- Stability --
	v.SetDefault("stability.interval", "200ms")
	v.SetDefault("stability.stable_samples", 3)
	v.SetDefault("stability.timeout", "5s")

	// -- Loading --
	v.SetDefault("loading.poll_interval", "500ms")
	v.SetDefault("loading.max_duration", "30s")
	v.SetDefault("loading.selectors", DefaultLoadingSelectors)

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// -- OmniParser --
	v.SetDefault("omniparser.enabled", false)
	v.SetDefault("omniparser.timeout", "20s")
	v.SetDefault("omniparser.rate_limit", 2.0)
	v.SetDefault("omniparser.max_retries", 2)
}

// NewConfigFromViper unmarshals and validates a configuration from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The container name is commonly injected by the orchestrator.
	_ = v.BindEnv("desktop.container", "PILOT_DESKTOP_CONTAINER")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return errors.New("browser.viewport width and height must be positive integers")
	}
	if c.Browser.ScrollDelta <= 0 {
		return errors.New("browser.scroll_delta must be positive")
	}
	if err := c.Desktop.Validate(); err != nil {
		return fmt.Errorf("desktop configuration invalid: %w", err)
	}
	if c.Stability.StableSamples < 2 {
		return errors.New("stability.stable_samples must be at least 2")
	}
	if c.Stability.Interval <= 0 || c.Stability.Timeout <= 0 {
		return errors.New("stability.interval and stability.timeout must be positive durations")
	}
	if c.Loading.PollInterval <= 0 {
		return errors.New("loading.poll_interval must be a positive duration")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is a required configuration field")
	}
	if c.OmniParser.Enabled && c.OmniParser.Endpoint == "" {
		return errors.New("omniparser.endpoint is required when omniparser is enabled")
	}
	return nil
}

// Validate checks the desktop configuration. A disabled desktop is always valid.
func (d *DesktopConfig) Validate() error {
	if !d.Enabled {
		return nil
	}
	if d.Container == "" {
		return errors.New("desktop.container is required when the desktop backend is enabled")
	}
	if d.ScrollClicks <= 0 {
		return errors.New("desktop.scroll_clicks must be a positive integer")
	}
	if d.TargetProcess == "" {
		return errors.New("desktop.target_process is required for the readiness guard")
	}
	return nil
}
