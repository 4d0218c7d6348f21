// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Portal() PortalConfig
	Transport() TransportConfig

	// Transport Setters (CLI flag overrides)
	SetTransportMode(string)
	SetTransportHost(string)
	SetTransportPort(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	PortalCfg    PortalConfig    `mapstructure:"portal" yaml:"portal"`
	TransportCfg TransportConfig `mapstructure:"transport" yaml:"transport"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Portal() PortalConfig       { return c.PortalCfg }
func (c *Config) Transport() TransportConfig { return c.TransportCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetTransportMode(m string) { c.TransportCfg.Mode = m }
func (c *Config) SetTransportHost(h string) { c.TransportCfg.Host = h }
func (c *Config) SetTransportPort(p int)    { c.TransportCfg.Port = p }

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

// BrowserConfig holds settings for the shared headless browser and its sessions.
type BrowserConfig struct {
	Headless bool     `mapstructure:"headless" yaml:"headless"`
	Args     []string `mapstructure:"args" yaml:"args"`
	// Install downloads the Chromium build playwright expects before the driver starts.
	Install        bool          `mapstructure:"install" yaml:"install"`
	LaunchTimeout  time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	// MaxSessions caps concurrently open sessions. Zero means unlimited.
	MaxSessions int `mapstructure:"max_sessions" yaml:"max_sessions"`
	// IdleTimeout closes sessions unused for longer than this. Zero disables reaping.
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ReapInterval   time.Duration `mapstructure:"reap_interval" yaml:"reap_interval"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
}

// PortalConfig describes the target web application and the timing contract used against it.
type PortalConfig struct {
	BaseURL     string `mapstructure:"base_url" yaml:"base_url"`
	Email       string `mapstructure:"email" yaml:"-"`
	Password    string `mapstructure:"password" yaml:"-"`
	LoginMarker string `mapstructure:"login_marker" yaml:"login_marker"`

	ElementTimeout time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	LoginTimeout   time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
	OptionTimeout  time.Duration `mapstructure:"option_timeout" yaml:"option_timeout"`
	SubmitSettle   time.Duration `mapstructure:"submit_settle" yaml:"submit_settle"`
	GridSettle     time.Duration `mapstructure:"grid_settle" yaml:"grid_settle"`

	// RateLimit caps portal operations per second across all sessions. Zero means unlimited.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// TransportConfig selects how the tool host is exposed.
type TransportConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode"`
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Transport modes.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Address returns host:port for network transports.
func (t TransportConfig) Address() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
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
	v.SetDefault("logger.service_name", "nextron-mcp")
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
	v.SetDefault("browser.args", []string{"--no-sandbox"})
	v.SetDefault("browser.install", false)
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.default_timeout", "30s")
	v.SetDefault("browser.max_sessions", 0)
	v.SetDefault("browser.idle_timeout", "0s")
	v.SetDefault("browser.reap_interval", "1m")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)

	// -- Portal --
	v.SetDefault("portal.base_url", "https://connect.nextron.ai/")
	v.SetDefault("portal.login_marker", "login")
	v.SetDefault("portal.element_timeout", "20s")
	v.SetDefault("portal.login_timeout", "30s")
	v.SetDefault("portal.option_timeout", "5s")
	v.SetDefault("portal.submit_settle", "5s")
	v.SetDefault("portal.grid_settle", "5s")
	v.SetDefault("portal.rate_limit", 0.0)
	v.SetDefault("portal.rate_burst", 1)

	// -- Transport --
	v.SetDefault("transport.mode", TransportStdio)
	v.SetDefault("transport.host", "0.0.0.0")
	v.SetDefault("transport.port", 8000)
}

// BindEnv wires the environment variables the server honours. Prefixed names
// (NEXTRON_PORTAL_EMAIL) come from AutomaticEnv; the short names below are the
// ones deployments already use.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("NEXTRON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("portal.email", "NEXTRON_PORTAL_EMAIL", "NEXTRON_EMAIL", "EMAIL")
	_ = v.BindEnv("portal.password", "NEXTRON_PORTAL_PASSWORD", "NEXTRON_PASSWORD", "PASSWORD")
	_ = v.BindEnv("logger.level", "NEXTRON_LOGGER_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("transport.mode", "NEXTRON_TRANSPORT_MODE", "MCP_TRANSPORT")
	_ = v.BindEnv("transport.host", "NEXTRON_TRANSPORT_HOST", "MCP_HOST")
	_ = v.BindEnv("transport.port", "NEXTRON_TRANSPORT_PORT", "MCP_PORT")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
// Environment variables are bound here so they take precedence over any config file.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	BindEnv(v)

	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.LoggerCfg.Level = strings.ToLower(cfg.LoggerCfg.Level)
	cfg.TransportCfg.Mode = strings.ToLower(strings.TrimSpace(cfg.TransportCfg.Mode))
	if cfg.PortalCfg.BaseURL != "" && !strings.HasSuffix(cfg.PortalCfg.BaseURL, "/") {
		cfg.PortalCfg.BaseURL += "/"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.PortalCfg.Validate(); err != nil {
		return fmt.Errorf("portal configuration invalid: %w", err)
	}
	if err := c.TransportCfg.Validate(); err != nil {
		return fmt.Errorf("transport configuration invalid: %w", err)
	}
	if c.BrowserCfg.MaxSessions < 0 {
		return fmt.Errorf("browser.max_sessions must not be negative")
	}
	if c.BrowserCfg.IdleTimeout < 0 {
		return fmt.Errorf("browser.idle_timeout must not be negative")
	}
	if c.BrowserCfg.IdleTimeout > 0 && c.BrowserCfg.ReapInterval <= 0 {
		return fmt.Errorf("browser.reap_interval must be positive when idle_timeout is set")
	}
	return nil
}

// Validate checks the portal settings. Credentials are not required here; they
// may be supplied per call and are checked when a login is attempted.
func (p *PortalConfig) Validate() error {
	u, err := url.Parse(p.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", p.BaseURL)
	}
	if p.LoginMarker == "" {
		return fmt.Errorf("login_marker must not be empty")
	}
	if p.ElementTimeout <= 0 || p.LoginTimeout <= 0 || p.OptionTimeout <= 0 {
		return fmt.Errorf("element_timeout, login_timeout and option_timeout must be positive")
	}
	if p.SubmitSettle < 0 || p.GridSettle < 0 {
		return fmt.Errorf("settle delays must not be negative")
	}
	if p.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if p.RateLimit > 0 && p.RateBurst < 1 {
		return fmt.Errorf("rate_burst must be at least 1 when rate_limit is set")
	}
	return nil
}

// HasCredentials reports whether both halves of the configured credentials are present.
func (p PortalConfig) HasCredentials() bool {
	return p.Email != "" && p.Password != ""
}

// Validate checks the transport selection.
func (t *TransportConfig) Validate() error {
	switch t.Mode {
	case TransportStdio:
		return nil
	case TransportSSE:
		if t.Port <= 0 || t.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", t.Port)
		}
		return nil
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", TransportStdio, TransportSSE, t.Mode)
	}
}
