package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Constants for default paths
const (
	defaultServer    = "http://localhost:8080/"
	defaultAPIPrefix = "/api"
	defaultLoginURL  = "/login.html"
	stateFileName    = "state.db"
	configDirName    = ".gallery"
)

// Config represents the client configuration
type Config struct {
	Server            string        `mapstructure:"server"`             // Gallery server base URL
	APIPrefix         string        `mapstructure:"api_prefix"`         // Path prefix of the file API
	LoginURL          string        `mapstructure:"login_url"`          // Where the user signs in again
	StatePath         string        `mapstructure:"state_path"`         // SQLite file holding the credential
	ToastDuration     time.Duration `mapstructure:"toast_duration"`     // How long a toast stays visible
	RedirectDelay     time.Duration `mapstructure:"redirect_delay"`     // Delay before the login redirect
	LogoutDelay       time.Duration `mapstructure:"logout_delay"`       // Delay before the redirect after logout
	NotificationLimit int           `mapstructure:"notification_limit"` // Max notifications kept, 0 = unbounded
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ThumbnailWorkers  int           `mapstructure:"thumbnail_workers"`
	UploadField       string        `mapstructure:"upload_field"`
	TimeZone          string        `mapstructure:"timezone"` // Empty means the system zone
	LogLevel          string        `mapstructure:"log_level"`
	DownloadDir       string        `mapstructure:"download_dir"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:            defaultServer,
		APIPrefix:         defaultAPIPrefix,
		LoginURL:          defaultLoginURL,
		StatePath:         filepath.Join(ConfigDir(), stateFileName),
		ToastDuration:     5 * time.Second,
		RedirectDelay:     2 * time.Second,
		LogoutDelay:       time.Second,
		NotificationLimit: 200,
		RequestTimeout:    30 * time.Minute,
		ThumbnailWorkers:  4,
		UploadField:       "files",
		TimeZone:          "",
		LogLevel:          "info",
		DownloadDir:       ".",
	}
}

// ConfigDir is the per-user directory holding config.yaml and the state file.
func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return configDirName
	}
	return filepath.Join(homeDir, configDirName)
}

// SetDefaults registers every default on v so lookups and Unmarshal see them.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("server", d.Server)
	v.SetDefault("api_prefix", d.APIPrefix)
	v.SetDefault("login_url", d.LoginURL)
	v.SetDefault("state_path", d.StatePath)
	v.SetDefault("toast_duration", d.ToastDuration)
	v.SetDefault("redirect_delay", d.RedirectDelay)
	v.SetDefault("logout_delay", d.LogoutDelay)
	v.SetDefault("notification_limit", d.NotificationLimit)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("thumbnail_workers", d.ThumbnailWorkers)
	v.SetDefault("upload_field", d.UploadField)
	v.SetDefault("timezone", d.TimeZone)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("download_dir", d.DownloadDir)

	v.SetEnvPrefix("GALLERY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// LoadConfig loads a configuration file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return FromViper(v)
}

// FromViper decodes and validates whatever v currently holds.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if c.Server == "" {
		return errors.New("server must be set")
	}
	if c.ThumbnailWorkers <= 0 {
		return errors.New("thumbnail_workers must be greater than 0")
	}
	if c.NotificationLimit < 0 {
		return errors.New("notification_limit must not be negative")
	}
	if c.UploadField == "" {
		return errors.New("upload_field must be set")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves TimeZone; the empty string is the system zone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// APIBase joins the server URL and the API prefix without doubled slashes.
func (c *Config) APIBase() string {
	server := strings.TrimRight(c.Server, "/")
	prefix := strings.Trim(c.APIPrefix, "/")
	if prefix == "" {
		return server
	}
	return server + "/" + prefix
}

// LoginTarget is the absolute URL of the login page.
func (c *Config) LoginTarget() string {
	if strings.HasPrefix(c.LoginURL, "http://") || strings.HasPrefix(c.LoginURL, "https://") {
		return c.LoginURL
	}
	return strings.TrimRight(c.Server, "/") + "/" + strings.TrimLeft(c.LoginURL, "/")
}
