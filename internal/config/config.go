package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Log      LogConfig
	Export   ExportConfig
	Engine   EngineConfig
	API      APIConfig `mapstructure:"api"`
	UI       UIConfig
	LLM      LLMConfig `mapstructure:"llm"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string
	Format string
}

type ExportConfig struct {
	Dir string
}

// EngineConfig holds detector thresholds.
type EngineConfig struct {
	FuzzyThreshold      float64 `mapstructure:"fuzzy_threshold"`
	MinPoints           int     `mapstructure:"min_points"`
	AmountZ             float64 `mapstructure:"amount_z"`
	SpikeZ              float64 `mapstructure:"spike_z"`
	SpikeWindowDays     int     `mapstructure:"spike_window_days"`
	BurstAmountMax      float64 `mapstructure:"burst_amount_max"`
	BurstWindowMinutes  int     `mapstructure:"burst_window_minutes"`
	BurstCountMin       int     `mapstructure:"burst_count_min"`
	NewSubscriptionDays int     `mapstructure:"new_subscription_days"`
	PreserveDismissals  bool    `mapstructure:"preserve_dismissals"`
}

// APIConfig holds the read API listener.
type APIConfig struct {
	Addr string
}

// UIConfig holds presentation settings.
type UIConfig struct {
	DateFormat     string `mapstructure:"date_format"`
	CurrencySymbol string `mapstructure:"currency_symbol"`
	Timezone       string
}

// LLMConfig points alert explanations at a local model server.
type LLMConfig struct {
	Enabled        bool
	Host           string
	Model          string
	AllowNetwork   bool `mapstructure:"allow_network"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-request deadline for the model server.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// BurstWindow returns the burst detector window as a duration.
func (e EngineConfig) BurstWindow() time.Duration {
	return time.Duration(e.BurstWindowMinutes) * time.Minute
}

// NewSubscriptionWindow returns the recency window for new-subscription events.
func (e EngineConfig) NewSubscriptionWindow() time.Duration {
	return time.Duration(e.NewSubscriptionDays) * 24 * time.Hour
}

// Location resolves the UI timezone, falling back to UTC.
func (u UIConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(u.Timezone); err == nil && u.Timezone != "" {
		return loc
	}
	return time.UTC
}

// Path returns the config file location: $SUBSENTRY_CONFIG or the XDG-style default.
func Path() string {
	if p := os.Getenv("SUBSENTRY_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "subsentry", "config.toml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "subsentry", "subsentry.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("export.dir", "./exports")
	v.SetDefault("engine.fuzzy_threshold", 92)
	v.SetDefault("engine.min_points", 3)
	v.SetDefault("engine.amount_z", 4.0)
	v.SetDefault("engine.spike_z", 4.0)
	v.SetDefault("engine.spike_window_days", 60)
	v.SetDefault("engine.burst_amount_max", 5.0)
	v.SetDefault("engine.burst_window_minutes", 30)
	v.SetDefault("engine.burst_count_min", 5)
	v.SetDefault("engine.new_subscription_days", 90)
	v.SetDefault("engine.preserve_dismissals", false)
	v.SetDefault("api.addr", "127.0.0.1:8765")
	v.SetDefault("ui.date_format", "2006-01-02")
	v.SetDefault("ui.currency_symbol", "$")
	v.SetDefault("ui.timezone", "UTC")
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.host", "http://127.0.0.1:11434")
	v.SetDefault("llm.model", "llama3.1:8b")
	v.SetDefault("llm.allow_network", false)
	v.SetDefault("llm.timeout_seconds", 300)
}

// Load reads configuration from file and env. Env var overrides use prefix SUBSENTRY_.
func Load() (Config, error) {
	return LoadFile(os.Getenv("SUBSENTRY_CONFIG"))
}

// LoadFile is Load with an explicit config file. An empty path searches
// $HOME/.config/subsentry for config.toml.
func LoadFile(cfgPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "subsentry"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("SUBSENTRY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// an explicitly named file that is missing is reported by os, not viper
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Save writes the presentation and engine preferences to Path().
func Save(cfg Config) error {
	return SaveAs(cfg, Path())
}

// SaveAs writes cfg to path, creating the config directory if needed.
func SaveAs(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("export.dir", cfg.Export.Dir)
	v.Set("engine.fuzzy_threshold", cfg.Engine.FuzzyThreshold)
	v.Set("engine.preserve_dismissals", cfg.Engine.PreserveDismissals)
	v.Set("api.addr", cfg.API.Addr)
	v.Set("ui.date_format", cfg.UI.DateFormat)
	v.Set("ui.currency_symbol", cfg.UI.CurrencySymbol)
	v.Set("ui.timezone", cfg.UI.Timezone)
	v.Set("llm.enabled", cfg.LLM.Enabled)
	v.Set("llm.host", cfg.LLM.Host)
	v.Set("llm.model", cfg.LLM.Model)
	v.Set("llm.allow_network", cfg.LLM.AllowNetwork)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
