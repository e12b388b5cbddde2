// Package config handles configuration loading from files, defaults, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/javiermolinar/studyplanner/internal/logging"
	"github.com/javiermolinar/studyplanner/internal/profile"
)

// envPrefix prefixes every environment override.
const envPrefix = "STUDYPLANNER_"

// Config holds the application configuration.
type Config struct {
	User     UserConfig     `toml:"user"`
	Defaults DefaultsConfig `toml:"defaults"`
	Schedule ScheduleConfig `toml:"schedule"`
	Calendar CalendarConfig `toml:"calendar"`
	Storage  StorageConfig  `toml:"storage"`
	Log      LogConfig      `toml:"log"`
	Watch    WatchConfig    `toml:"watch"`
}

// UserConfig selects the local user the CLI acts for.
type UserConfig struct {
	ID    int64  `toml:"id"`
	Email string `toml:"email"`
}

// DefaultsConfig holds the preferences given to new users.
type DefaultsConfig struct {
	WakeTime              string `toml:"wake_time"`                 // e.g., "08:00"
	SleepTime             string `toml:"sleep_time"`                // e.g., "23:00"
	StudyBlockLength      int    `toml:"study_block_length"`        // minutes
	MaxStudyMinutesPerDay int    `toml:"max_study_minutes_per_day"` // 0 means unlimited
	CommuteDurationMins   int    `toml:"commute_duration_mins"`
	DinnerTime            string `toml:"dinner_time"` // empty disables the dinner block
}

// ScheduleConfig holds planning settings.
type ScheduleConfig struct {
	Timezone        string `toml:"timezone"`          // IANA name, empty means local
	BreakMinutes    int    `toml:"break_minutes"`     // between split calendar events
	MinBlockMinutes int    `toml:"min_block_minutes"` // shortest trailing split block
}

// CalendarConfig holds Google Calendar settings.
type CalendarConfig struct {
	Enabled         bool   `toml:"enabled"`
	CredentialsFile string `toml:"credentials_file"`
	CalendarID      string `toml:"calendar_id"`
	EventTimezone   string `toml:"event_timezone"`
	Timeout         string `toml:"timeout"` // Go duration, e.g., "15s"
	RatePerSec      int    `toml:"rate_per_sec"`
}

// StorageConfig holds database settings.
type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level   string `toml:"level"`
	Console bool   `toml:"console"`
}

// WatchConfig holds background job settings.
type WatchConfig struct {
	ConflictSpec string `toml:"conflict_spec"` // cron spec, empty disables
	ReplanSpec   string `toml:"replan_spec"`   // cron spec, empty disables
	ReloadConfig bool   `toml:"reload_config"`
}

// Default returns the default configuration.
func Default() *Config {
	prefs := profile.DefaultPreferences()
	return &Config{
		User: UserConfig{ID: 1},
		Defaults: DefaultsConfig{
			WakeTime:              prefs.WakeTime,
			SleepTime:             prefs.SleepTime,
			StudyBlockLength:      prefs.StudyBlockLength,
			MaxStudyMinutesPerDay: prefs.MaxStudyMinutesPerDay,
			CommuteDurationMins:   prefs.CommuteDurationMins,
			DinnerTime:            prefs.DinnerTime,
		},
		Schedule: ScheduleConfig{
			Timezone:        "", // Empty means the system zone
			BreakMinutes:    10,
			MinBlockMinutes: 15,
		},
		Calendar: CalendarConfig{
			Enabled:         false,
			CredentialsFile: defaultCredentialsPath(),
			CalendarID:      "primary",
			Timeout:         "15s",
			RatePerSec:      5,
		},
		Storage: StorageConfig{
			DBPath: defaultDBPath(),
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Watch: WatchConfig{
			ConflictSpec: "*/30 * * * *",
			ReplanSpec:   "0 6 * * *",
			ReloadConfig: true,
		},
	}
}

// defaultDBPath returns the default database path.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "studyplanner.db"
	}
	return filepath.Join(home, ".local", "share", "studyplanner", "studyplanner.db")
}

func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "credentials.json"
	}
	return filepath.Join(home, ".config", "studyplanner", "credentials.json")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "studyplanner", "config.toml")
}

// Load loads configuration from the default path, merging with defaults and env vars.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom loads configuration from the specified path.
// It starts with defaults, overlays file config if it exists, then applies env overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	// Try to load from file (not an error if it doesn't exist)
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	cfg.Storage.DBPath = expandPath(cfg.Storage.DBPath)
	cfg.Calendar.CredentialsFile = expandPath(cfg.Calendar.CredentialsFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads config from a file if it exists.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over file config.
func applyEnvOverrides(cfg *Config) error {
	if v := getenv("USER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %sUSER_ID: %w", envPrefix, err)
		}
		cfg.User.ID = id
	}
	if v := getenv("TIMEZONE"); v != "" {
		cfg.Schedule.Timezone = v
	}

	// Storage overrides
	if v := getenv("DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}

	// Calendar overrides
	if v := getenv("CALENDAR_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %sCALENDAR_ENABLED: %w", envPrefix, err)
		}
		cfg.Calendar.Enabled = enabled
	}
	if v := getenv("CALENDAR_CREDENTIALS"); v != "" {
		cfg.Calendar.CredentialsFile = v
	}
	if v := getenv("CALENDAR_ID"); v != "" {
		cfg.Calendar.CalendarID = v
	}

	// Log overrides
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("LOG_CONSOLE"); v != "" {
		console, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %sLOG_CONSOLE: %w", envPrefix, err)
		}
		cfg.Log.Console = console
	}
	return nil
}

func getenv(name string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + name))
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.User.ID <= 0 {
		return errors.New("user id must be positive")
	}
	prefs := c.Preferences()
	if err := prefs.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Schedule.BreakMinutes < 0 {
		return errors.New("break_minutes cannot be negative")
	}
	if c.Schedule.MinBlockMinutes <= 0 {
		return errors.New("min_block_minutes must be positive")
	}

	if _, err := c.CalendarTimeout(); err != nil {
		return err
	}
	if c.Calendar.RatePerSec <= 0 {
		return errors.New("rate_per_sec must be positive")
	}
	if c.Calendar.Enabled && c.Calendar.CredentialsFile == "" {
		return errors.New("credentials_file must be set when the calendar is enabled")
	}

	if c.Storage.DBPath == "" {
		return errors.New("db_path must be set")
	}
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	for field, spec := range map[string]string{
		"conflict_spec": c.Watch.ConflictSpec,
		"replan_spec":   c.Watch.ReplanSpec,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}

// Preferences returns the configured defaults as preferences.
func (c *Config) Preferences() profile.Preferences {
	return profile.Preferences{
		WakeTime:              c.Defaults.WakeTime,
		SleepTime:             c.Defaults.SleepTime,
		StudyBlockLength:      c.Defaults.StudyBlockLength,
		MaxStudyMinutesPerDay: c.Defaults.MaxStudyMinutesPerDay,
		CommuteDurationMins:   c.Defaults.CommuteDurationMins,
		DinnerTime:            c.Defaults.DinnerTime,
	}
}

// Location returns the planning time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

// CalendarTimeout returns the per-call calendar timeout.
func (c *Config) CalendarTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Calendar.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid calendar timeout %q: %w", c.Calendar.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("calendar timeout must be positive, got %s", d)
	}
	return d, nil
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Console: c.Log.Console}
}

// Save writes the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigPath())
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
