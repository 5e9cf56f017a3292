// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Page objects and runners depend on it so tests can hand in a trimmed config.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Apps() AppsConfig
	Admin() AdminConfig
	Vehicle() VehicleConfig
	Backoffice() BackofficeConfig
	EndUser() EndUserConfig
	Scheduling() SchedulingConfig
	Timeouts() TimeoutsConfig
	Report() ReportConfig
	Runner() RunnerConfig
	Tracing() TracingConfig

	SetBrowserHeadless(bool)
	SetReportResultsDir(string)
	SetRunnerParallelism(int)
}

// Config holds the entire application configuration.
type Config struct {
	Environment   string           `mapstructure:"environment" yaml:"environment"`
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	BrowserCfg    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	AppsCfg       AppsConfig       `mapstructure:"apps" yaml:"apps"`
	AdminCfg      AdminConfig      `mapstructure:"admin" yaml:"admin"`
	VehicleCfg    VehicleConfig    `mapstructure:"vehicle" yaml:"vehicle"`
	BackofficeCfg BackofficeConfig `mapstructure:"backoffice" yaml:"backoffice"`
	EndUserCfg    EndUserConfig    `mapstructure:"enduser" yaml:"enduser"`
	SchedulingCfg SchedulingConfig `mapstructure:"scheduling" yaml:"scheduling"`
	TimeoutsCfg   TimeoutsConfig   `mapstructure:"timeouts" yaml:"timeouts"`
	ReportCfg     ReportConfig     `mapstructure:"report" yaml:"report"`
	RunnerCfg     RunnerConfig     `mapstructure:"runner" yaml:"runner"`
	TracingCfg    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig       { return c.BrowserCfg }
func (c *Config) Apps() AppsConfig             { return c.AppsCfg }
func (c *Config) Admin() AdminConfig           { return c.AdminCfg }
func (c *Config) Vehicle() VehicleConfig       { return c.VehicleCfg }
func (c *Config) Backoffice() BackofficeConfig { return c.BackofficeCfg }
func (c *Config) EndUser() EndUserConfig       { return c.EndUserCfg }
func (c *Config) Scheduling() SchedulingConfig { return c.SchedulingCfg }
func (c *Config) Timeouts() TimeoutsConfig     { return c.TimeoutsCfg }
func (c *Config) Report() ReportConfig         { return c.ReportCfg }
func (c *Config) Runner() RunnerConfig         { return c.RunnerCfg }
func (c *Config) Tracing() TracingConfig       { return c.TracingCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)      { c.BrowserCfg.Headless = b }
func (c *Config) SetReportResultsDir(dir string) { c.ReportCfg.ResultsDir = dir }
func (c *Config) SetRunnerParallelism(n int)     { c.RunnerCfg.Parallelism = n }

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

// BrowserConfig controls how the Chromium allocator is launched.
type BrowserConfig struct {
	Name         string   `mapstructure:"name" yaml:"name"`
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	WindowWidth  int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int      `mapstructure:"window_height" yaml:"window_height"`
	ExecPath     string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args         []string `mapstructure:"args" yaml:"args"`
}

// AppsConfig points at the two applications under test.
type AppsConfig struct {
	EndUserURL    string `mapstructure:"enduser_url" yaml:"enduser_url"`
	BackofficeURL string `mapstructure:"backoffice_url" yaml:"backoffice_url"`
}

type AdminConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// VehicleConfig describes the vehicle whose intervention gets scheduled.
type VehicleConfig struct {
	PlateNumero   string `mapstructure:"plate_numero" yaml:"plate_numero"`
	PlateSerie    string `mapstructure:"plate_serie" yaml:"plate_serie"`
	Mileage       string `mapstructure:"mileage" yaml:"mileage"`
	ChassisNumber string `mapstructure:"chassis_number" yaml:"chassis_number"`
	Description   string `mapstructure:"description" yaml:"description"`
}

// ExpectedPlate is the plate text rendered on intervention cards, e.g. "1234TUABC".
func (v VehicleConfig) ExpectedPlate() string {
	return v.PlateNumero + "TU" + v.PlateSerie
}

// BackofficeConfig names the entities picked while navigating the backoffice.
type BackofficeConfig struct {
	Workspace string `mapstructure:"workspace" yaml:"workspace"`
	Agency    string `mapstructure:"agency" yaml:"agency"`
	Service   string `mapstructure:"service" yaml:"service"`
}

// EndUserConfig drives the public booking flow.
type EndUserConfig struct {
	// Attachment is a local file uploaded with the diagnostic form. Empty skips the upload.
	Attachment string `mapstructure:"attachment" yaml:"attachment"`
	// PreferredDays are days of the month tried first in the date picker.
	PreferredDays []int `mapstructure:"preferred_days" yaml:"preferred_days"`
	// DateAttempts bounds how many dates are tried before giving up.
	DateAttempts int `mapstructure:"date_attempts" yaml:"date_attempts"`
}

// SchedulingConfig carries the calendar business rules. Clock values are "HH:MM".
type SchedulingConfig struct {
	WorkStart     string        `mapstructure:"work_start" yaml:"work_start"`
	WorkEnd       string        `mapstructure:"work_end" yaml:"work_end"`
	BookingBuffer time.Duration `mapstructure:"booking_buffer" yaml:"booking_buffer"`
	SameDayCutoff string        `mapstructure:"same_day_cutoff" yaml:"same_day_cutoff"`
	ConflictMode  string        `mapstructure:"conflict_mode" yaml:"conflict_mode"`
}

type TimeoutsConfig struct {
	ResolverAttempt time.Duration `mapstructure:"resolver_attempt" yaml:"resolver_attempt"`
	PageLoad        time.Duration `mapstructure:"page_load" yaml:"page_load"`
	FastPageLoad    bool          `mapstructure:"fast_page_load" yaml:"fast_page_load"`
	ShortWait       time.Duration `mapstructure:"short_wait" yaml:"short_wait"`
	MediumWait      time.Duration `mapstructure:"medium_wait" yaml:"medium_wait"`
	LongWait        time.Duration `mapstructure:"long_wait" yaml:"long_wait"`
	Settle          time.Duration `mapstructure:"settle" yaml:"settle"`
}

type ReportConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	ResultsDir string `mapstructure:"results_dir" yaml:"results_dir"`
}

type RunnerConfig struct {
	Parallelism     int `mapstructure:"parallelism" yaml:"parallelism"`
	NavigateRetries int `mapstructure:"navigate_retries" yaml:"navigate_retries"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// The defaults are static, a failure here is a programming error.
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// SetDefaults registers every default value with the provided viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autotest")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.name", "chrome")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})

	// -- Applications --
	v.SetDefault("apps.enduser_url", "https://autoteam-dev.teamdev.tn/home")
	v.SetDefault("apps.backoffice_url", "https://autoteam-bo-dev.teamdev.tn/auth")

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "password")

	// -- Vehicle under test --
	v.SetDefault("vehicle.plate_numero", "1234")
	v.SetDefault("vehicle.plate_serie", "ABC")
	v.SetDefault("vehicle.mileage", "15000")
	v.SetDefault("vehicle.chassis_number", "")
	v.SetDefault("vehicle.description", "")

	v.SetDefault("backoffice.workspace", "HAVAL")
	v.SetDefault("backoffice.agency", "Atlas Auto")
	v.SetDefault("backoffice.service", "Service Diagnostique")

	// -- End-user booking --
	v.SetDefault("enduser.attachment", "")
	v.SetDefault("enduser.preferred_days", []int{8})
	v.SetDefault("enduser.date_attempts", 3)

	// -- Scheduling rules --
	v.SetDefault("scheduling.work_start", "11:00")
	v.SetDefault("scheduling.work_end", "18:00")
	v.SetDefault("scheduling.booking_buffer", "30m")
	v.SetDefault("scheduling.same_day_cutoff", "12:00")
	v.SetDefault("scheduling.conflict_mode", ConflictModeGlobal)

	// -- Timeouts --
	v.SetDefault("timeouts.resolver_attempt", "15s")
	v.SetDefault("timeouts.page_load", "60s")
	v.SetDefault("timeouts.fast_page_load", true)
	v.SetDefault("timeouts.short_wait", "1s")
	v.SetDefault("timeouts.medium_wait", "2s")
	v.SetDefault("timeouts.long_wait", "3s")
	v.SetDefault("timeouts.settle", "500ms")

	// -- Report --
	v.SetDefault("report.enabled", true)
	v.SetDefault("report.results_dir", "target/autotest-results")

	// -- Runner --
	v.SetDefault("runner.parallelism", 1)
	v.SetDefault("runner.navigate_retries", 3)

	// -- Tracing --
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// NewConfigFromViper unmarshals a viper instance into a validated Config.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Credentials are commonly injected by CI rather than written to disk.
	_ = v.BindEnv("admin.password", EnvPrefix+"_ADMIN_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	for _, path := range []*string{&cfg.ReportCfg.ResultsDir, &cfg.LoggerCfg.LogFile, &cfg.EndUserCfg.Attachment} {
		expanded, err := homedir.Expand(*path)
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", *path, err)
		}
		*path = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.AppsCfg.BackofficeURL == "" {
		return fmt.Errorf("apps.backoffice_url is a required configuration field")
	}
	if c.RunnerCfg.Parallelism <= 0 {
		return fmt.Errorf("runner.parallelism must be a positive integer")
	}
	if c.RunnerCfg.NavigateRetries <= 0 {
		return fmt.Errorf("runner.navigate_retries must be a positive integer")
	}
	if c.EndUserCfg.DateAttempts <= 0 {
		return fmt.Errorf("enduser.date_attempts must be a positive integer")
	}
	for _, d := range c.EndUserCfg.PreferredDays {
		if d < 1 || d > 31 {
			return fmt.Errorf("enduser.preferred_days: %d is not a day of the month", d)
		}
	}
	if c.TimeoutsCfg.ResolverAttempt <= 0 {
		return fmt.Errorf("timeouts.resolver_attempt must be positive")
	}
	if err := c.SchedulingCfg.Validate(); err != nil {
		return fmt.Errorf("scheduling configuration invalid: %w", err)
	}
	if c.TracingCfg.SampleRatio < 0 || c.TracingCfg.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0.0 and 1.0")
	}
	return nil
}

const (
	ConflictModeGlobal  = "global"
	ConflictModeOverlap = "overlap"
)

// Validate checks the clock strings and the conflict mode.
func (s SchedulingConfig) Validate() error {
	for key, val := range map[string]string{
		"work_start":      s.WorkStart,
		"work_end":        s.WorkEnd,
		"same_day_cutoff": s.SameDayCutoff,
	} {
		if _, err := ParseClock(val); err != nil {
			return fmt.Errorf("scheduling.%s: %w", key, err)
		}
	}
	start, _ := ParseClock(s.WorkStart)
	end, _ := ParseClock(s.WorkEnd)
	if end < start {
		return fmt.Errorf("scheduling.work_end (%s) is before work_start (%s)", s.WorkEnd, s.WorkStart)
	}
	if s.BookingBuffer < 0 {
		return fmt.Errorf("scheduling.booking_buffer must not be negative")
	}
	switch strings.ToLower(s.ConflictMode) {
	case ConflictModeGlobal, ConflictModeOverlap:
	default:
		return fmt.Errorf("scheduling.conflict_mode must be %q or %q, got %q", ConflictModeGlobal, ConflictModeOverlap, s.ConflictMode)
	}
	return nil
}

// ParseClock parses "HH:MM" or "HH:MM:SS" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}
