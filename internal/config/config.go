// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Site     SiteConfig     `mapstructure:"site" yaml:"site"`
	Search   SearchConfig   `mapstructure:"search" yaml:"search"`
	Runner   RunnerConfig   `mapstructure:"runner" yaml:"runner"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
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

// BrowserConfig controls the Chrome process launched by the browser manager.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string         `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	LaunchTimeout     time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`

	// Stealth hides the automation markers from page scripts and applies
	// the locale, timezone and languages below to every tab.
	Stealth   bool     `mapstructure:"stealth" yaml:"stealth"`
	Locale    string   `mapstructure:"locale" yaml:"locale"`
	Timezone  string   `mapstructure:"timezone" yaml:"timezone"`
	Languages []string `mapstructure:"languages" yaml:"languages"`
}

// SiteConfig describes the landing page and the controls of the trigger flow.
// Locator strings use the "css:" or "xpath:" prefix; unprefixed strings are CSS.
type SiteConfig struct {
	BaseURL          string        `mapstructure:"base_url" yaml:"base_url"`
	LandingPath      string        `mapstructure:"landing_path" yaml:"landing_path"`
	SettlePause      time.Duration `mapstructure:"settle_pause" yaml:"settle_pause"`
	ConsentTimeout   time.Duration `mapstructure:"consent_timeout" yaml:"consent_timeout"`
	ConsentButtons   []string      `mapstructure:"consent_buttons" yaml:"consent_buttons"`
	SearchTriggers   []string      `mapstructure:"search_triggers" yaml:"search_triggers"`
	OverlayRoot      string        `mapstructure:"overlay_root" yaml:"overlay_root"`
	SuggestionPanels []string      `mapstructure:"suggestion_panels" yaml:"suggestion_panels"`
	SuggestionItems  []string      `mapstructure:"suggestion_items" yaml:"suggestion_items"`
}

// SearchConfig holds the locators, phrases and timing used to observe the search overlay.
type SearchConfig struct {
	OverlayPanes       []string      `mapstructure:"overlay_panes" yaml:"overlay_panes"`
	Input              string        `mapstructure:"input" yaml:"input"`
	ResultsCount       string        `mapstructure:"results_count" yaml:"results_count"`
	CountPattern       string        `mapstructure:"count_pattern" yaml:"count_pattern"`
	VisibleRows        string        `mapstructure:"visible_rows" yaml:"visible_rows"`
	HiddenRowClass     string        `mapstructure:"hidden_row_class" yaml:"hidden_row_class"`
	NoResultsScoped    string        `mapstructure:"no_results_scoped" yaml:"no_results_scoped"`
	NoResultsBox       string        `mapstructure:"no_results_box" yaml:"no_results_box"`
	ClearButton        string        `mapstructure:"clear_button" yaml:"clear_button"`
	NoResultsPhrases   []string      `mapstructure:"no_results_phrases" yaml:"no_results_phrases"`
	HistoryEmptyPhrase string        `mapstructure:"history_empty_phrase" yaml:"history_empty_phrase"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SettleTimeout      time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
	MessageTimeout     time.Duration `mapstructure:"message_timeout" yaml:"message_timeout"`
	HistoryTimeout     time.Duration `mapstructure:"history_timeout" yaml:"history_timeout"`
	ClearTimeout       time.Duration `mapstructure:"clear_timeout" yaml:"clear_timeout"`
	InputTimeout       time.Duration `mapstructure:"input_timeout" yaml:"input_timeout"`
}

// RunnerConfig tunes how scenario files are executed.
type RunnerConfig struct {
	ScenarioFile    string        `mapstructure:"scenario_file" yaml:"scenario_file"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	StartsPerSecond float64       `mapstructure:"starts_per_second" yaml:"starts_per_second"`
	ScenarioTimeout time.Duration `mapstructure:"scenario_timeout" yaml:"scenario_timeout"`
	ArtifactsDir    string        `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
}

// ReportConfig selects the report writer.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// DatabaseConfig holds the database connection details. An empty URL disables run history.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
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
	v.SetDefault("logger.service_name", "searchprobe")
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
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "")
	v.SetDefault("browser.languages", []string{"en-US", "en"})
	v.SetDefault("browser.viewport", map[string]int{"width": 1440, "height": 900})
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "45s")

	// -- Site --
	v.SetDefault("site.base_url", "https://en.sportingbull.com")
	v.SetDefault("site.landing_path", "sportsbook")
	v.SetDefault("site.settle_pause", "1s")
	v.SetDefault("site.consent_timeout", "8s")
	v.SetDefault("site.consent_buttons", []string{
		"button#onetrust-accept-btn-handler",
		"button[aria-label*='Accept']",
		"xpath://button[contains(.,'Accept all') or contains(.,'Accept')]",
		"xpath://button[contains(.,'I agree') or contains(.,'Agree')]",
		"xpath://button[contains(.,'Allow')]",
	})
	v.SetDefault("site.search_triggers", []string{
		"span.search-button__text.search-button--sport",
		"button.search-button",
		".spb-icon__svg",
	})
	v.SetDefault("site.overlay_root", ".cdk-overlay-container")
	v.SetDefault("site.suggestion_panels", []string{
		"[role='listbox']",
		".autocomplete, .typeahead, .suggestions",
	})
	v.SetDefault("site.suggestion_items", []string{
		"[role='listbox'] [role='option']",
		".suggestions li, .autocomplete li, .typeahead li",
	})

	// -- Search --
	v.SetDefault("search.overlay_panes", []string{".cdk-overlay-container .cdk-overlay-pane.sports-search-panel"})
	v.SetDefault("search.input", "#search-input")
	v.SetDefault("search.results_count", ".search-results-count")
	v.SetDefault("search.count_pattern", `\((\d+)\)`)
	v.SetDefault("search.visible_rows", ".search-dropdown__item:not(.search-dropdown__item--hidden)")
	v.SetDefault("search.hidden_row_class", "search-dropdown__item--hidden")
	v.SetDefault("search.no_results_scoped", ".search-dropdown.search-dropdown--no-results:not(.search-dropdown__item--hidden) .search-no-results")
	v.SetDefault("search.no_results_box", ".search-no-results")
	v.SetDefault("search.clear_button", ".search-input__icon--clear")
	v.SetDefault("search.no_results_phrases", []string{"no results", "match your", "search"})
	v.SetDefault("search.history_empty_phrase", "history is empty")
	v.SetDefault("search.poll_interval", "200ms")
	v.SetDefault("search.settle_timeout", "30s")
	v.SetDefault("search.message_timeout", "30s")
	v.SetDefault("search.history_timeout", "15s")
	v.SetDefault("search.clear_timeout", "20s")
	v.SetDefault("search.input_timeout", "15s")

	// -- Runner --
	v.SetDefault("runner.scenario_file", "")
	v.SetDefault("runner.concurrency", 2)
	v.SetDefault("runner.starts_per_second", 1.0)
	v.SetDefault("runner.scenario_timeout", "3m")
	v.SetDefault("runner.artifacts_dir", "artifacts")

	// -- Report --
	v.SetDefault("report.format", "json")
	v.SetDefault("report.output", "")

	// -- Database --
	v.SetDefault("database.url", "")
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	_ = v.BindEnv("database.url", "SEARCHPROBE_DATABASE_URL")

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
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is a required configuration field")
	}
	if u, err := url.Parse(c.Site.BaseURL); err != nil || u.Scheme == "" {
		return fmt.Errorf("site.base_url must be an absolute URL")
	}
	if len(c.Search.OverlayPanes) == 0 {
		return fmt.Errorf("search.overlay_panes must list at least one locator")
	}
	if c.Search.Input == "" {
		return fmt.Errorf("search.input is a required configuration field")
	}
	if c.Search.PollInterval <= 0 {
		return fmt.Errorf("search.poll_interval must be a positive duration")
	}
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	if c.Runner.StartsPerSecond < 0 {
		return fmt.Errorf("runner.starts_per_second must not be negative")
	}
	switch strings.ToLower(c.Report.Format) {
	case "json", "junit":
	default:
		return fmt.Errorf("report.format must be one of json, junit (got %q)", c.Report.Format)
	}
	return nil
}
