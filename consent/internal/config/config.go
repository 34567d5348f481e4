// CLAUDE:SUMMARY Defines bannerclick config structs, parses YAML files with defaults and applies BANNERCLICK_ environment overrides.
// Package config handles bannerclick configuration from YAML files and the
// environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BANNERCLICK_"

// Config is the top-level bannerclick configuration.
type Config struct {
	Browser     BrowserConfig     `yaml:"browser" envPrefix:"BROWSER_"`
	Navigation  NavigationConfig  `yaml:"navigation" envPrefix:"NAVIGATION_"`
	Detection   DetectionConfig   `yaml:"detection" envPrefix:"DETECTION_"`
	Interaction InteractionConfig `yaml:"interaction" envPrefix:"INTERACTION_"`
	Capture     CaptureConfig     `yaml:"capture" envPrefix:"CAPTURE_"`
	Sinks       []SinkConfig      `yaml:"sinks"`
	Workers     WorkersConfig     `yaml:"workers" envPrefix:"WORKERS_"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote" env:"REMOTE"`
	MemoryLimit      int64         `yaml:"memory_limit" env:"MEMORY_LIMIT"`
	RecycleInterval  time.Duration `yaml:"recycle_interval" env:"RECYCLE_INTERVAL"`
	ResourceBlocking []string      `yaml:"resource_blocking" env:"RESOURCE_BLOCKING" envSeparator:","`
	Stealth          string        `yaml:"stealth" env:"STEALTH"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display" env:"XVFB_DISPLAY"`
	ViewportWidth    int           `yaml:"viewport_width" env:"VIEWPORT_WIDTH"`
	ViewportHeight   int           `yaml:"viewport_height" env:"VIEWPORT_HEIGHT"`
}

// NavigationConfig controls the page navigator.
type NavigationConfig struct {
	Schemes         []string      `yaml:"schemes" env:"SCHEMES" envSeparator:","`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout" env:"PAGE_LOAD_TIMEOUT"`
	BodyTimeout     time.Duration `yaml:"body_timeout" env:"BODY_TIMEOUT"`
}

// DetectionConfig controls the retry/translate state machine.
type DetectionConfig struct {
	Attempts           int           `yaml:"attempts" env:"ATTEMPTS"`
	AttemptStep        time.Duration `yaml:"attempt_step" env:"ATTEMPT_STEP"`
	Translation        bool          `yaml:"translation" env:"TRANSLATION"`
	TranslateURL       string        `yaml:"translate_url" env:"TRANSLATE_URL"`
	WordCountThreshold int           `yaml:"word_count_threshold" env:"WORD_COUNT_THRESHOLD"`
	ReadyTimeout       time.Duration `yaml:"ready_timeout" env:"READY_TIMEOUT"`
	Settle             time.Duration `yaml:"settle" env:"SETTLE"`
	StaleBackoff       time.Duration `yaml:"stale_backoff" env:"STALE_BACKOFF"`
	// Words is an optional YAML word-list file replacing the built-in lists.
	Words string `yaml:"words" env:"WORDS"`
}

// InteractionConfig controls the button classifier.
type InteractionConfig struct {
	Choice           string        `yaml:"choice" env:"CHOICE"` // accept | reject | settings | login | none
	NonExplicit      bool          `yaml:"non_explicit" env:"NON_EXPLICIT"`
	SettingsFallback bool          `yaml:"settings_fallback" env:"SETTINGS_FALLBACK"`
	DirectReject     bool          `yaml:"direct_reject" env:"DIRECT_REJECT"`
	Extension        string        `yaml:"extension" env:"EXTENSION"`
	ExtensionWait    time.Duration `yaml:"extension_wait" env:"EXTENSION_WAIT"`
	ClickSettle      time.Duration `yaml:"click_settle" env:"CLICK_SETTLE"`
	Login            LoginConfig   `yaml:"login" envPrefix:"LOGIN_"`
}

// LoginConfig is the account-gated continue flow.
type LoginConfig struct {
	ContinueSelector string        `yaml:"continue_selector" env:"CONTINUE_SELECTOR"`
	EmailSelector    string        `yaml:"email_selector" env:"EMAIL_SELECTOR"`
	PasswordSelector string        `yaml:"password_selector" env:"PASSWORD_SELECTOR"`
	SubmitSelector   string        `yaml:"submit_selector" env:"SUBMIT_SELECTOR"`
	Email            string        `yaml:"email" env:"EMAIL"`
	Password         string        `yaml:"-" env:"PASSWORD"`
	Wait             time.Duration `yaml:"wait" env:"WAIT"`
}

// CaptureConfig controls what is stored per visit.
type CaptureConfig struct {
	Screenshots string `yaml:"screenshots" env:"SCREENSHOTS"` // directory, empty = off
	Markup      bool   `yaml:"markup" env:"MARKUP"`
	Sanitize    bool   `yaml:"sanitize" env:"SANITIZE"`
	Markdown    bool   `yaml:"markdown" env:"MARKDOWN"`
	SaveBody    bool   `yaml:"save_body" env:"SAVE_BODY"`
	// NoBannerScreenshots also captures pages without a banner, under
	// <screenshots>/nobanner.
	NoBannerScreenshots bool `yaml:"nobanner_screenshots" env:"NOBANNER_SCREENSHOTS"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | sqlite
	URL  string `yaml:"url"`  // for webhook
	Path string `yaml:"path"` // for sqlite
}

// WorkersConfig controls the crawl pool.
type WorkersConfig struct {
	Count int `yaml:"count" env:"COUNT"`
	// VisitsPerSession recycles a worker's session after that many visits.
	// Zero keeps sessions until they die.
	VisitsPerSession int `yaml:"visits_per_session" env:"VISITS_PER_SESSION"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{
		Detection: DetectionConfig{
			Attempts: 2,
			Settle:   2 * time.Second,
		},
		Interaction: InteractionConfig{
			Choice:           "accept",
			NonExplicit:      true,
			SettingsFallback: true,
			DirectReject:     true,
		},
	}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file. Keys missing from the file keep
// their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// ParseEnv applies BANNERCLICK_ environment overrides.
func (c *Config) ParseEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	c.applyDefaults()
	return nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Interaction.Choice {
	case "", "none", "accept", "reject", "settings", "login":
	default:
		return fmt.Errorf("config: unknown interaction choice %q", c.Interaction.Choice)
	}
	switch c.Browser.Stealth {
	case "headless", "headful":
	default:
		return fmt.Errorf("config: unknown stealth mode %q", c.Browser.Stealth)
	}
	if c.Detection.Attempts < 0 {
		return fmt.Errorf("config: negative attempts")
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: webhook sink without url")
			}
		case "sqlite":
			if s.Path == "" {
				return fmt.Errorf("config: sqlite sink without path")
			}
		default:
			return fmt.Errorf("config: unknown sink type %q", s.Type)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.ViewportWidth <= 0 {
		c.Browser.ViewportWidth = 1280
	}
	if c.Browser.ViewportHeight <= 0 {
		c.Browser.ViewportHeight = 720
	}
	if len(c.Navigation.Schemes) == 0 {
		c.Navigation.Schemes = []string{"https", "http"}
	}
	if c.Navigation.PageLoadTimeout <= 0 {
		c.Navigation.PageLoadTimeout = 60 * time.Second
	}
	if c.Navigation.BodyTimeout <= 0 {
		c.Navigation.BodyTimeout = 5 * time.Second
	}
	if c.Detection.AttemptStep <= 0 {
		c.Detection.AttemptStep = 5 * time.Second
	}
	if c.Detection.WordCountThreshold <= 0 {
		c.Detection.WordCountThreshold = 3
	}
	if c.Detection.ReadyTimeout <= 0 {
		c.Detection.ReadyTimeout = 30 * time.Second
	}
	if c.Detection.Settle < 0 {
		c.Detection.Settle = 0
	}
	if c.Detection.StaleBackoff <= 0 {
		c.Detection.StaleBackoff = 500 * time.Millisecond
	}
	if c.Interaction.ExtensionWait <= 0 {
		c.Interaction.ExtensionWait = 1500 * time.Millisecond
	}
	if c.Interaction.ClickSettle <= 0 {
		c.Interaction.ClickSettle = 500 * time.Millisecond
	}
	if c.Interaction.Login.Wait <= 0 {
		c.Interaction.Login.Wait = 3 * time.Second
	}
	if c.Workers.Count <= 0 {
		c.Workers.Count = 1
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout"}}
	}
}
