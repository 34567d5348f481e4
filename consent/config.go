package consent

import (
	"github.com/hazyhaar/bannerclick/consent/internal/config"
)

// Config is the top-level bannerclick configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// DetectionConfig controls the retry and translate state machine.
type DetectionConfig = config.DetectionConfig

// InteractionConfig controls the button classifier.
type InteractionConfig = config.InteractionConfig

// CaptureConfig controls what is stored per visit.
type CaptureConfig = config.CaptureConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfigFile reads a YAML configuration file over the defaults.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}
