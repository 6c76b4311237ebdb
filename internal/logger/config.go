package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`       // debug, info, warn, error
	Timezone string `yaml:"timezone" json:"timezone"` // "Local", "UTC", or IANA timezone name
	JSON     bool   `yaml:"json" json:"json"`         // JSON encoding instead of console text
	File     string `yaml:"file" json:"file"`         // optional log file path in addition to stderr
	NoColor  bool   `yaml:"no_color" json:"no_color"` // disable colored level names on the console
}

// Default values for logging configuration.
const (
	DefaultLogLevel = "warn"
	DefaultTimezone = "Local"
)

// applyConfigDefaults applies defaults for unset configuration fields.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}
	if cfg.Level == "" {
		cfg.Level = DefaultLogLevel
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}
}
