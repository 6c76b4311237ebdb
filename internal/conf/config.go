// config.go: run configuration for the recorder. It defines the option and
// settings structs and the functions that load them through viper.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/radiocollartracker/sdr-record/internal/logger"
)

// Options holds raw option values as read from flags, environment and the
// optional config file. Options are not trusted until validated.
type Options struct {
	RunNum       uint64  `mapstructure:"run" yaml:"run"`                     // run identifier
	Gain         float64 `mapstructure:"gain" yaml:"gain"`                   // receiver gain in dB, -1 when unset
	SamplingFreq uint64  `mapstructure:"sampling_freq" yaml:"sampling_freq"` // sample rate in Hz
	CenterFreq   uint64  `mapstructure:"center_freq" yaml:"center_freq"`     // tuner center frequency in Hz
	Output       string  `mapstructure:"output" yaml:"output"`               // output directory
	Verbose      int     `mapstructure:"verbose" yaml:"verbose"`             // syslog-style verbosity 0-7

	TestConfig bool   `mapstructure:"test_config" yaml:"test_config"` // replay or synthesize samples instead of opening hardware
	TestData   string `mapstructure:"test_data" yaml:"test_data"`     // recorded IQ to replay in test mode

	Frequencies    []int64 `mapstructure:"frequencies" yaml:"frequencies"`             // transmitter frequencies to detect, Hz
	PingWidthMs    int     `mapstructure:"ping_width_ms" yaml:"ping_width_ms"`         // expected pulse width
	PingMinSNR     float64 `mapstructure:"ping_min_snr" yaml:"ping_min_snr"`           // detection threshold over noise floor, dB
	PingMaxLenMult float64 `mapstructure:"ping_max_len_mult" yaml:"ping_max_len_mult"` // longest accepted pulse, multiple of width
	PingMinLenMult float64 `mapstructure:"ping_min_len_mult" yaml:"ping_min_len_mult"` // shortest accepted pulse, multiple of width

	GPSTarget string `mapstructure:"gps_target" yaml:"gps_target"` // serial device with NMEA output
	GPSMode   bool   `mapstructure:"gps_mode" yaml:"gps_mode"`     // tag pings with GPS fixes

	BufferLen     int    `mapstructure:"buffer_len" yaml:"buffer_len"`         // samples per raw buffer
	MetricsListen string `mapstructure:"metrics_listen" yaml:"metrics_listen"` // Prometheus endpoint address, empty disables
	LogFile       string `mapstructure:"log_file" yaml:"log_file"`             // optional JSON log file
}

// Settings is a validated, read-only run configuration. The only way to obtain
// one is Validate (or Build, which calls it); it is never modified afterwards.
type Settings struct {
	Options `yaml:",inline"`
}

// NewViper returns a viper instance with defaults and environment binding set up
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaultConfig(v)
	bindEnv(v)
	return v
}

// ReadConfigFile merges an optional YAML config file into v
func ReadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return nil
}

// Verbosity reads the verbosity option, clamped into 0-7. The second return
// value reports whether the requested value was out of range.
func Verbosity(v *viper.Viper) (int, bool) {
	return logger.ClampVerbosity(v.GetInt("verbose"))
}

// Build unmarshals the raw options held by v and validates them
func Build(v *viper.Viper) (*Settings, error) {
	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, &ConfigurationError{Field: "options", Reason: err.Error()}
	}
	opts.Verbose, _ = Verbosity(v)
	return Validate(opts)
}

// RunFile returns the path of a per-run file: <output>/<prefix><run zero-padded to 6 digits>
func (s *Settings) RunFile(prefix string) string {
	return filepath.Join(s.Output, fmt.Sprintf("%s%0*d", prefix, RunNumDigits, s.RunNum))
}

// YAML renders the settings as a YAML document
func (s *Settings) YAML() ([]byte, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings: %w", err)
	}
	return out, nil
}

// String returns a compact one-line description used in log output
func (s *Settings) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run=%d gain=%g rate=%d freq=%d output=%s",
		s.RunNum, s.Gain, s.SamplingFreq, s.CenterFreq, s.Output)
	if s.TestConfig {
		fmt.Fprintf(&b, " test_data=%q", s.TestData)
	}
	return b.String()
}
