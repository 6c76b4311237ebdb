// conf/validate.go

package conf

import (
	"fmt"
	"os"

	"github.com/radiocollartracker/sdr-record/internal/errors"
)

// ErrConfiguration is the sentinel matched by every ConfigurationError
var ErrConfiguration = errors.NewStd("invalid configuration")

// ConfigurationError names the first option that is missing or invalid
type ConfigurationError struct {
	Field  string // option name as used on the command line
	Reason string
}

// Error returns a string representation of the configuration error
func (ce *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ce.Field, ce.Reason)
}

// Unwrap lets errors.Is match ErrConfiguration
func (ce *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// ErrorCategory implements errors.CategorizedError
func (ce *ConfigurationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryConfiguration
}

func missing(field, reason string) error {
	return &ConfigurationError{Field: field, Reason: reason}
}

// Validate checks raw options and returns read-only Settings. Required options
// are checked in a fixed order (run, gain, output, center_freq, sampling_freq)
// and the first failure is returned; no partial Settings are ever returned.
func Validate(opts Options) (*Settings, error) {
	if opts.RunNum == 0 {
		return nil, missing("run", "must set run number")
	}
	if opts.Gain < 0 {
		return nil, missing("gain", "must set gain")
	}
	if opts.Output == "" {
		return nil, missing("output", "must set directory")
	}
	if opts.CenterFreq == 0 {
		return nil, missing("center_freq", "must set freq")
	}
	if opts.SamplingFreq == 0 {
		return nil, missing("sampling_freq", "must set rate")
	}

	if err := validatePingSettings(&opts); err != nil {
		return nil, err
	}
	if err := validateTestSettings(&opts); err != nil {
		return nil, err
	}

	if opts.BufferLen <= 0 {
		return nil, missing("buffer_len", "must be positive")
	}

	// Copy the frequency list so later changes to the caller's slice are not observed
	opts.Frequencies = append([]int64(nil), opts.Frequencies...)
	return &Settings{Options: opts}, nil
}

// validatePingSettings validates the detector parameters
func validatePingSettings(opts *Options) error {
	if opts.PingWidthMs <= 0 {
		return missing("ping_width_ms", "must be positive")
	}
	if opts.PingMinSNR < 0 {
		return missing("ping_min_snr", "must not be negative")
	}
	if opts.PingMinLenMult <= 0 {
		return missing("ping_min_len_mult", "must be positive")
	}
	if opts.PingMaxLenMult < opts.PingMinLenMult {
		return missing("ping_max_len_mult", "must not be smaller than ping_min_len_mult")
	}

	half := int64(opts.SamplingFreq / 2)
	for _, f := range opts.Frequencies {
		offset := f - int64(opts.CenterFreq)
		if offset <= -half || offset >= half {
			return missing("frequencies", fmt.Sprintf("%d Hz is outside the %d Hz receive band", f, opts.SamplingFreq))
		}
	}
	return nil
}

// validateTestSettings checks the test data path when test mode replays a recording
func validateTestSettings(opts *Options) error {
	if !opts.TestConfig || opts.TestData == "" {
		return nil
	}
	if _, err := os.Stat(opts.TestData); err != nil {
		return missing("test_data", fmt.Sprintf("cannot access %s", opts.TestData))
	}
	return nil
}
