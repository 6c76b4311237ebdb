// Package cmd implements the sdr_record command line
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/radiocollartracker/sdr-record/internal/buildinfo"
	"github.com/radiocollartracker/sdr-record/internal/conf"
	"github.com/radiocollartracker/sdr-record/internal/controller"
	"github.com/radiocollartracker/sdr-record/internal/errors"
	"github.com/radiocollartracker/sdr-record/internal/logger"
	"github.com/radiocollartracker/sdr-record/internal/metadata"
	"github.com/radiocollartracker/sdr-record/internal/sdr"
)

// Process exit statuses
const (
	ExitOK          = 0 // help, usage after a validation failure, clean stop
	ExitHardware    = 1 // no SDR device
	ExitFatal       = 2 // any other runtime failure
	appName         = "sdr_record"
	configFlagName  = "config"
	defaultLogLevel = logger.LogLevelWarn
)

// exitError carries the status a failure maps to
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// runner builds and runs the controller; replaced in tests
type runner func(settings *conf.Settings, log logger.Logger) error

func runController(settings *conf.Settings, log logger.Logger) error {
	c := controller.New(settings, controller.Options{Logger: log})
	if err := c.Init(); err != nil {
		_ = c.Shutdown()
		return err
	}
	return c.Run()
}

// RootCommand creates the root command. v holds the option sources; every
// flag is bound to it.
func RootCommand(v *viper.Viper, central *logger.CentralLogger) *cobra.Command {
	return newRootCommand(v, central, runController)
}

func newRootCommand(v *viper.Viper, central *logger.CentralLogger, run runner) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Record and process SDR samples for radio telemetry",
		Long:          "Acquire IQ samples from a software defined radio, detect transmitter pings and log them for localization.",
		Version:       buildinfo.Current().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, ok, err := loadSettings(cmd, v, central)
			if err != nil || !ok {
				return err
			}
			return execute(settings, central, run)
		},
	}

	if err := setupFlags(rootCmd, v); err != nil {
		// flag definitions are static, a failure here is a programming error
		panic(err)
	}

	rootCmd.AddCommand(configCommand(v, central))
	return rootCmd
}

// setupFlags defines the options and binds them to v
func setupFlags(rootCmd *cobra.Command, v *viper.Viper) error {
	flags := rootCmd.PersistentFlags()
	defineFlags(flags)

	// Bind flags to the viper settings
	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

func defineFlags(flags *pflag.FlagSet) {
	flags.Float64P("gain", "g", -1, "Gain")
	flags.Uint64P("sampling_freq", "s", 0, "Sampling Frequency")
	flags.Uint64P("center_freq", "c", 0, "Center Frequency")
	flags.Uint64P("run", "r", 0, "Run Number")
	flags.StringP("output", "o", "", "Output Data Directory")
	flags.IntP("verbose", "v", conf.DefaultVerbosity, "Verbosity Level (0-7)")

	flags.Bool("test_config", false, "Replay recorded samples or synthesize pings instead of opening a radio")
	flags.String("test_data", "", "File or directory of RAW_DATA_* recordings to replay in test mode")
	flags.StringSlice("frequencies", nil, "Transmitter frequencies to detect, Hz")
	flags.Int("ping_width_ms", 36, "Expected ping width in milliseconds")
	flags.Float64("ping_min_snr", 4, "Minimum ping SNR in dB")
	flags.Float64("ping_max_len_mult", 1.5, "Longest accepted ping as a multiple of the width")
	flags.Float64("ping_min_len_mult", 0.75, "Shortest accepted ping as a multiple of the width")
	flags.String("gps_target", "", "Serial device of the NMEA GPS receiver")
	flags.Bool("gps_mode", false, "Tag pings with GPS fixes")
	flags.Int("buffer_len", 65536, "Samples per raw buffer")
	flags.String("metrics_listen", "", "Listen address of the Prometheus endpoint, empty disables it")
	flags.String("log_file", "", "Also write JSON logs to this file")
	flags.String(configFlagName, "", "YAML file with option values")
}

// loadSettings merges the config file, applies the verbosity to the logger
// and validates the options. ok is false when validation failed and usage
// was printed instead.
func loadSettings(cmd *cobra.Command, v *viper.Viper, central *logger.CentralLogger) (*conf.Settings, bool, error) {
	log := central.Module("cli")

	if err := conf.ReadConfigFile(v, v.GetString(configFlagName)); err != nil {
		return nil, false, &exitError{code: ExitFatal, err: err}
	}

	verbosity, clamped := conf.Verbosity(v)
	central.SetLevel(logger.LevelFromVerbosity(verbosity))
	if clamped {
		log.Warn("verbosity out of range, clamped",
			logger.Int("requested", v.GetInt("verbose")),
			logger.Int("verbosity", verbosity))
	}

	settings, err := conf.Build(v)
	if err != nil {
		if errors.Is(err, conf.ErrConfiguration) {
			log.Error(err.Error())
			_ = cmd.Usage()
			return nil, false, nil
		}
		return nil, false, &exitError{code: ExitFatal, err: err}
	}

	log.Info("options validated", logger.String("settings", settings.String()))
	return settings, true, nil
}

func execute(settings *conf.Settings, central *logger.CentralLogger, run runner) error {
	if settings.LogFile != "" {
		if err := central.AddFile(settings.LogFile); err != nil {
			return &exitError{code: ExitFatal, err: err}
		}
	}
	log := central.Module("cli")

	err := run(settings, central.Module(appName))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sdr.ErrHardwareUnavailable):
		log.Error("No devices found!", logger.Error(err))
		return &exitError{code: ExitHardware, err: err}
	case errors.Is(err, metadata.ErrMetadataWrite):
		log.Error("cannot write run metadata", logger.Error(err))
		return &exitError{code: ExitFatal, err: err}
	default:
		log.Error("pipeline failed", logger.Error(err))
		return &exitError{code: ExitFatal, err: err}
	}
}

// Execute runs the command line and returns the process exit status
func Execute(args []string, stdout, stderr io.Writer) int {
	central, err := logger.NewCentralLogger(&logger.LoggingConfig{Level: string(defaultLogLevel)})
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger: %v\n", err)
		return ExitFatal
	}
	logger.SetGlobal(central)
	defer func() { _ = central.Close() }()

	return executeWith(RootCommand(conf.NewViper(), central), args, stdout, stderr)
}

func executeWith(rootCmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.Execute()
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// flag parsing errors: report like a missing option
	fmt.Fprintln(stderr, err)
	_ = rootCmd.Usage()
	return ExitOK
}
