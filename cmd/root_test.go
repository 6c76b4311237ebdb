package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiocollartracker/sdr-record/internal/conf"
	"github.com/radiocollartracker/sdr-record/internal/logger"
	"github.com/radiocollartracker/sdr-record/internal/metadata"
	"github.com/radiocollartracker/sdr-record/internal/sdr"
)

func requiredArgs(dir string) []string {
	return []string{"-r", "7", "-g", "30", "-o", dir, "-c", "150000000", "-s", "2000000"}
}

type result struct {
	code     int
	stdout   string
	logs     string
	settings *conf.Settings
	calls    int
}

func runCLI(t *testing.T, run runner, args ...string) result {
	t.Helper()

	logs := &bytes.Buffer{}
	central := logger.NewTestLogger(logs, logger.LogLevelDebug)
	t.Cleanup(func() { _ = central.Close() })

	res := result{}
	wrapped := func(s *conf.Settings, log logger.Logger) error {
		res.calls++
		res.settings = s
		if run == nil {
			return nil
		}
		return run(s, log)
	}

	stdout := &bytes.Buffer{}
	res.code = executeWith(newRootCommand(conf.NewViper(), central, wrapped), args, stdout, stdout)
	res.stdout = stdout.String()
	res.logs = logs.String()
	return res
}

func TestMissingRunPrintsUsageAndExitsZero(t *testing.T) {
	t.Parallel()

	res := runCLI(t, nil, "-g", "30", "-o", t.TempDir())
	assert.Equal(t, ExitOK, res.code)
	assert.Zero(t, res.calls, "controller must not start without a run number")
	assert.Contains(t, res.stdout, "Usage:")
	assert.Contains(t, res.logs, "must set run number")
}

func TestValidationOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"gain", []string{"-r", "1"}, "must set gain"},
		{"output", []string{"-r", "1", "-g", "0"}, "must set directory"},
		{"center", []string{"-r", "1", "-g", "0", "-o", "/tmp"}, "must set freq"},
		{"rate", []string{"-r", "1", "-g", "0", "-o", "/tmp", "-c", "1"}, "must set rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := runCLI(t, nil, tt.args...)
			assert.Equal(t, ExitOK, res.code)
			assert.Zero(t, res.calls)
			assert.Contains(t, res.logs, tt.want)
		})
	}
}

func TestHelpExitsZero(t *testing.T) {
	t.Parallel()

	res := runCLI(t, nil, "-h")
	assert.Equal(t, ExitOK, res.code)
	assert.Zero(t, res.calls)
	assert.Contains(t, res.stdout, "--sampling_freq")
}

func TestUnknownFlagPrintsUsage(t *testing.T) {
	t.Parallel()

	res := runCLI(t, nil, "--bogus")
	assert.Equal(t, ExitOK, res.code)
	assert.Zero(t, res.calls)
	assert.Contains(t, res.stdout, "unknown flag")
}

func TestFlagsReachSettings(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	args := append(requiredArgs(dir), "-v", "6", "--frequencies", "150050000,149900000", "--ping_width_ms", "20")
	res := runCLI(t, nil, args...)

	require.Equal(t, ExitOK, res.code)
	require.Equal(t, 1, res.calls)
	s := res.settings
	assert.EqualValues(t, 7, s.RunNum)
	assert.InDelta(t, 30.0, s.Gain, 1e-9)
	assert.Equal(t, dir, s.Output)
	assert.EqualValues(t, 150_000_000, s.CenterFreq)
	assert.EqualValues(t, 2_000_000, s.SamplingFreq)
	assert.Equal(t, 6, s.Verbose)
	assert.Equal(t, []int64{150_050_000, 149_900_000}, s.Frequencies)
	assert.Equal(t, 20, s.PingWidthMs)
}

func TestVerbosityOutOfRangeIsClamped(t *testing.T) {
	t.Parallel()

	res := runCLI(t, nil, append(requiredArgs(t.TempDir()), "-v", "12")...)
	require.Equal(t, ExitOK, res.code)
	require.NotNil(t, res.settings)
	assert.Equal(t, 7, res.settings.Verbose)
	assert.Contains(t, res.logs, "verbosity out of range")
}

func TestExitCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"clean stop", nil, ExitOK},
		{"no radio", &sdr.HardwareUnavailableError{Tried: []string{"uhd"}}, ExitHardware},
		{"wrapped no radio", fmt.Errorf("init: %w", sdr.ErrHardwareUnavailable), ExitHardware},
		{"metadata", &metadata.MetadataWriteError{Path: "/x/META_000007", Err: os.ErrPermission}, ExitFatal},
		{"fault", fmt.Errorf("stream overrun"), ExitFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := runCLI(t, func(*conf.Settings, logger.Logger) error { return tt.err }, requiredArgs(t.TempDir())...)
			assert.Equal(t, tt.want, res.code)
			assert.Equal(t, 1, res.calls)
		})
	}
}

func TestNoDeviceExitsOne(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res := runCLI(t, runController, requiredArgs(dir)...)

	assert.Equal(t, ExitHardware, res.code)
	assert.Contains(t, res.logs, "No devices found!")
	assert.NoFileExists(t, filepath.Join(dir, "META_000007"), "metadata is written only once streaming starts")
}

func TestConfigFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("run: 3\ngain: 12.5\ncenter_freq: 173000000\n"), 0o600))

	t.Setenv("SDR_RECORD_SAMPLING_FREQ", "1000000")
	t.Setenv("SDR_RECORD_OUTPUT", dir)

	// flags override the file
	res := runCLI(t, nil, "--config", cfgPath, "-r", "4")
	require.Equal(t, ExitOK, res.code, res.logs)
	require.NotNil(t, res.settings)
	assert.EqualValues(t, 4, res.settings.RunNum)
	assert.InDelta(t, 12.5, res.settings.Gain, 1e-9)
	assert.EqualValues(t, 173_000_000, res.settings.CenterFreq)
	assert.EqualValues(t, 1_000_000, res.settings.SamplingFreq)
	assert.Equal(t, dir, res.settings.Output)
}

func TestMissingConfigFileIsFatal(t *testing.T) {
	t.Parallel()

	res := runCLI(t, nil, "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, ExitFatal, res.code)
	assert.Zero(t, res.calls)
}

func TestConfigCommandPrintsYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res := runCLI(t, nil, append([]string{"config"}, requiredArgs(dir)...)...)

	require.Equal(t, ExitOK, res.code, res.logs)
	assert.Zero(t, res.calls, "config must not start the pipeline")
	assert.Contains(t, res.stdout, "run: 7\n")
	assert.Contains(t, res.stdout, "output: "+dir+"\n")
	assert.Contains(t, res.stdout, "sampling_freq: 2000000\n")
}

func TestVersionFlag(t *testing.T) {
	t.Parallel()

	res := runCLI(t, nil, "--version")
	assert.Equal(t, ExitOK, res.code)
	assert.Zero(t, res.calls)
	assert.Contains(t, res.stdout, "sdr_record version unknown")
}

func TestLogFileReceivesFinalError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "sdr_record.log")
	noRadio := func(*conf.Settings, logger.Logger) error { return sdr.ErrHardwareUnavailable }

	res := runCLI(t, noRadio, append(requiredArgs(dir), "--log_file", logPath)...)
	require.Equal(t, ExitHardware, res.code)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "No devices found!")
}
