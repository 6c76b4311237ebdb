package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBuildWithDefaultsFailsOnRun(t *testing.T) {
	v := NewViper()

	_, err := Build(v)
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "run", ce.Field)
}

func TestBuildFromValues(t *testing.T) {
	v := NewViper()
	v.Set("run", 7)
	v.Set("gain", 30.0)
	v.Set("sampling_freq", 2_000_000)
	v.Set("center_freq", 150_000_000)
	v.Set("output", "/tmp/run")
	v.Set("frequencies", []int{150_050_000, 149_900_000})

	s, err := Build(v)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), s.RunNum)
	assert.Equal(t, uint64(2_000_000), s.SamplingFreq)
	assert.Equal(t, uint64(150_000_000), s.CenterFreq)
	assert.Equal(t, []int64{150_050_000, 149_900_000}, s.Frequencies)
	assert.Equal(t, 36, s.PingWidthMs)
	assert.Equal(t, DefaultVerbosity, s.Verbose)
	assert.Equal(t, 65536, s.BufferLen)
}

func TestVerbosityIsClamped(t *testing.T) {
	v := NewViper()
	v.Set("verbose", 12)

	verbosity, clamped := Verbosity(v)
	assert.Equal(t, 7, verbosity)
	assert.True(t, clamped)
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("SDR_RECORD_RUN", "12")
	t.Setenv("SDR_RECORD_GAIN", "20.5")
	t.Setenv("SDR_RECORD_SAMPLING_FREQ", "1000000")
	t.Setenv("SDR_RECORD_CENTER_FREQ", "172000000")
	t.Setenv("SDR_RECORD_OUTPUT", "/data")

	s, err := Build(NewViper())
	require.NoError(t, err)
	assert.Equal(t, uint64(12), s.RunNum)
	assert.InDelta(t, 20.5, s.Gain, 1e-9)
	assert.Equal(t, "/data", s.Output)
}

func TestReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sdr_record.yaml")
	content := `run: 3
gain: 12.5
sampling_freq: 2000000
center_freq: 173500000
output: /mnt/usb
ping_min_snr: 6
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := NewViper()
	require.NoError(t, ReadConfigFile(v, path))

	s, err := Build(v)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.RunNum)
	assert.InDelta(t, 6.0, s.PingMinSNR, 1e-9)
	assert.Equal(t, "/mnt/usb", s.Output)

	require.Error(t, ReadConfigFile(NewViper(), filepath.Join(t.TempDir(), "absent.yaml")))
	require.NoError(t, ReadConfigFile(NewViper(), ""))
}

func TestSettingsYAMLRoundTrip(t *testing.T) {
	s, err := Validate(validOptions())
	require.NoError(t, err)

	out, err := s.YAML()
	require.NoError(t, err)

	var back Options
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, s.RunNum, back.RunNum)
	assert.Equal(t, s.CenterFreq, back.CenterFreq)
	assert.Contains(t, string(out), "sampling_freq: 2000000")
	assert.Contains(t, s.String(), "run=7")
}
