package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiocollartracker/sdr-record/internal/conf"
	"github.com/radiocollartracker/sdr-record/internal/errors"
	"github.com/radiocollartracker/sdr-record/internal/logger"
)

func testSettings(t *testing.T, run uint64) *conf.Settings {
	t.Helper()
	return &conf.Settings{Options: conf.Options{
		RunNum:       run,
		Gain:         30,
		SamplingFreq: 2_000_000,
		CenterFreq:   150_000_000,
		Output:       t.TempDir(),
	}}
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestRecordWritesExpectedLines(t *testing.T) {
	t.Parallel()

	s := testSettings(t, 7)
	r := NewRecorder(logger.NewDiscardLogger())
	r.clock = fixedClock(time.Unix(1_700_000_000, 123_456_000))

	_, err := r.Record(s)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(s.Output, "META_000007"))
	require.NoError(t, err)
	assert.Equal(t,
		"start_time: 1700000000.123456\n"+
			"center_freq: 150000000\n"+
			"sampling_freq: 2000000\n"+
			"gain: 30\n",
		string(data))
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		gain float64
	}{
		{"integral gain", 30},
		{"fractional gain", 12.5},
		{"zero gain", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := testSettings(t, 42)
			s.Gain = tt.gain
			start := time.Unix(1_712_345_678, 987_654_000)

			r := NewRecorder(logger.NewDiscardLogger())
			r.clock = fixedClock(start)
			written, err := r.Record(s)
			require.NoError(t, err)

			got, err := Read(s.RunFile(conf.MetaPrefix))
			require.NoError(t, err)
			assert.Equal(t, tt.gain, got.Gain)
			assert.Equal(t, s.SamplingFreq, got.SamplingFreq)
			assert.Equal(t, s.CenterFreq, got.CenterFreq)
			assert.WithinDuration(t, written.StartTime, got.StartTime, time.Microsecond)
		})
	}
}

func TestRecordFailsOnMissingDirectory(t *testing.T) {
	t.Parallel()

	s := testSettings(t, 1)
	s.Output = filepath.Join(s.Output, "does", "not", "exist")

	_, err := NewRecorder(logger.NewDiscardLogger()).Record(s)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMetadataWrite)
	require.ErrorIs(t, err, os.ErrNotExist)

	var mwErr *MetadataWriteError
	require.ErrorAs(t, err, &mwErr)
	assert.Equal(t, filepath.Join(s.Output, "META_000001"), mwErr.Path)
	assert.Equal(t, errors.CategoryMetadata, mwErr.ErrorCategory())
}

func TestReadRejectsIncompleteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "META_000003")
	require.NoError(t, os.WriteFile(path, []byte("start_time: 1.5\ncenter_freq: 1\n"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))

	require.NoError(t, os.WriteFile(path, []byte("start_time: 1.5\ncenter_freq: abc\n"), 0o644))
	_, err = Read(path)
	require.Error(t, err)
}
