// Package metadata persists the per-run header file that describes how the
// recording was captured.
package metadata

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/radiocollartracker/sdr-record/internal/conf"
	"github.com/radiocollartracker/sdr-record/internal/errors"
	"github.com/radiocollartracker/sdr-record/internal/logger"
)

// Field keys, in file order
const (
	KeyStartTime    = "start_time"
	KeyCenterFreq   = "center_freq"
	KeySamplingFreq = "sampling_freq"
	KeyGain         = "gain"
)

// ErrMetadataWrite is matched by every MetadataWriteError
var ErrMetadataWrite = errors.NewStd("cannot write run metadata")

// MetadataWriteError reports that the META_ file could not be written
type MetadataWriteError struct {
	Path string
	Err  error
}

func (e *MetadataWriteError) Error() string {
	return fmt.Sprintf("cannot write run metadata %s: %v", e.Path, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause
func (e *MetadataWriteError) Unwrap() []error {
	return []error{ErrMetadataWrite, e.Err}
}

// ErrorCategory implements errors.CategorizedError
func (e *MetadataWriteError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryMetadata
}

// Record is the content of a META_ file
type Record struct {
	StartTime    time.Time
	CenterFreq   uint64
	SamplingFreq uint64
	Gain         float64
}

// Encode renders the record in file format
func (r *Record) Encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", KeyStartTime, formatStartTime(r.StartTime))
	fmt.Fprintf(&b, "%s: %d\n", KeyCenterFreq, r.CenterFreq)
	fmt.Fprintf(&b, "%s: %d\n", KeySamplingFreq, r.SamplingFreq)
	fmt.Fprintf(&b, "%s: %s\n", KeyGain, strconv.FormatFloat(r.Gain, 'g', -1, 64))
	return b.String()
}

// formatStartTime prints seconds since the epoch with microsecond precision
func formatStartTime(t time.Time) string {
	secs := float64(t.Unix()) + float64(t.Nanosecond()/1000)/1e6
	return strconv.FormatFloat(secs, 'f', 6, 64)
}

// Recorder writes the metadata file once per run
type Recorder struct {
	log   logger.Logger
	clock func() time.Time
}

// NewRecorder returns a recorder stamping records with the wall clock
func NewRecorder(log logger.Logger) *Recorder {
	if log == nil {
		log = logger.Global().Module("metadata")
	}
	return &Recorder{log: log, clock: time.Now}
}

// Record writes <output>/META_<run> for validated settings and returns what
// was written.
func (r *Recorder) Record(s *conf.Settings) (*Record, error) {
	rec := &Record{
		StartTime:    r.clock(),
		CenterFreq:   s.CenterFreq,
		SamplingFreq: s.SamplingFreq,
		Gain:         s.Gain,
	}
	path := s.RunFile(conf.MetaPrefix)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, &MetadataWriteError{Path: path, Err: err}
	}
	if _, err := f.WriteString(rec.Encode()); err != nil {
		_ = f.Close()
		return nil, &MetadataWriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return nil, &MetadataWriteError{Path: path, Err: err}
	}

	r.log.Info("wrote run metadata",
		logger.String("path", path),
		logger.Time("start_time", rec.StartTime))
	return rec, nil
}

// Read parses a META_ file. Unknown keys are ignored.
func Read(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileError(err, path)
	}
	defer f.Close()

	rec := &Record{}
	seen := map[string]bool{}
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		key, value, ok := strings.Cut(scan.Text(), ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		switch key {
		case KeyStartTime:
			secs, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, parseError(path, key, err)
			}
			whole, frac := math.Modf(secs)
			rec.StartTime = time.Unix(int64(whole), int64(math.Round(frac*1e6))*1000)
		case KeyCenterFreq:
			if rec.CenterFreq, err = strconv.ParseUint(value, 10, 64); err != nil {
				return nil, parseError(path, key, err)
			}
		case KeySamplingFreq:
			if rec.SamplingFreq, err = strconv.ParseUint(value, 10, 64); err != nil {
				return nil, parseError(path, key, err)
			}
		case KeyGain:
			if rec.Gain, err = strconv.ParseFloat(value, 64); err != nil {
				return nil, parseError(path, key, err)
			}
		default:
			continue
		}
		seen[key] = true
	}
	if err := scan.Err(); err != nil {
		return nil, errors.FileError(err, path)
	}

	for _, key := range []string{KeyStartTime, KeyCenterFreq, KeySamplingFreq, KeyGain} {
		if !seen[key] {
			return nil, errors.Newf("metadata field %s missing", key).
				Component("metadata").
				Category(errors.CategoryFileParsing).
				FileContext(path).
				Build()
		}
	}
	return rec, nil
}

func parseError(path, key string, err error) error {
	return errors.New(err).
		Component("metadata").
		Category(errors.CategoryFileParsing).
		FileContext(path).
		Context("field", key).
		Build()
}
