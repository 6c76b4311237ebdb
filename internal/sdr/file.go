package sdr

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/radiocollartracker/sdr-record/internal/conf"
	"github.com/radiocollartracker/sdr-record/internal/errors"
	"github.com/radiocollartracker/sdr-record/internal/logger"
)

// bytesPerSample is one interleaved int16 I/Q pair
const bytesPerSample = 4

// FileSourceConfig configures replay of recorded samples
type FileSourceConfig struct {
	Path       string // a single file or a directory of RAW_DATA_* files
	SampleRate uint64
	BufferLen  int
	StartTime  time.Time // capture time of the first sample, now if zero
}

// FileSource replays interleaved little-endian int16 IQ recordings. Files in a
// directory are replayed in name order as one continuous stream. The final
// partial buffer is zero-padded.
type FileSource struct {
	cfg   FileSourceConfig
	files []string

	current  *os.File
	reader   *bufio.Reader
	fileIdx  int
	raw      []byte
	position uint64

	streamer
}

// NewFileSource resolves the input files without opening them
func NewFileSource(cfg FileSourceConfig, log logger.Logger) (*FileSource, error) {
	files, err := resolveInputFiles(cfg.Path)
	if err != nil {
		return nil, err
	}
	if cfg.BufferLen <= 0 {
		cfg.BufferLen = 1 << 16
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}

	log.Debug("resolved sample files", logger.Int("count", len(files)))
	return &FileSource{
		cfg:      cfg,
		files:    files,
		raw:      make([]byte, cfg.BufferLen*bytesPerSample),
		streamer: streamer{log: log},
	}, nil
}

func resolveInputFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.FileError(err, path)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	files, err := filepath.Glob(filepath.Join(path, conf.RawDataPrefix+"*"))
	if err != nil {
		return nil, errors.FileError(err, path)
	}
	if len(files) == 0 {
		return nil, errors.Newf("no %s files in %s", conf.RawDataPrefix, path).
			Component("sdr").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	slices.Sort(files)
	return files, nil
}

// Files returns the replay order
func (f *FileSource) Files() []string {
	return append([]string(nil), f.files...)
}

// StartStreaming implements StreamSource
func (f *FileSource) StartStreaming(samples *SampleBridge, state RunState) error {
	return f.start(samples, state, f.next)
}

// StopStreaming implements StreamSource
func (f *FileSource) StopStreaming() error {
	err := f.stop()
	f.closeCurrent()
	return err
}

func (f *FileSource) closeCurrent() {
	if f.current != nil {
		_ = f.current.Close()
		f.current = nil
		f.reader = nil
	}
}

// fill reads up to len(p) bytes across file boundaries
func (f *FileSource) fill(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		if f.reader == nil {
			if f.fileIdx >= len(f.files) {
				return total, io.EOF
			}
			path := f.files[f.fileIdx]
			fh, err := os.Open(path)
			if err != nil {
				return total, errors.FileError(err, path)
			}
			f.current = fh
			f.reader = bufio.NewReaderSize(fh, len(p))
			f.fileIdx++
		}

		n, err := io.ReadFull(f.reader, p[total:])
		total += n
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			f.closeCurrent()
		default:
			return total, errors.FileError(err, f.current.Name())
		}
	}
	return total, nil
}

func (f *FileSource) next(quit <-chan struct{}) (*Buffer, error) {
	n, err := f.fill(f.raw)
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	// trailing odd bytes cannot form a sample
	n -= n % bytesPerSample
	samples := make([]complex64, f.cfg.BufferLen)
	for i := 0; i < n/bytesPerSample; i++ {
		re := int16(binary.LittleEndian.Uint16(f.raw[i*4:]))
		im := int16(binary.LittleEndian.Uint16(f.raw[i*4+2:]))
		samples[i] = complex(float32(re)/32768, float32(im)/32768)
	}
	if short := f.cfg.BufferLen - n/bytesPerSample; short > 0 {
		f.log.Debug("zero-padded final buffer", logger.Int("missing_samples", short))
	}

	start := f.cfg.StartTime.Add(sampleOffset(f.position, f.cfg.SampleRate))
	f.position += uint64(f.cfg.BufferLen)
	return &Buffer{Time: start, Samples: samples}, nil
}

// WriteIQ encodes samples in the replay format. It is the inverse of the
// FileSource decoder and is used to produce test recordings.
func WriteIQ(w io.Writer, samples []complex64) error {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*4:], uint16(quantize(real(s))))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(quantize(imag(s))))
	}
	_, err := w.Write(out)
	return err
}

func quantize(v float32) int16 {
	x := v * 32768
	switch {
	case x > 32767:
		return 32767
	case x < -32768:
		return -32768
	}
	return int16(x)
}
