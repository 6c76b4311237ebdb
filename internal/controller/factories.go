package controller

import (
	"context"
	"time"

	"github.com/radiocollartracker/sdr-record/internal/conf"
	"github.com/radiocollartracker/sdr-record/internal/dsp"
	"github.com/radiocollartracker/sdr-record/internal/gps"
	"github.com/radiocollartracker/sdr-record/internal/localization"
	"github.com/radiocollartracker/sdr-record/internal/logger"
	"github.com/radiocollartracker/sdr-record/internal/sdr"
)

// GPSReader is the optional position provider
type GPSReader interface {
	localization.FixSource
	Run(ctx context.Context) error
	Close() error
}

// Factories construct the pipeline collaborators. Tests replace them with
// fakes; production uses DefaultFactories.
type Factories struct {
	Source    func(s *conf.Settings, log logger.Logger) (sdr.StreamSource, error)
	Stage     func(s *conf.Settings, log logger.Logger) (dsp.ProcessingStage, error)
	Localizer func(s *conf.Settings, fixes localization.FixSource, log logger.Logger) (localization.Localizer, error)
	GPS       func(s *conf.Settings, log logger.Logger) (GPSReader, error)
}

// DefaultFactories wire the reference implementations
func DefaultFactories() Factories {
	return Factories{
		Source: sdr.New,
		Stage: func(s *conf.Settings, log logger.Logger) (dsp.ProcessingStage, error) {
			d, err := dsp.NewDetector(dsp.DetectorConfig{
				SampleRate:  s.SamplingFreq,
				CenterFreq:  s.CenterFreq,
				Frequencies: s.Frequencies,
				PingWidth:   time.Duration(s.PingWidthMs) * time.Millisecond,
				MinSNR:      s.PingMinSNR,
				MinLenMult:  s.PingMinLenMult,
				MaxLenMult:  s.PingMaxLenMult,
			}, log)
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		Localizer: func(s *conf.Settings, fixes localization.FixSource, log logger.Logger) (localization.Localizer, error) {
			return localization.NewPingLocalizer(s.RunFile(conf.LocalizePrefix), fixes, log), nil
		},
		GPS: func(s *conf.Settings, log logger.Logger) (GPSReader, error) {
			r, err := gps.Open(s.GPSTarget, log)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
	}
}

func (f Factories) withDefaults() Factories {
	d := DefaultFactories()
	if f.Source == nil {
		f.Source = d.Source
	}
	if f.Stage == nil {
		f.Stage = d.Stage
	}
	if f.Localizer == nil {
		f.Localizer = d.Localizer
	}
	if f.GPS == nil {
		f.GPS = d.GPS
	}
	return f
}
