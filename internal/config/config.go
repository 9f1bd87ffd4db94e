// Package config holds the settings of a transcoding run.
//
// Settings come from an optional YAML file and are overridden by command-line
// flags. Run turns them into the options of the loader, the acquirer and the
// transcoder.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/muret2yolo/internal/errs"
	"github.com/ironsheep/muret2yolo/internal/imaging"
	"github.com/ironsheep/muret2yolo/internal/muret"
	"github.com/ironsheep/muret2yolo/internal/partition"
	"github.com/ironsheep/muret2yolo/internal/yolo"
)

// Run is the configuration of one invocation.
//
// A file looks like:
//
//	input: ./package
//	output: ./dataset
//	cache: ./cache
//	mode: symbols_in_regions
//	splits: {train: 0.8, validation: 0.1, test: 0.1}
//	resize: {width: 1024, height: 1024}
//	timeout: 30s
//	throttle:
//	  gallica.bnf.fr: 0s
type Run struct {
	Input        string                   `yaml:"input"`
	Output       string                   `yaml:"output"`
	Cache        string                   `yaml:"cache"`
	ImagesRoot   string                   `yaml:"images_root"`
	Mode         yolo.Mode                `yaml:"mode"`
	Splits       partition.Fractions      `yaml:"splits"`
	Resize       yolo.Size                `yaml:"resize"`
	Workers      int                      `yaml:"workers"`
	Timeout      time.Duration            `yaml:"timeout"`
	StrictLabels bool                     `yaml:"strict_labels"`
	Throttle     map[string]time.Duration `yaml:"throttle"`
}

// Default returns the settings used when neither file nor flags say otherwise.
func Default() *Run {
	return &Run{
		Mode:     yolo.Regions,
		Splits:   partition.DefaultFractions,
		Workers:  runtime.GOMAXPROCS(0),
		Timeout:  imaging.DefaultTimeout,
		Throttle: imaging.DefaultThrottle(),
	}
}

// Load reads a YAML file over the defaults. Throttle entries are merged with
// the default ones; a zero pause disables a default host.
func Load(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrConfig, err)
	}
	return Decode(bytes.NewReader(data))
}

// Decode reads YAML settings from r over the defaults. Unknown keys are errors.
func Decode(r io.Reader) (*Run, error) {
	run := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(run); err != nil && !errors.Is(err, io.EOF) {
		if errors.Is(err, errs.ErrConfig) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", errs.ErrConfig, err)
	}
	return run, nil
}

// Validate checks the settings that do not depend on the command being run.
func (r *Run) Validate() error {
	if !r.Mode.Valid() {
		return errs.Configf("unknown mode %v", r.Mode)
	}
	if err := r.Splits.Validate(); err != nil {
		return err
	}
	if r.Resize.Width < 0 || r.Resize.Height < 0 {
		return errs.Configf("invalid resize %dx%d", r.Resize.Width, r.Resize.Height)
	}
	if r.Workers < 0 {
		return errs.Configf("workers must not be negative, got %d", r.Workers)
	}
	if r.Timeout < 0 {
		return errs.Configf("timeout must not be negative, got %v", r.Timeout)
	}
	for host, pause := range r.Throttle {
		if pause < 0 {
			return errs.Configf("throttle for %q must not be negative, got %v", host, pause)
		}
	}
	return nil
}

// Require fails when any of the named path settings ("input", "output",
// "cache", "images_root") is empty.
func (r *Run) Require(names ...string) error {
	values := map[string]string{
		"input":       r.Input,
		"output":      r.Output,
		"cache":       r.Cache,
		"images_root": r.ImagesRoot,
	}
	for _, name := range names {
		v, ok := values[name]
		if !ok {
			return fmt.Errorf("unknown setting %q", name)
		}
		if v == "" {
			return errs.Configf("%s is required", name)
		}
	}
	return nil
}

// LoadOptions are the package loader options.
func (r *Run) LoadOptions() muret.LoadOptions {
	return muret.LoadOptions{Workers: r.Workers, StrictLabels: r.StrictLabels}
}

// Acquirer builds an image acquirer persisting under Cache.
func (r *Run) Acquirer() *imaging.Acquirer {
	a := imaging.NewAcquirer(r.Cache)
	a.Timeout = r.Timeout
	a.Workers = r.Workers
	a.Throttle = make(map[string]time.Duration, len(r.Throttle))
	for host, pause := range r.Throttle {
		if pause > 0 {
			a.Throttle[host] = pause
		}
	}
	return a
}

// TranscoderOptions are the transcoder options, sharing acq for downloads.
func (r *Run) TranscoderOptions(acq *imaging.Acquirer) yolo.Options {
	opts := yolo.Options{
		Mode:       r.Mode,
		Splits:     r.Splits,
		Resize:     r.Resize,
		Acquirer:   acq,
		ImagesRoot: r.ImagesRoot,
		Workers:    r.Workers,
	}
	if r.Cache != "" {
		opts.CropCache = imaging.NewCropCache(r.Cache)
	}
	return opts
}
