package config

import (
	"flag"
	"time"
)

// Flags binds the run settings to a flag set. Only the flags given on the
// command line override the configuration file.
type Flags struct {
	fs         *flag.FlagSet
	path       string
	cli        Run
	noThrottle bool
}

// NewFlags registers the run flags on fs.
func NewFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	def := Default()
	fs.StringVar(&f.path, "config", "", "YAML configuration `file`")
	fs.StringVar(&f.cli.Input, "input", "", "MuRET package folder or single JSON file")
	fs.StringVar(&f.cli.Output, "output", "", "dataset output folder")
	fs.StringVar(&f.cli.Cache, "cache", "", "cache folder for downloads and crops (empty disables it)")
	fs.StringVar(&f.cli.ImagesRoot, "images-root", "", "read images from this folder by filename instead of their URL")
	fs.TextVar(&f.cli.Mode, "mode", def.Mode, "REGIONS, SYMBOLS_IN_REGIONS or SYMBOLS_IN_IMAGES")
	fs.Float64Var(&f.cli.Splits.Train, "train", def.Splits.Train, "train fraction")
	fs.Float64Var(&f.cli.Splits.Validation, "validation", def.Splits.Validation, "validation fraction")
	fs.Float64Var(&f.cli.Splits.Test, "test", def.Splits.Test, "test fraction")
	fs.IntVar(&f.cli.Resize.Width, "width", 0, "resize width (0 keeps the original)")
	fs.IntVar(&f.cli.Resize.Height, "height", 0, "resize height (0 keeps the original)")
	fs.IntVar(&f.cli.Workers, "workers", def.Workers, "worker pool size")
	fs.DurationVar(&f.cli.Timeout, "timeout", def.Timeout, "timeout of a single download")
	fs.BoolVar(&f.cli.StrictLabels, "strict", false, "fail on labels missing from the dictionaries")
	fs.BoolVar(&f.noThrottle, "no-throttle", false, "do not pause after downloads")
	return f
}

// Run loads the configuration file, if any, and applies the flags that were
// set. Call it after parsing the flag set.
func (f *Flags) Run() (*Run, error) {
	run := Default()
	if f.path != "" {
		loaded, err := Load(f.path)
		if err != nil {
			return nil, err
		}
		run = loaded
	}

	apply := map[string]func(){
		"input":       func() { run.Input = f.cli.Input },
		"output":      func() { run.Output = f.cli.Output },
		"cache":       func() { run.Cache = f.cli.Cache },
		"images-root": func() { run.ImagesRoot = f.cli.ImagesRoot },
		"mode":        func() { run.Mode = f.cli.Mode },
		"train":       func() { run.Splits.Train = f.cli.Splits.Train },
		"validation":  func() { run.Splits.Validation = f.cli.Splits.Validation },
		"test":        func() { run.Splits.Test = f.cli.Splits.Test },
		"width":       func() { run.Resize.Width = f.cli.Resize.Width },
		"height":      func() { run.Resize.Height = f.cli.Resize.Height },
		"workers":     func() { run.Workers = f.cli.Workers },
		"timeout":     func() { run.Timeout = f.cli.Timeout },
		"strict":      func() { run.StrictLabels = f.cli.StrictLabels },
		"no-throttle": func() {
			if f.noThrottle {
				run.Throttle = map[string]time.Duration{}
			}
		},
	}
	f.fs.Visit(func(fl *flag.Flag) {
		if fn, ok := apply[fl.Name]; ok {
			fn()
		}
	})

	if err := run.Validate(); err != nil {
		return nil, err
	}
	return run, nil
}
