package yolo

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/muret2yolo/internal/dictionary"
	"github.com/ironsheep/muret2yolo/internal/errs"
	"github.com/ironsheep/muret2yolo/internal/imaging"
	"github.com/ironsheep/muret2yolo/internal/muret"
	"github.com/ironsheep/muret2yolo/internal/partition"
)

// PageClass is the region type used for whole-page objects.
const PageClass = "page"

// Size is a target image size. Zero width and height keep the original size.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Options configures a Transcoder.
type Options struct {
	Mode Mode
	// Splits defaults to partition.DefaultFractions when zero.
	Splits partition.Fractions
	Resize Size
	// Encoder defaults to imaging.GrayscaleEncoder.
	Encoder imaging.Encoder
	// Acquirer defaults to one without a persistent cache.
	Acquirer *imaging.Acquirer
	// CropCache memoizes staff crops. Optional.
	CropCache *imaging.CropCache
	// ImagesRoot, when set, reads every image from <ImagesRoot>/<filename>
	// instead of its URL.
	ImagesRoot string
	// Workers bounds every pool. GOMAXPROCS when <= 0.
	Workers int
}

// Transcoder converts a loaded MuRET package into a YOLO dataset.
type Transcoder struct {
	pkg  *muret.Package
	opts Options
	dict *dictionary.Dictionary
}

// New validates opts and binds them to pkg. Invalid modes, splits or resize
// targets are errs.ErrConfig.
func New(pkg *muret.Package, opts Options) (*Transcoder, error) {
	if pkg == nil {
		return nil, errs.Configf("no package to transcode")
	}
	if !opts.Mode.Valid() {
		return nil, errs.Configf("unknown mode %v", opts.Mode)
	}
	if opts.Splits == (partition.Fractions{}) {
		opts.Splits = partition.DefaultFractions
	}
	if err := opts.Splits.Validate(); err != nil {
		return nil, err
	}
	if opts.Resize.Width < 0 || opts.Resize.Height < 0 {
		return nil, errs.Configf("invalid resize %dx%d", opts.Resize.Width, opts.Resize.Height)
	}
	if opts.Encoder == nil {
		opts.Encoder = imaging.GrayscaleEncoder{}
	}
	if opts.Acquirer == nil {
		opts.Acquirer = imaging.NewAcquirer("")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	t := &Transcoder{pkg: pkg, opts: opts}
	if opts.Mode == Regions {
		t.dict = pkg.RegionTypes
		if _, added := t.dict.Register(PageClass); added {
			log.Printf("Warning: region dictionary has no %q entry, registered it as class %d", PageClass, t.dict.Size()-1)
		}
	} else {
		t.dict = pkg.AgnosticSymbolTypes
	}
	return t, nil
}

// Dictionary is the dictionary whose indices are the output classes.
func (t *Transcoder) Dictionary() *dictionary.Dictionary {
	return t.dict
}

// Layout is the folder structure of an output dataset.
type Layout struct {
	Root   string
	Images map[string]string
	Labels map[string]string
}

// NewLayout returns the layout of a dataset rooted at root.
func NewLayout(root string) *Layout {
	l := &Layout{Root: root, Images: map[string]string{}, Labels: map[string]string{}}
	for _, split := range partition.Names() {
		l.Images[split] = filepath.Join(root, ImagesFolder, split)
		l.Labels[split] = filepath.Join(root, LabelsFolder, split)
	}
	return l
}

// Run writes the dataset into outputDir. Images that cannot be acquired or
// converted are dropped and listed in the report; only layout, manifest and
// write failures, or cancellation, abort the run.
func (t *Transcoder) Run(ctx context.Context, outputDir string) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:  uuid.NewString(),
		Mode:   t.opts.Mode,
		Output: outputDir,
		Images: len(t.pkg.Images),
	}
	for _, w := range t.pkg.Warnings {
		report.Warnings = append(report.Warnings, w.Error())
	}
	log.Printf("Transcoding %d images to %s in %v mode (run %s)", len(t.pkg.Images), outputDir, t.opts.Mode, report.RunID)

	layout, err := t.createOutputLayout(outputDir)
	if err != nil {
		return nil, err
	}
	if err := t.transcode(layout); err != nil {
		return nil, err
	}

	samples, dropped, err := t.generateDetectionImages(ctx)
	if err != nil {
		return nil, err
	}
	report.Dropped = dropped
	report.Acquired = len(t.pkg.Images)
	for _, d := range dropped {
		if d.Sample == "" {
			report.Acquired--
		}
	}
	report.Samples = len(samples)
	for _, s := range samples {
		report.Objects += len(s.Objects)
	}

	parts, err := t.partition(samples)
	if err != nil {
		return nil, err
	}
	report.Splits = parts.Counts()

	if err := t.writeOutputs(ctx, layout, parts); err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)
	log.Printf("Dataset written to %s: %d samples (%v), %d images dropped", outputDir, report.Samples, report.Splits, len(report.Dropped))
	return report, nil
}

func (t *Transcoder) createOutputLayout(outputDir string) (*Layout, error) {
	layout := NewLayout(outputDir)
	for _, split := range partition.Names() {
		for _, dir := range []string{layout.Images[split], layout.Labels[split]} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
	}
	return layout, nil
}

// transcode writes the manifest and the dictionary exports.
func (t *Transcoder) transcode(layout *Layout) error {
	return WriteManifest(layout.Root, t.dict)
}

// partition splits the samples after ordering them by name, so the split does
// not depend on the completion order of the generation pool.
func (t *Transcoder) partition(samples []*Sample) (partition.Result[*Sample], error) {
	sort.Slice(samples, func(i, k int) bool { return samples[i].Name < samples[k].Name })
	return partition.Split(samples, t.opts.Splits)
}
