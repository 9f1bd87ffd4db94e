package yolo

import (
	"context"
	"image"
	"log"
	"sync/atomic"
	"time"

	"github.com/ironsheep/muret2yolo/internal/imaging"
	"github.com/ironsheep/muret2yolo/internal/muret"
)

// FetchReport summarizes a prefetch of package images.
type FetchReport struct {
	Images   int           `json:"images"`
	Fetched  int           `json:"fetched"`
	Failed   []string      `json:"failed,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Fetch acquires every image of pkg through acq so that later runs find them
// in its cache. Images that cannot be acquired are listed, not fatal; only
// cancellation is.
func Fetch(ctx context.Context, pkg *muret.Package, acq *imaging.Acquirer, imagesRoot string) (*FetchReport, error) {
	start := time.Now()
	sources := make([]imaging.Source, len(pkg.Images))
	for i, img := range pkg.Images {
		sources[i] = ImageSource(img, imagesRoot)
	}

	// Only the count is kept; the decoded pixels are released as each
	// download lands in the cache.
	var fetched atomic.Int64
	failures := acq.AcquireEach(ctx, sources, func(int, image.Image) {
		fetched.Add(1)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &FetchReport{Images: len(pkg.Images), Fetched: int(fetched.Load())}
	for _, f := range failures {
		report.Failed = append(report.Failed, f.Error())
	}
	report.Duration = time.Since(start)
	log.Printf("Fetched %d/%d images", report.Fetched, report.Images)
	return report, nil
}
