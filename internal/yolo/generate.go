package yolo

import (
	"context"
	"fmt"
	"image"
	"log"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/muret2yolo/internal/bbox"
	"github.com/ironsheep/muret2yolo/internal/errs"
	"github.com/ironsheep/muret2yolo/internal/imaging"
	"github.com/ironsheep/muret2yolo/internal/logging"
	"github.com/ironsheep/muret2yolo/internal/muret"
)

// Region types with a fixed meaning.
const (
	StaffRegion     = "staff"
	UndefinedRegion = "undefined"
)

// Dropped is an image, or one staff crop of it, left out of the dataset.
type Dropped struct {
	ImageID int64  `json:"image_id"`
	URL     string `json:"url"`
	Sample  string `json:"sample,omitempty"`
	Reason  string `json:"reason"`
}

// ImageSource is where the pixels of img are read from: its file under
// imagesRoot when set, its URL otherwise.
func ImageSource(img *muret.Image, imagesRoot string) imaging.Source {
	if imagesRoot != "" {
		return &imaging.LocalSource{Root: imagesRoot, Name: img.Filename}
	}
	return imaging.SourceFor(img.URL, "", nil)
}

// generateDetectionImages acquires every image and derives its samples on the
// worker pool. Each image is held in memory only while its own unit runs.
func (t *Transcoder) generateDetectionImages(ctx context.Context) ([]*Sample, []Dropped, error) {
	names := sampleNames(t.pkg.Images)

	var (
		mu      sync.Mutex
		samples []*Sample
		dropped []Dropped
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Workers)
	for i, img := range t.pkg.Images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src := ImageSource(img, t.opts.ImagesRoot)
			pixels, err := t.opts.Acquirer.Acquire(gctx, src)
			var (
				got  []*Sample
				lost []Dropped
			)
			if err != nil {
				log.Printf("Cannot retrieve image %s: %v", img.URL, err)
				lost = []Dropped{{ImageID: img.ID, URL: img.URL, Reason: err.Error()}}
			} else {
				got, lost = t.samplesFor(img, names[i], src.Key(), pixels)
			}

			mu.Lock()
			defer mu.Unlock()
			samples = append(samples, got...)
			dropped = append(dropped, lost...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sort.Slice(dropped, func(i, k int) bool {
		if dropped[i].ImageID != dropped[k].ImageID {
			return dropped[i].ImageID < dropped[k].ImageID
		}
		return dropped[i].Sample < dropped[k].Sample
	})
	logging.Debugf("%d samples generated, %d dropped", len(samples), len(dropped))
	return samples, dropped, nil
}

func (t *Transcoder) samplesFor(img *muret.Image, name, key string, pixels image.Image) ([]*Sample, []Dropped) {
	if t.opts.Mode == SymbolsInRegions {
		return t.staffSamples(img, name, key, pixels)
	}
	s, err := t.wholeImageSample(img, name, pixels)
	if err != nil {
		log.Printf("Cannot convert image %s: %v", img.URL, err)
		return nil, []Dropped{{ImageID: img.ID, URL: img.URL, Reason: err.Error()}}
	}
	return []*Sample{s}, nil
}

func (t *Transcoder) wholeImageSample(img *muret.Image, name string, pixels image.Image) (*Sample, error) {
	var objects []Object
	add := func(label string, box bbox.Box) error {
		class, err := t.dict.IndexOf(label)
		if err != nil {
			return err
		}
		objects = append(objects, Object{Class: class, Box: box})
		return nil
	}

	for _, page := range img.Pages {
		if t.opts.Mode == Regions {
			if err := add(PageClass, page.BoundingBox); err != nil {
				return nil, err
			}
		}
		for _, region := range page.Regions {
			if t.opts.Mode == Regions {
				if region.Type == UndefinedRegion {
					continue
				}
				if err := add(region.Type, region.BoundingBox); err != nil {
					return nil, err
				}
				continue
			}
			for _, sym := range region.Symbols {
				if sym.BoundingBox == nil {
					continue
				}
				if err := add(sym.AgnosticType, *sym.BoundingBox); err != nil {
					return nil, err
				}
			}
		}
	}

	encoded, err := t.opts.Encoder.Encode(pixels, t.opts.Resize.Width, t.opts.Resize.Height)
	if err != nil {
		return nil, err
	}
	objects, err = toYOLO(objects, imaging.Dimensions(pixels), imaging.Dimensions(encoded))
	if err != nil {
		return nil, err
	}
	return &Sample{Name: name, Source: img.URL, Image: encoded, Objects: objects}, nil
}

// staffSamples emits one sample per staff region holding symbols, cropped to
// the region with symbol boxes relative to the crop.
func (t *Transcoder) staffSamples(img *muret.Image, name, key string, pixels image.Image) ([]*Sample, []Dropped) {
	var (
		samples []*Sample
		dropped []Dropped
	)
	dims := imaging.Dimensions(pixels)
	for pi, page := range img.Pages {
		for ri, region := range page.Regions {
			if region.Type != StaffRegion || len(region.Symbols) == 0 {
				continue
			}
			sampleName := fmt.Sprintf("%s_p%d_r%d", name, pi, ri)
			s, err := t.staffSample(region, sampleName, key, pixels, dims)
			if err != nil {
				log.Printf("Cannot convert staff %s of image %s: %v", sampleName, img.URL, err)
				dropped = append(dropped, Dropped{ImageID: img.ID, URL: img.URL, Sample: sampleName, Reason: err.Error()})
				continue
			}
			s.Source = img.URL
			samples = append(samples, s)
		}
	}
	return samples, dropped
}

func (t *Transcoder) staffSample(region *muret.Region, name, key string, pixels image.Image, dims bbox.Dimensions) (*Sample, error) {
	x1, y1, x2, y2 := cropRect(region.BoundingBox, dims)
	crop, err := t.opts.CropCache.Load(t.opts.Encoder, key, pixels, x1, y1, x2, y2)
	if err != nil {
		return nil, err
	}

	var objects []Object
	for _, sym := range region.Symbols {
		if sym.BoundingBox == nil {
			continue
		}
		class, err := t.dict.IndexOf(sym.AgnosticType)
		if err != nil {
			return nil, err
		}
		box, err := sym.BoundingBox.Translate(float64(-x1), float64(-y1))
		if err != nil {
			return nil, err
		}
		objects = append(objects, Object{Class: class, Box: box})
	}

	encoded, err := t.opts.Encoder.Encode(crop, t.opts.Resize.Width, t.opts.Resize.Height)
	if err != nil {
		return nil, err
	}
	objects, err = toYOLO(objects, bbox.Dimensions{Width: x2 - x1, Height: y2 - y1}, imaging.Dimensions(encoded))
	if err != nil {
		return nil, err
	}
	return &Sample{Name: name, Image: encoded, Objects: objects}, nil
}

// toYOLO scales absolute boxes from the original to the resized dimensions,
// clips them to the image and normalizes them. Boxes left without area are
// dropped.
func toYOLO(objects []Object, original, resized bbox.Dimensions) ([]Object, error) {
	if original.Width <= 0 || original.Height <= 0 {
		return nil, errs.Validationf("invalid image dimensions %v", original)
	}
	sx := float64(resized.Width) / float64(original.Width)
	sy := float64(resized.Height) / float64(original.Height)

	out := make([]Object, 0, len(objects))
	for _, o := range objects {
		box, err := o.Box.To(bbox.Pascal, &original)
		if err != nil {
			return nil, err
		}
		box.Resize(sx, sy)
		box = clip(box, resized)
		if box.C <= box.A || box.D <= box.B {
			logging.Debugf("Skipping object of class %d outside the image", o.Class)
			continue
		}
		y, err := box.To(bbox.YOLO, &resized)
		if err != nil {
			return nil, err
		}
		out = append(out, Object{Class: o.Class, Box: y})
	}
	return out, nil
}

func clip(b bbox.Box, dims bbox.Dimensions) bbox.Box {
	w, h := float64(dims.Width), float64(dims.Height)
	b.A = math.Max(0, math.Min(b.A, w))
	b.B = math.Max(0, math.Min(b.B, h))
	b.C = math.Max(0, math.Min(b.C, w))
	b.D = math.Max(0, math.Min(b.D, h))
	return b
}

// cropRect returns the integer pixel rectangle covering box, clamped to dims.
func cropRect(box bbox.Box, dims bbox.Dimensions) (x1, y1, x2, y2 int) {
	clamp := func(v float64, limit int) int {
		return int(math.Max(0, math.Min(v, float64(limit))))
	}
	return clamp(math.Floor(box.A), dims.Width), clamp(math.Floor(box.B), dims.Height),
		clamp(math.Ceil(box.C), dims.Width), clamp(math.Ceil(box.D), dims.Height)
}

// sampleNames derives unique output base names from the image filenames.
// Images sharing a base name are told apart by their id.
func sampleNames(images []*muret.Image) []string {
	stems := make([]string, len(images))
	count := map[string]int{}
	for i, img := range images {
		stem := strings.TrimSuffix(filepath.Base(filepath.FromSlash(img.Filename)), filepath.Ext(img.Filename))
		if stem == "" || stem == "." || stem == string(filepath.Separator) {
			stem = fmt.Sprintf("image_%d", img.ID)
		}
		stems[i] = stem
		count[stem]++
	}
	for i, img := range images {
		if count[stems[i]] > 1 {
			stems[i] = fmt.Sprintf("%s_%d", stems[i], img.ID)
		}
	}

	// An id suffix can recreate another image's stem (a_5.jpg next to a.jpg
	// with id 5). Every repeat but the last takes a counter.
	used := make(map[string]int, len(stems))
	for _, s := range stems {
		used[s]++
	}
	for i, s := range stems {
		if used[s] == 1 {
			continue
		}
		used[s]--
		name := s
		for n := 2; used[name] > 0; n++ {
			name = fmt.Sprintf("%s_%d", s, n)
		}
		used[name]++
		stems[i] = name
	}
	return stems
}
