package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ironsheep/muret2yolo/internal/errs"
	"github.com/ironsheep/muret2yolo/internal/logging"
)

const (
	// DefaultTimeout bounds a single download.
	DefaultTimeout = 10 * time.Second

	// ImagesFolder holds downloaded originals under the cache directory.
	ImagesFolder = "images"
)

// DefaultThrottle returns the post-download pauses applied per host. Gallica
// bans clients that download too fast.
func DefaultThrottle() map[string]time.Duration {
	return map[string]time.Duration{"gallica.bnf.fr": 10 * time.Second}
}

// Acquirer resolves image sources into decoded images, keeping a persistent
// copy of every download under CacheDir.
//
// For a given key the check-disk, fetch, persist and decode sequence runs at
// most once at a time; concurrent callers for that key share its result.
// Different keys proceed in parallel.
type Acquirer struct {
	// CacheDir is the cache root. Empty disables persistence.
	CacheDir string
	// Client is used by remote sources that have none. http.DefaultClient when nil.
	Client HTTPClient
	// Timeout bounds each fetch. DefaultTimeout when zero.
	Timeout time.Duration
	// Workers bounds AcquireAll and AcquireEach. GOMAXPROCS when <= 0.
	Workers int
	// Throttle maps a host substring to a pause taken after each download
	// from a matching URL.
	Throttle map[string]time.Duration
	// Memory, when set, keeps decoded images in memory across calls.
	Memory *ImageCache

	group singleflight.Group
}

// NewAcquirer returns an acquirer persisting under cacheDir with the default
// timeout and throttle.
func NewAcquirer(cacheDir string) *Acquirer {
	return &Acquirer{
		CacheDir: cacheDir,
		Timeout:  DefaultTimeout,
		Throttle: DefaultThrottle(),
	}
}

// Path is where the download of key is persisted.
func (a *Acquirer) Path(key string) string {
	return filepath.Join(a.CacheDir, ImagesFolder, key)
}

// Acquire returns the decoded image of src.
func (a *Acquirer) Acquire(ctx context.Context, src Source) (image.Image, error) {
	key := src.Key()
	if a.Memory != nil {
		if img, ok := a.Memory.Get(key); ok {
			return img, nil
		}
	}

	v, err, shared := a.group.Do(key, func() (any, error) {
		img, err := a.acquire(ctx, key, src)
		if err != nil {
			return nil, err
		}
		if a.Memory != nil {
			a.Memory.Put(key, img)
		}
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.Debugf("Shared acquisition of %s (%s)", src, key)
	}
	return v.(image.Image), nil
}

func (a *Acquirer) acquire(ctx context.Context, key string, src Source) (image.Image, error) {
	if local, ok := src.(*LocalSource); ok {
		logging.Debugf("Reading local image %s", local.Path())
		return Open(local.Path())
	}

	if a.CacheDir == "" {
		data, err := a.fetch(ctx, src)
		if err != nil {
			return nil, err
		}
		return Decode(bytes.NewReader(data))
	}

	path := a.Path(key)
	if _, err := os.Stat(path); err == nil {
		logging.Debugf("Loading cached image %s for %s", path, src)
		return Open(path)
	}

	log.Printf("Downloading image %s", src)
	data, err := a.fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(path, data); err != nil {
		return nil, err
	}
	if err := a.throttle(ctx, src); err != nil {
		return nil, err
	}
	return img, nil
}

// fetch reads the whole content of src under the per-fetch timeout.
func (a *Acquirer) fetch(ctx context.Context, src Source) ([]byte, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if remote, ok := src.(*RemoteSource); ok && remote.Client == nil && a.Client != nil {
		src = &RemoteSource{URL: remote.URL, Client: a.Client}
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", src, err)
	}
	return data, nil
}

func (a *Acquirer) throttle(ctx context.Context, src Source) error {
	var pause time.Duration
	for host, d := range a.Throttle {
		if strings.Contains(src.String(), host) && d > pause {
			pause = d
		}
	}
	if pause <= 0 {
		return nil
	}
	logging.Debugf("Waiting %v after downloading %s", pause, src)
	t := time.NewTimer(pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// writeAtomic writes data to a temporary sibling of path and renames it into
// place, so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache folder: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// AcquireAll acquires every source on a bounded pool. images[i] is nil when
// sources[i] failed; each failure is reported once and never cancels its
// siblings. Failures are sorted by URL.
//
// Every decoded image stays referenced until AcquireAll returns. Callers that
// only need the side effect of populating the cache use AcquireEach.
func (a *Acquirer) AcquireAll(ctx context.Context, sources []Source) ([]image.Image, []*errs.AcquisitionError) {
	images := make([]image.Image, len(sources))
	failures := a.AcquireEach(ctx, sources, func(i int, img image.Image) {
		images[i] = img
	})
	return images, failures
}

// AcquireEach acquires every source on a bounded pool and hands each decoded
// image to fn with its index in sources. fn runs on the pool goroutines and
// must be safe for concurrent use; the image is not retained afterwards unless
// fn or Memory keeps it. Failures are handled as in AcquireAll.
func (a *Acquirer) AcquireEach(ctx context.Context, sources []Source, fn func(i int, img image.Image)) []*errs.AcquisitionError {
	var (
		mu       sync.Mutex
		failures []*errs.AcquisitionError
	)

	var g errgroup.Group
	g.SetLimit(poolSize(a.Workers))
	for i, src := range sources {
		g.Go(func() error {
			img, err := a.Acquire(ctx, src)
			if err != nil {
				log.Printf("Cannot retrieve image %s: %v", src, err)
				mu.Lock()
				failures = append(failures, &errs.AcquisitionError{URL: src.String(), Key: src.Key(), Err: err})
				mu.Unlock()
				return nil
			}
			if fn != nil {
				fn(i, img)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(i, k int) bool { return failures[i].URL < failures[k].URL })
	return failures
}

func poolSize(workers int) int {
	if workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return workers
}
