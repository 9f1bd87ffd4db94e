package imaging

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/ironsheep/muret2yolo/internal/logging"
)

// CroppedFolder holds encoded crops under the cache directory.
const CroppedFolder = "cropped"

// CropCache persists encoded crops so repeated runs skip the crop and encode
// work. A nil *CropCache, or one without Dir, encodes on every call.
type CropCache struct {
	Dir string

	mu    sync.Mutex
	locks map[string]*pathLock
}

// NewCropCache returns a crop cache rooted at dir.
func NewCropCache(dir string) *CropCache {
	return &CropCache{Dir: dir}
}

// Path is where the crop (x1,y1)-(x2,y2) of the image named key is stored
// for enc.
func (c *CropCache) Path(enc Encoder, key string, x1, y1, x2, y2 int) string {
	name := fmt.Sprintf("%d_%d_%d_%d.%s", x1, y1, x2, y2, enc.Extension())
	return filepath.Join(c.Dir, CroppedFolder, enc.ID(), key, name)
}

// Load returns the encoded crop (x1,y1)-(x2,y2) of img, reading it from the
// cache when present and encoding and storing it otherwise. The
// check-encode-write sequence for one path never runs twice at once.
func (c *CropCache) Load(enc Encoder, key string, img image.Image, x1, y1, x2, y2 int) (image.Image, error) {
	if c == nil || c.Dir == "" {
		return enc.EncodeCropped(img, x1, y1, x2, y2)
	}

	path := c.Path(enc, key, x1, y1, x2, y2)
	unlock := c.lock(path)
	defer unlock()

	if _, err := os.Stat(path); err == nil {
		logging.Debugf("Loading cropped image from %s", path)
		return enc.Load(path)
	}

	cropped, err := enc.EncodeCropped(img, x1, y1, x2, y2)
	if err != nil {
		return nil, err
	}
	logging.Debugf("Saving cropped image to %s", path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create crop folder: %w", err)
	}
	tmp := path + ".tmp"
	if err := enc.Save(tmp, cropped); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return cropped, nil
}

// pathLock serializes work on one crop path. refs counts holders and
// waiters; the entry is dropped when it reaches zero.
type pathLock struct {
	mu   sync.Mutex
	refs int
}

func (c *CropCache) lock(path string) func() {
	c.mu.Lock()
	if c.locks == nil {
		c.locks = make(map[string]*pathLock)
	}
	l, ok := c.locks[path]
	if !ok {
		l = &pathLock{}
		c.locks[path] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, path)
		}
		c.mu.Unlock()
	}
}
