package imaging

import (
	"context"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// imageServer serves a 40x30 PNG on every path except /missing (404) and
// /garbage (not an image), counting requests per path.
type imageServer struct {
	*httptest.Server
	delay time.Duration

	mu   sync.Mutex
	hits map[string]int
}

func newImageServer(t *testing.T, delay time.Duration) *imageServer {
	t.Helper()
	body := pngBytes(t, createPatternImage(40, 30))
	s := &imageServer{delay: delay, hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()

		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-r.Context().Done():
				return
			}
		}
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/garbage":
			w.Write([]byte("definitely not an image"))
		default:
			w.Header().Set("Content-Type", "image/png")
			w.Write(body)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *imageServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func newTestAcquirer(dir string) *Acquirer {
	a := NewAcquirer(dir)
	a.Throttle = nil
	return a
}

func TestCacheKey(t *testing.T) {
	key := CacheKey("https://example.org/a.jpg")
	assert.Len(t, key, 13)
	assert.Regexp(t, `^[0-9a-f]{13}$`, key)
	assert.Equal(t, key, CacheKey("https://example.org/a.jpg"))
	assert.NotEqual(t, key, CacheKey("https://example.org/b.jpg"))
}

func TestAcquire_ConcurrentSameURLFetchesOnce(t *testing.T) {
	srv := newImageServer(t, 50*time.Millisecond)
	dir := t.TempDir()
	a := newTestAcquirer(dir)
	src := &RemoteSource{URL: srv.URL + "/page.png"}

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, err := a.Acquire(context.Background(), src)
			if err != nil || img.Bounds().Dx() != 40 {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, srv.count("/page.png"))

	entries, err := os.ReadDir(filepath.Join(dir, ImagesFolder))
	require.NoError(t, err)
	require.Len(t, entries, 1, "exactly one persisted file, no temporaries")
	assert.Equal(t, src.Key(), entries[0].Name())

	// A later request, even from a fresh acquirer, is served from disk.
	img, err := newTestAcquirer(dir).Acquire(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dy())
	assert.Equal(t, 1, srv.count("/page.png"))
}

func TestAcquire_WithoutCacheDirFetchesEveryTime(t *testing.T) {
	srv := newImageServer(t, 0)
	a := newTestAcquirer("")
	src := &RemoteSource{URL: srv.URL + "/page.png"}

	for i := 0; i < 2; i++ {
		_, err := a.Acquire(context.Background(), src)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, srv.count("/page.png"))
}

func TestAcquire_MemoryCache(t *testing.T) {
	srv := newImageServer(t, 0)
	a := newTestAcquirer("")
	a.Memory = NewImageCache()
	src := &RemoteSource{URL: srv.URL + "/page.png"}

	first, err := a.Acquire(context.Background(), src)
	require.NoError(t, err)
	second, err := a.Acquire(context.Background(), src)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, srv.count("/page.png"))
	assert.Equal(t, 1, a.Memory.Len())
}

func TestAcquire_Timeout(t *testing.T) {
	srv := newImageServer(t, time.Second)
	a := newTestAcquirer(t.TempDir())
	a.Timeout = 20 * time.Millisecond

	_, err := a.Acquire(context.Background(), &RemoteSource{URL: srv.URL + "/slow.png"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, statErr := os.Stat(a.Path(CacheKey(srv.URL + "/slow.png")))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAcquire_UndecodableContentIsNotPersisted(t *testing.T) {
	srv := newImageServer(t, 0)
	a := newTestAcquirer(t.TempDir())
	src := &RemoteSource{URL: srv.URL + "/garbage"}

	_, err := a.Acquire(context.Background(), src)
	require.Error(t, err)

	_, statErr := os.Stat(a.Path(src.Key()))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAcquire_Throttle(t *testing.T) {
	srv := newImageServer(t, 0)
	a := newTestAcquirer(t.TempDir())
	a.Throttle = map[string]time.Duration{"127.0.0.1": 40 * time.Millisecond}

	start := time.Now()
	_, err := a.Acquire(context.Background(), &RemoteSource{URL: srv.URL + "/page.png"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	// Cached reads are not throttled.
	start = time.Now()
	_, err = a.Acquire(context.Background(), &RemoteSource{URL: srv.URL + "/page.png"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 40*time.Millisecond)
}

func TestAcquire_LocalSource(t *testing.T) {
	path := createTestImage(t, 12, 7, color.White)
	a := newTestAcquirer(t.TempDir())

	img, err := a.Acquire(context.Background(), &LocalSource{Root: filepath.Dir(path), Name: filepath.Base(path)})
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())

	_, err = os.Stat(filepath.Join(a.CacheDir, ImagesFolder))
	assert.True(t, os.IsNotExist(err), "local images are not copied into the cache")
}

func TestAcquireAll_FailuresDoNotCancelSiblings(t *testing.T) {
	srv := newImageServer(t, 10*time.Millisecond)
	a := newTestAcquirer(t.TempDir())
	a.Workers = 2

	sources := []Source{
		&RemoteSource{URL: srv.URL + "/a.png"},
		&RemoteSource{URL: srv.URL + "/missing"},
		&RemoteSource{URL: srv.URL + "/b.png"},
		&RemoteSource{URL: srv.URL + "/garbage"},
		&RemoteSource{URL: srv.URL + "/c.png"},
	}
	images, failures := a.AcquireAll(context.Background(), sources)

	require.Len(t, images, 5)
	assert.NotNil(t, images[0])
	assert.Nil(t, images[1])
	assert.NotNil(t, images[2])
	assert.Nil(t, images[3])
	assert.NotNil(t, images[4])

	require.Len(t, failures, 2)
	assert.Equal(t, srv.URL+"/garbage", failures[0].URL)
	assert.Equal(t, srv.URL+"/missing", failures[1].URL)
	assert.Equal(t, CacheKey(srv.URL+"/missing"), failures[1].Key)
	assert.Contains(t, failures[1].Error(), "404")
}

func TestAcquireEach_HandsOverEachImage(t *testing.T) {
	srv := newImageServer(t, 0)
	a := newTestAcquirer(t.TempDir())
	a.Workers = 3

	sources := []Source{
		&RemoteSource{URL: srv.URL + "/a.png"},
		&RemoteSource{URL: srv.URL + "/missing"},
		&RemoteSource{URL: srv.URL + "/b.png"},
		&RemoteSource{URL: srv.URL + "/c.png"},
	}
	var (
		mu   sync.Mutex
		seen = map[int]int{}
	)
	failures := a.AcquireEach(context.Background(), sources, func(i int, img image.Image) {
		assert.NotNil(t, img)
		mu.Lock()
		seen[i]++
		mu.Unlock()
	})

	assert.Equal(t, map[int]int{0: 1, 2: 1, 3: 1}, seen)
	require.Len(t, failures, 1)
	assert.Equal(t, srv.URL+"/missing", failures[0].URL)
	for _, name := range []string{"/a.png", "/b.png", "/c.png"} {
		assert.FileExists(t, a.Path(CacheKey(srv.URL+name)))
	}
}

func TestSourceFor(t *testing.T) {
	client := &http.Client{}

	remote, ok := SourceFor("https://example.org/x.jpg", "/data", client).(*RemoteSource)
	require.True(t, ok)
	assert.Equal(t, "https://example.org/x.jpg", remote.URL)
	assert.Same(t, client, remote.Client)

	file, ok := SourceFor("file:///tmp/x.jpg", "/data", nil).(*LocalSource)
	require.True(t, ok)
	assert.Equal(t, filepath.FromSlash("/tmp/x.jpg"), file.Path())

	bare, ok := SourceFor("pages/x.jpg", "/data", nil).(*LocalSource)
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/data", "pages/x.jpg"), bare.Path())
	assert.Equal(t, CacheKey(bare.Path()), bare.Key())
}
