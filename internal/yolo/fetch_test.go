package yolo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/muret2yolo/internal/imaging"
)

func TestFetch_PopulatesCache(t *testing.T) {
	var hits atomic.Int32
	images := t.TempDir()
	writeImage(t, images, "a.png", 12, 12)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/a.png" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(images, "a.png"))
	}))
	defer srv.Close()

	pkg := loadPackage(t, []string{"page"}, nil,
		imageRecord(1, srv.URL+"/a.png", "a.png", page(box(0, 0, 12, 12))),
		imageRecord(2, srv.URL+"/b.png", "b.png", page(box(0, 0, 12, 12))))

	cache := t.TempDir()
	acq := imaging.NewAcquirer(cache)
	acq.Throttle = nil

	report, err := Fetch(context.Background(), pkg, acq, "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Images)
	assert.Equal(t, 1, report.Fetched)
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0], "b.png")
	assert.FileExists(t, acq.Path(imaging.CacheKey(srv.URL+"/a.png")))

	// A transcoding run over the same cache does not download again.
	before := hits.Load()
	tr, err := New(pkg, Options{Mode: Regions, Splits: allTrain, Acquirer: imaging.NewAcquirer(cache)})
	require.NoError(t, err)
	_, report2 := runTranscoder(t, tr)
	assert.Equal(t, 1, report2.Samples)
	assert.Equal(t, before+1, hits.Load(), "only the missing image is requested again")
}

func TestFetch_ImagesRoot(t *testing.T) {
	images := t.TempDir()
	writeImage(t, images, "a.png", 4, 4)
	pkg := loadPackage(t, []string{"page"}, nil,
		imageRecord(1, "http://unused/a.png", "a.png", page(box(0, 0, 4, 4))))

	report, err := Fetch(context.Background(), pkg, imaging.NewAcquirer(""), images)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fetched)
	assert.Empty(t, report.Failed)
}

func TestFetch_Cancelled(t *testing.T) {
	pkg := loadPackage(t, []string{"page"}, nil,
		imageRecord(1, "http://127.0.0.1:1/a.png", "a.png", page(box(0, 0, 4, 4))))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fetch(ctx, pkg, imaging.NewAcquirer(""), "")
	assert.ErrorIs(t, err, context.Canceled)
}
