package muret

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/muret2yolo/internal/bbox"
	"github.com/ironsheep/muret2yolo/internal/errs"
	"github.com/ironsheep/muret2yolo/internal/logging"
)

// DatasetFile is a decoded JSON record of the package together with where it
// was found. Folder and Name are only used to order files deterministically.
type DatasetFile struct {
	// Folder is the directory of the file relative to the files/ root, "" at the root.
	Folder string
	// Name is the base name without the .json extension.
	Name string
	// Path is the full path the file was read from.
	Path string

	record imageRecord
}

type imageRecord struct {
	ID       *int64       `json:"id"`
	URL      *string      `json:"url"`
	Filename *string      `json:"filename"`
	Pages    []pageRecord `json:"pages"`
}

type pageRecord struct {
	BoundingBox *bbox.External `json:"bounding_box"`
	Regions     []regionRecord `json:"regions"`
}

type regionRecord struct {
	Type             *string        `json:"type"`
	BoundingBox      *bbox.External `json:"bounding_box"`
	SemanticEncoding *string        `json:"semantic_encoding"`
	Symbols          []symbolRecord `json:"symbols"`
}

type symbolRecord struct {
	AgnosticSymbolType *string        `json:"agnostic_symbol_type"`
	PositionInStaff    *string        `json:"position_in_staff"`
	BoundingBox        *bbox.External `json:"bounding_box"`
	ApproximateX       *float64       `json:"approximate_x"`
}

// DiscoverFiles reads every .json file under path (recursively), or path
// itself when it is a single file, and returns them sorted by (Folder, Name).
//
// Files are parsed concurrently on up to workers goroutines (GOMAXPROCS when
// workers <= 0). A file that fails to parse is reported in the returned
// FileError slice and left out of the result.
func DiscoverFiles(ctx context.Context, path string, workers int) ([]*DatasetFile, []*errs.FileError, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("file or folder %q does not exist: %w", path, err)
	}
	logging.Debugf("Loading MuRET training package files from %s", path)

	if !info.IsDir() {
		f, err := readDatasetFile("", path)
		if err != nil {
			return nil, []*errs.FileError{{Path: path, Err: err}}, nil
		}
		return []*DatasetFile{f}, nil, nil
	}

	type job struct{ folder, path string }
	var jobs []job
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".json") {
			return nil
		}
		rel, err := filepath.Rel(path, filepath.Dir(p))
		if err != nil {
			return err
		}
		if rel == "." {
			rel = ""
		}
		jobs = append(jobs, job{folder: filepath.ToSlash(rel), path: p})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}

	var (
		mu       sync.Mutex
		files    = make([]*DatasetFile, 0, len(jobs))
		failures []*errs.FileError
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize(workers))
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := readDatasetFile(j.folder, j.path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, &errs.FileError{Path: j.path, Err: err})
				return nil
			}
			files = append(files, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sortFiles(files)
	sort.Slice(failures, func(i, k int) bool { return failures[i].Path < failures[k].Path })
	logging.Debugf("%d JSON files read, %d failed", len(files), len(failures))
	return files, failures, nil
}

func readDatasetFile(folder, path string) (*DatasetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec imageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errs.Validationf("malformed JSON: %v", err)
	}
	return &DatasetFile{
		Folder: folder,
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:   path,
		record: rec,
	}, nil
}

func sortFiles(files []*DatasetFile) {
	sort.Slice(files, func(i, k int) bool {
		if files[i].Folder != files[k].Folder {
			return files[i].Folder < files[k].Folder
		}
		return files[i].Name < files[k].Name
	})
}

func poolSize(workers int) int {
	if workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return workers
}
