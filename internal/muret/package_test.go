package muret

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/muret2yolo/internal/bbox"
	"github.com/ironsheep/muret2yolo/internal/errs"
)

const testDictionary = `{
	"region_dictionary": ["page", "staff", "lyrics"],
	"agnostic_symbol_types": ["clef.G", "note.quarter"],
	"agnostic_positions_in_staff": ["L1", "L2", "S1"]
}`

// createPackage writes a package folder with the given dictionary and files
// (relative path under files/ → JSON contents) and returns its path.
func createPackage(t *testing.T, dictionary string, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	if dictionary != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, DictionaryFile), []byte(dictionary), 0o644))
	}
	for rel, contents := range files {
		path := filepath.Join(root, FilesFolder, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}
	return root
}

const staffImage = `{
	"id": 7,
	"url": "http://example.org/img/7.jpg",
	"filename": "7.jpg",
	"pages": [{
		"bounding_box": {"fromX": 0, "fromY": 0, "toX": 100, "toY": 200},
		"regions": [{
			"type": "staff",
			"bounding_box": {"fromX": 10, "fromY": 10, "toX": 90, "toY": 190},
			"semantic_encoding": "**kern",
			"symbols": [
				{"agnostic_symbol_type": "clef.G", "position_in_staff": "L2",
				 "bounding_box": {"fromX": 12, "fromY": 20, "toX": 20, "toY": 60}},
				{"agnostic_symbol_type": "note.quarter", "position_in_staff": "S1", "approximate_x": 42}
			]
		}]
	}]
}`

func imageJSON(id int, url string) string {
	return `{"id": ` + itoa(id) + `, "url": "` + url + `", "filename": "f.jpg", "pages": []}`
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func TestLoad_BuildsGraph(t *testing.T) {
	root := createPackage(t, testDictionary, map[string]string{"a/7.json": staffImage})

	pkg, err := Load(context.Background(), root, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, pkg.Images, 1)
	assert.Empty(t, pkg.Warnings)
	assert.Empty(t, pkg.Failures)

	encoding := "**kern"
	approx := 42.0
	want := &Image{
		ID:       7,
		URL:      "http://example.org/img/7.jpg",
		Filename: "7.jpg",
		Pages: []*Page{{
			BoundingBox: bbox.Box{A: 0, B: 0, C: 100, D: 200, Format: bbox.Pascal},
			Regions: []*Region{{
				Type:             "staff",
				BoundingBox:      bbox.Box{A: 10, B: 10, C: 90, D: 190, Format: bbox.Pascal},
				SemanticEncoding: &encoding,
				Symbols: []*Symbol{
					{
						AgnosticType:    "clef.G",
						PositionInStaff: "L2",
						BoundingBox:     &bbox.Box{A: 12, B: 20, C: 20, D: 60, Format: bbox.Pascal},
					},
					{
						AgnosticType:    "note.quarter",
						PositionInStaff: "S1",
						ApproximateX:    &approx,
					},
				},
			}},
		}},
	}
	if diff := cmp.Diff(want, pkg.Images[0]); diff != "" {
		t.Errorf("image graph mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, pkg.Images[0].RegionCount())
	assert.Equal(t, 2, pkg.Images[0].SymbolCount())
}

func TestLoad_SortsByFolderThenName(t *testing.T) {
	root := createPackage(t, testDictionary, map[string]string{
		"b/01.json":  imageJSON(1, "u1"),
		"a/02.json":  imageJSON(2, "u2"),
		"a/01.json":  imageJSON(3, "u3"),
		"00.json":    imageJSON(4, "u4"),
		"a/c/0.json": imageJSON(5, "u5"),
	})

	for run := 0; run < 5; run++ {
		pkg, err := Load(context.Background(), root, LoadOptions{Workers: 4})
		require.NoError(t, err)

		var order []string
		for _, f := range pkg.Files {
			order = append(order, f.Folder+"/"+f.Name)
		}
		assert.Equal(t, []string{"/00", "a/01", "a/02", "a/c/0", "b/01"}, order)

		var ids []int64
		for _, img := range pkg.Images {
			ids = append(ids, img.ID)
		}
		assert.Equal(t, []int64{4, 3, 2, 5, 1}, ids)
	}
}

func TestLoad_MissingFolder(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope"), LoadOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_MissingDictionary(t *testing.T) {
	root := createPackage(t, "", map[string]string{"x.json": staffImage})
	_, err := Load(context.Background(), root, LoadOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_MissingDictionaryRootFailsBeforeFiles(t *testing.T) {
	// No files/ folder at all: touching it would surface fs.ErrNotExist.
	root := createPackage(t, `{
		"region_dictionary": ["page"],
		"agnostic_positions_in_staff": ["L1"]
	}`, nil)

	_, err := Load(context.Background(), root, LoadOptions{})
	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.NotErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), SymbolTypesRoot)
}

func TestLoad_EmptyPackage(t *testing.T) {
	root := createPackage(t, testDictionary, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(root, FilesFolder, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, FilesFolder, "readme.txt"), []byte("x"), 0o644))

	_, err := Load(context.Background(), root, LoadOptions{})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestLoad_UnknownRegionTypeRegistersAndWarns(t *testing.T) {
	root := createPackage(t, testDictionary, map[string]string{"x.json": `{
		"id": 1, "url": "u", "filename": "f",
		"pages": [{"bounding_box": {"fromX": 0, "fromY": 0, "toX": 10, "toY": 10},
			"regions": [{"type": "title", "bounding_box": {"fromX": 1, "fromY": 1, "toX": 5, "toY": 5}}]}]
	}`})

	pkg, err := Load(context.Background(), root, LoadOptions{})
	require.NoError(t, err)

	assert.True(t, pkg.RegionTypes.Contains("title"))
	idx, err := pkg.RegionTypes.IndexOf("title")
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	require.Len(t, pkg.Warnings, 1)
	w := pkg.Warnings[0]
	assert.Equal(t, RegionType, w.Kind)
	assert.Equal(t, "title", w.Label)
	assert.Equal(t, 3, w.Index)
	assert.Equal(t, "page 0 region 0", w.Context)

	// The image is kept.
	require.Len(t, pkg.Images, 1)
	assert.Equal(t, "title", pkg.Images[0].Pages[0].Regions[0].Type)
}

func TestLoad_UnknownLabelReportedOnceAcrossFiles(t *testing.T) {
	rec := `{
		"id": 1, "url": "u", "filename": "f",
		"pages": [{"bounding_box": {"fromX": 0, "fromY": 0, "toX": 10, "toY": 10},
			"regions": [{"type": "staff", "bounding_box": {"fromX": 1, "fromY": 1, "toX": 5, "toY": 5},
				"symbols": [{"agnostic_symbol_type": "rest.whole", "position_in_staff": "L9"}]}]}]
	}`
	files := make(map[string]string)
	for i := 0; i < 20; i++ {
		files[itoa(i)+".json"] = rec
	}
	root := createPackage(t, testDictionary, files)

	pkg, err := Load(context.Background(), root, LoadOptions{Workers: 8})
	require.NoError(t, err)
	require.Len(t, pkg.Images, 20)

	kinds := map[LabelKind]int{}
	for _, w := range pkg.Warnings {
		kinds[w.Kind]++
	}
	assert.Equal(t, map[LabelKind]int{AgnosticSymbolType: 1, PositionInStaff: 1}, kinds)
	assert.Equal(t, 3, pkg.AgnosticSymbolTypes.Size())
	assert.Equal(t, 4, pkg.PositionsInStaff.Size())
}

func regionTypeJSON(id int, regionType string) string {
	return `{
		"id": ` + itoa(id) + `, "url": "u", "filename": "f",
		"pages": [{"bounding_box": {"fromX": 0, "fromY": 0, "toX": 10, "toY": 10},
			"regions": [{"type": "` + regionType + `", "bounding_box": {"fromX": 1, "fromY": 1, "toX": 5, "toY": 5}}]}]
	}`
}

func TestLoad_UnknownLabelsFollowFileOrder(t *testing.T) {
	files := make(map[string]string)
	want := []string{"page", "staff", "lyrics"}
	for i := 0; i < 8; i++ {
		files["f"+itoa(i)+".json"] = regionTypeJSON(i, "new"+itoa(i))
		want = append(want, "new"+itoa(i))
	}
	root := createPackage(t, testDictionary, files)

	for run := 0; run < 50; run++ {
		pkg, err := Load(context.Background(), root, LoadOptions{Workers: 8})
		require.NoError(t, err)
		if diff := cmp.Diff(want, pkg.RegionTypes.Labels()); diff != "" {
			t.Fatalf("run %d: region dictionary mismatch (-want +got):\n%s", run, diff)
		}
		require.Len(t, pkg.Warnings, 8)
		for i, w := range pkg.Warnings {
			assert.Equal(t, "new"+itoa(i), w.Label)
			assert.Equal(t, 3+i, w.Index)
		}
	}
}

func TestLoad_FailedFileRegistersNoLabels(t *testing.T) {
	root := createPackage(t, testDictionary, map[string]string{
		"good.json": imageJSON(1, "u1"),
		"bad.json": `{
			"id": 2, "url": "u", "filename": "f",
			"pages": [{"bounding_box": {"fromX": 0, "fromY": 0, "toX": 10, "toY": 10},
				"regions": [{"type": "title", "bounding_box": {"fromX": 1, "fromY": 1, "toX": 5, "toY": 5},
					"symbols": [{"agnostic_symbol_type": "rest.whole"}]}]}]
		}`,
	})

	pkg, err := Load(context.Background(), root, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, pkg.Failures, 1)
	assert.Contains(t, pkg.Failures[0].Error(), "position_in_staff")

	assert.False(t, pkg.RegionTypes.Contains("title"))
	assert.False(t, pkg.AgnosticSymbolTypes.Contains("rest.whole"))
	assert.Empty(t, pkg.Warnings)
}

func TestLoad_StrictLabels(t *testing.T) {
	root := createPackage(t, testDictionary, map[string]string{"x.json": `{
		"id": 1, "url": "u", "filename": "f",
		"pages": [{"bounding_box": {"fromX": 0, "fromY": 0, "toX": 10, "toY": 10},
			"regions": [{"type": "title", "bounding_box": {"fromX": 1, "fromY": 1, "toX": 5, "toY": 5}}]}]
	}`})

	pkg, err := Load(context.Background(), root, LoadOptions{StrictLabels: true})
	require.Error(t, err)

	var w *UnknownLabelWarning
	require.True(t, errors.As(err, &w))
	assert.Equal(t, "title", w.Label)

	// Registered before failing, so the dictionary already reflects the data.
	require.NotNil(t, pkg)
	assert.True(t, pkg.RegionTypes.Contains("title"))
}

func TestLoad_SkipsBadFiles(t *testing.T) {
	root := createPackage(t, testDictionary, map[string]string{
		"good.json":       imageJSON(1, "u1"),
		"malformed.json":  `{"id": 1, "url": `,
		"missing-id.json": `{"url": "u", "filename": "f"}`,
		"no-url.json":     `{"id": 3, "filename": "f"}`,
		"bad-page.json":   `{"id": 4, "url": "u", "filename": "f", "pages": [{"regions": []}]}`,
	})

	pkg, err := Load(context.Background(), root, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, pkg.Images, 1)
	assert.Equal(t, int64(1), pkg.Images[0].ID)

	require.Len(t, pkg.Failures, 4)
	failed := map[string]error{}
	for _, f := range pkg.Failures {
		failed[filepath.Base(f.Path)] = f
		assert.ErrorIs(t, f, errs.ErrValidation)
	}
	assert.Contains(t, failed, "malformed.json")
	assert.Contains(t, failed["missing-id.json"].Error(), `"id"`)
	assert.Contains(t, failed["no-url.json"].Error(), `"url"`)
	assert.Contains(t, failed, "bad-page.json")
}

func TestLoad_AllFilesFail(t *testing.T) {
	root := createPackage(t, testDictionary, map[string]string{
		"a.json": `not json`,
		"b.json": `{"url": "u"}`,
	})

	_, err := Load(context.Background(), root, LoadOptions{})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestLoad_CancelledContext(t *testing.T) {
	root := createPackage(t, testDictionary, map[string]string{"a.json": staffImage})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, root, LoadOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiscoverFiles_SingleFile(t *testing.T) {
	root := createPackage(t, testDictionary, map[string]string{"only.json": staffImage})

	files, failures, err := DiscoverFiles(context.Background(), filepath.Join(root, FilesFolder, "only.json"), 1)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, files, 1)
	assert.Equal(t, "", files[0].Folder)
	assert.Equal(t, "only", files[0].Name)
}

func TestDiscoverFiles_Missing(t *testing.T) {
	_, _, err := DiscoverFiles(context.Background(), filepath.Join(t.TempDir(), "files"), 1)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSummary(t *testing.T) {
	root := createPackage(t, testDictionary, map[string]string{"a.json": staffImage, "b.json": imageJSON(2, "u2")})

	pkg, err := Load(context.Background(), root, LoadOptions{})
	require.NoError(t, err)

	s := pkg.Summary()
	assert.Equal(t, 2, s.Images)
	assert.Equal(t, 1, s.Pages)
	assert.Equal(t, 1, s.Regions)
	assert.Equal(t, 2, s.Symbols)
	assert.Equal(t, 1, s.SymbolsWithoutBox)
	assert.Equal(t, map[string]int{"staff": 1}, s.RegionsByType)
	assert.Equal(t, []string{"page", "staff", "lyrics"}, s.RegionTypes)
}
