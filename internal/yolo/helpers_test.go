package yolo

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ironsheep/muret2yolo/internal/muret"
)

type record = map[string]any

func box(x1, y1, x2, y2 float64) record {
	return record{"fromX": x1, "fromY": y1, "toX": x2, "toY": y2}
}

func page(b record, regions ...record) record {
	return record{"bounding_box": b, "regions": regions}
}

func region(kind string, b record, symbols ...record) record {
	return record{"type": kind, "bounding_box": b, "symbols": symbols}
}

func symbol(kind, position string, b record) record {
	s := record{"agnostic_symbol_type": kind, "position_in_staff": position}
	if b != nil {
		s["bounding_box"] = b
	} else {
		s["approximate_x"] = 1.5
	}
	return s
}

func imageRecord(id int, url, filename string, pages ...record) record {
	return record{"id": id, "url": url, "filename": filename, "pages": pages}
}

// loadPackage writes a MuRET package made of the given dictionaries and
// records into a temporary folder and loads it.
func loadPackage(t *testing.T, regions, symbols []string, records ...record) *muret.Package {
	t.Helper()
	root := t.TempDir()
	if symbols == nil {
		symbols = []string{}
	}
	dict := map[string][]string{
		muret.RegionDictionaryRoot: regions,
		muret.SymbolTypesRoot:      symbols,
		muret.PositionsInStaffRoot: {"L1", "L2", "S1"},
	}
	writeJSON(t, filepath.Join(root, muret.DictionaryFile), dict)
	for i, r := range records {
		writeJSON(t, filepath.Join(root, muret.FilesFolder, "f"+string(rune('a'+i))+".json"), r)
	}
	pkg, err := muret.Load(context.Background(), root, muret.LoadOptions{Workers: 2})
	require.NoError(t, err)
	return pkg
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// writeImage writes a width x height mid-gray PNG to dir/name.
func writeImage(t *testing.T, dir, name string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
