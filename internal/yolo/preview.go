package yolo

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/ironsheep/muret2yolo/internal/errs"
	"github.com/ironsheep/muret2yolo/internal/imaging"
	"github.com/ironsheep/muret2yolo/internal/partition"
)

func checkSplit(split string) error {
	if !slices.Contains(partition.Names(), split) {
		return errs.Validationf("unknown split %q, must be one of %v", split, partition.Names())
	}
	return nil
}

// ListSamples returns the sample names of split in the dataset rooted at dir,
// sorted.
func ListSamples(dir, split string) ([]string, error) {
	if err := checkSplit(split); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(dir, LabelsFolder, split))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s samples: %w", split, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".txt"))
	}
	sort.Strings(names)
	return names, nil
}

// Preview draws the labels of one written sample on its image, captioned with
// the class names of the manifest. cache may be nil.
func Preview(dir, split, name string, cache *imaging.ImageCache) (*image.RGBA, []Object, error) {
	if err := checkSplit(split); err != nil {
		return nil, nil, err
	}
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, nil, err
	}

	labelPath := filepath.Join(dir, LabelsFolder, split, name+".txt")
	f, err := os.Open(labelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()
	objects, err := ParseLabels(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", labelPath, err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, ImagesFolder, split, name+".*"))
	if err != nil {
		return nil, nil, err
	}
	if len(matches) == 0 {
		return nil, nil, fmt.Errorf("no image for sample %s in %s: %w", name, split, os.ErrNotExist)
	}
	var img image.Image
	if cache != nil {
		img, err = cache.Load(matches[0])
	} else {
		img, err = imaging.Open(matches[0])
	}
	if err != nil {
		return nil, nil, err
	}

	annotations := make([]imaging.Annotation, len(objects))
	for i, o := range objects {
		annotations[i] = imaging.Annotation{Class: o.Class, Box: o.Box}
	}
	out, err := imaging.Overlay(img, annotations, manifest.ClassNames())
	if err != nil {
		return nil, nil, err
	}
	return out, objects, nil
}
