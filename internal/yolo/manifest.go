package yolo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/muret2yolo/internal/dictionary"
	"github.com/ironsheep/muret2yolo/internal/errs"
	"github.com/ironsheep/muret2yolo/internal/partition"
)

// Output layout names.
const (
	ManifestFile = "dataset.yaml"
	DictsFolder  = "muret_dicts"
	ImagesFolder = "images"
	LabelsFolder = "labels"
)

// Manifest is the dataset.yaml read by YOLO trainers.
type Manifest struct {
	Path  string         `yaml:"path"`
	Train string         `yaml:"train"`
	Val   string         `yaml:"val"`
	Test  string         `yaml:"test"`
	Names map[int]string `yaml:"names"`
}

// NewManifest describes the dataset rooted at dir with the classes of dict.
func NewManifest(dir string, dict *dictionary.Dictionary) *Manifest {
	return &Manifest{
		Path:  dir,
		Train: ImagesFolder + "/" + partition.Train,
		Val:   ImagesFolder + "/" + partition.Validation,
		Test:  ImagesFolder + "/" + partition.Test,
		Names: dict.IndexToLabel(),
	}
}

// ClassNames returns the class names indexed by class.
func (m *Manifest) ClassNames() []string {
	last := -1
	for i := range m.Names {
		if i > last {
			last = i
		}
	}
	names := make([]string, last+1)
	for i, n := range m.Names {
		if i >= 0 {
			names[i] = n
		}
	}
	return names
}

// WriteManifest writes dataset.yaml and the muret_dicts/{i2w,w2i}.json
// exports of dict under dir.
func WriteManifest(dir string, dict *dictionary.Dictionary) error {
	var doc yaml.Node
	if err := doc.Encode(NewManifest(dir, dict)); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == "names" {
			doc.Content[i].HeadComment = "Classes"
		}
	}

	f, err := os.Create(filepath.Join(dir, ManifestFile))
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		f.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	dicts := filepath.Join(dir, DictsFolder)
	if err := os.MkdirAll(dicts, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dicts, err)
	}
	exports := map[string]any{
		"i2w.json": dict.IndexToLabel(),
		"w2i.json": dict.LabelToIndex(),
	}
	for name, v := range exports {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dicts, name), data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

// ReadManifest reads the dataset.yaml of the dataset rooted at dir.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errs.Validationf("malformed manifest %s: %v", path, err)
	}
	return &m, nil
}
