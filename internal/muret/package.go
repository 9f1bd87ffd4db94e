package muret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/muret2yolo/internal/bbox"
	"github.com/ironsheep/muret2yolo/internal/dictionary"
	"github.com/ironsheep/muret2yolo/internal/errs"
	"github.com/ironsheep/muret2yolo/internal/logging"
)

// Names of the package layout entries and dictionary roots.
const (
	DictionaryFile = "dictionary.json"
	FilesFolder    = "files"

	RegionDictionaryRoot = "region_dictionary"
	SymbolTypesRoot      = "agnostic_symbol_types"
	PositionsInStaffRoot = "agnostic_positions_in_staff"
)

// LoadOptions tunes Load.
type LoadOptions struct {
	// Workers bounds both loading phases. GOMAXPROCS when <= 0.
	Workers int

	// StrictLabels makes Load fail when any label is missing from its
	// dictionary. The labels are still registered before Load returns.
	StrictLabels bool
}

// Package is a loaded MuRET training package.
type Package struct {
	Folder string

	RegionTypes         *dictionary.Dictionary
	AgnosticSymbolTypes *dictionary.Dictionary
	PositionsInStaff    *dictionary.Dictionary

	// Images are ordered like Files.
	Images []*Image
	// Files are the successfully parsed records, sorted by (Folder, Name).
	Files []*DatasetFile

	// Warnings lists every label that had to be registered during the load,
	// in file order.
	Warnings []*UnknownLabelWarning
	// Failures lists the files that were skipped.
	Failures []*errs.FileError
}

// Load reads the package rooted at folder.
//
// It fails before touching files/ when folder or its dictionary.json is
// missing (wrapping fs.ErrNotExist) or when a dictionary root key is absent
// (errs.ErrConfig). An empty package, or one where every file fails, is an
// errs.ErrValidation.
func Load(ctx context.Context, folder string, opts LoadOptions) (*Package, error) {
	log.Printf("Reading MuRET training package from folder %s", folder)

	if _, err := os.Stat(folder); err != nil {
		return nil, fmt.Errorf("folder %s does not exist: %w", folder, err)
	}
	dictPath := filepath.Join(folder, DictionaryFile)
	data, err := os.ReadFile(dictPath)
	if err != nil {
		return nil, fmt.Errorf("dictionary file %s does not exist: %w", dictPath, err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.Configf("dictionary file %s is not a JSON object: %v", dictPath, err)
	}

	pkg := &Package{Folder: folder}
	for _, d := range []struct {
		root string
		dst  **dictionary.Dictionary
	}{
		{RegionDictionaryRoot, &pkg.RegionTypes},
		{SymbolTypesRoot, &pkg.AgnosticSymbolTypes},
		{PositionsInStaffRoot, &pkg.PositionsInStaff},
	} {
		dict, err := dictionary.FromDocument(doc, d.root)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dictPath, err)
		}
		*d.dst = dict
	}

	files, failures, err := DiscoverFiles(ctx, filepath.Join(folder, FilesFolder), opts.Workers)
	if err != nil {
		return nil, err
	}
	if len(files)+len(failures) == 0 {
		return nil, errs.Validationf("empty MuRET training set package %s", folder)
	}
	pkg.Failures = failures

	if err := pkg.build(ctx, files, opts.Workers); err != nil {
		return nil, err
	}
	for _, f := range pkg.Failures {
		log.Printf("Skipping %v", f)
	}
	for _, w := range pkg.Warnings {
		log.Printf("Warning: %v", w)
	}
	if len(pkg.Images) == 0 {
		return nil, errs.Validationf("no valid file in MuRET training set package %s (%d failed)", folder, len(pkg.Failures))
	}
	if opts.StrictLabels && len(pkg.Warnings) > 0 {
		joined := make([]error, len(pkg.Warnings))
		for i, w := range pkg.Warnings {
			joined[i] = w
		}
		return pkg, errors.Join(joined...)
	}

	log.Printf("%d images read from input folder %s", len(pkg.Images), folder)
	return pkg, nil
}

// build turns each file into an Image on the worker pool. Labels are only
// collected there; once the pool drains they are registered in file order, so
// the indices handed to unknown labels do not depend on scheduling. Files that
// fail contribute no labels.
func (p *Package) build(ctx context.Context, files []*DatasetFile, workers int) error {
	var (
		mu       sync.Mutex
		images   = make([]*Image, len(files))
		uses     = make([][]labelUse, len(files))
		failures []*errs.FileError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize(workers))
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, labels, err := p.readFile(f)
			if err != nil {
				mu.Lock()
				failures = append(failures, &errs.FileError{Path: f.Path, Err: err})
				mu.Unlock()
				return nil
			}
			images[i] = img
			uses[i] = labels
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, img := range images {
		if img == nil {
			continue
		}
		p.Images = append(p.Images, img)
		p.Files = append(p.Files, files[i])
		p.Warnings = append(p.Warnings, p.register(files[i], uses[i])...)
	}

	p.Failures = append(p.Failures, failures...)
	sort.Slice(p.Failures, func(i, k int) bool { return p.Failures[i].Path < p.Failures[k].Path })
	return nil
}

// labelUse is one label occurrence in a record, in reading order.
type labelUse struct {
	kind  LabelKind
	label string
	where string
}

// register adds the labels of one file to the package dictionaries and
// returns a warning for each label seen for the first time.
func (p *Package) register(f *DatasetFile, uses []labelUse) []*UnknownLabelWarning {
	var warnings []*UnknownLabelWarning
	for _, u := range uses {
		if index, added := p.dictionary(u.kind).Register(u.label); added {
			warnings = append(warnings, &UnknownLabelWarning{
				Kind: u.kind, Label: u.label, Index: index, File: f.Path, Context: u.where,
			})
		}
	}
	return warnings
}

func (p *Package) dictionary(kind LabelKind) *dictionary.Dictionary {
	switch kind {
	case AgnosticSymbolType:
		return p.AgnosticSymbolTypes
	case PositionInStaff:
		return p.PositionsInStaff
	default:
		return p.RegionTypes
	}
}

// readFile builds the Image of one record and lists the labels it uses. It
// does not touch the dictionaries.
func (p *Package) readFile(f *DatasetFile) (*Image, []labelUse, error) {
	rec := f.record
	switch {
	case rec.ID == nil:
		return nil, nil, errs.Validationf("missing required key %q", "id")
	case rec.URL == nil:
		return nil, nil, errs.Validationf("missing required key %q", "url")
	case rec.Filename == nil:
		return nil, nil, errs.Validationf("missing required key %q", "filename")
	}

	var uses []labelUse
	use := func(kind LabelKind, label, where string) {
		uses = append(uses, labelUse{kind: kind, label: label, where: where})
	}

	img := &Image{ID: *rec.ID, URL: *rec.URL, Filename: *rec.Filename}
	for pi, pr := range rec.Pages {
		if pr.BoundingBox == nil {
			return nil, nil, errs.Validationf("page %d: missing bounding_box", pi)
		}
		page := &Page{BoundingBox: bbox.FromMuRET(*pr.BoundingBox)}
		img.Pages = append(img.Pages, page)

		for ri, rr := range pr.Regions {
			where := fmt.Sprintf("page %d region %d", pi, ri)
			if rr.Type == nil {
				return nil, nil, errs.Validationf("%s: missing type", where)
			}
			if rr.BoundingBox == nil {
				return nil, nil, errs.Validationf("%s: missing bounding_box", where)
			}
			use(RegionType, *rr.Type, where)

			region := &Region{
				Type:             *rr.Type,
				BoundingBox:      bbox.FromMuRET(*rr.BoundingBox),
				SemanticEncoding: rr.SemanticEncoding,
			}
			page.Regions = append(page.Regions, region)
			if len(rr.Symbols) > 0 {
				logging.Debugf("Processing %d symbols in region", len(rr.Symbols))
			}

			for si, sr := range rr.Symbols {
				where := fmt.Sprintf("page %d region %d symbol %d", pi, ri, si)
				if sr.AgnosticSymbolType == nil {
					return nil, nil, errs.Validationf("%s: missing agnostic_symbol_type", where)
				}
				if sr.PositionInStaff == nil {
					return nil, nil, errs.Validationf("%s: missing position_in_staff", where)
				}
				use(AgnosticSymbolType, *sr.AgnosticSymbolType, where)
				use(PositionInStaff, *sr.PositionInStaff, where)

				symbol := &Symbol{
					AgnosticType:    *sr.AgnosticSymbolType,
					PositionInStaff: *sr.PositionInStaff,
					ApproximateX:    sr.ApproximateX,
				}
				if sr.BoundingBox != nil {
					b := bbox.FromMuRET(*sr.BoundingBox)
					symbol.BoundingBox = &b
				}
				region.Symbols = append(region.Symbols, symbol)
			}
		}
	}
	return img, uses, nil
}

// Summary counts the contents of a package.
type Summary struct {
	Images            int            `json:"images"`
	Pages             int            `json:"pages"`
	Regions           int            `json:"regions"`
	Symbols           int            `json:"symbols"`
	SymbolsWithoutBox int            `json:"symbols_without_box"`
	RegionsByType     map[string]int `json:"regions_by_type"`
	RegionTypes       []string       `json:"region_types"`
	AgnosticSymbols   int            `json:"agnostic_symbol_types"`
	PositionsInStaff  int            `json:"positions_in_staff"`
	UnknownLabels     []string       `json:"unknown_labels,omitempty"`
	FailedFiles       []string       `json:"failed_files,omitempty"`
}

// Summary returns counts over the loaded graph and dictionaries.
func (p *Package) Summary() *Summary {
	s := &Summary{
		Images:           len(p.Images),
		RegionsByType:    make(map[string]int),
		RegionTypes:      p.RegionTypes.Labels(),
		AgnosticSymbols:  p.AgnosticSymbolTypes.Size(),
		PositionsInStaff: p.PositionsInStaff.Size(),
	}
	for _, img := range p.Images {
		s.Pages += len(img.Pages)
		for _, page := range img.Pages {
			s.Regions += len(page.Regions)
			for _, r := range page.Regions {
				s.RegionsByType[r.Type]++
				s.Symbols += len(r.Symbols)
				for _, sym := range r.Symbols {
					if sym.BoundingBox == nil {
						s.SymbolsWithoutBox++
					}
				}
			}
		}
	}
	for _, w := range p.Warnings {
		s.UnknownLabels = append(s.UnknownLabels, w.Error())
	}
	for _, f := range p.Failures {
		s.FailedFiles = append(s.FailedFiles, f.Error())
	}
	return s
}
