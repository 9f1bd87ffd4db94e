package muret

import (
	"github.com/ironsheep/muret2yolo/internal/bbox"
)

// Image is one annotated image of the package.
type Image struct {
	ID       int64
	URL      string
	Filename string
	Pages    []*Page
}

// Page is a page of an Image, delimited by its bounding box.
type Page struct {
	BoundingBox bbox.Box
	Regions     []*Region
}

// Region is a typed area of a page: a staff, lyrics, a title...
type Region struct {
	Type             string
	BoundingBox      bbox.Box
	SemanticEncoding *string
	Symbols          []*Symbol
}

// Symbol is an agnostic music symbol inside a region.
//
// BoundingBox may be nil; ApproximateX is then the horizontal position the
// symbol was annotated at.
type Symbol struct {
	AgnosticType    string
	PositionInStaff string
	BoundingBox     *bbox.Box
	ApproximateX    *float64
}

// RegionCount returns the number of regions across all pages.
func (img *Image) RegionCount() int {
	n := 0
	for _, p := range img.Pages {
		n += len(p.Regions)
	}
	return n
}

// SymbolCount returns the number of symbols across all regions.
func (img *Image) SymbolCount() int {
	n := 0
	for _, p := range img.Pages {
		for _, r := range p.Regions {
			n += len(r.Symbols)
		}
	}
	return n
}
