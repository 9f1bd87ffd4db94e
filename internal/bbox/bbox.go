// Package bbox implements the bounding-box value type and the conversions
// between the three object-detection box conventions.
//
// # Formats
//
//   - Pascal: (x1, y1, x2, y2), absolute pixels, top-left and bottom-right corners
//   - COCO:   (x, y, width, height), absolute pixels, top-left corner and size
//   - YOLO:   (x_center, y_center, width, height), normalized to [0,1] by the
//     image width and height
//
// The four numbers of a Box are meaningless without its Format. Conversions to
// or from YOLO need the image Dimensions; conversions between Pascal and COCO
// do not. Conversions into YOLO round each value to 5 decimal places.
package bbox

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ironsheep/muret2yolo/internal/errs"
)

// Format identifies a box coordinate convention.
type Format int

const (
	// YOLO is (x_center, y_center, width, height) normalized by image size.
	YOLO Format = iota
	// COCO is (x, y, width, height) in absolute pixels.
	COCO
	// Pascal is (x1, y1, x2, y2) in absolute pixels.
	Pascal
)

// Formats lists every supported format.
var Formats = []Format{YOLO, COCO, Pascal}

func (f Format) String() string {
	switch f {
	case YOLO:
		return "yolo"
	case COCO:
		return "coco"
	case Pascal:
		return "pascal"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	return f == YOLO || f == COCO || f == Pascal
}

// ParseFormat maps a format name (case-insensitive) to its Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "yolo":
		return YOLO, nil
	case "coco":
		return COCO, nil
	case "pascal":
		return Pascal, nil
	}
	return 0, errs.Validationf("unsupported format %q, must be one of %v", name, Formats)
}

// Dimensions is an image size in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (d Dimensions) String() string {
	return fmt.Sprintf("[w=%d, h=%d]", d.Width, d.Height)
}

// Box is four coordinates tagged with the convention that gives them meaning.
type Box struct {
	A, B, C, D float64
	Format     Format
}

// New creates a box after checking the format tag.
func New(a, b, c, d float64, format Format) (Box, error) {
	if !format.Valid() {
		return Box{}, errs.Validationf("unsupported format %v, must be one of %v", format, Formats)
	}
	return Box{A: a, B: b, C: c, D: d, Format: format}, nil
}

// External is a bounding box as written in MuRET JSON records.
type External struct {
	FromX float64 `json:"fromX"`
	FromY float64 `json:"fromY"`
	ToX   float64 `json:"toX"`
	ToY   float64 `json:"toY"`
}

// FromMuRET converts a MuRET bounding-box record into a Pascal box.
func FromMuRET(e External) Box {
	return Box{A: e.FromX, B: e.FromY, C: e.ToX, D: e.ToY, Format: Pascal}
}

// Resize multiplies the raw coordinates in place. It is only meaningful while
// the box is still in absolute pixels, so resize before converting to YOLO.
func (b *Box) Resize(sx, sy float64) {
	b.A *= sx
	b.B *= sy
	b.C *= sx
	b.D *= sy
}

// Translate shifts an absolute box by (dx, dy). Width and height are unchanged.
func (b Box) Translate(dx, dy float64) (Box, error) {
	switch b.Format {
	case Pascal:
		return Box{A: b.A + dx, B: b.B + dy, C: b.C + dx, D: b.D + dy, Format: Pascal}, nil
	case COCO:
		return Box{A: b.A + dx, B: b.B + dy, C: b.C, D: b.D, Format: COCO}, nil
	}
	return Box{}, errs.Validationf("cannot translate a %v box", b.Format)
}

// To converts the box into target. A box already in target is returned
// unchanged whatever dims is. dims is required when either side is YOLO.
func (b Box) To(target Format, dims *Dimensions) (Box, error) {
	if !target.Valid() {
		return Box{}, errs.Validationf("unsupported target format %v", target)
	}
	if b.Format == target {
		return b, nil
	}
	conv, ok := conversions[pair{b.Format, target}]
	if !ok {
		return Box{}, errs.Validationf("no conversion from %v to %v", b.Format, target)
	}
	if (b.Format == YOLO || target == YOLO) && dims == nil {
		return Box{}, errs.Validationf("image dimensions are needed to convert from %v to %v", b.Format, target)
	}
	if target == YOLO && (dims.Width <= 0 || dims.Height <= 0) {
		return Box{}, errs.Validationf("invalid image dimensions %v", *dims)
	}
	return conv(b, dims), nil
}

// String formats the coordinates space separated, as written in YOLO label files.
func (b Box) String() string {
	return strings.Join([]string{
		formatFloat(b.A), formatFloat(b.B), formatFloat(b.C), formatFloat(b.D),
	}, " ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type pair struct{ from, to Format }

var conversions = map[pair]func(Box, *Dimensions) Box{
	{Pascal, YOLO}: pascalToYOLO,
	{COCO, YOLO}:   cocoToYOLO,
	{YOLO, COCO}:   yoloToCOCO,
	{YOLO, Pascal}: yoloToPascal,
	{Pascal, COCO}: pascalToCOCO,
	{COCO, Pascal}: cocoToPascal,
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}

func normalize(cx, cy, w, h float64, dims *Dimensions) Box {
	iw, ih := float64(dims.Width), float64(dims.Height)
	return Box{
		A:      round5(cx / iw),
		B:      round5(cy / ih),
		C:      round5(w / iw),
		D:      round5(h / ih),
		Format: YOLO,
	}
}

func pascalToYOLO(b Box, dims *Dimensions) Box {
	return normalize((b.A+b.C)/2, (b.B+b.D)/2, b.C-b.A, b.D-b.B, dims)
}

func cocoToYOLO(b Box, dims *Dimensions) Box {
	return normalize(b.A+b.C/2, b.B+b.D/2, b.C, b.D, dims)
}

func yoloToCOCO(b Box, dims *Dimensions) Box {
	iw, ih := float64(dims.Width), float64(dims.Height)
	w := b.C * iw
	h := b.D * ih
	return Box{A: b.A*iw - w/2, B: b.B*ih - h/2, C: w, D: h, Format: COCO}
}

func yoloToPascal(b Box, dims *Dimensions) Box {
	c := yoloToCOCO(b, dims)
	return Box{A: c.A, B: c.B, C: c.A + c.C, D: c.B + c.D, Format: Pascal}
}

func pascalToCOCO(b Box, _ *Dimensions) Box {
	return Box{A: b.A, B: b.B, C: b.C - b.A, D: b.D - b.B, Format: COCO}
}

func cocoToPascal(b Box, _ *Dimensions) Box {
	return Box{A: b.A, B: b.B, C: b.A + b.C, D: b.B + b.D, Format: Pascal}
}
