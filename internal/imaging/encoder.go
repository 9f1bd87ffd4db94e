package imaging

import (
	"fmt"
	"image"
	"image/draw"
	"log"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/muret2yolo/internal/errs"
	"github.com/ironsheep/muret2yolo/internal/logging"
)

// Encoder turns acquired images into the pixel representation written to the
// dataset, and persists that representation.
type Encoder interface {
	// ID names the encoder in cache paths. Path-safe characters only.
	ID() string
	// Extension is the file extension of saved encodings, without the dot.
	Extension() string
	// Encode resizes img to width x height and encodes it. A zero width and
	// height keep the original size; a single zero keeps the aspect ratio.
	Encode(img image.Image, width, height int) (*image.Gray, error)
	// EncodeCropped crops img to (x1,y1)-(x2,y2) before encoding it.
	EncodeCropped(img image.Image, x1, y1, x2, y2 int) (*image.Gray, error)
	Save(path string, img image.Image) error
	Load(path string) (image.Image, error)
}

// GrayscaleEncoder resizes with nearest-neighbour sampling and converts to
// 8-bit luma with the ITU-R 601-2 weights. Encodings are stored as PNG.
type GrayscaleEncoder struct{}

var _ Encoder = GrayscaleEncoder{}

func (GrayscaleEncoder) ID() string        { return "gray" }
func (GrayscaleEncoder) Extension() string { return "png" }

func (e GrayscaleEncoder) Encode(img image.Image, width, height int) (*image.Gray, error) {
	if width < 0 || height < 0 {
		return nil, errs.Validationf("invalid target size %dx%d", width, height)
	}
	b := img.Bounds()
	if width > b.Dx() || height > b.Dy() {
		log.Printf("Warning: target size %dx%d is larger than the original image %dx%d", width, height, b.Dx(), b.Dy())
	}
	if (width != 0 || height != 0) && (width != b.Dx() || height != b.Dy()) {
		logging.Debugf("Resizing image to w=%d, h=%d", width, height)
		img = imaging.Resize(img, width, height, imaging.NearestNeighbor)
	}
	return toGray(img), nil
}

func (e GrayscaleEncoder) EncodeCropped(img image.Image, x1, y1, x2, y2 int) (*image.Gray, error) {
	if err := ValidateCrop(img, x1, y1, x2, y2); err != nil {
		return nil, err
	}
	logging.Debugf("Encoding cropped image (%d, %d) to (%d, %d)", x1, y1, x2, y2)
	origin := img.Bounds().Min
	cropped := imaging.Crop(img, image.Rect(x1, y1, x2, y2).Add(origin))
	return toGray(cropped), nil
}

func (GrayscaleEncoder) Save(path string, img image.Image) error {
	return SavePNG(path, img)
}

// SavePNG writes img to path as PNG.
func SavePNG(path string, img image.Image) error {
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func (GrayscaleEncoder) Load(path string) (image.Image, error) {
	img, err := imgio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return img, nil
}

// ValidateCrop checks that (x1,y1)-(x2,y2), relative to the top-left corner of
// img, has a positive extent and lies inside the image.
func ValidateCrop(img image.Image, x1, y1, x2, y2 int) error {
	b := img.Bounds()
	switch {
	case x1 >= x2 || y1 >= y2:
		return errs.Validationf("crop (%d,%d)-(%d,%d) must have positive dimensions", x1, y1, x2, y2)
	case x1 < 0 || y1 < 0:
		return errs.Validationf("crop coordinates (%d,%d) must not be negative", x1, y1)
	case x2 > b.Dx() || y2 > b.Dy():
		return errs.Validationf("crop (%d,%d)-(%d,%d) exceeds image bounds %dx%d", x1, y1, x2, y2, b.Dx(), b.Dy())
	}
	return nil
}

// toGray converts img to single-channel luma. bild produces equal RGB
// channels, which the Gray model keeps unchanged.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	rgba := effect.GrayscaleWithWeights(img, 0.299, 0.587, 0.114)
	gray := image.NewGray(rgba.Bounds())
	draw.Draw(gray, gray.Bounds(), rgba, rgba.Bounds().Min, draw.Src)
	return gray
}
