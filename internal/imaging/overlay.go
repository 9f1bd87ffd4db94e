package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/muret2yolo/internal/bbox"
)

// Annotation is one labelled box drawn by Overlay.
type Annotation struct {
	Class int
	Box   bbox.Box
}

// OverlayResult contains the annotated image encoded as PNG.
type OverlayResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Objects     int    `json:"objects"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

const strokeWidth = 2

// ClassColor returns the colour used for class. Hues are spread by the golden
// angle so neighbouring classes stay distinguishable.
func ClassColor(class int) color.Color {
	hue := math.Mod(float64(class)*137.508, 360)
	return colorful.Hsv(hue, 0.85, 0.95)
}

// Overlay draws every annotation on a copy of img with its class name as
// caption. Boxes in any format are accepted; YOLO boxes are interpreted
// against the size of img.
func Overlay(img image.Image, annotations []Annotation, names []string) (*image.RGBA, error) {
	bounds := img.Bounds()
	dims := Dimensions(img)

	result := image.NewRGBA(image.Rect(0, 0, dims.Width, dims.Height))
	draw.Draw(result, result.Bounds(), img, bounds.Min, draw.Src)

	for _, a := range annotations {
		box, err := a.Box.To(bbox.Pascal, &dims)
		if err != nil {
			return nil, err
		}
		c := ClassColor(a.Class)
		rect := image.Rect(int(math.Round(box.A)), int(math.Round(box.B)), int(math.Round(box.C)), int(math.Round(box.D)))
		drawRect(result, rect, c)

		caption := fmt.Sprintf("%d", a.Class)
		if a.Class >= 0 && a.Class < len(names) && names[a.Class] != "" {
			caption = names[a.Class]
		}
		drawCaption(result, rect.Min, caption, c)
	}
	return result, nil
}

// EncodePNGBase64 renders img the way MCP image payloads carry it.
func EncodePNGBase64(img image.Image, objects int) (*OverlayResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	b := img.Bounds()
	return &OverlayResult{
		Width:       b.Dx(),
		Height:      b.Dy(),
		Objects:     objects,
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// drawRect strokes the outline of r, clipped to the image.
func drawRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+strokeWidth),
		image.Rect(r.Min.X, r.Max.Y-strokeWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+strokeWidth, r.Max.Y),
		image.Rect(r.Max.X-strokeWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(img.Bounds()), src, image.Point{}, draw.Over)
	}
}

// drawCaption writes text on a filled label anchored above at, or inside the
// box when there is no room above.
func drawCaption(img *image.RGBA, at image.Point, text string, bg color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 2

	top := at.Y - height
	if top < 0 {
		top = at.Y
	}
	label := image.Rect(at.X, top, at.X+width, top+height).Intersect(img.Bounds())
	draw.Draw(img, label, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(at.X+2, top+face.Metrics().Ascent.Ceil()+1),
	}
	d.DrawString(text)
}
