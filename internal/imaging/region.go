package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
)

// ErrEmptyRegion is returned when a padded box has no area left once it is
// clamped to the image bounds.
var ErrEmptyRegion = errors.New("empty region")

// Box is an axis-aligned rectangle in pixel coordinates. (X1,Y1) is the
// top-left corner (inclusive), (X2,Y2) the bottom-right corner (exclusive).
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Pad grows the box by margin pixels on every side. Coordinates saturate
// at the int range instead of wrapping.
func (b Box) Pad(margin int) Box {
	return Box{
		X1: addSat(b.X1, -margin),
		Y1: addSat(b.Y1, -margin),
		X2: addSat(b.X2, margin),
		Y2: addSat(b.Y2, margin),
	}
}

func addSat(a, d int) int {
	switch {
	case d > 0 && a > math.MaxInt-d:
		return math.MaxInt
	case d < 0 && a < math.MinInt-d:
		return math.MinInt
	}
	return a + d
}

// PaddedBounds returns the box grown by margin and clamped to bounds.
//
// The result lies within bounds. An empty rectangle is returned when the
// padded box does not overlap bounds at all.
func PaddedBounds(bounds image.Rectangle, box Box, margin int) image.Rectangle {
	padded := box.Pad(margin)
	// Rect canonicalizes inverted boxes; keep them inverted so they collapse.
	r := image.Rectangle{
		Min: image.Point{X: padded.X1, Y: padded.Y1},
		Max: image.Point{X: padded.X2, Y: padded.Y2},
	}
	return r.Intersect(bounds)
}

// ExtractRegion crops a padded sub-image out of img.
//
// The box is expanded by margin on each side and clamped to the image bounds
// before cropping. The returned rectangle is the clamped region in img's
// coordinate space; the returned image has its origin at (0,0).
//
// # Errors
//
// Returns an error wrapping ErrEmptyRegion when the clamped region has zero
// area, for example when the box lies entirely outside the image.
func ExtractRegion(img image.Image, box Box, margin int) (image.Image, image.Rectangle, error) {
	if margin < 0 {
		return nil, image.Rectangle{}, fmt.Errorf("negative margin %d", margin)
	}

	region := PaddedBounds(img.Bounds(), box, margin)
	if region.Empty() {
		return nil, image.Rectangle{}, fmt.Errorf("%w: box (%d,%d)-(%d,%d) margin %d in %v",
			ErrEmptyRegion, box.X1, box.Y1, box.X2, box.Y2, margin, img.Bounds())
	}

	return imaging.Crop(img, region), region, nil
}

// RegionResult contains an extracted region encoded for transport.
type RegionResult struct {
	X1          int    `json:"x1"`
	Y1          int    `json:"y1"`
	X2          int    `json:"x2"`
	Y2          int    `json:"y2"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// ExtractRegionEncoded runs ExtractRegion and returns the crop as base64 PNG
// together with the clamped coordinates.
func ExtractRegionEncoded(img image.Image, box Box, margin int) (*RegionResult, error) {
	cropped, region, err := ExtractRegion(img, box, margin)
	if err != nil {
		return nil, err
	}

	encoded, err := EncodePNGBase64(cropped)
	if err != nil {
		return nil, err
	}

	return &RegionResult{
		X1:          region.Min.X,
		Y1:          region.Min.Y,
		X2:          region.Max.X,
		Y2:          region.Max.Y,
		Width:       region.Dx(),
		Height:      region.Dy(),
		ImageBase64: encoded,
		MimeType:    "image/png",
	}, nil
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNGBase64 encodes img as a base64 PNG string.
func EncodePNGBase64(img image.Image) (string, error) {
	b, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
