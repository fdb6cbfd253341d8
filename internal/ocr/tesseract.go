package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	imgutil "github.com/ironsheep/traffic-violations-mcp/internal/imaging"
)

// PlateCharset is the whitelist handed to Tesseract for plate reads.
const PlateCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// minPlateHeight is the height plates are upscaled to before OCR. Tesseract
// reads poorly below roughly 30px glyph height.
const minPlateHeight = 120

// Preprocess prepares a plate crop for OCR: upscale small crops, convert to
// grayscale, raise contrast and sharpen.
func Preprocess(img image.Image) image.Image {
	var out image.Image = img
	if h := img.Bounds().Dy(); h > 0 && h < minPlateHeight {
		out = imaging.Resize(out, 0, minPlateHeight, imaging.Lanczos)
	}
	out = effect.Grayscale(out)
	out = adjust.Contrast(out, 0.4)
	out = effect.Sharpen(out)
	return out
}

// TesseractRecognizer reads plates locally with Tesseract.
//
// A fresh gosseract client is created per call; clients are not safe for
// concurrent use.
type TesseractRecognizer struct {
	language string
}

// NewTesseractRecognizer creates a recognizer for the given Tesseract
// language code ("eng" when empty).
func NewTesseractRecognizer(language string) *TesseractRecognizer {
	if language == "" {
		language = "eng"
	}
	return &TesseractRecognizer{language: language}
}

// Name implements PlateRecognizer.
func (r *TesseractRecognizer) Name() string { return "tesseract" }

// Recognize implements PlateRecognizer.
//
// Tesseract itself cannot be interrupted; when ctx ends first the call
// returns immediately and the OCR result is discarded.
func (r *TesseractRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	png, err := imgutil.EncodePNG(Preprocess(img))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := r.read(png)
		done <- result{text, err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrExternalService, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("%w: %v", ErrExternalService, res.err)
		}
		plate := NormalizePlate(res.text)
		if plate == "" {
			return "", fmt.Errorf("%w: %w", ErrExternalService, ErrNoPlate)
		}
		return plate, nil
	}
}

func (r *TesseractRecognizer) read(png []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.language); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetWhitelist(PlateCharset); err != nil {
		return "", fmt.Errorf("failed to set whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", fmt.Errorf("failed to set page segmentation: %w", err)
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return text, nil
}
