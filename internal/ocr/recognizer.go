package ocr

import (
	"context"
	"errors"
	"image"
	"strings"
	"unicode"

	"github.com/ironsheep/traffic-violations-mcp/internal/detection"
)

// ErrExternalService is the detection package's external-failure sentinel;
// every recognizer failure wraps it.
var ErrExternalService = detection.ErrExternalService

// ErrNoPlate is returned when a backend ran but read no plate text.
var ErrNoPlate = errors.New("no plate text recognized")

// PlateRecognizer reads a license plate from a cropped plate image.
type PlateRecognizer interface {
	// Name identifies the backend.
	Name() string

	// Recognize returns the normalized plate string. Any failure, including
	// an empty read, is returned as an error wrapping ErrExternalService.
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// NormalizePlate uppercases plate text and strips everything that is not a
// letter or digit.
func NormalizePlate(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UnavailableRecognizer is used when no OCR backend is configured. Every call
// fails, so visible plates are recorded with the failure sentinel.
type UnavailableRecognizer struct{}

// Name implements PlateRecognizer.
func (UnavailableRecognizer) Name() string { return "none" }

// Recognize implements PlateRecognizer.
func (UnavailableRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	return "", errors.Join(ErrExternalService, errors.New("no plate recognizer configured"))
}
