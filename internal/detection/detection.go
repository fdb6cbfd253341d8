package detection

import (
	"context"
	"errors"
	"image"

	"github.com/ironsheep/traffic-violations-mcp/internal/imaging"
)

// ErrExternalService marks a failure of an external collaborator (detector or
// plate recognizer), including deadline expiry.
var ErrExternalService = errors.New("external service failure")

// Class labels emitted by the traffic model.
const (
	ClassRider    = "Rider"
	ClassHelmet   = "Helmet"
	ClassNoHelmet = "No Helmet"
	ClassPlate    = "LP"
)

// Default NMS thresholds handed to backends.
const (
	DefaultConfidence = 0.25
	DefaultIoU        = 0.45
)

// Scope tells a backend which inference pass it is serving.
type Scope string

const (
	ScopeFrame Scope = "frame"
	ScopeRider Scope = "rider"
)

// Detection is one detected object. Coordinates are relative to the image
// that was passed to Detect.
type Detection struct {
	Box        imaging.Box `json:"box"`
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
}

// Options configures a single Detect call.
type Options struct {
	Confidence float64
	IoU        float64
	Scope      Scope
}

// DefaultOptions returns the default thresholds for scope.
func DefaultOptions(scope Scope) Options {
	return Options{Confidence: DefaultConfidence, IoU: DefaultIoU, Scope: scope}
}

// ObjectDetector runs object detection on an image.
type ObjectDetector interface {
	// Name identifies the backend, e.g. "http" or "synthetic".
	Name() string

	// Synthetic reports whether detections are fabricated rather than
	// produced by a model.
	Synthetic() bool

	// Detect returns the detections found in img. Calls may block for the
	// duration of inference; ctx bounds them.
	Detect(ctx context.Context, img image.Image, opts Options) ([]Detection, error)
}

// Overlays converts detections into annotation overlays.
func Overlays(dets []Detection) []imaging.Overlay {
	out := make([]imaging.Overlay, 0, len(dets))
	for _, d := range dets {
		out = append(out, imaging.Overlay{Box: d.Box, Label: d.Label, Confidence: d.Confidence})
	}
	return out
}

// Translate shifts detections found in a crop back into the parent image's
// coordinate space, given the crop's origin in the parent.
func Translate(dets []Detection, origin image.Point) []Detection {
	out := make([]Detection, len(dets))
	for i, d := range dets {
		d.Box = imaging.Box{
			X1: d.Box.X1 + origin.X,
			Y1: d.Box.Y1 + origin.Y,
			X2: d.Box.X2 + origin.X,
			Y2: d.Box.Y2 + origin.Y,
		}
		out[i] = d
	}
	return out
}
