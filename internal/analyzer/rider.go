package analyzer

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"github.com/ironsheep/traffic-violations-mcp/internal/detection"
	"github.com/ironsheep/traffic-violations-mcp/internal/imaging"
	"github.com/ironsheep/traffic-violations-mcp/internal/ocr"
	"github.com/ironsheep/traffic-violations-mcp/internal/violation"
)

// Default crop margins in pixels.
const (
	DefaultRiderMargin = 10
	DefaultPlateMargin = 50
)

// ErrBackendPanic wraps a panic recovered from a detector or recognizer.
var ErrBackendPanic = errors.New("backend panicked")

// Options configures a RiderAnalyzer.
type Options struct {
	RiderMargin int
	PlateMargin int
	Detect      detection.Options
}

// DefaultAnalyzerOptions returns the standard margins and rider-scope
// thresholds.
func DefaultAnalyzerOptions() Options {
	return Options{
		RiderMargin: DefaultRiderMargin,
		PlateMargin: DefaultPlateMargin,
		Detect:      detection.DefaultOptions(detection.ScopeRider),
	}
}

// RiderAnalyzer inspects the region around one rider.
type RiderAnalyzer struct {
	detector   detection.ObjectDetector
	recognizer ocr.PlateRecognizer
	opts       Options
	guard      detection.Postprocessor
	log        zerolog.Logger
}

// NewRiderAnalyzer creates an analyzer. A nil recognizer is replaced by
// ocr.UnavailableRecognizer.
func NewRiderAnalyzer(detector detection.ObjectDetector, recognizer ocr.PlateRecognizer, opts Options, log zerolog.Logger) *RiderAnalyzer {
	if recognizer == nil {
		recognizer = ocr.UnavailableRecognizer{}
	}
	opts.Detect.Scope = detection.ScopeRider
	return &RiderAnalyzer{
		detector:   detector,
		recognizer: recognizer,
		opts:       opts,
		guard: detection.Chain(
			detection.NewLabelFilter(detection.ClassHelmet, detection.ClassNoHelmet, detection.ClassPlate),
			detection.NewScoreFilter(opts.Detect.Confidence),
		),
		log: log.With().Str("component", "rider_analyzer").Logger(),
	}
}

// Analysis is the outcome of inspecting one rider.
type Analysis struct {
	Record violation.RiderRecord
	// Detections holds the rider-pass detections in frame coordinates.
	Detections []detection.Detection
}

// Analyze inspects the rider and returns its record. It never fails; see
// Inspect.
func (a *RiderAnalyzer) Analyze(ctx context.Context, frame image.Image, rider detection.Detection) violation.RiderRecord {
	return a.Inspect(ctx, frame, rider).Record
}

// Inspect crops the rider region out of frame, runs the detector on it and
// folds the results into a RiderRecord.
//
// Helmet and No Helmet detections each count one occupant; the last one seen
// decides the helmet status. A plate detection marks the plate visible and
// triggers recognition on the most confident plate's crop. Classes that are
// not detected leave their status unknown. When the region is empty or the
// detector fails, every field stays unknown. When recognition fails, the
// plate number is violation.PlateDetectionFailed.
func (a *RiderAnalyzer) Inspect(ctx context.Context, frame image.Image, rider detection.Detection) Analysis {
	rec := violation.RiderRecord{Box: rider.Box, Confidence: rider.Confidence}
	log := a.log.With().
		Int("x1", rider.Box.X1).Int("y1", rider.Box.Y1).
		Int("x2", rider.Box.X2).Int("y2", rider.Box.Y2).
		Logger()

	roi, region, err := imaging.ExtractRegion(frame, rider.Box, a.opts.RiderMargin)
	if err != nil {
		log.Warn().Err(err).Msg("rider region unusable")
		return Analysis{Record: rec}
	}

	dets, err := a.detect(ctx, roi)
	if err != nil {
		log.Warn().Err(err).Str("detector", a.detector.Name()).Msg("rider detection failed")
		return Analysis{Record: rec}
	}
	dets = a.guard(dets)

	var plate *detection.Detection
	for i, d := range dets {
		switch d.Label {
		case detection.ClassHelmet:
			rec.Helmet = violation.HelmetWorn
			rec.PassengerCount++
		case detection.ClassNoHelmet:
			rec.Helmet = violation.HelmetNotWorn
			rec.PassengerCount++
		case detection.ClassPlate:
			rec.Plate = violation.PlateVisible
			if plate == nil || d.Confidence > plate.Confidence {
				plate = &dets[i]
			}
		}
	}

	if plate != nil {
		rec.PlateNumber = a.readPlate(ctx, roi, plate.Box, log)
	}

	log.Debug().
		Str("helmet", rec.Helmet.String()).
		Str("plate", rec.Plate.String()).
		Int("passengers", rec.PassengerCount).
		Msg("rider analyzed")

	return Analysis{
		Record:     rec,
		Detections: detection.Translate(dets, region.Min),
	}
}

// readPlate crops the plate out of the rider region and recognizes it.
func (a *RiderAnalyzer) readPlate(ctx context.Context, roi image.Image, box imaging.Box, log zerolog.Logger) string {
	crop, _, err := imaging.ExtractRegion(roi, box, a.opts.PlateMargin)
	if err != nil {
		log.Warn().Err(err).Msg("plate region unusable")
		return violation.PlateDetectionFailed
	}

	number, err := a.recognize(ctx, crop)
	if err != nil {
		log.Info().Err(err).Str("recognizer", a.recognizer.Name()).Msg("plate recognition failed")
		return violation.PlateDetectionFailed
	}
	return number
}

func (a *RiderAnalyzer) detect(ctx context.Context, img image.Image) (dets []detection.Detection, err error) {
	defer recoverBackend(&err)
	return a.detector.Detect(ctx, img, a.opts.Detect)
}

func (a *RiderAnalyzer) recognize(ctx context.Context, img image.Image) (plate string, err error) {
	defer recoverBackend(&err)
	plate, err = a.recognizer.Recognize(ctx, img)
	if err == nil && plate == "" {
		err = ocr.ErrNoPlate
	}
	return plate, err
}

func recoverBackend(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrBackendPanic, r)
	}
}
