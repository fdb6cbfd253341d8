package analyzer

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/ironsheep/traffic-violations-mcp/internal/detection"
	"github.com/ironsheep/traffic-violations-mcp/internal/violation"
)

// FrameMeta describes the frame being processed.
type FrameMeta struct {
	Filename    string
	VehicleType string
	Location    string
	// Scene carries frame-level tags applied to every rider, such as
	// violation.RedLightJumping from a signal controller.
	Scene []violation.Tag
}

// FrameOutcome is the result of processing one frame.
type FrameOutcome struct {
	Records []violation.Record
	// Detections holds every detection of both passes in frame coordinates.
	Detections []detection.Detection
}

// Pipeline runs the full-frame pass and analyzes every rider it finds.
type Pipeline struct {
	detector detection.ObjectDetector
	riders   *RiderAnalyzer
	fines    *violation.FineTable
	clock    clock.Clock
	opts     detection.Options
	guard    detection.Postprocessor
	log      zerolog.Logger
}

// NewPipeline creates a pipeline. frameOpts thresholds apply to the
// full-frame pass; a nil clk uses the wall clock.
func NewPipeline(detector detection.ObjectDetector, riders *RiderAnalyzer, fines *violation.FineTable, clk clock.Clock, frameOpts detection.Options, log zerolog.Logger) *Pipeline {
	if clk == nil {
		clk = clock.New()
	}
	frameOpts.Scope = detection.ScopeFrame
	return &Pipeline{
		detector: detector,
		riders:   riders,
		fines:    fines,
		clock:    clk,
		opts:     frameOpts,
		guard:    detection.NewScoreFilter(frameOpts.Confidence),
		log:      log.With().Str("component", "pipeline").Logger(),
	}
}

// Source names the detector backend records are attributed to.
func (p *Pipeline) Source() string { return p.detector.Name() }

// Synthetic reports whether the pipeline produces fabricated records.
func (p *Pipeline) Synthetic() bool { return p.detector.Synthetic() }

// Fines returns the fine table records are priced with.
func (p *Pipeline) Fines() *violation.FineTable { return p.fines }

// Process detects riders in frame and returns one record per rider, in
// detection order. All records share one timestamp.
//
// A failure of the full-frame detector, or ctx ending, is returned wrapping
// detection.ErrExternalService and no records are produced. Per-rider
// failures only degrade that rider's record. A violation.ConfigurationError
// from the fine table is returned as is.
func (p *Pipeline) Process(ctx context.Context, frame image.Image, meta FrameMeta) (*FrameOutcome, error) {
	dets, err := p.detectFrame(ctx, frame)
	if err != nil {
		return nil, externalFailure("frame detection", err)
	}
	dets = p.guard(dets)

	riders := lo.Filter(dets, func(d detection.Detection, _ int) bool {
		return d.Label == detection.ClassRider
	})

	now := p.clock.Now()
	out := &FrameOutcome{
		Records:    make([]violation.Record, 0, len(riders)),
		Detections: append([]detection.Detection(nil), dets...),
	}

	for _, rider := range riders {
		if err := ctx.Err(); err != nil {
			return nil, externalFailure("rider analysis", err)
		}

		analysis := p.riders.Inspect(ctx, frame, rider)
		out.Detections = append(out.Detections, analysis.Detections...)

		rec, err := violation.NewRecord(p.fines, violation.RecordInput{
			Rider:       analysis.Record,
			Tags:        violation.Classify(analysis.Record, meta.Scene...),
			Timestamp:   now,
			Filename:    meta.Filename,
			VehicleType: meta.VehicleType,
			Location:    meta.Location,
			Source:      p.detector.Name(),
			Synthetic:   p.detector.Synthetic(),
		})
		if err != nil {
			return nil, err
		}
		out.Records = append(out.Records, rec)
	}

	p.log.Info().
		Str("filename", meta.Filename).
		Int("detections", len(dets)).
		Int("riders", len(riders)).
		Int("violations", lo.CountBy(out.Records, violation.Record.HasViolation)).
		Int("plates_read", lo.CountBy(out.Records, func(r violation.Record) bool { return r.Rider.PlateRecognized() })).
		Msg("frame processed")

	return out, nil
}

func (p *Pipeline) detectFrame(ctx context.Context, frame image.Image) (dets []detection.Detection, err error) {
	defer recoverBackend(&err)
	return p.detector.Detect(ctx, frame, p.opts)
}

func externalFailure(stage string, err error) error {
	if errors.Is(err, detection.ErrExternalService) {
		return fmt.Errorf("%s: %w", stage, err)
	}
	return fmt.Errorf("%s: %w: %w", stage, detection.ErrExternalService, err)
}
