package service

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/ironsheep/traffic-violations-mcp/internal/analyzer"
	"github.com/ironsheep/traffic-violations-mcp/internal/config"
	"github.com/ironsheep/traffic-violations-mcp/internal/detection"
	"github.com/ironsheep/traffic-violations-mcp/internal/ocr"
	"github.com/ironsheep/traffic-violations-mcp/internal/session"
	"github.com/ironsheep/traffic-violations-mcp/internal/store"
)

// FromConfig wires detector, recognizer, pipeline, sessions and the optional
// audit store from cfg. clk may be nil.
func FromConfig(cfg *config.Config, clk clock.Clock, log zerolog.Logger) (*TrafficService, error) {
	if clk == nil {
		clk = clock.New()
	}

	fines, err := cfg.FineTable()
	if err != nil {
		return nil, err
	}

	detector, err := NewDetector(cfg.Detector, log)
	if err != nil {
		return nil, err
	}
	recognizer, err := NewRecognizer(cfg.OCR, log)
	if err != nil {
		return nil, err
	}

	riderOpts := analyzer.Options{
		RiderMargin: cfg.Pipeline.RiderMargin,
		PlateMargin: cfg.Pipeline.PlateMargin,
		Detect: detection.Options{
			Confidence: cfg.Detector.Confidence,
			IoU:        cfg.Detector.IoU,
			Scope:      detection.ScopeRider,
		},
	}
	frameOpts := detection.Options{
		Confidence: cfg.Detector.Confidence,
		IoU:        cfg.Detector.IoU,
		Scope:      detection.ScopeFrame,
	}

	riders := analyzer.NewRiderAnalyzer(detector, recognizer, riderOpts, log)
	pipeline := analyzer.NewPipeline(detector, riders, fines, clk, frameOpts, log)

	var recorder Recorder
	var st *store.Store
	if cfg.Store.Enabled {
		st, err = store.Open(cfg.Store.Path, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		recorder = st
	}

	svc := New(pipeline, session.NewManager(clk), recorder, Options{
		RequestTimeout:     cfg.Pipeline.RequestTimeout,
		DefaultVehicleType: cfg.Pipeline.DefaultVehicleType,
		Clock:              clk,
	}, log)
	if st != nil {
		svc.closers = append(svc.closers, st)
	}

	level := zerolog.InfoLevel
	if detector.Synthetic() {
		// Records from this process are fabricated.
		level = zerolog.WarnLevel
	}
	log.WithLevel(level).
		Str("detector", detector.Name()).
		Bool("synthetic", detector.Synthetic()).
		Str("ocr", recognizer.Name()).
		Bool("store", cfg.Store.Enabled).
		Msg("traffic service ready")

	return svc, nil
}

// NewDetector builds the configured detector backend.
func NewDetector(cfg config.DetectorConfig, log zerolog.Logger) (detection.ObjectDetector, error) {
	switch cfg.Backend {
	case config.DetectorHTTP:
		return detection.NewHTTPDetector(cfg.Endpoint, nil, cfg.Timeout, log), nil
	case config.DetectorSynthetic:
		return detection.NewSyntheticDetector(cfg.Seed), nil
	default:
		return nil, fmt.Errorf("%w: unknown detector backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

// NewRecognizer builds the configured plate recognizer.
func NewRecognizer(cfg config.OCRConfig, log zerolog.Logger) (ocr.PlateRecognizer, error) {
	switch cfg.Backend {
	case config.OCRTesseract:
		return ocr.NewTesseractRecognizer(cfg.Language), nil
	case config.OCRPlateRecognizer:
		return ocr.NewPlateReaderClient(cfg.APIURL, cfg.Token, cfg.Regions, nil, cfg.Timeout, log), nil
	case config.OCRNone:
		return ocr.UnavailableRecognizer{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown ocr backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}
