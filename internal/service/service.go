// Package service orchestrates frame analysis, sessions and persistence for
// the transports.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/ironsheep/traffic-violations-mcp/internal/analyzer"
	"github.com/ironsheep/traffic-violations-mcp/internal/detection"
	"github.com/ironsheep/traffic-violations-mcp/internal/imaging"
	"github.com/ironsheep/traffic-violations-mcp/internal/report"
	"github.com/ironsheep/traffic-violations-mcp/internal/session"
	"github.com/ironsheep/traffic-violations-mcp/internal/violation"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnsupportedMedia = errors.New("not implemented")
	// ErrAuditDisabled is returned by Audit when no audit store is configured.
	ErrAuditDisabled = errors.New("audit store disabled")
)

// Frame result statuses.
const (
	StatusProcessed = "Processed"
	StatusSynthetic = "Processed (synthetic)"
)

// Recorder persists committed records.
type Recorder interface {
	SaveRecords(ctx context.Context, sessionID uuid.UUID, records []violation.Record) error
}

// AuditReader reads persisted records back. A Recorder that also implements
// AuditReader backs TrafficService.Audit.
type AuditReader interface {
	ListRecords(ctx context.Context, sessionID uuid.UUID) ([]violation.Record, error)
	SessionTotals(ctx context.Context, sessionID uuid.UUID) (count, fines int, err error)
}

// Options configures a TrafficService.
type Options struct {
	RequestTimeout     time.Duration
	DefaultVehicleType string
	// Clock stamps session and frame results; nil uses the wall clock.
	Clock clock.Clock
}

// TrafficService is the entry point shared by the MCP and HTTP transports.
type TrafficService struct {
	pipeline *analyzer.Pipeline
	sessions *session.Manager
	recorder Recorder
	frames   *imaging.FrameCache
	palette  *imaging.Palette
	opts     Options
	clock    clock.Clock
	closers  []io.Closer
	log      zerolog.Logger
}

// New creates a service. recorder may be nil.
func New(pipeline *analyzer.Pipeline, sessions *session.Manager, recorder Recorder, opts Options, log zerolog.Logger) *TrafficService {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &TrafficService{
		pipeline: pipeline,
		sessions: sessions,
		recorder: recorder,
		frames:   imaging.NewFrameCache(),
		palette:  imaging.NewPalette(),
		opts:     opts,
		clock:    opts.Clock,
		log:      log.With().Str("component", "service").Logger(),
	}
}

// SessionInfo describes a session.
type SessionInfo struct {
	ID        string    `json:"session_id"`
	Created   time.Time `json:"created"`
	Records   int       `json:"records"`
	Detector  string    `json:"detector"`
	Synthetic bool      `json:"synthetic"`
}

// CreateSession starts a new empty session.
func (s *TrafficService) CreateSession() SessionInfo {
	created := s.clock.Now()
	id, _ := s.sessions.Create()
	s.log.Info().Str("session_id", id.String()).Msg("session created")
	return SessionInfo{
		ID:        id.String(),
		Created:   created,
		Detector:  s.pipeline.Source(),
		Synthetic: s.pipeline.Synthetic(),
	}
}

// DestroySession ends a session and drops its records.
func (s *TrafficService) DestroySession(id string) error {
	parsed, _, err := s.sessions.Lookup(id)
	if err != nil {
		return err
	}
	if err := s.sessions.Destroy(parsed); err != nil {
		return err
	}
	s.log.Info().Str("session_id", id).Msg("session destroyed")
	return nil
}

// ListSessions returns every live session.
func (s *TrafficService) ListSessions() []SessionInfo {
	infos := s.sessions.List()
	out := make([]SessionInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, SessionInfo{
			ID:        info.ID.String(),
			Created:   info.Created,
			Records:   info.Records,
			Detector:  s.pipeline.Source(),
			Synthetic: s.pipeline.Synthetic(),
		})
	}
	return out
}

// FrameMeta is the caller-supplied description of a frame.
type FrameMeta struct {
	Filename    string
	VehicleType string
	Location    string
	RedLight    bool
	Annotate    bool
}

// FrameResult summarizes one processed frame.
type FrameResult struct {
	SessionID       string                `json:"session_id"`
	Filename        string                `json:"filename"`
	Timestamp       time.Time             `json:"timestamp"`
	Records         []violation.Record    `json:"records"`
	Detections      []detection.Detection `json:"detections"`
	TotalViolations int                   `json:"total_violations"`
	TotalFines      int                   `json:"total_fines"`
	Status          string                `json:"status"`
	Source          string                `json:"source"`
	Synthetic       bool                  `json:"synthetic"`
	Frame           imaging.FrameInfo     `json:"frame"`
	// Annotated is the frame with every detection drawn, base64 PNG.
	Annotated string `json:"annotated_image,omitempty"`
}

// AnalyzeUpload decodes an uploaded still image and analyzes it.
func (s *TrafficService) AnalyzeUpload(ctx context.Context, sessionID string, r io.Reader, meta FrameMeta) (*FrameResult, error) {
	if imaging.IsVideoName(meta.Filename) {
		return nil, fmt.Errorf("%w: video processing (%s)", ErrUnsupportedMedia, filepath.Ext(meta.Filename))
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read upload: %v", ErrInvalidInput, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidInput)
	}

	img, format, err := imaging.DecodeFrame(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return s.analyze(ctx, sessionID, img, format, meta)
}

// AnalyzePath loads a still image from disk and analyzes it. Decoded frames
// are cached by path.
func (s *TrafficService) AnalyzePath(ctx context.Context, sessionID, path string, meta FrameMeta) (*FrameResult, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidInput)
	}
	if imaging.IsVideoName(path) {
		return nil, fmt.Errorf("%w: video processing (%s)", ErrUnsupportedMedia, filepath.Ext(path))
	}

	img, err := s.frames.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if meta.Filename == "" {
		meta.Filename = filepath.Base(path)
	}
	return s.analyze(ctx, sessionID, img, strings.TrimPrefix(filepath.Ext(path), "."), meta)
}

func (s *TrafficService) analyze(ctx context.Context, sessionID string, img image.Image, format string, meta FrameMeta) (*FrameResult, error) {
	id, agg, err := s.sessions.Lookup(sessionID)
	if err != nil {
		return nil, err
	}
	if meta.VehicleType == "" {
		meta.VehicleType = s.opts.DefaultVehicleType
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	ticket := agg.Begin(ctx)

	var scene []violation.Tag
	if meta.RedLight {
		scene = append(scene, violation.RedLightJumping)
	}

	outcome, err := s.pipeline.Process(ctx, img, analyzer.FrameMeta{
		Filename:    meta.Filename,
		VehicleType: meta.VehicleType,
		Location:    meta.Location,
		Scene:       scene,
	})
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID).Str("filename", meta.Filename).Msg("frame analysis failed")
		return nil, err
	}

	if err := ticket.Commit(outcome.Records); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Str("filename", meta.Filename).Msg("results discarded")
		if errors.Is(err, session.ErrSuperseded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", detection.ErrExternalService, err)
	}

	if s.recorder != nil {
		if err := s.recorder.SaveRecords(context.WithoutCancel(ctx), id, outcome.Records); err != nil {
			s.log.Error().Err(err).Str("session_id", sessionID).Int("records", len(outcome.Records)).Msg("failed to persist records")
		}
	}

	res := &FrameResult{
		SessionID:  sessionID,
		Filename:   meta.Filename,
		Timestamp:  s.clock.Now(),
		Records:    outcome.Records,
		Detections: outcome.Detections,
		Status:     StatusProcessed,
		Source:     s.pipeline.Source(),
		Synthetic:  s.pipeline.Synthetic(),
		Frame:      imaging.Info(img, format),
	}
	if len(outcome.Records) > 0 {
		res.Timestamp = outcome.Records[0].Timestamp
	}
	if res.Synthetic {
		res.Status = StatusSynthetic
	}
	for _, rec := range outcome.Records {
		if rec.HasViolation() {
			res.TotalViolations++
		}
		res.TotalFines += rec.Fine
	}

	if meta.Annotate {
		annotated := imaging.Annotate(img, detection.Overlays(outcome.Detections), s.palette)
		if res.Annotated, err = imaging.EncodePNGBase64(annotated); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// Stats returns the statistics of a session.
func (s *TrafficService) Stats(sessionID string) (session.Stats, error) {
	_, agg, err := s.sessions.Lookup(sessionID)
	if err != nil {
		return session.Stats{}, err
	}
	return agg.Stats(), nil
}

// Records returns a session's records in append order.
func (s *TrafficService) Records(sessionID string) ([]violation.Record, error) {
	_, agg, err := s.sessions.Lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return agg.Records(), nil
}

// Clear drops every record of a session. Persisted audit rows are kept.
func (s *TrafficService) Clear(sessionID string) error {
	_, agg, err := s.sessions.Lookup(sessionID)
	if err != nil {
		return err
	}
	agg.Clear()
	s.log.Info().Str("session_id", sessionID).Msg("session cleared")
	return nil
}

// ExportCSV writes a session's records as a CSV report.
func (s *TrafficService) ExportCSV(sessionID string, w io.Writer) error {
	recs, err := s.Records(sessionID)
	if err != nil {
		return err
	}
	return report.WriteCSV(w, recs)
}

// Dashboard writes a session's HTML dashboard.
func (s *TrafficService) Dashboard(sessionID string, w io.Writer) error {
	stats, err := s.Stats(sessionID)
	if err != nil {
		return err
	}
	return report.RenderDashboard(w, "Traffic Violations "+sessionID, stats)
}

// Close releases the resources registered by FromConfig.
func (s *TrafficService) Close() error {
	var err error
	for _, c := range s.closers {
		err = multierr.Append(err, c.Close())
	}
	s.frames.Clear()
	return err
}

// AuditReport is the persisted history of a session. Unlike Records it
// survives Clear.
type AuditReport struct {
	SessionID  string             `json:"session_id"`
	Count      int                `json:"count"`
	TotalFines int                `json:"total_fines"`
	Records    []violation.Record `json:"records"`
}

// Audit reads a live session's persisted records from the audit store.
func (s *TrafficService) Audit(ctx context.Context, sessionID string) (*AuditReport, error) {
	id, _, err := s.sessions.Lookup(sessionID)
	if err != nil {
		return nil, err
	}
	reader, ok := s.recorder.(AuditReader)
	if !ok {
		return nil, ErrAuditDisabled
	}

	recs, err := reader.ListRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	count, fines, err := reader.SessionTotals(ctx, id)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []violation.Record{}
	}
	return &AuditReport{SessionID: id.String(), Count: count, TotalFines: fines, Records: recs}, nil
}

// FineSchedule returns the fine amount of every tag.
func (s *TrafficService) FineSchedule() map[violation.Tag]int {
	return s.pipeline.Fines().Amounts()
}

// ExtractRegion crops a padded box out of an image on disk.
func (s *TrafficService) ExtractRegion(path string, box imaging.Box, margin int) (*imaging.RegionResult, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidInput)
	}
	if margin < 0 {
		return nil, fmt.Errorf("%w: margin must be >= 0", ErrInvalidInput)
	}
	img, err := s.frames.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	res, err := imaging.ExtractRegionEncoded(img, box, margin)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return res, nil
}
