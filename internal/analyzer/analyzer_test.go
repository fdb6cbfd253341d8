package analyzer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/traffic-violations-mcp/internal/detection"
	"github.com/ironsheep/traffic-violations-mcp/internal/imaging"
	"github.com/ironsheep/traffic-violations-mcp/internal/violation"
)

type fakeDetector struct {
	name      string
	synthetic bool
	frame     func(context.Context, image.Image) ([]detection.Detection, error)
	rider     func(context.Context, image.Image) ([]detection.Detection, error)

	mu         sync.Mutex
	riderCalls int
}

func (f *fakeDetector) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeDetector) Synthetic() bool { return f.synthetic }

func (f *fakeDetector) Detect(ctx context.Context, img image.Image, opts detection.Options) ([]detection.Detection, error) {
	if opts.Scope == detection.ScopeRider {
		f.mu.Lock()
		f.riderCalls++
		f.mu.Unlock()
		if f.rider == nil {
			return nil, nil
		}
		return f.rider(ctx, img)
	}
	if f.frame == nil {
		return nil, nil
	}
	return f.frame(ctx, img)
}

type fakeRecognizer struct {
	plate string
	err   error
	panic bool
	seen  []image.Rectangle
}

func (f *fakeRecognizer) Name() string { return "fake-ocr" }

func (f *fakeRecognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	f.seen = append(f.seen, img.Bounds())
	if f.panic {
		panic("ocr exploded")
	}
	return f.plate, f.err
}

func frame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

func staticDets(dets ...detection.Detection) func(context.Context, image.Image) ([]detection.Detection, error) {
	return func(context.Context, image.Image) ([]detection.Detection, error) {
		return dets, nil
	}
}

func det(label string, x1, y1, x2, y2 int, conf float64) detection.Detection {
	return detection.Detection{Box: imaging.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}, Label: label, Confidence: conf}
}

var rider = det(detection.ClassRider, 50, 50, 150, 150, 0.9)

func newAnalyzer(d detection.ObjectDetector, r *fakeRecognizer) *RiderAnalyzer {
	if r == nil {
		return NewRiderAnalyzer(d, nil, DefaultAnalyzerOptions(), zerolog.Nop())
	}
	return NewRiderAnalyzer(d, r, DefaultAnalyzerOptions(), zerolog.Nop())
}

func TestAnalyze_HelmetAndPlate(t *testing.T) {
	d := &fakeDetector{rider: staticDets(
		det(detection.ClassHelmet, 10, 5, 40, 30, 0.8),
		det(detection.ClassNoHelmet, 50, 5, 80, 30, 0.7),
		det(detection.ClassPlate, 40, 90, 80, 110, 0.6),
	)}
	ocr := &fakeRecognizer{plate: "KA01AB1234"}

	rec := newAnalyzer(d, ocr).Analyze(context.Background(), frame(200, 200), rider)

	assert.Equal(t, violation.HelmetNotWorn, rec.Helmet)
	assert.Equal(t, violation.PlateVisible, rec.Plate)
	assert.Equal(t, "KA01AB1234", rec.PlateNumber)
	assert.Equal(t, 2, rec.PassengerCount)
	assert.Equal(t, rider.Box, rec.Box)
	assert.Equal(t, 0.9, rec.Confidence)

	tags := violation.Classify(rec)
	assert.Equal(t, []violation.Tag{violation.NoHelmet}, tags.Tags())
	fine, err := violation.DefaultFineTable().Compute(tags)
	require.NoError(t, err)
	assert.Equal(t, 500, fine)
}

func TestAnalyze_PlateCropUsesPlateMargin(t *testing.T) {
	d := &fakeDetector{rider: staticDets(det(detection.ClassPlate, 40, 90, 80, 110, 0.6))}
	ocr := &fakeRecognizer{plate: "AB12"}

	newAnalyzer(d, ocr).Analyze(context.Background(), frame(200, 200), rider)

	// Rider ROI is 120x120; the plate padded by 50 clamps to (0,40)-(120,120).
	require.Len(t, ocr.seen, 1)
	assert.Equal(t, image.Rect(0, 0, 120, 80), ocr.seen[0])
}

func TestAnalyze_RecognizerFailures(t *testing.T) {
	tests := []struct {
		name string
		ocr  *fakeRecognizer
	}{
		{"error", &fakeRecognizer{err: detection.ErrExternalService}},
		{"empty", &fakeRecognizer{plate: ""}},
		{"panic", &fakeRecognizer{panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDetector{rider: staticDets(
				det(detection.ClassHelmet, 10, 5, 40, 30, 0.8),
				det(detection.ClassPlate, 40, 90, 80, 110, 0.6),
			)}

			rec := newAnalyzer(d, tt.ocr).Analyze(context.Background(), frame(200, 200), rider)

			assert.Equal(t, violation.PlateVisible, rec.Plate)
			assert.Equal(t, violation.PlateDetectionFailed, rec.PlateNumber)
			assert.False(t, rec.PlateRecognized())
			assert.Equal(t, violation.HelmetWorn, rec.Helmet, "helmet status must survive OCR failure")
			assert.Equal(t, 1, rec.PassengerCount)
		})
	}
}

func TestAnalyze_NoRecognizerConfigured(t *testing.T) {
	d := &fakeDetector{rider: staticDets(det(detection.ClassPlate, 40, 90, 80, 110, 0.6))}

	rec := newAnalyzer(d, nil).Analyze(context.Background(), frame(200, 200), rider)

	assert.Equal(t, violation.PlateVisible, rec.Plate)
	assert.Equal(t, violation.PlateDetectionFailed, rec.PlateNumber)
}

func TestAnalyze_DetectorFailureLeavesUnknown(t *testing.T) {
	tests := []struct {
		name  string
		rider func(context.Context, image.Image) ([]detection.Detection, error)
	}{
		{"error", func(context.Context, image.Image) ([]detection.Detection, error) {
			return nil, detection.ErrExternalService
		}},
		{"panic", func(context.Context, image.Image) ([]detection.Detection, error) {
			panic("model crashed")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ocr := &fakeRecognizer{plate: "X"}
			a := newAnalyzer(&fakeDetector{rider: tt.rider}, ocr)

			got := a.Inspect(context.Background(), frame(200, 200), rider)

			assert.Equal(t, violation.HelmetUnknown, got.Record.Helmet)
			assert.Equal(t, violation.PlateUnknown, got.Record.Plate)
			assert.Empty(t, got.Record.PlateNumber)
			assert.Zero(t, got.Record.PassengerCount)
			assert.Empty(t, got.Detections)
			assert.Empty(t, ocr.seen)
		})
	}
}

func TestAnalyze_EmptyRegion(t *testing.T) {
	d := &fakeDetector{}
	outside := det(detection.ClassRider, 500, 500, 600, 600, 0.9)

	rec := newAnalyzer(d, nil).Analyze(context.Background(), frame(100, 100), outside)

	assert.Equal(t, violation.HelmetUnknown, rec.Helmet)
	assert.Equal(t, violation.PlateUnknown, rec.Plate)
	assert.Zero(t, d.riderCalls, "detector must not run on an empty region")

	// Scenario C: unknown everything still yields a conservative record.
	assert.Equal(t, []violation.Tag{violation.NoLicensePlate}, violation.Classify(rec).Tags())
}

func TestAnalyze_PassengerCountMonotonic(t *testing.T) {
	var occupants []detection.Detection
	prev := 0
	for n := 0; n <= 5; n++ {
		d := &fakeDetector{rider: staticDets(occupants...)}
		rec := newAnalyzer(d, nil).Analyze(context.Background(), frame(200, 200), rider)

		assert.Equal(t, n, rec.PassengerCount)
		assert.GreaterOrEqual(t, rec.PassengerCount, prev)
		prev = rec.PassengerCount

		label := detection.ClassHelmet
		if n%2 == 1 {
			label = detection.ClassNoHelmet
		}
		occupants = append(occupants, det(label, 5*n, 0, 5*n+20, 20, 0.9))
	}
}

func TestAnalyze_IgnoresLowConfidenceAndForeignLabels(t *testing.T) {
	d := &fakeDetector{rider: staticDets(
		det(detection.ClassNoHelmet, 10, 5, 40, 30, 0.1),
		det("Car", 0, 0, 100, 100, 0.99),
		det(detection.ClassHelmet, 50, 5, 80, 30, 0.9),
	)}

	got := newAnalyzer(d, nil).Inspect(context.Background(), frame(200, 200), rider)

	assert.Equal(t, violation.HelmetWorn, got.Record.Helmet)
	assert.Equal(t, 1, got.Record.PassengerCount)
	require.Len(t, got.Detections, 1)
	// ROI origin is (40,40).
	assert.Equal(t, imaging.Box{X1: 90, Y1: 45, X2: 120, Y2: 70}, got.Detections[0].Box)
}

func TestPipeline_Process(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC))

	d := &fakeDetector{
		name: "http",
		frame: staticDets(
			rider,
			det("Car", 0, 0, 20, 20, 0.95),
			det(detection.ClassRider, 10, 10, 40, 40, 0.1),
			det(detection.ClassRider, 120, 20, 190, 180, 0.8),
		),
		rider: staticDets(
			det(detection.ClassHelmet, 50, 5, 80, 30, 0.8),
			det(detection.ClassHelmet, 60, 5, 90, 30, 0.8),
			det(detection.ClassNoHelmet, 10, 5, 40, 30, 0.8),
		),
	}
	p := NewPipeline(d, newAnalyzer(d, nil), violation.DefaultFineTable(), mock, detection.DefaultOptions(detection.ScopeFrame), zerolog.Nop())

	out, err := p.Process(context.Background(), frame(200, 200), FrameMeta{
		Filename:    "junction.jpg",
		VehicleType: "Scooter",
		Location:    "5th & Main",
		Scene:       []violation.Tag{violation.RedLightJumping},
	})
	require.NoError(t, err)
	require.Len(t, out.Records, 2)

	assert.Equal(t, rider.Box, out.Records[0].Rider.Box)
	assert.Equal(t, imaging.Box{X1: 120, Y1: 20, X2: 190, Y2: 180}, out.Records[1].Rider.Box)

	for _, rec := range out.Records {
		assert.Equal(t, []violation.Tag{
			violation.NoHelmet, violation.TripleRiding, violation.NoLicensePlate, violation.RedLightJumping,
		}, rec.Tags.Tags())
		assert.Equal(t, 500+1000+300+800, rec.Fine)
		assert.Equal(t, mock.Now(), rec.Timestamp)
		assert.Equal(t, "junction.jpg", rec.Filename)
		assert.Equal(t, "Scooter", rec.VehicleType)
		assert.Equal(t, "5th & Main", rec.Location)
		assert.Equal(t, "http", rec.Source)
		assert.False(t, rec.Synthetic)
	}
	assert.NotEqual(t, out.Records[0].ID, out.Records[1].ID)

	// 3 surviving frame detections plus 3 per rider.
	assert.Len(t, out.Detections, 3+3+3)
}

func TestPipeline_NoRiders(t *testing.T) {
	d := &fakeDetector{frame: staticDets(det("Car", 0, 0, 20, 20, 0.95))}
	p := NewPipeline(d, newAnalyzer(d, nil), violation.DefaultFineTable(), clock.NewMock(), detection.DefaultOptions(detection.ScopeFrame), zerolog.Nop())

	out, err := p.Process(context.Background(), frame(50, 50), FrameMeta{Filename: "empty.png"})
	require.NoError(t, err)
	assert.Empty(t, out.Records)
}

func TestPipeline_FrameDetectorFailureIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		frame func(context.Context, image.Image) ([]detection.Detection, error)
	}{
		{"plain error", func(context.Context, image.Image) ([]detection.Detection, error) {
			return nil, errors.New("connection refused")
		}},
		{"external error", func(context.Context, image.Image) ([]detection.Detection, error) {
			return nil, detection.ErrExternalService
		}},
		{"panic", func(context.Context, image.Image) ([]detection.Detection, error) {
			panic("boom")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDetector{frame: tt.frame}
			p := NewPipeline(d, newAnalyzer(d, nil), violation.DefaultFineTable(), clock.NewMock(), detection.DefaultOptions(detection.ScopeFrame), zerolog.Nop())

			out, err := p.Process(context.Background(), frame(50, 50), FrameMeta{})
			require.Error(t, err)
			assert.ErrorIs(t, err, detection.ErrExternalService)
			assert.Nil(t, out)
		})
	}
}

func TestPipeline_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &fakeDetector{frame: func(context.Context, image.Image) ([]detection.Detection, error) {
		cancel()
		return []detection.Detection{rider}, nil
	}}
	p := NewPipeline(d, newAnalyzer(d, nil), violation.DefaultFineTable(), clock.NewMock(), detection.DefaultOptions(detection.ScopeFrame), zerolog.Nop())

	_, err := p.Process(ctx, frame(200, 200), FrameMeta{})
	assert.ErrorIs(t, err, detection.ErrExternalService)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, d.riderCalls)
}

func TestPipeline_SyntheticRecordsAreLabeled(t *testing.T) {
	d := detection.NewSyntheticDetector(7)
	p := NewPipeline(d, newAnalyzer(d, nil), violation.DefaultFineTable(), clock.NewMock(), detection.DefaultOptions(detection.ScopeFrame), zerolog.Nop())

	out, err := p.Process(context.Background(), frame(320, 240), FrameMeta{Filename: "demo.png"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Records)

	assert.True(t, p.Synthetic())
	for _, rec := range out.Records {
		assert.True(t, rec.Synthetic)
		assert.Equal(t, "synthetic", rec.Source)
	}
}
