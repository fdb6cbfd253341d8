package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/traffic-violations-mcp/internal/imaging"
)

// HTTPDoer is the subset of *http.Client used by the remote backends.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPDetector calls a remote inference server.
//
// The frame is sent as a PNG in the multipart field "image" together with the
// "conf", "iou" and "scope" fields. The server answers with
//
//	{"detections": [{"box": [x1, y1, x2, y2], "label": "Rider", "confidence": 0.91}]}
type HTTPDetector struct {
	endpoint string
	client   HTTPDoer
	log      zerolog.Logger
}

// NewHTTPDetector creates a detector for endpoint. A nil client gets an
// *http.Client with the given timeout.
func NewHTTPDetector(endpoint string, client HTTPDoer, timeout time.Duration, log zerolog.Logger) *HTTPDetector {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPDetector{
		endpoint: endpoint,
		client:   client,
		log:      log.With().Str("component", "http_detector").Logger(),
	}
}

// Name implements ObjectDetector.
func (d *HTTPDetector) Name() string { return "http" }

// Synthetic implements ObjectDetector.
func (d *HTTPDetector) Synthetic() bool { return false }

type wireDetection struct {
	Box        [4]float64 `json:"box"`
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
}

type wireResponse struct {
	Detections []wireDetection `json:"detections"`
}

// Detect implements ObjectDetector.
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image, opts Options) ([]Detection, error) {
	body, contentType, err := encodeDetectRequest(img, opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build detect request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: detector request: %v", ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: detector returned %d: %s", ErrExternalService, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("%w: malformed detector response: %v", ErrExternalService, err)
	}

	dets := make([]Detection, 0, len(wr.Detections))
	for _, w := range wr.Detections {
		dets = append(dets, Detection{
			Box: imaging.Box{
				X1: int(w.Box[0]),
				Y1: int(w.Box[1]),
				X2: int(w.Box[2]),
				Y2: int(w.Box[3]),
			},
			Label:      w.Label,
			Confidence: w.Confidence,
		})
	}

	d.log.Debug().
		Str("scope", string(opts.Scope)).
		Int("detections", len(dets)).
		Dur("elapsed", time.Since(start)).
		Msg("remote detection complete")

	return dets, nil
}

func encodeDetectRequest(img image.Image, opts Options) (io.Reader, string, error) {
	png, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("image", "frame.png")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return nil, "", fmt.Errorf("failed to write form file: %w", err)
	}

	fields := map[string]string{
		"conf":  strconv.FormatFloat(opts.Confidence, 'f', -1, 64),
		"iou":   strconv.FormatFloat(opts.IoU, 'f', -1, 64),
		"scope": string(opts.Scope),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	return &buf, mw.FormDataContentType(), nil
}
