package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/traffic-violations-mcp/internal/detection"
	"github.com/ironsheep/traffic-violations-mcp/internal/imaging"
)

// DefaultPlateReaderURL is the public plate-reader endpoint.
const DefaultPlateReaderURL = "https://api.platerecognizer.com/v1/plate-reader/"

// PlateReaderClient calls a remote plate-reader API.
//
// The crop is uploaded in the multipart field "upload" with one "regions"
// field per configured region code, authenticated by "Authorization: Token".
// The first result's plate wins.
type PlateReaderClient struct {
	url     string
	token   string
	regions []string
	client  detection.HTTPDoer
	log     zerolog.Logger
}

// NewPlateReaderClient creates a client. A nil client gets an *http.Client
// with the given timeout; an empty url uses DefaultPlateReaderURL.
func NewPlateReaderClient(url, token string, regions []string, client detection.HTTPDoer, timeout time.Duration, log zerolog.Logger) *PlateReaderClient {
	if url == "" {
		url = DefaultPlateReaderURL
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &PlateReaderClient{
		url:     url,
		token:   token,
		regions: regions,
		client:  client,
		log:     log.With().Str("component", "plate_reader").Logger(),
	}
}

// Name implements PlateRecognizer.
func (c *PlateReaderClient) Name() string { return "platerecognizer" }

type plateReaderResponse struct {
	Results []struct {
		Plate string  `json:"plate"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Recognize implements PlateRecognizer.
func (c *PlateReaderClient) Recognize(ctx context.Context, img image.Image) (string, error) {
	png, err := imaging.EncodePNG(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, region := range c.regions {
		if err := mw.WriteField("regions", region); err != nil {
			return "", fmt.Errorf("failed to write regions field: %w", err)
		}
	}
	part, err := mw.CreateFormFile("upload", "plate.png")
	if err != nil {
		return "", fmt.Errorf("failed to create upload field: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return "", fmt.Errorf("failed to write upload field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return "", fmt.Errorf("failed to build plate request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: plate reader request: %v", ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: plate reader returned %d: %s", ErrExternalService, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var pr plateReaderResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("%w: malformed plate reader response: %v", ErrExternalService, err)
	}

	if len(pr.Results) == 0 {
		return "", fmt.Errorf("%w: %w", ErrExternalService, ErrNoPlate)
	}

	plate := NormalizePlate(pr.Results[0].Plate)
	if plate == "" {
		return "", fmt.Errorf("%w: %w", ErrExternalService, ErrNoPlate)
	}

	c.log.Debug().
		Str("plate", plate).
		Float64("score", pr.Results[0].Score).
		Int("candidates", len(pr.Results)).
		Msg("plate recognized")

	return plate, nil
}
