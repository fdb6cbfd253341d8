package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/traffic-violations-mcp/internal/analyzer"
	"github.com/ironsheep/traffic-violations-mcp/internal/config"
	"github.com/ironsheep/traffic-violations-mcp/internal/detection"
	"github.com/ironsheep/traffic-violations-mcp/internal/imaging"
	"github.com/ironsheep/traffic-violations-mcp/internal/service"
	"github.com/ironsheep/traffic-violations-mcp/internal/session"
	"github.com/ironsheep/traffic-violations-mcp/internal/store"
	"github.com/ironsheep/traffic-violations-mcp/internal/violation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubDetector struct {
	err error
}

func (stubDetector) Name() string    { return "stub" }
func (stubDetector) Synthetic() bool { return false }

func (d stubDetector) Detect(_ context.Context, _ image.Image, opts detection.Options) ([]detection.Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	if opts.Scope == detection.ScopeRider {
		return []detection.Detection{
			{Box: imaging.Box{X1: 5, Y1: 5, X2: 30, Y2: 30}, Label: detection.ClassNoHelmet, Confidence: 0.9},
		}, nil
	}
	return []detection.Detection{
		{Box: imaging.Box{X1: 20, Y1: 20, X2: 100, Y2: 120}, Label: detection.ClassRider, Confidence: 0.92},
	}, nil
}

func newTestRouter(t *testing.T, det detection.ObjectDetector) *gin.Engine {
	t.Helper()
	return newTestRouterWithRecorder(t, det, nil)
}

func newTestRouterWithRecorder(t *testing.T, det detection.ObjectDetector, recorder service.Recorder) *gin.Engine {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC))

	riders := analyzer.NewRiderAnalyzer(det, nil, analyzer.DefaultAnalyzerOptions(), zerolog.Nop())
	pipeline := analyzer.NewPipeline(det, riders, violation.DefaultFineTable(), mock, detection.DefaultOptions(detection.ScopeFrame), zerolog.Nop())
	svc := service.New(pipeline, session.NewManager(mock), recorder, service.Options{
		RequestTimeout:     time.Second,
		DefaultVehicleType: "Motorcycle",
		Clock:              mock,
	}, zerolog.Nop())
	t.Cleanup(func() { svc.Close() })

	return NewRouter(svc, config.HTTPConfig{
		CORSOrigins:    []string{"*"},
		MaxUploadBytes: 1 << 20,
	}, zerolog.Nop())
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 60, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartFrame(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	w := do(r, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data service.SessionInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.ID)
	return resp.Data.ID
}

func uploadRequest(t *testing.T, id, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	body, contentType := multipartFrame(t, filename, data, fields)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/frames", body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, stubDetector{})
	w := do(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSessionFlow(t *testing.T) {
	r := newTestRouter(t, stubDetector{})
	id := createSession(t, r)

	w := do(r, uploadRequest(t, id, "junction.png", pngBytes(t, 160, 160), map[string]string{
		"location":  "Gate 2",
		"red_light": "true",
		"annotate":  "true",
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var upload struct {
		Data service.FrameResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &upload))
	res := upload.Data
	assert.Equal(t, "junction.png", res.Filename)
	require.Len(t, res.Records, 1)
	assert.Equal(t, []violation.Tag{violation.NoHelmet, violation.NoLicensePlate, violation.RedLightJumping}, res.Records[0].Tags.Tags())
	assert.Equal(t, "Motorcycle", res.Records[0].VehicleType)
	assert.NotEmpty(t, res.Annotated)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Data session.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Data.TotalProcessed)
	assert.Equal(t, 1, stats.Data.TotalViolations)
	assert.Equal(t, res.TotalFines, stats.Data.TotalFines)
	assert.Equal(t, 100.0, stats.Data.ViolationRate)
	assert.True(t, stats.Data.ViolationRate >= 0 && stats.Data.ViolationRate <= 100)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/records", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var records struct {
		Data []violation.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Len(t, records.Data, 1)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/report.csv", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "violations_report.csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Filename,Violations,Fine_Amount,Timestamp", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "junction.png,No Helmet; No License Plate; Red Light Jumping,"), lines[1])

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/dashboard", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "echarts")

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []service.SessionInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, 1, list.Data[0].Records)

	w = do(r, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/clear", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/stats", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Zero(t, stats.Data.TotalProcessed)

	w = do(r, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+id, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadFrame_Errors(t *testing.T) {
	r := newTestRouter(t, stubDetector{})
	id := createSession(t, r)
	frame := pngBytes(t, 64, 64)

	tests := []struct {
		name     string
		id       string
		filename string
		data     []byte
		fields   map[string]string
		status   int
	}{
		{"missing file", id, "", nil, nil, http.StatusBadRequest},
		{"empty file", id, "empty.png", []byte{}, nil, http.StatusBadRequest},
		{"not an image", id, "notes.png", []byte("plain text"), nil, http.StatusBadRequest},
		{"video", id, "clip.mp4", []byte("ftyp"), nil, http.StatusNotImplemented},
		{"bad flag", id, "frame.png", frame, map[string]string{"red_light": "maybe"}, http.StatusBadRequest},
		{"unknown session", "6f1c2a9e-0000-4000-8000-000000000000", "frame.png", frame, nil, http.StatusNotFound},
		{"malformed session", "abc", "frame.png", frame, nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, uploadRequest(t, tt.id, tt.filename, tt.data, tt.fields))
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestUploadFrame_BackendFailure(t *testing.T) {
	r := newTestRouter(t, stubDetector{err: errors.New("connection refused")})
	id := createSession(t, r)

	w := do(r, uploadRequest(t, id, "frame.png", pngBytes(t, 64, 64), nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/stats", nil))
	var stats struct {
		Data session.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Zero(t, stats.Data.TotalProcessed)
}

func TestUnknownSessionRoutes(t *testing.T) {
	r := newTestRouter(t, stubDetector{})
	id := "6f1c2a9e-0000-4000-8000-000000000000"

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/sessions/" + id + "/stats"},
		{http.MethodGet, "/api/v1/sessions/" + id + "/records"},
		{http.MethodPost, "/api/v1/sessions/" + id + "/clear"},
		{http.MethodGet, "/api/v1/sessions/" + id + "/report.csv"},
		{http.MethodGet, "/api/v1/sessions/" + id + "/dashboard"},
		{http.MethodGet, "/api/v1/sessions/" + id + "/audit"},
	} {
		w := do(r, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, tc.path)
	}
}

func TestAudit(t *testing.T) {
	st, err := store.Open(store.MemoryPath, zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	r := newTestRouterWithRecorder(t, stubDetector{}, st)
	id := createSession(t, r)

	w := do(r, uploadRequest(t, id, "junction.png", pngBytes(t, 160, 160), map[string]string{"red_light": "true"}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(r, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/clear", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/audit", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var audit struct {
		Data service.AuditReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &audit))
	assert.Equal(t, id, audit.Data.SessionID)
	assert.Equal(t, 1, audit.Data.Count)
	assert.Equal(t, 1600, audit.Data.TotalFines)
	require.Len(t, audit.Data.Records, 1)
	assert.Equal(t, "junction.png", audit.Data.Records[0].Filename)
}

func TestAudit_NoStore(t *testing.T) {
	r := newTestRouter(t, stubDetector{})
	id := createSession(t, r)

	w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/audit", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Contains(t, w.Body.String(), "audit store disabled")
}

func TestFines(t *testing.T) {
	r := newTestRouter(t, stubDetector{})
	w := do(r, httptest.NewRequest(http.MethodGet, "/api/v1/fines", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data map[violation.Tag]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, violation.DefaultFineTable().Amounts(), resp.Data)
	assert.Equal(t, violation.FineNoHelmet, resp.Data[violation.NoHelmet])
}

func TestCORS(t *testing.T) {
	r := newTestRouter(t, stubDetector{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://dashboard.local")

	w := do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfig_Origins(t *testing.T) {
	cfg := corsConfig([]string{"http://a.example", "http://b.example"})
	assert.False(t, cfg.AllowAllOrigins)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowOrigins)
	assert.True(t, corsConfig(nil).AllowAllOrigins)
}
