package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ironsheep/traffic-violations-mcp/internal/config"
	"github.com/ironsheep/traffic-violations-mcp/internal/detection"
	"github.com/ironsheep/traffic-violations-mcp/internal/service"
	"github.com/ironsheep/traffic-violations-mcp/internal/session"
)

type Handler struct {
	svc *service.TrafficService
	cfg config.HTTPConfig
	log zerolog.Logger
}

func NewHandler(svc *service.TrafficService, cfg config.HTTPConfig, log zerolog.Logger) *Handler {
	return &Handler{
		svc: svc,
		cfg: cfg,
		log: log.With().Str("component", "api").Logger(),
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/fines", h.fines)
		v1.GET("/sessions", h.listSessions)
		v1.POST("/sessions", h.createSession)
		v1.DELETE("/sessions/:id", h.destroySession)
		v1.POST("/sessions/:id/frames", h.uploadFrame)
		v1.GET("/sessions/:id/stats", h.stats)
		v1.GET("/sessions/:id/records", h.records)
		v1.POST("/sessions/:id/clear", h.clear)
		v1.GET("/sessions/:id/report.csv", h.reportCSV)
		v1.GET("/sessions/:id/dashboard", h.dashboard)
		v1.GET("/sessions/:id/audit", h.audit)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.svc.ListSessions()))
}

func (h *Handler) createSession(c *gin.Context) {
	c.JSON(http.StatusCreated, successResponse(h.svc.CreateSession()))
}

func (h *Handler) destroySession(c *gin.Context) {
	if err := h.svc.DestroySession(c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) uploadFrame(c *gin.Context) {
	if h.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes)
	}

	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse(err.Error()))
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse("image file is required"))
		return
	}

	meta := service.FrameMeta{
		Filename:    fh.Filename,
		VehicleType: strings.TrimSpace(c.PostForm("vehicle_type")),
		Location:    strings.TrimSpace(c.PostForm("location")),
	}
	if meta.RedLight, err = parseBool(c, "red_light"); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if meta.Annotate, err = parseBool(c, "annotate"); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.handleError(c, err)
		return
	}
	defer f.Close()

	result, err := h.svc.AnalyzeUpload(c.Request.Context(), c.Param("id"), f, meta)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse(result))
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(stats))
}

func (h *Handler) records(c *gin.Context) {
	recs, err := h.svc.Records(c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(recs))
}

func (h *Handler) clear(c *gin.Context) {
	if err := h.svc.Clear(c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) reportCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.svc.ExportCSV(c.Param("id"), &buf); err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="violations_report.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) dashboard(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.svc.Dashboard(c.Param("id"), &buf); err != nil {
		h.handleError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (h *Handler) audit(c *gin.Context) {
	report, err := h.svc.Audit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(report))
}

func (h *Handler) fines(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.svc.FineSchedule()))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, session.ErrSuperseded):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, service.ErrUnsupportedMedia), errors.Is(err, service.ErrAuditDisabled):
		c.JSON(http.StatusNotImplemented, errorResponse(err.Error()))
	case errors.Is(err, detection.ErrExternalService):
		h.log.Warn().Err(err).Msg("backend failure")
		c.JSON(http.StatusBadGateway, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

// parseBool reads an optional boolean form field; absent means false.
func parseBool(c *gin.Context, field string) (bool, error) {
	v := strings.TrimSpace(c.PostForm(field))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New(field + " must be a boolean")
	}
	return b, nil
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
