package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin-pipeline/capture"
	"checkin-pipeline/dto"
	"checkin-pipeline/service"
	"checkin-pipeline/upload"
)

// Handler exposes the check-in pipeline to the host UI over HTTP.
type Handler struct {
	pipeline service.Pipeline
}

func NewHandler(pipeline service.Pipeline) *Handler {
	return &Handler{pipeline: pipeline}
}

func (h *Handler) Register(r *gin.Engine) {
	g := r.Group("/checkin")
	g.GET("/state", h.state)
	g.POST("/camera", h.openCamera)
	g.POST("/record/start", h.startRecording)
	g.POST("/record/stop", h.stopRecording)
	g.POST("/submit", h.submit)
	g.POST("/rerecord", h.reRecord)
	g.POST("/dismiss", h.dismiss)
}

func (h *Handler) state(c *gin.Context) {
	resp := dto.StateResponse{
		State:           h.pipeline.State().String(),
		Progress:        h.pipeline.Progress(),
		DeviceAvailable: h.pipeline.DeviceAvailable(c.Request.Context()),
		ElapsedSeconds:  h.pipeline.ElapsedSeconds(),
	}
	if err := h.pipeline.LastError(); err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) openCamera(c *gin.Context) {
	if err := h.pipeline.OpenCamera(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) startRecording(c *gin.Context) {
	if err := h.pipeline.StartRecording(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) stopRecording(c *gin.Context) {
	media, err := h.pipeline.StopRecording(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	resp := dto.StopResponse{
		DurationSeconds: media.DurationSeconds,
		SizeBytes:       media.SizeBytes,
		MimeType:        media.MimeType,
	}
	if media.Preview() != nil {
		resp.PreviewPath = media.Preview().Path()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) submit(c *gin.Context) {
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	url, err := h.pipeline.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SubmitResponse{VideoURL: url})
}

func (h *Handler) reRecord(c *gin.Context) {
	if err := h.pipeline.ReRecord(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) dismiss(c *gin.Context) {
	if err := h.pipeline.Dismiss(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// respondError maps the pipeline's error taxonomy onto distinguishable HTTP
// responses so the UI never collapses causes into one generic failure.
func respondError(c *gin.Context, err error) {
	var (
		devErr   *capture.DeviceError
		recErr   *capture.RecordingError
		sizeErr  *upload.SizeLimitError
		quotaErr *upload.QuotaError
		upErr    *upload.UploadError
		perErr   *service.PersistenceError
	)

	switch {
	case errors.Is(err, service.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"kind": "INVALID_STATE", "error": err.Error()})
	case errors.As(err, &devErr):
		c.JSON(http.StatusFailedDependency, gin.H{"kind": "DEVICE_" + string(devErr.Kind), "error": err.Error()})
	case errors.As(err, &recErr):
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "RECORDING", "error": err.Error()})
	case errors.As(err, &sizeErr):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"kind": "SIZE_LIMIT_EXCEEDED", "error": err.Error()})
	case errors.As(err, &quotaErr):
		c.JSON(http.StatusPaymentRequired, gin.H{"kind": "QUOTA_EXCEEDED", "error": quotaErr.Message})
	case errors.As(err, &perErr):
		c.JSON(http.StatusBadGateway, gin.H{"kind": "PERSISTENCE", "error": err.Error()})
	case errors.As(err, &upErr):
		c.JSON(http.StatusBadGateway, gin.H{"kind": "UPLOAD", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "INTERNAL", "error": err.Error()})
	}
}
