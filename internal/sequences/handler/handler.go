package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"outreach_engine_backend/internal/sequences/service"
	"outreach_engine_backend/internal/sequences/transport"
	"outreach_engine_backend/platform/httpkit"
	"outreach_engine_backend/platform/validator"
)

// Handler exposes sequence management, enrollment, and the transport
// callback endpoint.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts sequence routes on the given group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:sequenceId", h.Get)
	rg.POST("/:sequenceId/active", h.SetActive)
	rg.POST("/:sequenceId/enroll", h.Enroll)
	rg.POST("/:sequenceId/unenroll", h.Unenroll)
	rg.GET("/:sequenceId/stats", h.Stats)
}

// RegisterCallbackRoutes mounts the delivery-event webhook.
func (h *Handler) RegisterCallbackRoutes(rg *gin.RouterGroup) {
	rg.POST("/callbacks/transport", h.TransportCallback)
}

// RegisterExecutionRoutes mounts the upcoming-executions query.
func (h *Handler) RegisterExecutionRoutes(rg *gin.RouterGroup) {
	rg.GET("/executions/upcoming", h.Upcoming)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}

	in := service.CreateSequenceInput{
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active,
	}
	for _, step := range req.Steps {
		in.Steps = append(in.Steps, service.CreateStepInput{
			StepNumber:     step.StepNumber,
			TemplateID:     step.TemplateID,
			Delay:          step.Delay(),
			SkipConditions: step.SkipConditions,
		})
	}

	seq, err := h.svc.Create(c.Request.Context(), in)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, seq)
}

func (h *Handler) List(c *gin.Context) {
	sequences, err := h.svc.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"sequences": sequences})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("sequenceId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid sequence id", nil)
		return
	}

	seq, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, seq)
}

func (h *Handler) SetActive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("sequenceId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid sequence id", nil)
		return
	}

	var req transport.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}

	if httpkit.HandleError(c, h.svc.SetActive(c.Request.Context(), id, req.Active)) {
		return
	}
	httpkit.OK(c, gin.H{"active": req.Active})
}

func (h *Handler) Enroll(c *gin.Context) {
	id, err := uuid.Parse(c.Param("sequenceId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid sequence id", nil)
		return
	}

	var req transport.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}

	resp, err := h.svc.Enroll(c.Request.Context(), id, req.LeadIDs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) Unenroll(c *gin.Context) {
	id, err := uuid.Parse(c.Param("sequenceId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid sequence id", nil)
		return
	}

	var req transport.UnenrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}

	resp, err := h.svc.Unenroll(c.Request.Context(), id, req.LeadIDs, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) Stats(c *gin.Context) {
	id, err := uuid.Parse(c.Param("sequenceId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid sequence id", nil)
		return
	}

	stats, err := h.svc.Stats(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, stats)
}

func (h *Handler) Upcoming(c *gin.Context) {
	horizon := 24 * time.Hour
	if raw := c.Query("withinHours"); raw != "" {
		parsed, err := time.ParseDuration(raw + "h")
		if err != nil || parsed <= 0 {
			httpkit.Error(c, http.StatusBadRequest, "invalid withinHours", nil)
			return
		}
		horizon = parsed
	}

	executions, err := h.svc.Upcoming(c.Request.Context(), horizon, 200)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"executions": executions})
}

func (h *Handler) TransportCallback(c *gin.Context) {
	var req transport.TransportCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}

	if httpkit.HandleError(c, h.svc.HandleCallback(c.Request.Context(), req.MessageID, req.Event)) {
		return
	}
	httpkit.OK(c, gin.H{"accepted": true})
}
