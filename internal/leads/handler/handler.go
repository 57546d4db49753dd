package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"outreach_engine_backend/internal/leads/repository"
	"outreach_engine_backend/internal/leads/service"
	"outreach_engine_backend/internal/leads/transport"
	"outreach_engine_backend/platform/httpkit"
	"outreach_engine_backend/platform/validator"
)

// Handler exposes lead read endpoints and the inbound reply endpoint.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts lead routes on the given group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:leadId", h.GetByID)
	rg.POST("/:leadId/replies", h.RecordReply)
	rg.POST("/:leadId/deactivate", h.Deactivate)
}

func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return
	}

	lead, err := h.svc.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) List(c *gin.Context) {
	var req transport.ListLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid query", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	leads, err := h.svc.List(c.Request.Context(), repository.ListLeadsParams{
		Source:        req.Source,
		OnlyAbandoned: req.OnlyAbandoned,
		Offset:        req.Offset,
		Limit:         req.Limit,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"leads": leads})
}

func (h *Handler) RecordReply(c *gin.Context) {
	id, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return
	}

	var req transport.RecordReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}

	reply, err := h.svc.RecordReply(c.Request.Context(), id, req.Body)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, reply)
}

func (h *Handler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return
	}

	if httpkit.HandleError(c, h.svc.Deactivate(c.Request.Context(), id)) {
		return
	}
	c.Status(http.StatusNoContent)
}
