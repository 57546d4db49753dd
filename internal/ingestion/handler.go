package ingestion

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"outreach_engine_backend/platform/httpkit"
	"outreach_engine_backend/platform/validator"
)

// Handler exposes the real-time ingestion endpoint and the artifact ledger.
type Handler struct {
	svc    *Service
	ledger *Ledger
	val    *validator.Validator
}

func NewHandler(svc *Service, ledger *Ledger, val *validator.Validator) *Handler {
	return &Handler{svc: svc, ledger: ledger, val: val}
}

// SubmitLeads ingests a real-time payload. The payload digest doubles as the
// artifact id, so duplicate webhook deliveries are idempotent no-ops.
func (h *Handler) SubmitLeads(c *gin.Context) {
	var req SubmitLeadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}

	artifactID, err := PayloadDigest(req)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "payload not digestible", nil)
		return
	}

	rows := make([]RawRow, 0, len(req.Leads))
	for _, lead := range req.Leads {
		rows = append(rows, RawRow{
			Email:           lead.Email,
			FirstName:       lead.FirstName,
			LastName:        lead.LastName,
			Phone:           lead.Phone,
			VehicleInterest: lead.VehicleInterest,
			Source:          req.Source,
			Metadata:        lead.Metadata,
		})
	}

	result, err := h.svc.Ingest(c.Request.Context(), artifactID, 0, rows)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toSubmitResponse(req, result))
}

// ListArtifacts returns the most recent idempotency-ledger entries.
func (h *Handler) ListArtifacts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	artifacts, err := h.ledger.List(c.Request.Context(), limit)
	if err != nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "ledger unavailable", nil)
		return
	}
	httpkit.OK(c, gin.H{"artifacts": artifacts})
}

// GetArtifact returns one ledger entry by artifact id.
func (h *Handler) GetArtifact(c *gin.Context) {
	artifact, err := h.ledger.Get(c.Request.Context(), c.Param("artifactId"))
	if err != nil {
		if err == ErrArtifactNotFound {
			httpkit.Error(c, http.StatusNotFound, "artifact not found", nil)
			return
		}
		httpkit.Error(c, http.StatusServiceUnavailable, "ledger unavailable", nil)
		return
	}
	httpkit.OK(c, artifact)
}

func toSubmitResponse(req SubmitLeadsRequest, result BatchResult) SubmitLeadsResponse {
	resp := SubmitLeadsResponse{
		TotalProcessed: result.Accepted + result.Rejected,
		SuccessCount:   result.Accepted,
		FailureCount:   result.Rejected,
		Duplicate:      result.Duplicate,
		Results:        make([]SubmitLeadItem, 0, len(req.Leads)),
	}

	rejected := make(map[int]string, len(result.RowErrors))
	for _, rowErr := range result.RowErrors {
		rejected[rowErr.Index] = rowErr.Reason
	}

	for i, lead := range req.Leads {
		item := SubmitLeadItem{Email: lead.Email, Success: true}
		if reason, ok := rejected[i]; ok {
			item.Success = false
			item.Error = reason
		} else if result.Duplicate || (result.Aborted && i >= result.Accepted+result.Rejected) {
			// Rows past the abort point were never processed; duplicates
			// processed nothing at all.
			item.Success = false
			item.Error = "not processed"
		}
		resp.Results = append(resp.Results, item)
	}

	return resp
}
