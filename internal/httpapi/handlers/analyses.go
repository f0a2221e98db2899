package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hyunwoo-p/counseldesk/internal/ai"
	"github.com/hyunwoo-p/counseldesk/internal/common"
	"github.com/hyunwoo-p/counseldesk/internal/support"
	"gorm.io/gorm"
)

type requestAnalysisReq struct {
	Kind string `json:"kind" binding:"required"`
}

// RequestAnalysis queues one internal-only analysis (summary, emotion,
// intent). With no broker configured the job runs inline, which keeps
// local development broker-free.
func (h *Handler) RequestAnalysis(c *gin.Context) {
	agentID, ok := agentIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	conversationID := c.Param("id")

	var req requestAnalysisReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	job, created, err := h.Svc.CreateAnalysisJob(c.Request.Context(), conversationID, ai.Kind(req.Kind), agentID, idempoKeyPtr)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "conversation not found")
		case support.IsValidation(err):
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		default:
			log.Printf("[RequestAnalysis] failed conversation=%s kind=%s err=%v", conversationID, req.Kind, err)
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to create analysis job")
		}
		return
	}

	if created {
		if h.Rabbit != nil {
			if err := h.Rabbit.PublishJob(c.Request.Context(), job.ID); err != nil {
				log.Printf("[RequestAnalysis] publish failed job=%s err=%v", job.ID, err)
				common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
				return
			}
		} else {
			if err := h.Svc.RunAnalysisJob(c.Request.Context(), job.ID); err != nil {
				log.Printf("[RequestAnalysis] inline run failed job=%s err=%v", job.ID, err)
			}
			// re-read so the caller sees the terminal status
			if refreshed, err := h.Svc.GetJob(c.Request.Context(), job.ID); err == nil {
				job = refreshed
			}
		}
	}

	common.OK(c, gin.H{"job": job})
}

func (h *Handler) GetAnalysisJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10005, "job_id required")
		return
	}

	job, err := h.Svc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}
	common.OK(c, gin.H{"job": job})
}
