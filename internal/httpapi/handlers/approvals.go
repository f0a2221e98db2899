package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hyunwoo-p/counseldesk/internal/common"
	"github.com/hyunwoo-p/counseldesk/internal/support"
	"gorm.io/gorm"
)

func (h *Handler) ListPendingApprovals(c *gin.Context) {
	orgID := c.Query("organization_id")
	if _, err := uuid.Parse(orgID); err != nil {
		common.Fail(c, http.StatusBadRequest, 10004, "valid organization_id required")
		return
	}

	items, err := h.Svc.ListPending(c.Request.Context(), orgID)
	if err != nil {
		if support.IsValidation(err) {
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
			return
		}
		log.Printf("[ListPendingApprovals] failed org=%s err=%v", orgID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to list pending approvals")
		return
	}
	common.OK(c, gin.H{"pending": items})
}

type resolveReq struct {
	Action        string  `json:"action" binding:"required"`
	SubmittedText *string `json:"submitted_text"`
	Notes         *string `json:"notes"`
}

func (h *Handler) ResolveApproval(c *gin.Context) {
	agentID, ok := agentIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	responseID := c.Param("response_id")

	var req resolveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	msg, err := h.Svc.Resolve(c.Request.Context(), responseID, support.DecisionAction(req.Action), agentID, req.SubmittedText, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40402, "ai response not found")
		case errors.Is(err, support.ErrAlreadyResolved):
			common.Fail(c, http.StatusConflict, 40901, "already resolved")
		case errors.Is(err, support.ErrConflict):
			common.Fail(c, http.StatusConflict, 40902, "conflict, retry")
		case support.IsValidation(err):
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		default:
			log.Printf("[ResolveApproval] failed response=%s agent=%s err=%v", responseID, agentID, err)
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to resolve approval")
		}
		return
	}

	common.OK(c, gin.H{
		"response_id": responseID,
		"action":      req.Action,
		"message":     msg,
	})
}
