package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hyunwoo-p/counseldesk/internal/ai"
	"github.com/hyunwoo-p/counseldesk/internal/common"
	"github.com/hyunwoo-p/counseldesk/internal/support"
	"gorm.io/gorm"
)

// draftErrorKind classifies a failed draft for the response payload. The
// inbound message is already persisted at that point; the failure is
// reported, not masked.
func draftErrorKind(err error) string {
	switch {
	case errors.Is(err, ai.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, ai.ErrEmptyCompletion):
		return "empty_completion"
	case errors.Is(err, support.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

type startConversationReq struct {
	OrganizationID string `json:"organization_id" binding:"required"`
	CustomerID     string `json:"customer_id" binding:"required"`
	Priority       string `json:"priority"`
	Message        string `json:"message" binding:"required"`
}

func (h *Handler) StartConversation(c *gin.Context) {
	var req startConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	conv, res, err := h.Svc.StartConversation(c.Request.Context(), support.StartConversationInput{
		OrganizationID: req.OrganizationID,
		CustomerID:     req.CustomerID,
		Priority:       support.Priority(req.Priority),
		Body:           req.Message,
	})
	if err != nil && res == nil {
		if support.IsValidation(err) {
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
			return
		}
		log.Printf("[StartConversation] failed org=%s err=%v", req.OrganizationID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to start conversation")
		return
	}

	data := gin.H{
		"conversation": conv,
		"message":      res.Message,
		"draft":        res.Draft,
		"auto_sent":    res.AutoSent,
	}
	if err != nil {
		data["draft_error"] = draftErrorKind(err)
		log.Printf("[StartConversation] draft failed conversation=%s err=%v", conv.ID, err)
	}
	common.OK(c, data)
}

type sendMessageReq struct {
	Body string `json:"body" binding:"required"`
}

func (h *Handler) SendCustomerMessage(c *gin.Context) {
	conversationID := c.Param("id")

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	res, err := h.Svc.HandleCustomerMessage(c.Request.Context(), conversationID, req.Body)
	if err != nil && res == nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "conversation not found")
		case support.IsValidation(err):
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		default:
			log.Printf("[SendCustomerMessage] failed conversation=%s err=%v", conversationID, err)
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to send message")
		}
		return
	}

	data := gin.H{
		"message":   res.Message,
		"draft":     res.Draft,
		"auto_sent": res.AutoSent,
	}
	if err != nil {
		data["draft_error"] = draftErrorKind(err)
		log.Printf("[SendCustomerMessage] draft failed conversation=%s err=%v", conversationID, err)
	}
	common.OK(c, data)
}

type agentMessageReq struct {
	Body string `json:"body" binding:"required"`
}

func (h *Handler) SendAgentMessage(c *gin.Context) {
	agentID, ok := agentIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	conversationID := c.Param("id")

	var req agentMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	msg, err := h.Svc.AppendAgentMessage(c.Request.Context(), conversationID, agentID, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "conversation not found")
		case support.IsValidation(err):
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		default:
			log.Printf("[SendAgentMessage] failed conversation=%s err=%v", conversationID, err)
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to send message")
		}
		return
	}
	common.OK(c, gin.H{"message": msg})
}

func (h *Handler) GetConversation(c *gin.Context) {
	conv, err := h.Svc.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "conversation not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "db error")
		return
	}
	common.OK(c, gin.H{"conversation": conv})
}

func (h *Handler) ListMessages(c *gin.Context) {
	conversationID := c.Param("id")

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeSeq int64
	if v := c.Query("before_seq"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			beforeSeq = n
		}
	}

	msgs, err := h.Svc.ListMessages(c.Request.Context(), conversationID, limit, beforeSeq)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

func (h *Handler) ListSuggestions(c *gin.Context) {
	conversationID := c.Param("id")

	latest, err := h.Suggestions.ListRecent(c.Request.Context(), conversationID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list suggestions")
		return
	}
	common.OK(c, gin.H{"suggestions": latest})
}
