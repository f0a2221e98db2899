package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hyunwoo-p/counseldesk/internal/common"
	"github.com/hyunwoo-p/counseldesk/internal/config"
	"github.com/hyunwoo-p/counseldesk/internal/httpapi/handlers"
	"github.com/hyunwoo-p/counseldesk/internal/httpapi/middleware"
)

func NewRouter(cfg config.Config, h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	r.GET("/ping", h.Ping)

	// customer-facing entry points (widget traffic, no agent token)
	r.POST("/conversations", h.StartConversation)
	r.POST("/conversations/:id/messages", h.SendCustomerMessage)

	// agent console (JWT required)
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/conversations/:id", h.GetConversation)
	authGroup.GET("/conversations/:id/messages", h.ListMessages)
	authGroup.GET("/conversations/:id/suggestions", h.ListSuggestions)
	authGroup.POST("/conversations/:id/agent-messages", h.SendAgentMessage)
	authGroup.POST("/conversations/:id/analyses", h.RequestAnalysis)
	authGroup.GET("/analyses/jobs/:job_id", h.GetAnalysisJob)
	authGroup.GET("/approvals/pending", h.ListPendingApprovals)
	authGroup.POST("/approvals/:response_id", h.ResolveApproval)
	return r
}
