package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/hyunwoo-p/counseldesk/internal/common"
	"github.com/hyunwoo-p/counseldesk/internal/config"
	"github.com/hyunwoo-p/counseldesk/internal/httpapi/middleware"
	"github.com/hyunwoo-p/counseldesk/internal/store/rabbitmq"
	"github.com/hyunwoo-p/counseldesk/internal/suggest"
	"github.com/hyunwoo-p/counseldesk/internal/support"
	"gorm.io/gorm"
)

type Handler struct {
	DB          *gorm.DB
	Cfg         config.Config
	Svc         *support.Service
	Suggestions *suggest.Store
	Rabbit      *rabbitmq.Publisher // nil runs analysis jobs inline
}

func NewHandler(db *gorm.DB, cfg config.Config, svc *support.Service, suggestions *suggest.Store, rabbit *rabbitmq.Publisher) *Handler {
	return &Handler{
		DB:          db,
		Cfg:         cfg,
		Svc:         svc,
		Suggestions: suggestions,
		Rabbit:      rabbit,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func agentIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.AgentIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
