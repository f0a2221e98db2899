package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/hyunwoo-p/counseldesk/internal/common"
)

const RequestIDHeader = "X-Request-ID"

// RequestID attaches an id to every request, honoring one supplied by
// the caller.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			if generated, err := common.NewULID(); err == nil {
				rid = generated
			}
		}
		c.Set("request_id", rid)
		c.Header(RequestIDHeader, rid)
		c.Next()
	}
}
