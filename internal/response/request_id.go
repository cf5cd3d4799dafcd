package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is the Gin context key for the request ID.
const ContextKeyRequestID = "request_id"

// maxRequestIDLength bounds client-supplied ids before they reach logs.
const maxRequestIDLength = 64

// RequestIDMiddleware tags every request with an id, reusing a sane
// X-Request-ID from the client.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" || len(reqID) > maxRequestIDLength {
			reqID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestIDMiddleware, if any.
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}
