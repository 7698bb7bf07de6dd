// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. Authentication is out of scope for
// this service; an upstream gateway forwards the user in the X-User-ID header.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the authenticated user forwarded by the gateway.
const HeaderUserID = "X-User-ID"

// DefaultUserID is used when no identity is available (local development).
const DefaultUserID = "demo-user"

const ctxKeyUserID = "userID"

// Identity copies X-User-ID into the Gin context under "userID" unless an
// earlier middleware already set it. Place it before Logger, the idempotency
// validator and the rate limiter so all of them key on the same user.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ctxKeyUserID); !ok {
			if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
				c.Set(ctxKeyUserID, h)
			}
		}
		c.Next()
	}
}

// UserID returns the caller identity: the "userID" context value, then the
// X-User-ID header, then DefaultUserID.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			return h
		}
	}
	return DefaultUserID
}
