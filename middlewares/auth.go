package middlewares

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"eventapi/apperr"
	"eventapi/utils"
)

// Context keys set by Authenticate.
const (
	CtxUserID    = "userId"
	CtxRole      = "role"
	CtxProfileID = "profileId"
	CtxEmail     = "email"
)

// Authenticate accepts "Bearer <jwt>" or the bare token, the way older
// clients still send it.
func Authenticate(tokens *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Request.Header.Get("Authorization"))
		token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
		if token == "" {
			abort(c, apperr.Unauthorized("Not authorized."))
			return
		}

		claims, err := tokens.VerifyToken(token)
		if err != nil {
			abort(c, apperr.Unauthorized("Not authorized."))
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxRole, claims.Role)
		c.Set(CtxProfileID, claims.ProfileID)
		c.Set(CtxEmail, claims.Email)
		c.Next()
	}
}

// RequireRole must run after Authenticate.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(roles, c.GetString(CtxRole)) {
			abort(c, apperr.Forbidden("You are not allowed to perform this action."))
			return
		}
		c.Next()
	}
}

// abort stops the chain and leaves the response to ErrorHandler.
func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
