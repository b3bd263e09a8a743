package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-ddd-auth/internal/application"
	"github.com/oksasatya/go-ddd-auth/internal/domain/apperror"
	"github.com/oksasatya/go-ddd-auth/pkg/helpers"
	"github.com/oksasatya/go-ddd-auth/pkg/response"
)

// CtxUserIDKey holds the authenticated user's ID in the Gin context.
const CtxUserIDKey = "userID"

// Authenticator resolves an access token to its principal.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*application.Principal, error)
}

// Auth accepts an access token from the Authorization bearer header or the
// access_token cookie and stores the caller in the Gin context.
func Auth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			response.ErrorCode[any](c, http.StatusUnauthorized, string(apperror.CodeTokenInvalid), "missing access token", nil)
			c.Abort()
			return
		}
		p, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			status := http.StatusUnauthorized
			if apperror.CodeOf(err) == apperror.CodeInternal {
				status = http.StatusInternalServerError
			}
			response.ErrorCode[any](c, status, string(apperror.CodeOf(err)), "invalid access token", nil)
			c.Abort()
			return
		}
		c.Set(CtxUserIDKey, p.UserID)
		c.Next()
	}
}

// BearerToken returns the token from "Authorization: Bearer <t>", falling back
// to the access_token cookie.
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	tok, err := c.Cookie(helpers.AccessCookie)
	if err != nil {
		return ""
	}
	return tok
}
