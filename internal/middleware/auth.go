package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/slot-booking/internal/handler"
	"github.com/jwalitptl/slot-booking/internal/model"
)

const ContextAdminClaims = "admin_claims"

// TokenValidator checks an admin bearer token.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error)
}

type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate gates admin routes. On failure the request is aborted with 401
// before any handler runs.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "missing authorization header")
			return
		}

		token := bearerToken(authHeader)
		if token == "" {
			unauthorized(c, "invalid authorization format")
			return
		}

		claims, err := m.tokens.ValidateToken(c.Request.Context(), token)
		if err != nil {
			log.Warn().
				Err(err).
				Str("request_id", c.GetString(ContextRequestID)).
				Str("path", c.Request.URL.Path).
				Msg("Rejected admin token")
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ContextAdminClaims, claims)
		c.Next()
	}
}

// Identify attaches admin claims when a valid bearer token is present and
// otherwise lets the request through anonymously. Public read routes use it
// to decide how much of a slot to show.
func (m *AuthMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c.GetHeader("Authorization")); token != "" {
			if claims, err := m.tokens.ValidateToken(c.Request.Context(), token); err == nil {
				c.Set(ContextAdminClaims, claims)
			}
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AdminClaims returns the claims stored by Authenticate or Identify.
func AdminClaims(c *gin.Context) (*model.TokenClaims, bool) {
	v, ok := c.Get(ContextAdminClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*model.TokenClaims)
	return claims, ok
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("unauthorized", message))
}
