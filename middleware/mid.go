package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"storefront-service/internal/auth"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"

	"github.com/gin-gonic/gin"
)

// SessionCookie is the cookie the authentication provider stores the session token in. Browsers
// opening an EventSource cannot set headers, so the admin event stream relies on it.
const SessionCookie = "__session"

type Mid struct {
	k *auth.Keys
}

func NewMid(k *auth.Keys) (*Mid, error) {
	if k == nil {
		return nil, errors.New("auth keys cannot be nil")
	}
	return &Mid{k: k}, nil
}

// Authentication rejects requests without a valid token and stores the claims in the request context.
func (m *Mid) Authentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := ctxmanage.GetTraceIdOfRequest(c)
		claims, err := m.claimsFromRequest(c)
		if err != nil {
			slog.Error("authentication failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuthentication stores claims when a valid token is sent and lets guests through
// otherwise. An invalid token is still rejected.
func (m *Mid) OptionalAuthentication() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rawToken(c) == "" {
			c.Next()
			return
		}
		m.Authentication()(c)
	}
}

// Authorize wraps handler so it only runs for callers holding one of roles.
func (m *Mid) Authorize(handler gin.HandlerFunc, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := ctxmanage.GetTraceIdOfRequest(c)
		claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
		if !ok {
			slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
			return
		}
		for _, role := range roles {
			if claims.HasRole(role) {
				handler(c)
				return
			}
		}
		slog.Error("role not permitted", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.UserID, claims.Subject), slog.Any("Roles", claims.Roles))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": http.StatusText(http.StatusForbidden)})
	}
}

func (m *Mid) claimsFromRequest(c *gin.Context) (auth.Claims, error) {
	token := rawToken(c)
	if token == "" {
		return auth.Claims{}, errors.New("no token in Authorization header or session cookie")
	}
	return m.k.ValidateToken(token)
}

func rawToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.Split(header, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

func setClaims(c *gin.Context, claims auth.Claims) {
	ctx := context.WithValue(c.Request.Context(), auth.ClaimsKey, claims)
	c.Request = c.Request.WithContext(ctx)
}
