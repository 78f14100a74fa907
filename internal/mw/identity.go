package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"mes-execution-backend/internal/model"
)

// Context keys set by Identity.
const (
	ContextTenantID = "tenant_id"
	ContextUserID   = "user_id"
)

// Header fallbacks used when no JWT secret is configured.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// Envelope codes of rejected identities.
const (
	CodeUnauthorized = 40100
	CodeInvalidToken = 40102
	CodeBadClaims    = 40103
)

// Claims are the JWT claims naming the caller.
type Claims struct {
	TenantID string `json:"tid"`
	UserID   string `json:"uid"`
	jwt.RegisteredClaims
}

// Identity resolves the acting tenant and user. With a secret it requires an
// HS256 bearer token; without one it trusts the X-Tenant-ID and X-User-ID
// headers.
func Identity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tenantID, userID string
		if secret == "" {
			tenantID = strings.TrimSpace(c.GetHeader(HeaderTenantID))
			userID = strings.TrimSpace(c.GetHeader(HeaderUserID))
		} else {
			claims, code, msg := parseBearer(c.GetHeader("Authorization"), secret)
			if claims == nil {
				abort(c, code, msg)
				return
			}
			tenantID, userID = claims.TenantID, claims.UserID
		}

		if tenantID == "" || userID == "" {
			abort(c, CodeBadClaims, "tenant and user are required")
			return
		}
		c.Set(ContextTenantID, tenantID)
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

func parseBearer(header, secret string) (*Claims, int, string) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return nil, CodeUnauthorized, "Authorization is required"
	}

	token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, CodeInvalidToken, "Invalid or expired token"
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, CodeBadClaims, "Invalid token claims"
	}
	return claims, 0, ""
}

func abort(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    code,
		"message": msg,
	})
}

// ActorFrom returns the caller resolved by Identity.
func ActorFrom(c *gin.Context) model.Actor {
	return model.Actor{
		TenantID: c.GetString(ContextTenantID),
		UserID:   c.GetString(ContextUserID),
	}
}
