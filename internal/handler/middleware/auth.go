package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/device-license-service/internal/ierr"
	"github.com/makkenzo/device-license-service/internal/service"
	"go.uber.org/zap"
)

const adminClaimsContextKey = "adminClaims"

// AuthMiddleware admits requests carrying a valid admin bearer token and
// stores the claims on the context for audit logging.
func AuthMiddleware(authService *service.AuthService, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("AuthMiddleware")
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			log.Debug("Rejected request without usable credentials", zap.String("path", c.FullPath()), zap.Error(err))
			_ = c.Error(err)
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			log.Warn("Token validation failed", zap.String("client_ip", c.ClientIP()), zap.Error(err))
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(adminClaimsContextKey, claims)
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: authorization header required", ierr.ErrUnauthorized)
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: invalid authorization header format", ierr.ErrUnauthorized)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: token missing", ierr.ErrUnauthorized)
	}
	return token, nil
}

func GetAdminClaims(c *gin.Context) *service.AdminClaims {
	value, exists := c.Get(adminClaimsContextKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*service.AdminClaims)
	return claims
}

// Actor names the authenticated admin for log fields, or "anonymous".
func Actor(c *gin.Context) string {
	if claims := GetAdminClaims(c); claims != nil && claims.Subject != "" {
		return claims.Subject
	}
	return "anonymous"
}
