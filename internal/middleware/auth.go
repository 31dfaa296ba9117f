package middleware

import (
	"net/http"
	"strings"

	"maintenance-service/internal/model"
	"maintenance-service/pkg/jwtutil"
	"maintenance-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const actorContextKey = "actor"

// AuthMiddleware validates the JWT token and builds the typed Actor passed
// explicitly into every scoped service call.
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromEcho(c)

		// Get the Authorization header
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Warn("Missing Authorization header")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
		}

		// Check if it's a Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Warn("Invalid Authorization header format")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
		}

		// Validate the token
		claims, err := jwtutil.ValidateToken(parts[1])
		if err != nil {
			log.Error("Invalid JWT token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		}

		if claims.TenantID == nil {
			log.Warn("JWT token does not contain tenant_id")
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is required in the token"})
		}

		role, ok := model.ParseRole(claims.Role)
		if !ok {
			log.Warn("JWT token carries unknown role", zap.String("role", claims.Role))
			return c.JSON(http.StatusForbidden, echo.Map{"error": "unknown role in token"})
		}

		actor := model.Actor{
			UserID:   claims.UserID,
			TenantID: *claims.TenantID,
			Role:     role,
		}
		c.Set(actorContextKey, actor)

		log.Info("Request authenticated",
			zap.Uint("user_id", actor.UserID),
			zap.Uint("tenant_id", actor.TenantID),
			zap.String("role", string(actor.Role)))

		return next(c)
	}
}

// ActorFromContext retrieves the authenticated actor from the context
func ActorFromContext(c echo.Context) (model.Actor, bool) {
	actor, ok := c.Get(actorContextKey).(model.Actor)
	return actor, ok
}
