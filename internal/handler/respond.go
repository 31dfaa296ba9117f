package handler

import (
	"net/http"

	"maintenance-service/internal/apperr"
	"maintenance-service/internal/middleware"
	"maintenance-service/internal/model"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// statusForKind maps application error kinds to HTTP statuses
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAccessDenied:
		return http.StatusForbidden
	case apperr.KindInvalidStateTransition, apperr.KindInsufficientStock,
		apperr.KindContractInactive, apperr.KindContractExpired:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a typed error response, preserving the error kind for
// machine consumption alongside the human message.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	kind := apperr.KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		log.Error("Request failed", zap.Error(err))
		return c.JSON(status, echo.Map{"error": "internal server error"})
	}
	log.Warn("Request rejected", zap.String("kind", string(kind)), zap.Error(err))
	return c.JSON(status, echo.Map{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

// requireActor pulls the authenticated actor set by the auth middleware
func requireActor(c echo.Context) (model.Actor, error) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		return model.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return actor, nil
}
