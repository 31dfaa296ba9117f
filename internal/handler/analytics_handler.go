package handler

import (
	"net/http"
	"time"

	"maintenance-service/internal/service"
	"maintenance-service/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AnalyticsHandler exposes read-only maintenance rollups
type AnalyticsHandler struct {
	analytics *service.AnalyticsAggregator
}

// NewAnalyticsHandler creates an analytics handler
func NewAnalyticsHandler(analytics *service.AnalyticsAggregator) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// ContractHealth handles the contract health report
func (h *AnalyticsHandler) ContractHealth(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	report, err := h.analytics.ContractHealthReport(c.Request().Context(), actor)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, report)
}

// SLA handles the visit service-level report over ?from=&to= (YYYY-MM-DD).
// Defaults to the trailing 30 days.
func (h *AnalyticsHandler) SLA(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if raw := c.QueryParam("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "from must be YYYY-MM-DD"})
		}
		from = parsed
	}
	if raw := c.QueryParam("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "to must be YYYY-MM-DD"})
		}
		to = parsed
	}
	if to.Before(from) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "to must not precede from"})
	}

	report, err := h.analytics.SLAReport(c.Request().Context(), actor, from, to)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, report)
}

// Technicians handles the per-technician performance report
func (h *AnalyticsHandler) Technicians(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	report, err := h.analytics.TechnicianReport(c.Request().Context(), actor)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, report)
}
