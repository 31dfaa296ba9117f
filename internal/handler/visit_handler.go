package handler

import (
	"net/http"
	"strconv"
	"time"

	"maintenance-service/internal/model"
	"maintenance-service/internal/service"
	"maintenance-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// VisitHandler exposes visit scheduling and execution operations
type VisitHandler struct {
	scheduling *service.SchedulingEngine
	execution  *service.ExecutionEngine
}

// NewVisitHandler creates a visit handler
func NewVisitHandler(scheduling *service.SchedulingEngine, execution *service.ExecutionEngine) *VisitHandler {
	return &VisitHandler{scheduling: scheduling, execution: execution}
}

// Upcoming handles listing scheduled/rescheduled visits within the next N days
func (h *VisitHandler) Upcoming(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	days := 7
	if raw := c.QueryParam("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "days must be a positive integer"})
		}
		days = parsed
	}

	visits, err := h.scheduling.UpcomingVisits(c.Request().Context(), actor, days)
	if err != nil {
		return respondError(c, log, err)
	}
	log.Info("Upcoming visits retrieved", zap.Int("count", len(visits)), zap.Int("days", days))
	return c.JSON(http.StatusOK, visits)
}

// Overdue handles listing still-scheduled visits dated before today
func (h *VisitHandler) Overdue(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	visits, err := h.scheduling.OverdueVisits(c.Request().Context(), actor)
	if err != nil {
		return respondError(c, log, err)
	}
	log.Info("Overdue visits retrieved", zap.Int("count", len(visits)))
	return c.JSON(http.StatusOK, visits)
}

// Get handles retrieving a single visit
func (h *VisitHandler) Get(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	visit, err := h.scheduling.GetVisit(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, visit)
}

// Start handles transitioning a visit to in_progress
func (h *VisitHandler) Start(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		TechnicianID uint `json:"technician_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}
	// Technicians starting their own visit may omit the field.
	if req.TechnicianID == 0 {
		req.TechnicianID = actor.UserID
	}

	visit, err := h.execution.StartVisit(c.Request().Context(), actor, id, req.TechnicianID)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, visit)
}

// Complete handles finishing an in_progress visit with parts consumption
func (h *VisitHandler) Complete(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req service.CompleteVisitInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	result, err := h.execution.CompleteVisit(c.Request().Context(), actor, id, req)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Reschedule handles moving a visit to a new date
func (h *VisitHandler) Reschedule(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		ScheduledDate time.Time `json:"scheduled_date"`
		ScheduledTime string    `json:"scheduled_time"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	visit, err := h.scheduling.RescheduleVisit(c.Request().Context(), actor, id, req.ScheduledDate, req.ScheduledTime)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, visit)
}

// UpdateStatus is the generic transition entry point (cancel, fail, etc.)
func (h *VisitHandler) UpdateStatus(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	visit, err := h.execution.UpdateVisitStatus(c.Request().Context(), actor, id, model.VisitStatus(req.Status))
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, visit)
}

// MarkMissed runs the missed-visit sweep (admin-triggered; also runs on the
// internal ticker when configured).
func (h *VisitHandler) MarkMissed(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	if !actor.Unrestricted() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	// Request-triggered sweeps stay inside the caller's tenant; only the
	// background ticker runs globally.
	count, err := h.scheduling.MarkOverdueVisitsAsMissed(c.Request().Context(), actor.TenantID)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"missed": count})
}
