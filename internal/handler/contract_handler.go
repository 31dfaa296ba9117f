package handler

import (
	"net/http"
	"strconv"
	"time"

	"maintenance-service/internal/service"
	"maintenance-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ContractHandler exposes maintenance contract operations
type ContractHandler struct {
	contracts  *service.ContractService
	scheduling *service.SchedulingEngine
}

// NewContractHandler creates a contract handler
func NewContractHandler(contracts *service.ContractService, scheduling *service.SchedulingEngine) *ContractHandler {
	return &ContractHandler{contracts: contracts, scheduling: scheduling}
}

func parseID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

// Create handles creating a new maintenance contract
func (h *ContractHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	var req service.CreateContractInput
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	result, err := h.contracts.Create(c.Request().Context(), actor, req)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusCreated, result)
}

// List handles listing contracts visible to the caller
func (h *ContractHandler) List(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	contracts, err := h.contracts.List(c.Request().Context(), actor, c.QueryParam("status"))
	if err != nil {
		return respondError(c, log, err)
	}
	log.Info("Contracts retrieved", zap.Int("count", len(contracts)))
	return c.JSON(http.StatusOK, contracts)
}

// Get handles retrieving a single contract with its visit history
func (h *ContractHandler) Get(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	contract, visits, err := h.contracts.Get(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"contract": contract,
		"visits":   visits,
	})
}

// UpdateStatus handles contract lifecycle transitions
func (h *ContractHandler) UpdateStatus(c echo.Context) error {
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

	contract, err := h.contracts.UpdateStatus(c.Request().Context(), actor, id, req.Status)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, contract)
}

// Renew handles extending a contract to a new end date
func (h *ContractHandler) Renew(c echo.Context) error {
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
		EndDate        time.Time `json:"end_date"`
		GenerateVisits bool      `json:"generate_visits"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	result, err := h.contracts.Renew(c.Request().Context(), actor, id, req.EndDate, req.GenerateVisits)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GenerateVisits handles expanding a contract's frequency into visits
func (h *ContractHandler) GenerateVisits(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	summary, err := h.scheduling.GenerateScheduledVisits(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// CancelFutureVisits handles bulk-cancelling a contract's future scheduled visits
func (h *ContractHandler) CancelFutureVisits(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	count, err := h.scheduling.CancelFutureVisits(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"cancelled": count})
}
