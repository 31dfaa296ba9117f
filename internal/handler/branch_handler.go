package handler

import (
	"net/http"
	"strconv"

	"maintenance-service/internal/model"
	"maintenance-service/internal/repository"
	"maintenance-service/internal/service"
	"maintenance-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// BranchHandler manages branches and user-branch assignments
type BranchHandler struct {
	store  repository.Store
	scopes *service.ScopeResolver
}

// NewBranchHandler creates a branch handler
func NewBranchHandler(store repository.Store, scopes *service.ScopeResolver) *BranchHandler {
	return &BranchHandler{store: store, scopes: scopes}
}

// BranchRequest defines the structure for branch creation requests
type BranchRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Create handles creating a new branch (tenant admins only)
func (h *BranchHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	if !actor.Unrestricted() {
		log.Warn("Unauthorized attempt to create branch", zap.Uint("user_id", actor.UserID))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	var req BranchRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	branch := &model.Branch{
		TenantID: actor.TenantID,
		Name:     req.Name,
		Address:  req.Address,
		Phone:    req.Phone,
		Active:   true,
	}
	if err := h.store.Branches().Create(c.Request().Context(), branch); err != nil {
		log.Error("Failed to create branch", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create branch"})
	}

	log.Info("Branch created", zap.Uint("branch_id", branch.ID), zap.String("name", branch.Name))
	return c.JSON(http.StatusCreated, branch)
}

// AssignUserRequest defines the structure for user assignment requests
type AssignUserRequest struct {
	UserID    uint   `json:"user_id"`
	Role      string `json:"role"`
	IsManager bool   `json:"is_manager"`
}

// AssignUser associates a user with a branch. The assignment invalidates
// the user's cached access scope.
func (h *BranchHandler) AssignUser(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	if !actor.Unrestricted() {
		log.Warn("Unauthorized attempt to assign user to branch", zap.Uint("user_id", actor.UserID))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	branchID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid branch ID"})
	}

	var req AssignUserRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.UserID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}

	role := model.RoleStaff
	if req.Role != "" {
		parsed, ok := model.ParseRole(req.Role)
		if !ok || parsed == model.RoleSuperAdmin || parsed == model.RoleTenantAdmin {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be manager, technician or staff"})
		}
		role = parsed
	}

	ctx := c.Request().Context()
	ok, err := h.store.Branches().BelongsToTenant(ctx, uint(branchID), actor.TenantID)
	if err != nil {
		log.Error("Failed to check branch", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to assign user"})
	}
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "branch not found"})
	}

	assignment := &model.UserBranch{
		UserID:    req.UserID,
		BranchID:  uint(branchID),
		TenantID:  actor.TenantID,
		Role:      role,
		IsManager: req.IsManager || role == model.RoleManager,
	}
	if err := h.store.Branches().AssignUser(ctx, assignment); err != nil {
		log.Error("Failed to assign user to branch", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to assign user"})
	}

	// The assignment changed the user's branch set; the cached scope must
	// not outlive it.
	h.scopes.Invalidate(req.UserID)

	log.Info("User assigned to branch",
		zap.Uint("user_id", req.UserID),
		zap.Uint64("branch_id", branchID),
		zap.String("role", string(role)))
	return c.JSON(http.StatusOK, assignment)
}

// UnassignUser removes a user's branch assignment and invalidates their
// cached access scope.
func (h *BranchHandler) UnassignUser(c echo.Context) error {
	log := logger.FromEcho(c)
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	if !actor.Unrestricted() {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	branchID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid branch ID"})
	}
	userID, err := strconv.ParseUint(c.Param("userID"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	if err := h.store.Branches().UnassignUser(c.Request().Context(), uint(userID), uint(branchID)); err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "assignment not found"})
		}
		log.Error("Failed to unassign user", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to unassign user"})
	}

	h.scopes.Invalidate(uint(userID))

	log.Info("User unassigned from branch",
		zap.Uint64("user_id", userID),
		zap.Uint64("branch_id", branchID))
	return c.JSON(http.StatusOK, echo.Map{"message": "user unassigned from branch"})
}
