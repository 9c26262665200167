package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rating-flow-api/internal/service"
	appErrors "github.com/noah-isme/rating-flow-api/pkg/errors"
	"github.com/noah-isme/rating-flow-api/pkg/response"
)

// DirectoryHandler serves the organisational directory endpoints.
type DirectoryHandler struct {
	service *service.DirectoryService
}

// NewDirectoryHandler creates a new directory handler.
func NewDirectoryHandler(svc *service.DirectoryService) *DirectoryHandler {
	return &DirectoryHandler{service: svc}
}

// ListUnits godoc
// @Summary List units
// @Description List all organisational units
// @Tags Directory
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /units [get]
func (h *DirectoryHandler) ListUnits(c *gin.Context) {
	units, err := h.service.ListUnits(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, units, nil)
}

// ListDepartments godoc
// @Summary List departments
// @Description List departments, optionally filtered by unit
// @Tags Directory
// @Produce json
// @Param unit_id query string false "Unit filter"
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *DirectoryHandler) ListDepartments(c *gin.Context) {
	departments, err := h.service.ListDepartments(c.Request.Context(), c.Query("unit_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, departments, nil)
}

// CreateUnit godoc
// @Summary Create unit
// @Description Create a new organisational unit
// @Tags Directory
// @Accept json
// @Produce json
// @Param payload body service.CreateUnitRequest true "Unit payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /units [post]
func (h *DirectoryHandler) CreateUnit(c *gin.Context) {
	var req service.CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid unit payload"))
		return
	}

	unit, err := h.service.CreateUnit(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, unit)
}

// CreateDepartment godoc
// @Summary Create department
// @Description Create a new department under a unit
// @Tags Directory
// @Accept json
// @Produce json
// @Param payload body service.CreateDepartmentRequest true "Department payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /departments [post]
func (h *DirectoryHandler) CreateDepartment(c *gin.Context) {
	var req service.CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid department payload"))
		return
	}

	department, err := h.service.CreateDepartment(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, department)
}
