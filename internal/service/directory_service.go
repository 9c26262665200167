package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/rating-flow-api/internal/models"
	appErrors "github.com/noah-isme/rating-flow-api/pkg/errors"
)

type directoryRepository interface {
	ListUnits(ctx context.Context) ([]models.Unit, error)
	FindUnitByID(ctx context.Context, id string) (*models.Unit, error)
	CreateUnit(ctx context.Context, unit *models.Unit) error
	ListDepartments(ctx context.Context, unitID string) ([]models.Department, error)
	FindDepartmentByID(ctx context.Context, id string) (*models.Department, error)
	CreateDepartment(ctx context.Context, department *models.Department) error
}

// CreateUnitRequest payload for registering an organizational unit.
type CreateUnitRequest struct {
	Name string `json:"name" validate:"required"`
}

// CreateDepartmentRequest payload for registering a department under a unit.
type CreateDepartmentRequest struct {
	Name   string `json:"name" validate:"required"`
	UnitID string `json:"unit_id" validate:"required"`
}

// DirectoryService exposes the organizational structure used for reviewer
// scoping.
type DirectoryService struct {
	repo      directoryRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDirectoryService creates a DirectoryService.
func NewDirectoryService(repo directoryRepository, validate *validator.Validate, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &DirectoryService{repo: repo, validator: validate, logger: logger}
}

// ListUnits returns all units.
func (s *DirectoryService) ListUnits(ctx context.Context) ([]models.Unit, error) {
	units, err := s.repo.ListUnits(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list units")
	}
	return units, nil
}

// ListDepartments returns departments, optionally scoped to one unit.
func (s *DirectoryService) ListDepartments(ctx context.Context, unitID string) ([]models.Department, error) {
	departments, err := s.repo.ListDepartments(ctx, unitID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	return departments, nil
}

// CreateUnit registers a new unit. Admin only.
func (s *DirectoryService) CreateUnit(ctx context.Context, actor *models.JWTClaims, req CreateUnitRequest) (*models.Unit, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins manage the directory")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unit payload")
	}

	unit := &models.Unit{Name: strings.TrimSpace(req.Name)}
	if err := s.repo.CreateUnit(ctx, unit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create unit")
	}
	return unit, nil
}

// CreateDepartment registers a department under an existing unit. Admin only.
func (s *DirectoryService) CreateDepartment(ctx context.Context, actor *models.JWTClaims, req CreateDepartmentRequest) (*models.Department, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins manage the directory")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	if _, err := s.repo.FindUnitByID(ctx, req.UnitID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unit does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve unit")
	}

	department := &models.Department{Name: strings.TrimSpace(req.Name), UnitID: req.UnitID}
	if err := s.repo.CreateDepartment(ctx, department); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}
	return department, nil
}
