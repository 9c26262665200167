package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rating-flow-api/internal/models"
)

// DirectoryRepository provides read/write access to departments and units.
type DirectoryRepository struct {
	db *sqlx.DB
}

// NewDirectoryRepository creates a new directory repository.
func NewDirectoryRepository(db *sqlx.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// ListUnits returns all units ordered by name.
func (r *DirectoryRepository) ListUnits(ctx context.Context) ([]models.Unit, error) {
	const query = `SELECT id, name, created_at, updated_at FROM units ORDER BY name ASC`
	var units []models.Unit
	if err := r.db.SelectContext(ctx, &units, query); err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return units, nil
}

// FindUnitByID returns a single unit.
func (r *DirectoryRepository) FindUnitByID(ctx context.Context, id string) (*models.Unit, error) {
	const query = `SELECT id, name, created_at, updated_at FROM units WHERE id = $1 LIMIT 1`
	var unit models.Unit
	if err := r.db.GetContext(ctx, &unit, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find unit: %w", err)
	}
	return &unit, nil
}

// CreateUnit inserts a new unit.
func (r *DirectoryRepository) CreateUnit(ctx context.Context, unit *models.Unit) error {
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = now
	}
	unit.UpdatedAt = now
	const query = `INSERT INTO units (id, name, created_at, updated_at) VALUES (:id, :name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, unit); err != nil {
		return fmt.Errorf("create unit: %w", err)
	}
	return nil
}

// ListDepartments returns departments, optionally scoped to a unit.
func (r *DirectoryRepository) ListDepartments(ctx context.Context, unitID string) ([]models.Department, error) {
	query := `SELECT id, name, unit_id, created_at, updated_at FROM departments`
	var args []interface{}
	if unitID != "" {
		query += ` WHERE unit_id = $1`
		args = append(args, unitID)
	}
	query += ` ORDER BY name ASC`
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query, args...); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// FindDepartmentByID returns a single department.
func (r *DirectoryRepository) FindDepartmentByID(ctx context.Context, id string) (*models.Department, error) {
	const query = `SELECT id, name, unit_id, created_at, updated_at FROM departments WHERE id = $1 LIMIT 1`
	var department models.Department
	if err := r.db.GetContext(ctx, &department, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find department: %w", err)
	}
	return &department, nil
}

// CreateDepartment inserts a new department.
func (r *DirectoryRepository) CreateDepartment(ctx context.Context, department *models.Department) error {
	if department.ID == "" {
		department.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if department.CreatedAt.IsZero() {
		department.CreatedAt = now
	}
	department.UpdatedAt = now
	const query = `INSERT INTO departments (id, name, unit_id, created_at, updated_at) VALUES (:id, :name, :unit_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, department); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}
