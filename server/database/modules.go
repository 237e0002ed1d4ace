package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const moduleColumns = "uuid, course_uuid, title, subchapters, locator_id, order_index, created_at, updated_at"

// ListModules returns the modules of a course in listing order.
func (d *DB) ListModules(ctx context.Context, courseUUID uuid.UUID) ([]Module, error) {
	var modules []Module
	if err := d.SelectContext(ctx, &modules, "SELECT "+moduleColumns+" FROM modules WHERE course_uuid = $1 ORDER BY order_index, created_at", courseUUID); err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	return modules, nil
}

func (d *DB) GetModule(ctx context.Context, courseUUID uuid.UUID, moduleUUID uuid.UUID) (*Module, error) {
	var module Module
	if err := d.GetContext(ctx, &module, "SELECT "+moduleColumns+" FROM modules WHERE course_uuid = $1 AND uuid = $2", courseUUID, moduleUUID); err != nil {
		return nil, err
	}
	return &module, nil
}

// FindModules looks modules up by uuid or locator_id.
func (d *DB) FindModules(ctx context.Context, field string, value string) ([]Module, error) {
	var column string
	switch field {
	case "uuid":
		column = "uuid"
		if _, err := uuid.Parse(value); err != nil {
			return nil, nil
		}
	case "locator_id":
		column = "locator_id"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	var modules []Module
	if err := d.SelectContext(ctx, &modules, "SELECT "+moduleColumns+" FROM modules WHERE "+column+" = $1", value); err != nil {
		return nil, fmt.Errorf("failed to find modules: %w", err)
	}
	return modules, nil
}

func (d *DB) CreateModule(ctx context.Context, module Module) (*Module, error) {
	now := d.now()
	module.UUID = uuid.New()
	module.CreatedAt = now
	module.UpdatedAt = now
	if module.Subchapters == nil {
		module.Subchapters = Subchapters{}
	}
	if _, err := d.ExecContext(ctx, "INSERT INTO modules ("+moduleColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		module.UUID,
		module.CourseUUID,
		module.Title,
		module.Subchapters,
		module.LocatorID,
		module.Order,
		module.CreatedAt,
		module.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateLocator
		}
		return nil, fmt.Errorf("failed to create module: %w", err)
	}
	return &module, nil
}

// SaveModule writes all mutable fields of an existing module.
func (d *DB) SaveModule(ctx context.Context, module Module) (*Module, error) {
	module.UpdatedAt = d.now()
	res, err := d.ExecContext(ctx, "UPDATE modules SET title = $1, subchapters = $2, locator_id = $3, order_index = $4, updated_at = $5 WHERE uuid = $6 AND course_uuid = $7",
		module.Title,
		module.Subchapters,
		module.LocatorID,
		module.Order,
		module.UpdatedAt,
		module.UUID,
		module.CourseUUID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateLocator
		}
		return nil, fmt.Errorf("failed to update module: %w", err)
	}
	if err = mustAffect(res); err != nil {
		return nil, err
	}
	return &module, nil
}

func (d *DB) UpdateModule(ctx context.Context, courseUUID uuid.UUID, moduleUUID uuid.UUID, update ModuleUpdate) (*Module, error) {
	module, err := d.GetModule(ctx, courseUUID, moduleUUID)
	if err != nil {
		return nil, err
	}
	if update.Title != nil {
		module.Title = *update.Title
	}
	if update.Subchapters != nil {
		module.Subchapters = *update.Subchapters
	}
	if update.LocatorID != nil {
		module.LocatorID = *update.LocatorID
	}
	if update.Order != nil {
		module.Order = *update.Order
	}
	return d.SaveModule(ctx, *module)
}

func (d *DB) DeleteModule(ctx context.Context, courseUUID uuid.UUID, moduleUUID uuid.UUID) error {
	res, err := d.ExecContext(ctx, "DELETE FROM modules WHERE course_uuid = $1 AND uuid = $2", courseUUID, moduleUUID)
	if err != nil {
		return fmt.Errorf("failed to delete module: %w", err)
	}
	return mustAffect(res)
}
