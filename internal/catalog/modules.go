package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/ccxcon/ccxcon/server/database"
)

func (s *Service) ListModules(ctx context.Context, courseUUID uuid.UUID) ([]database.Module, error) {
	if _, err := s.GetCourse(ctx, courseUUID); err != nil {
		return nil, err
	}
	return s.db.ListModules(ctx, courseUUID)
}

func (s *Service) GetModule(ctx context.Context, courseUUID uuid.UUID, moduleUUID uuid.UUID) (*database.Module, error) {
	module, err := s.db.GetModule(ctx, courseUUID, moduleUUID)
	if database.IsNotFound(err) {
		return nil, ErrModuleNotFound
	}
	return module, err
}

func (s *Service) CreateModule(ctx context.Context, module database.Module) (*database.Module, error) {
	if _, err := s.GetCourse(ctx, module.CourseUUID); err != nil {
		return nil, err
	}
	return s.Modules().CreateModule(ctx, module)
}

func (s *Service) UpdateModule(ctx context.Context, courseUUID uuid.UUID, moduleUUID uuid.UUID, update database.ModuleUpdate) (*database.Module, error) {
	module, err := s.db.UpdateModule(ctx, courseUUID, moduleUUID, update)
	if database.IsNotFound(err) {
		return nil, ErrModuleNotFound
	}
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, EntityModule, module.UUID)
	return module, nil
}

func (s *Service) DeleteModule(ctx context.Context, courseUUID uuid.UUID, moduleUUID uuid.UUID) error {
	err := s.db.DeleteModule(ctx, courseUUID, moduleUUID)
	if database.IsNotFound(err) {
		return ErrModuleNotFound
	}
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, EntityModule, moduleUUID)
	return nil
}

// Modules returns the module store used by the reconciler.
func (s *Service) Modules() *ModuleStore {
	return &ModuleStore{db: s.db, notifier: s.notifier}
}

// ModuleStore persists reconciled modules and notifies about each write.
type ModuleStore struct {
	db       *database.DB
	notifier Notifier
}

func (m *ModuleStore) ListModules(ctx context.Context, courseUUID uuid.UUID) ([]database.Module, error) {
	return m.db.ListModules(ctx, courseUUID)
}

func (m *ModuleStore) DeleteModule(ctx context.Context, module database.Module) error {
	if err := m.db.DeleteModule(ctx, module.CourseUUID, module.UUID); err != nil {
		return err
	}
	m.notifier.Notify(ctx, EntityModule, module.UUID)
	return nil
}

func (m *ModuleStore) CreateModule(ctx context.Context, module database.Module) (*database.Module, error) {
	created, err := m.db.CreateModule(ctx, module)
	if err != nil {
		return nil, err
	}
	m.notifier.Notify(ctx, EntityModule, created.UUID)
	return created, nil
}

func (m *ModuleStore) SaveModule(ctx context.Context, module database.Module) (*database.Module, error) {
	saved, err := m.db.SaveModule(ctx, module)
	if err != nil {
		return nil, err
	}
	m.notifier.Notify(ctx, EntityModule, saved.UUID)
	return saved, nil
}
