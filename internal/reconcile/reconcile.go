// Package reconcile mirrors the chapter structure of an upstream course into local modules.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ccxcon/ccxcon/internal/edx"
	"github.com/ccxcon/ccxcon/server/database"
)

var ErrMissingBlock = errors.New("block referenced but not present in tree")

// Store is the module persistence the reconciler needs.
// Implementations are expected to notify subscribers on every write.
type Store interface {
	ListModules(ctx context.Context, courseUUID uuid.UUID) ([]database.Module, error)
	DeleteModule(ctx context.Context, module database.Module) error
	CreateModule(ctx context.Context, module database.Module) (*database.Module, error)
	SaveModule(ctx context.Context, module database.Module) (*database.Module, error)
}

type Result struct {
	Created   int
	Updated   int
	Unchanged int
	Deleted   int
}

func (r Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("created", r.Created),
		slog.Int("updated", r.Updated),
		slog.Int("unchanged", r.Unchanged),
		slog.Int("deleted", r.Deleted),
	)
}

func New(store Store) *Reconciler {
	return &Reconciler{store: store}
}

type Reconciler struct {
	store Store
}

type chapter struct {
	block edx.Block
	order int
}

// Reconcile makes the modules of course match the visible chapters of tree.
// Chapters are the direct children of the root block. A chapter's position in the
// root's children list is its order, hidden chapters still take up a position.
// Stale modules are removed before anything is written.
func (r *Reconciler) Reconcile(ctx context.Context, course database.Course, tree edx.BlockTree) (Result, error) {
	var result Result

	root, ok := tree.Blocks[tree.Root]
	if !ok {
		return result, fmt.Errorf("%w: root %q", ErrMissingBlock, tree.Root)
	}

	var (
		visible    []chapter
		visibleIDs = make(map[string]struct{}, len(root.Children))
	)
	for i, id := range root.Children {
		block, ok := tree.Blocks[id]
		if !ok {
			return result, fmt.Errorf("%w: chapter %q", ErrMissingBlock, id)
		}
		if block.VisibleToStaffOnly {
			continue
		}
		if _, ok = visibleIDs[id]; ok {
			continue
		}
		visibleIDs[id] = struct{}{}
		visible = append(visible, chapter{block: block, order: i})
	}

	subchapters := make(map[string]database.Subchapters, len(visible))
	for _, ch := range visible {
		names := make(database.Subchapters, 0, len(ch.block.Children))
		for _, childID := range ch.block.Children {
			child, ok := tree.Blocks[childID]
			if !ok {
				return result, fmt.Errorf("%w: child %q of %q", ErrMissingBlock, childID, ch.block.ID)
			}
			names = append(names, child.DisplayName)
		}
		subchapters[ch.block.ID] = names
	}

	existing, err := r.store.ListModules(ctx, course.UUID)
	if err != nil {
		return result, fmt.Errorf("failed to list modules: %w", err)
	}

	byLocator := make(map[string]database.Module, len(existing))
	for _, module := range existing {
		if _, ok = visibleIDs[module.LocatorID]; !ok {
			if err = r.store.DeleteModule(ctx, module); err != nil {
				return result, fmt.Errorf("failed to delete module %s: %w", module.UUID, err)
			}
			result.Deleted++
			continue
		}
		byLocator[module.LocatorID] = module
	}

	for _, ch := range visible {
		module, found := byLocator[ch.block.ID]
		if !found {
			if _, err = r.store.CreateModule(ctx, database.Module{
				CourseUUID:  course.UUID,
				Title:       ch.block.DisplayName,
				Subchapters: subchapters[ch.block.ID],
				LocatorID:   ch.block.ID,
				Order:       ch.order,
			}); err != nil {
				return result, fmt.Errorf("failed to create module %q: %w", ch.block.ID, err)
			}
			result.Created++
			continue
		}

		if module.Title == ch.block.DisplayName && module.Order == ch.order && module.Subchapters.Equal(subchapters[ch.block.ID]) {
			result.Unchanged++
			continue
		}
		module.Title = ch.block.DisplayName
		module.Order = ch.order
		module.Subchapters = subchapters[ch.block.ID]
		if _, err = r.store.SaveModule(ctx, module); err != nil {
			return result, fmt.Errorf("failed to save module %q: %w", ch.block.ID, err)
		}
		result.Updated++
	}

	return result, nil
}
