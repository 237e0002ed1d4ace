package reconcile

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccxcon/ccxcon/internal/edx"
	"github.com/ccxcon/ccxcon/server/database"
)

type memoryStore struct {
	modules map[uuid.UUID]database.Module
	ops     []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{modules: map[uuid.UUID]database.Module{}}
}

func (s *memoryStore) ListModules(_ context.Context, courseUUID uuid.UUID) ([]database.Module, error) {
	var modules []database.Module
	for _, m := range s.modules {
		if m.CourseUUID == courseUUID {
			modules = append(modules, m)
		}
	}
	sort.Slice(modules, func(i, j int) bool {
		return modules[i].Order < modules[j].Order
	})
	return modules, nil
}

func (s *memoryStore) DeleteModule(_ context.Context, module database.Module) error {
	s.ops = append(s.ops, "delete:"+module.LocatorID)
	delete(s.modules, module.UUID)
	return nil
}

func (s *memoryStore) CreateModule(_ context.Context, module database.Module) (*database.Module, error) {
	s.ops = append(s.ops, "create:"+module.LocatorID)
	module.UUID = uuid.New()
	s.modules[module.UUID] = module
	return &module, nil
}

func (s *memoryStore) SaveModule(_ context.Context, module database.Module) (*database.Module, error) {
	s.ops = append(s.ops, "save:"+module.LocatorID)
	s.modules[module.UUID] = module
	return &module, nil
}

func (s *memoryStore) byLocator(locatorID string) (database.Module, bool) {
	for _, m := range s.modules {
		if m.LocatorID == locatorID {
			return m, true
		}
	}
	return database.Module{}, false
}

func introSecretTree() edx.BlockTree {
	return edx.BlockTree{
		Root: "R",
		Blocks: map[string]edx.Block{
			"R":  {ID: "R", Type: "course", DisplayName: "Course", Children: []string{"A", "B"}},
			"A":  {ID: "A", Type: "chapter", DisplayName: "Intro", Children: []string{"A1", "A2"}},
			"B":  {ID: "B", Type: "chapter", DisplayName: "Secret", Children: []string{}, VisibleToStaffOnly: true},
			"A1": {ID: "A1", Type: "sequential", DisplayName: "Welcome"},
			"A2": {ID: "A2", Type: "sequential", DisplayName: "Setup"},
		},
	}
}

func TestReconcileVisibleChapters(t *testing.T) {
	store := newMemoryStore()
	course := database.Course{UUID: uuid.New()}
	other := database.Course{UUID: uuid.New()}
	foreign, _ := store.CreateModule(context.Background(), database.Module{CourseUUID: other.UUID, LocatorID: "A", Title: "Other"})

	result, err := New(store).Reconcile(context.Background(), course, introSecretTree())
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 1}, result)

	modules, err := store.ListModules(context.Background(), course.UUID)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "A", modules[0].LocatorID)
	assert.Equal(t, "Intro", modules[0].Title)
	assert.Equal(t, 0, modules[0].Order)
	assert.Equal(t, database.Subchapters{"Welcome", "Setup"}, modules[0].Subchapters)

	_, ok := store.modules[foreign.UUID]
	assert.True(t, ok, "modules of other courses are untouched")
}

func TestReconcileIdempotent(t *testing.T) {
	store := newMemoryStore()
	course := database.Course{UUID: uuid.New()}
	reconciler := New(store)

	_, err := reconciler.Reconcile(context.Background(), course, introSecretTree())
	require.NoError(t, err)
	before, _ := store.ListModules(context.Background(), course.UUID)
	store.ops = nil

	result, err := reconciler.Reconcile(context.Background(), course, introSecretTree())
	require.NoError(t, err)
	assert.Equal(t, Result{Unchanged: 1}, result)
	assert.Empty(t, store.ops)

	after, _ := store.ListModules(context.Background(), course.UUID)
	assert.Equal(t, before, after)
}

func TestReconcileOrderAndDeletion(t *testing.T) {
	store := newMemoryStore()
	course := database.Course{UUID: uuid.New()}
	ctx := context.Background()

	stale, _ := store.CreateModule(ctx, database.Module{CourseUUID: course.UUID, LocatorID: "gone", Title: "Gone", Order: 0})
	kept, _ := store.CreateModule(ctx, database.Module{CourseUUID: course.UUID, LocatorID: "C", Title: "Old title", Order: 7})
	store.ops = nil

	tree := edx.BlockTree{
		Root: "R",
		Blocks: map[string]edx.Block{
			"R": {ID: "R", Children: []string{"H", "C", "D"}},
			"H": {ID: "H", DisplayName: "Hidden", VisibleToStaffOnly: true},
			"C": {ID: "C", DisplayName: "Chapter C"},
			"D": {ID: "D", DisplayName: "Chapter D"},
		},
	}
	result, err := New(store).Reconcile(ctx, course, tree)
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 1, Updated: 1, Deleted: 1}, result)
	assert.Equal(t, []string{"delete:gone", "save:C", "create:D"}, store.ops)

	_, ok := store.modules[stale.UUID]
	assert.False(t, ok)

	c, ok := store.byLocator("C")
	require.True(t, ok)
	assert.Equal(t, kept.UUID, c.UUID, "existing modules keep their identity")
	assert.Equal(t, "Chapter C", c.Title)
	assert.Equal(t, 1, c.Order)
	assert.Equal(t, database.Subchapters{}, c.Subchapters)

	d, ok := store.byLocator("D")
	require.True(t, ok)
	assert.Equal(t, 2, d.Order)
	_, ok = store.byLocator("H")
	assert.False(t, ok)
}

func TestReconcileNoVisibleChapters(t *testing.T) {
	store := newMemoryStore()
	course := database.Course{UUID: uuid.New()}
	ctx := context.Background()
	_, _ = store.CreateModule(ctx, database.Module{CourseUUID: course.UUID, LocatorID: "A"})
	_, _ = store.CreateModule(ctx, database.Module{CourseUUID: course.UUID, LocatorID: "B"})

	tree := edx.BlockTree{
		Root: "R",
		Blocks: map[string]edx.Block{
			"R": {ID: "R", Children: []string{"A"}},
			"A": {ID: "A", VisibleToStaffOnly: true},
		},
	}
	result, err := New(store).Reconcile(ctx, course, tree)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)

	modules, _ := store.ListModules(ctx, course.UUID)
	assert.Empty(t, modules)
}

func TestReconcileMissingBlock(t *testing.T) {
	tests := []struct {
		name string
		tree edx.BlockTree
	}{
		{
			name: "missing root",
			tree: edx.BlockTree{Root: "R", Blocks: map[string]edx.Block{}},
		},
		{
			name: "missing chapter",
			tree: edx.BlockTree{Root: "R", Blocks: map[string]edx.Block{
				"R": {ID: "R", Children: []string{"A"}},
			}},
		},
		{
			name: "missing subchapter",
			tree: edx.BlockTree{Root: "R", Blocks: map[string]edx.Block{
				"R": {ID: "R", Children: []string{"A"}},
				"A": {ID: "A", Children: []string{"A1"}},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			course := database.Course{UUID: uuid.New()}
			_, _ = store.CreateModule(context.Background(), database.Module{CourseUUID: course.UUID, LocatorID: "old"})
			store.ops = nil

			_, err := New(store).Reconcile(context.Background(), course, tt.tree)
			assert.ErrorIs(t, err, ErrMissingBlock)
			assert.Empty(t, store.ops, "nothing is written for a broken tree")
		})
	}
}
