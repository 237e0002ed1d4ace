package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), Config{Type: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func newTestInstance(t *testing.T, db *DB) *BackingInstance {
	t.Helper()
	instance, err := db.CreateInstance(context.Background(), BackingInstance{
		InstanceURL:       "https://edx.example.com",
		OAuthClientID:     "client",
		OAuthClientSecret: "secret",
		Username:          "staff",
		GrantToken:        "grant",
	})
	require.NoError(t, err)
	return instance
}

func newTestCourse(t *testing.T, db *DB, instance *BackingInstance, courseID string) *Course {
	t.Helper()
	course, created, err := db.UpsertCourse(context.Background(), Course{
		CourseID:      courseID,
		Title:         "Course " + courseID,
		ImageURL:      "https://img.example.com/" + courseID + ".png",
		EdxInstanceID: instance.ID,
	})
	require.NoError(t, err)
	require.True(t, created)
	return course
}

func TestBackingInstanceIsExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name       string
		expiration *time.Time
		expired    bool
	}{
		{name: "never issued", expiration: nil, expired: true},
		{name: "in the past", expiration: at(-time.Minute), expired: true},
		{name: "within lookahead", expiration: at(time.Hour), expired: true},
		{name: "exactly at lookahead", expiration: at(2 * time.Hour), expired: true},
		{name: "beyond lookahead", expiration: at(3 * time.Hour), expired: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instance := BackingInstance{AccessTokenExpiration: tt.expiration}
			assert.Equal(t, tt.expired, instance.IsExpired(now))
		})
	}
}

func TestInstances(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	instance := newTestInstance(t, db)

	byURL, err := db.GetInstanceByURL(ctx, "https://edx.example.com")
	require.NoError(t, err)
	assert.Equal(t, instance.ID, byURL.ID)
	assert.Nil(t, byURL.AccessTokenExpiration)

	expiration := time.Now().Add(10 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, db.UpdateInstanceTokens(ctx, instance.ID, "access", "refresh", expiration))

	updated, err := db.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "access", updated.AccessToken)
	assert.Equal(t, "refresh", updated.RefreshToken)
	require.NotNil(t, updated.AccessTokenExpiration)
	assert.True(t, expiration.Equal(*updated.AccessTokenExpiration))

	err = db.UpdateInstanceTokens(ctx, uuid.New(), "a", "b", expiration)
	assert.True(t, IsNotFound(err))

	instances, err := db.ListInstances(ctx)
	require.NoError(t, err)
	assert.Len(t, instances, 1)
}

func TestUpsertCourse(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	instance := newTestInstance(t, db)

	course, created, err := db.UpsertCourse(ctx, Course{
		CourseID:      "course-v1:MITx+6.002x+2024",
		Title:         "Circuits",
		ImageURL:      "https://img.example.com/c.png",
		EdxInstanceID: instance.ID,
		Instructors:   []string{"bob", "alice", "bob"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "https://edx.example.com", course.EdxInstanceURL)
	assert.Equal(t, []string{"alice", "bob"}, course.Instructors)
	assert.EqualValues(t, 1, course.SyncGeneration)

	exists, err := db.AuthorExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	again, created, err := db.UpsertCourse(ctx, Course{
		CourseID:      "course-v1:MITx+6.002x+2024",
		Title:         "Circuits and Electronics",
		ImageURL:      "https://img.example.com/c.png",
		EdxInstanceID: instance.ID,
		Instructors:   []string{"carol"},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, course.UUID, again.UUID)
	assert.Equal(t, "Circuits and Electronics", again.Title)
	assert.Equal(t, []string{"carol"}, again.Instructors)
	assert.EqualValues(t, 2, again.SyncGeneration)

	courses, err := db.ListCourses(ctx)
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, []string{"carol"}, courses[0].Instructors)
}

func TestUpdateCourse(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	course := newTestCourse(t, db, newTestInstance(t, db), "c1")

	title := "Renamed"
	live := true
	updated, err := db.UpdateCourse(ctx, course.UUID, CourseUpdate{Title: &title, Live: &live})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.True(t, updated.Live)
	assert.Equal(t, course.ImageURL, updated.ImageURL)
	assert.Equal(t, course.SyncGeneration+1, updated.SyncGeneration)

	generation, err := db.NextSyncGeneration(ctx, course.UUID)
	require.NoError(t, err)
	assert.Equal(t, updated.SyncGeneration+1, generation)

	_, err = db.UpdateCourse(ctx, uuid.New(), CourseUpdate{Title: &title})
	assert.True(t, IsNotFound(err))
}

func TestFindCourses(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	course := newTestCourse(t, db, newTestInstance(t, db), "c1")

	found, err := db.FindCourses(ctx, "uuid", course.UUID.String())
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = db.FindCourses(ctx, "course_id", "c1")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = db.FindCourses(ctx, "uuid", "not-a-uuid")
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = db.FindCourses(ctx, "asdf", "c1")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestModules(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	course := newTestCourse(t, db, newTestInstance(t, db), "c1")

	second, err := db.CreateModule(ctx, Module{CourseUUID: course.UUID, Title: "Second", LocatorID: "b", Order: 5, Subchapters: Subchapters{"x", "y"}})
	require.NoError(t, err)
	first, err := db.CreateModule(ctx, Module{CourseUUID: course.UUID, Title: "First", LocatorID: "a", Order: 1})
	require.NoError(t, err)

	modules, err := db.ListModules(ctx, course.UUID)
	require.NoError(t, err)
	require.Len(t, modules, 2)
	assert.Equal(t, first.UUID, modules[0].UUID)
	assert.Equal(t, Subchapters{}, modules[0].Subchapters)
	assert.Equal(t, second.UUID, modules[1].UUID)
	assert.Equal(t, Subchapters{"x", "y"}, modules[1].Subchapters)

	_, err = db.CreateModule(ctx, Module{CourseUUID: course.UUID, Title: "Dup", LocatorID: "a"})
	assert.ErrorIs(t, err, ErrDuplicateLocator)

	taken := "a"
	_, err = db.UpdateModule(ctx, course.UUID, second.UUID, ModuleUpdate{LocatorID: &taken})
	assert.ErrorIs(t, err, ErrDuplicateLocator)

	instance, err := db.GetInstance(ctx, course.EdxInstanceID)
	require.NoError(t, err)
	other := newTestCourse(t, db, instance, "c2")
	_, err = db.CreateModule(ctx, Module{CourseUUID: other.UUID, Title: "Elsewhere", LocatorID: "a"})
	require.NoError(t, err, "locator ids are unique per course only")
	_, err = db.DeleteCourse(ctx, other.UUID)
	require.NoError(t, err)

	title := "First!"
	updated, err := db.UpdateModule(ctx, course.UUID, first.UUID, ModuleUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "First!", updated.Title)
	assert.Equal(t, "a", updated.LocatorID)

	found, err := db.FindModules(ctx, "locator_id", "b")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, second.UUID, found[0].UUID)

	_, err = db.FindModules(ctx, "nope", "b")
	assert.ErrorIs(t, err, ErrUnknownField)

	require.NoError(t, db.DeleteModule(ctx, course.UUID, second.UUID))
	assert.True(t, IsNotFound(db.DeleteModule(ctx, course.UUID, second.UUID)))

	deleted, err := db.DeleteCourse(ctx, course.UUID)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, first.UUID, deleted[0].UUID)

	found, err = db.FindModules(ctx, "uuid", first.UUID.String())
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestWebhooks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	enabled, err := db.CreateWebhook(ctx, "https://hooks.example.com/a", true)
	require.NoError(t, err)
	assert.Len(t, enabled.Secret, 32)

	disabled, err := db.CreateWebhook(ctx, "https://hooks.example.com/b", false)
	require.NoError(t, err)
	assert.NotEqual(t, enabled.Secret, disabled.Secret)

	hooks, err := db.ListEnabledWebhooks(ctx)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, enabled.ID, hooks[0].ID)

	on := true
	updated, err := db.UpdateWebhook(ctx, disabled.ID, WebhookUpdate{Enabled: &on})
	require.NoError(t, err)
	assert.True(t, updated.Enabled)
	assert.Equal(t, disabled.Secret, updated.Secret)

	hooks, err = db.ListEnabledWebhooks(ctx)
	require.NoError(t, err)
	assert.Len(t, hooks, 2)

	require.NoError(t, db.DeleteWebhook(ctx, enabled.ID))
	_, err = db.GetWebhook(ctx, enabled.ID)
	assert.True(t, IsNotFound(err))
}
