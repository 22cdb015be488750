package repository

import (
	"path/filepath"
	"testing"
	"time"

	"facegate/config"
	"facegate/internal/core/models"
	"facegate/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	gdb, err := db.Open(config.DBConfig{File: filepath.Join(t.TempDir(), "users.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	return NewSQLiteRepository(gdb)
}

func ptr(t time.Time) *time.Time { return &t }

func assertRegistryEqual(t *testing.T, want, got models.Registry) {
	t.Helper()
	require.Len(t, got, len(want))
	for id, w := range want {
		g, ok := got[id]
		require.True(t, ok, "identity %d missing", id)
		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.Name, g.Name)
		assert.True(t, w.RegisteredAt.Equal(g.RegisteredAt), "registered_at of %d", id)
		assertOptionalTime(t, w.LastVerified, g.LastVerified)
		assertOptionalTime(t, w.UpdatedAt, g.UpdatedAt)
	}
}

func assertOptionalTime(t *testing.T, want, got *time.Time) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.True(t, want.Equal(*got), "want %s, got %s", want, got)
}

func TestLoadRegistryEmpty(t *testing.T) {
	repo := newTestRepo(t)

	reg, err := repo.LoadRegistry()
	require.NoError(t, err)
	assert.Empty(t, reg)
}

func TestRegistryRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	cet := time.FixedZone("CET", 3600)
	base := time.Date(2024, 3, 10, 8, 30, 15, 0, cet)

	want := models.Registry{
		0: {ID: 0, Name: "Alice", RegisteredAt: base},
		1: {ID: 1, Name: "Bob", RegisteredAt: base.Add(time.Hour), LastVerified: ptr(base.Add(2 * time.Hour))},
		4: {ID: 4, Name: "李雷", RegisteredAt: base.Add(3 * time.Hour), UpdatedAt: ptr(base.Add(4 * time.Hour))},
	}
	require.NoError(t, repo.SaveRegistry(want))

	got, err := repo.LoadRegistry()
	require.NoError(t, err)
	assertRegistryEqual(t, want, got)

	// overwrite drops entries no longer present
	delete(want, 1)
	require.NoError(t, repo.SaveRegistry(want))
	got, err = repo.LoadRegistry()
	require.NoError(t, err)
	assertRegistryEqual(t, want, got)
}

func TestReserveIdentityIDIsMonotonic(t *testing.T) {
	repo := newTestRepo(t)

	first, err := repo.ReserveIdentityID()
	require.NoError(t, err)
	assert.Equal(t, 0, first)

	now := time.Now()
	require.NoError(t, repo.SaveRegistry(models.Registry{
		0: {ID: 0, Name: "Alice", RegisteredAt: now},
		1: {ID: 1, Name: "Bob", RegisteredAt: now},
	}))

	next, err := repo.ReserveIdentityID()
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	// deleting the highest id must not make it available again
	require.NoError(t, repo.SaveRegistry(models.Registry{0: {ID: 0, Name: "Alice", RegisteredAt: now}}))
	again, err := repo.ReserveIdentityID()
	require.NoError(t, err)
	assert.Equal(t, 3, again)
}

func TestSaveIdentityUpserts(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.SaveRegistry(models.Registry{0: {ID: 0, Name: "Alice", RegisteredAt: now}}))

	require.NoError(t, repo.SaveIdentity(models.Identity{
		ID:           0,
		Name:         "Alice",
		RegisteredAt: now,
		LastVerified: ptr(now.Add(time.Minute)),
	}))

	require.NoError(t, repo.SaveIdentity(models.Identity{ID: 3, Name: "Bob", RegisteredAt: now}))

	got, err := repo.LoadRegistry()
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].LastVerified)
	assert.True(t, got[0].LastVerified.Equal(now.Add(time.Minute)))
	assert.Equal(t, "Bob", got[3].Name)
	assert.Nil(t, got[3].LastVerified)
}

func TestVerificationLog(t *testing.T) {
	repo := newTestRepo(t)
	id := 0
	old := time.Now().Add(-48 * time.Hour)

	events := []*models.VerificationEvent{
		{SessionID: "a", Accepted: false, Distance: 90, CreatedAt: old},
		{SessionID: "b", IdentityID: &id, Name: "Alice", Accepted: true, Distance: 12.5,
			Faces: datatypes.JSON(`[{"left":1,"top":2,"width":3,"height":4}]`)},
	}
	for _, ev := range events {
		require.NoError(t, repo.RecordVerification(ev))
	}

	list, err := repo.ListVerifications(10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].SessionID)
	require.NotNil(t, list[0].IdentityID)
	assert.Equal(t, 0, *list[0].IdentityID)
	assert.JSONEq(t, `[{"left":1,"top":2,"width":3,"height":4}]`, string(list[0].Faces))

	pruned, err := repo.PruneVerifications(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	list, err = repo.ListVerifications(0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].SessionID)
}
