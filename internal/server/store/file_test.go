package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/userauth/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSnapshot_MissingAndBlank(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "users.json")

	f := NewFileSnapshot(path)
	require.NoError(t, f.Prepare(ctx))
	assert.DirExists(t, filepath.Dir(path))

	_, err := f.Load(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
	_, err = f.Load(ctx)
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestFileSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")
	f := NewFileSnapshot(path)
	require.NoError(t, f.Prepare(ctx))

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	login := created.Add(time.Hour)
	in := []*models.User{
		{ID: "a", FirstName: "Juan", LastName: "Perez", Email: "juan@test.com", PasswordHash: "h1",
			IsActive: true, LastLoginAt: &login, CreatedAt: created, UpdatedAt: created},
		{ID: "b", FirstName: "Ana", LastName: "Lopez", Email: "ana@test.com", PasswordHash: "h2",
			IsActive: false, CreatedAt: created, UpdatedAt: created},
	}
	require.NoError(t, f.Save(ctx, in))

	out, err := f.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  {\n    \"id\": \"a\"")
	assert.Contains(t, string(raw), `"passwordHash": "h1"`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileSnapshot_EmptyCollectionIsArray(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")
	f := NewFileSnapshot(path)
	require.NoError(t, f.Prepare(ctx))

	require.NoError(t, f.Save(ctx, nil))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))

	out, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFileSnapshot_MissingIsActiveDefaultsTrue(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"id":"1","firstName":"Old","lastName":"Record","email":"old@test.com","passwordHash":"x",
   "createdAt":"2023-01-01T00:00:00Z","updatedAt":"2023-01-01T00:00:00Z"},
  {"id":"2","firstName":"Off","lastName":"Record","email":"off@test.com","passwordHash":"y","isActive":false,
   "createdAt":"2023-01-01T00:00:00Z","updatedAt":"2023-01-01T00:00:00Z"}
]`), 0o600))

	f := NewFileSnapshot(path)
	require.NoError(t, f.Prepare(ctx))
	out, err := f.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].IsActive)
	assert.False(t, out[1].IsActive)
	assert.Nil(t, out[0].LastLoginAt)
}

func TestFileSnapshot_Corrupt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	f := NewFileSnapshot(path)
	require.NoError(t, f.Prepare(ctx))
	_, err := f.Load(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSnapshot)
	assert.Contains(t, err.Error(), "decode")
}

func TestNewFileSnapshot_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultDataFile, NewFileSnapshot("").Path())
}
