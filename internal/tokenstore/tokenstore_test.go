package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/techshop/internal/domain/session"
)

func TestFile_LoadMissing(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "nested", "session.json"))

	_, err := f.Load(context.Background())
	require.ErrorIs(t, err, session.ErrNoToken)
}

func TestFile_SaveSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	ctx := context.Background()

	require.NoError(t, NewFile(path).Save(ctx, "abc.def"))

	token, err := NewFile(path).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFile_SaveReplaces(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "session.json"))
	ctx := context.Background()

	require.NoError(t, f.Save(ctx, "first"))
	require.NoError(t, f.Save(ctx, "second"))

	token, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", token)
}

func TestFile_SaveEmptyRejected(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "session.json"))

	require.Error(t, f.Save(context.Background(), ""))
}

func TestFile_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	f := NewFile(path)
	ctx := context.Background()

	require.NoError(t, f.Save(ctx, "abc"))
	require.NoError(t, f.Remove(ctx))

	_, err := f.Load(ctx)
	require.ErrorIs(t, err, session.ErrNoToken)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing twice is fine.
	require.NoError(t, f.Remove(ctx))
}

func TestFile_PreservesOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"theme":"dark","count":3}`), 0o600))
	f := NewFile(path)
	ctx := context.Background()

	require.NoError(t, f.Save(ctx, "abc"))
	require.NoError(t, f.Remove(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"dark"}`, string(data))
}

func TestFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := NewFile(path).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrNoToken)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Load(ctx)
	require.ErrorIs(t, err, session.ErrNoToken)

	require.NoError(t, m.Save(ctx, "tok"))
	token, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	require.NoError(t, m.Remove(ctx))
	_, err = m.Load(ctx)
	require.ErrorIs(t, err, session.ErrNoToken)
}
