package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/marianozunino/gallery/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*DB, func()) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	cfg := &config.Config{
		StatePath: dbPath,
	}

	db, err := NewDB(cfg)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.RemoveAll(tempDir)
	}

	return db, cleanup
}

func TestNewDB(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "new_test.db")

	cfg := &config.Config{
		StatePath: dbPath,
	}

	db, err := NewDB(cfg)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)

	err = db.Ping()
	assert.NoError(t, err)
}

func TestNewDBWithInvalidPath(t *testing.T) {
	cfg := &config.Config{
		StatePath: "/invalid/path/that/does/not/exist/test.db",
	}

	db, err := NewDB(cfg)
	assert.Error(t, err)
	assert.Nil(t, db)
}

func TestSetAndGetValue(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := db.SetValue("jwt", "token-123")
	require.NoError(t, err)

	value, err := db.GetValue("jwt")
	require.NoError(t, err)
	assert.Equal(t, "token-123", value)
}

func TestSetValueReplaces(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, db.SetValue("jwt", "old"))
	require.NoError(t, db.SetValue("jwt", "new"))

	value, err := db.GetValue("jwt")
	require.NoError(t, err)
	assert.Equal(t, "new", value)
}

func TestGetValueNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	value, err := db.GetValue("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "missing")
	assert.Empty(t, value)
}

func TestDeleteValue(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, db.SetValue("jwt", "token"))
	require.NoError(t, db.DeleteValue("jwt"))

	_, err := db.GetValue("jwt")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is harmless
	assert.NoError(t, db.DeleteValue("jwt"))
}

func TestKeys(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	keys, err := db.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, db.SetValue("b", "2"))
	require.NoError(t, db.SetValue("a", "1"))

	keys, err = db.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestValuesSurviveReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	cfg := &config.Config{StatePath: dbPath}

	db, err := NewDB(cfg)
	require.NoError(t, err)
	require.NoError(t, db.SetValue("jwt", "persisted"))
	require.NoError(t, db.Close())

	db, err = NewDB(cfg)
	require.NoError(t, err)
	defer db.Close()

	value, err := db.GetValue("jwt")
	require.NoError(t, err)
	assert.Equal(t, "persisted", value)
}
