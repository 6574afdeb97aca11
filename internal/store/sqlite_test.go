package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	_, err = st.InsertFingerprint(ctx, "kept")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	ok, err := st.HasFingerprint(ctx, "kept")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLimitOffset(t *testing.T) {
	assert.Equal(t, "", limitOffset(0, 0))
	assert.Equal(t, " LIMIT 10", limitOffset(10, 0))
	assert.Equal(t, " LIMIT 10 OFFSET 5", limitOffset(10, 5))
	assert.Equal(t, " LIMIT -1 OFFSET 5", limitOffset(0, 5))
}
