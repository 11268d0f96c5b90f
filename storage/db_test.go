package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBGetMissingKey(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	require.NoError(t, db.Delete([]byte("k")))
	ok, err := db.Has([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTrieDBHandleIsStable(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	require.Same(t, db.TrieDB(), db.TrieDB())
}

func TestLevelDBReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.Equal(t, dir, db.Path())
	require.NoError(t, db.Put([]byte("root"), []byte{0x01}))
	db.Close()

	reopened, err := NewLevelDBWithOptions(dir, LevelDBOptions{CacheMB: 8, Handles: 32})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get([]byte("root"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, got)
}
