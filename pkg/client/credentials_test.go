package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession() Session {
	return Session{
		AccessToken:  fakeJWT(time.Now().Add(time.Hour)),
		RefreshToken: fakeJWT(time.Now().Add(24 * time.Hour)),
		User:         User{ID: "u1", Name: "Alice", Email: "alice@example.com", Role: "admin"},
	}
}

func TestMemStore(t *testing.T) {
	store := NewMemStore()

	_, held, err := store.Load()
	require.NoError(t, err)
	assert.False(t, held)

	session := sampleSession()
	require.NoError(t, store.Save(session))

	loaded, held, err := store.Load()
	require.NoError(t, err)
	require.True(t, held)
	assert.Equal(t, session, loaded)

	require.NoError(t, store.Clear())
	_, held, err = store.Load()
	require.NoError(t, err)
	assert.False(t, held)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store := NewFileStore(path)

	_, held, err := store.Load()
	require.NoError(t, err)
	assert.False(t, held, "missing file means no session")

	session := sampleSession()
	require.NoError(t, store.Save(session))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A fresh store on the same path sees the saved session.
	loaded, held, err := NewFileStore(path).Load()
	require.NoError(t, err)
	require.True(t, held)
	assert.Equal(t, session, loaded)
}

func TestFileStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileStore(path)

	require.NoError(t, store.Clear(), "clearing a missing file is fine")

	require.NoError(t, store.Save(sampleSession()))
	require.NoError(t, store.Clear())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_BadContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))
	_, _, err := NewFileStore(path).Load()
	assert.Error(t, err)

	// A file without a refresh token is treated as empty.
	require.NoError(t, os.WriteFile(path, []byte(`{"accessToken":"x"}`), 0o600))
	_, held, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.False(t, held)
}
