package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosprados/domino/internal/store"
)

func TestSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	snap := Snapshot{
		Updated: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Apps:    []store.AppState{{Name: "web", Status: "DEPLOYED", Operation: "deploy", Version: "1.0.0"}},
	}
	require.NoError(t, Save(dir, snap))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, snap.Updated, got.Updated)
	require.Len(t, got.Apps, 1)
	assert.Equal(t, "1.0.0", got.Apps[0].Version)

	_, err = os.Stat(filepath.Join(dir, snapshotFile+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadMissing(t *testing.T) {
	snap, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, snap.Apps)
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, snapshotFile), []byte("{"), 0o644))
	_, err := Load(dir)
	assert.Error(t, err)
}
