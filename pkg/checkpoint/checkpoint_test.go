package checkpoint

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, worklist string) *Manager {
	t.Helper()
	mgr, err := NewManagerInDir(t.TempDir(), worklist)
	require.NoError(t, err)
	return mgr
}

func TestCreateAndLoad(t *testing.T) {
	mgr := newTestManager(t, "Order_Drug_Suppression.xls")

	loaded, err := mgr.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.False(t, mgr.Exists())

	cp, err := mgr.Create("Order_Drug_Suppression.xls", "run-1", 12)
	require.NoError(t, err)
	assert.Equal(t, 12, cp.TotalPatients)
	assert.True(t, mgr.Exists())

	loaded, err = mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, currentVersion, loaded.Version)
	assert.NotNil(t, loaded.Completed)
}

func TestRecordPatient(t *testing.T) {
	mgr := newTestManager(t, "list.xls")

	cp, err := mgr.Create("list.xls", "run-1", 3)
	require.NoError(t, err)

	require.NoError(t, mgr.RecordPatient(cp, "1234567", 2))
	require.NoError(t, mgr.RecordPatient(cp, "7654321", 0))

	loaded, err := mgr.Load()
	require.NoError(t, err)
	assert.True(t, loaded.IsCompleted("1234567"))
	assert.True(t, loaded.IsCompleted("7654321"))
	assert.False(t, loaded.IsCompleted("0000000"))
	assert.Equal(t, 2, loaded.NotesSuppressed)
}

func TestDelete(t *testing.T) {
	mgr := newTestManager(t, "list.xls")

	_, err := mgr.Create("list.xls", "run-1", 1)
	require.NoError(t, err)
	require.NoError(t, mgr.Delete())
	assert.False(t, mgr.Exists())

	// deleting twice is fine
	require.NoError(t, mgr.Delete())
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	mgr := newTestManager(t, "list.xls")
	require.NoError(t, os.WriteFile(mgr.Path(), []byte(`{"version": 99}`), 0644))

	_, err := mgr.Load()
	assert.ErrorContains(t, err, "newer than supported")
}

func TestLoadCorrupt(t *testing.T) {
	mgr := newTestManager(t, "list.xls")
	require.NoError(t, os.WriteFile(mgr.Path(), []byte("{not json"), 0644))

	_, err := mgr.Load()
	assert.ErrorContains(t, err, "failed to decode checkpoint")
}

func TestCheckpointNameDistinguishesDirectories(t *testing.T) {
	a := checkpointName(filepath.Join("ward1", "list.xls"))
	b := checkpointName(filepath.Join("ward2", "list.xls"))

	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "list-")
	assert.Equal(t, a, checkpointName(filepath.Join("ward1", "list.xls")))
}

func TestGetCheckpointInfo(t *testing.T) {
	mgr := newTestManager(t, "list.xls")

	info, err := mgr.GetCheckpointInfo()
	require.NoError(t, err)
	assert.Nil(t, info)

	cp, err := mgr.Create("list.xls", "run-9", 4)
	require.NoError(t, err)
	require.NoError(t, mgr.RecordPatient(cp, "1111111", 1))

	info, err = mgr.GetCheckpointInfo()
	require.NoError(t, err)
	assert.Equal(t, 1, info["completed"])
	assert.Equal(t, 4, info["total_patients"])
	assert.Equal(t, "run-9", info["run_id"])
}

func TestBackupCheckpoint(t *testing.T) {
	mgr := newTestManager(t, "list.xls")
	require.NoError(t, mgr.BackupCheckpoint())

	_, err := mgr.Create("list.xls", "run-1", 1)
	require.NoError(t, err)
	require.NoError(t, mgr.BackupCheckpoint())

	original, err := os.ReadFile(mgr.Path())
	require.NoError(t, err)
	backup, err := os.ReadFile(mgr.Path() + ".backup")
	require.NoError(t, err)
	assert.Equal(t, original, backup)
}

func TestNewManagerUsesDataDirectory(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_DATA_HOME only applies on linux")
	}
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	mgr, err := NewManager("list.xls")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "epmasuppress", "checkpoints"), filepath.Dir(mgr.Path()))
}
