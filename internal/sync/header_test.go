package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRepositoryHeader(t *testing.T, encrRoot string, id uuid.UUID) {
	t.Helper()

	writeFile(t, encrRoot, headerFileName, `{"directory_id":"`+id.String()+`","file_version":1}`)
}

func writeLocalDirectoryID(t *testing.T, decrRoot string, id uuid.UUID) {
	t.Helper()

	writeFile(t, decrRoot, filepath.Join(reservedSubdir, directoryIDFileName), id.String())
}

func TestReadRepositoryHeader_MissingFile_ErrConfigMissing(t *testing.T) {
	_, err := readRepositoryHeader(t.TempDir())
	assert.ErrorIs(t, err, ErrConfigMissing)
}

func TestReadRepositoryHeader_RoundTrips(t *testing.T) {
	root := t.TempDir()
	id := uuid.New()
	writeRepositoryHeader(t, root, id)

	h, err := readRepositoryHeader(root)
	require.NoError(t, err)
	assert.Equal(t, id, h.DirectoryID)
	assert.Equal(t, 1, h.FileVersion)
}

func TestReadLocalDirectoryID_MalformedContent_ErrConfigMissing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, filepath.Join(reservedSubdir, directoryIDFileName), "not-a-uuid")

	_, err := readLocalDirectoryID(root)
	assert.ErrorIs(t, err, ErrConfigMissing)
}

func TestOpenDirectoryPair_CreatesSyncLogAndCloses(t *testing.T) {
	decrRoot := t.TempDir()
	encrRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(decrRoot, reservedSubdir), 0o755))

	pair, err := openDirectoryPair(decrRoot, encrRoot, true, false, testLogger(t))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(decrRoot, reservedSubdir, syncLogFileName))
	assert.NoError(t, err)

	require.NoError(t, pair.Close())
}

func TestDirectoryPair_Close_NilLogIsNoop(t *testing.T) {
	pair := &DirectoryPair{}
	assert.NoError(t, pair.Close())
}
