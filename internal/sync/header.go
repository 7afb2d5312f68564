package sync

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// headerFileName is the reserved encrypted-root header file. It is
	// excluded from every encrypted-side enumeration the matcher sees.
	headerFileName = ".helix.hx"
	// reservedSubdir is the decrypted-root subdirectory holding the local
	// directory-id copy and the sync log.
	reservedSubdir      = ".helix"
	directoryIDFileName = "directory-id"
	syncLogFileName     = "synclog.jsonl"
)

// RepositoryHeader is the small typed struct recorded at the encrypted
// root's reserved header file. Deriving and verifying the key material it
// protects is a collaborator concern; reading the struct and comparing its
// DirectoryID against the decrypted side is in scope because Open must
// fail fast on a mismatch before any reconciliation runs.
type RepositoryHeader struct {
	DirectoryID   uuid.UUID `json:"directory_id"`
	FileVersion   int       `json:"file_version"`
	KDFSalt       []byte    `json:"kdf_salt"`
	KDFIterations int       `json:"kdf_iterations"`
}

func readRepositoryHeader(encrRoot string) (RepositoryHeader, error) {
	data, err := os.ReadFile(filepath.Join(encrRoot, headerFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return RepositoryHeader{}, fmt.Errorf("%w: %s", ErrConfigMissing, headerFileName)
		}

		return RepositoryHeader{}, fmt.Errorf("reading repository header: %w", err)
	}

	var h RepositoryHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return RepositoryHeader{}, fmt.Errorf("%w: %s", ErrConfigMissing, err)
	}

	return h, nil
}

func readLocalDirectoryID(decrRoot string) (uuid.UUID, error) {
	path := filepath.Join(decrRoot, reservedSubdir, directoryIDFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return uuid.UUID{}, fmt.Errorf("%w: %s", ErrConfigMissing, path)
		}

		return uuid.UUID{}, fmt.Errorf("reading local directory id: %w", err)
	}

	id, err := uuid.Parse(strings.TrimSpace(string(data)))
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: malformed directory id", ErrConfigMissing)
	}

	return id, nil
}

// DirectoryPair is the paired-open/paired-release resource for one sync
// run: both overlays and the sync log file handle, released together by
// Close even if only part of the pair finished opening.
type DirectoryPair struct {
	Decr *FSOverlay
	Encr *FSOverlay
	Log  *SyncLogStore
}

func openDirectoryPair(decrRoot, encrRoot string, caseSensitive, whatIf bool, logger *slog.Logger) (*DirectoryPair, error) {
	decr, err := NewOverlay(decrRoot, caseSensitive, whatIf, logger)
	if err != nil {
		return nil, fmt.Errorf("opening decrypted root: %w", err)
	}

	encr, err := NewOverlay(encrRoot, caseSensitive, whatIf, logger)
	if err != nil {
		return nil, fmt.Errorf("opening encrypted root: %w", err)
	}

	logPath := filepath.Join(decrRoot, reservedSubdir, syncLogFileName)

	store, err := OpenSyncLog(logPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening sync log: %w", err)
	}

	return &DirectoryPair{Decr: decr, Encr: encr, Log: store}, nil
}

// Close releases the sync log's file handle. The overlays hold no disk
// handles of their own (they are an in-memory cache), so there is nothing
// else to release.
func (p *DirectoryPair) Close() error {
	if p.Log == nil {
		return nil
	}

	return p.Log.Close()
}
