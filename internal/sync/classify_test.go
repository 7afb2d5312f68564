package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_NoLogNoDecrNoEncr_Unchanged(t *testing.T) {
	item := &PreSync{}
	Classify(item)

	assert.Equal(t, ModeUnchanged, item.SyncMode)
	assert.Equal(t, OpNone, item.DisplayOperation)
}

func TestClassify_NewDecryptedFile_DecryptedSideAdd(t *testing.T) {
	item := &PreSync{
		DecrFileName: "a.txt",
		DecrInfo:     &FSEntry{RelativePath: "a.txt", EntryType: EntryFile, Length: 5},
	}
	Classify(item)

	assert.Equal(t, ModeDecryptedSide, item.SyncMode)
	assert.Equal(t, OpAdd, item.DisplayOperation)
	assert.Equal(t, EntryFile, item.DisplayEntryType)
	assert.Equal(t, int64(5), item.DisplayFileLength)
}

func TestClassify_DecryptedChangeWithExistingEncrypted_Change(t *testing.T) {
	mod := mustTime("2026-01-01T00:00:00Z")
	item := &PreSync{
		DecrFileName: "a.txt",
		LogEntry: &SyncLogEntry{
			EntryType: EntryFile, DecrFileName: "a.txt", DecrModifiedUTC: mod,
			EncrFileName: "ENC_a.txt", EncrModifiedUTC: mod,
		},
		DecrInfo: &FSEntry{RelativePath: "a.txt", EntryType: EntryFile, LastWriteTimeUTC: mod.Add(time.Hour), Length: 9},
		EncrInfo: &FSEntry{RelativePath: "ENC_a.txt", EntryType: EntryFile, LastWriteTimeUTC: mod},
	}
	Classify(item)

	assert.Equal(t, ModeDecryptedSide, item.SyncMode)
	assert.Equal(t, OpChange, item.DisplayOperation)
}

func TestClassify_DecryptedRemoval_Remove(t *testing.T) {
	mod := mustTime("2026-01-01T00:00:00Z")
	item := &PreSync{
		DecrFileName: "a.txt",
		LogEntry: &SyncLogEntry{
			EntryType: EntryFile, DecrFileName: "a.txt", DecrModifiedUTC: mod,
			EncrFileName: "ENC_a.txt", EncrModifiedUTC: mod,
		},
		EncrInfo: &FSEntry{RelativePath: "ENC_a.txt", EntryType: EntryFile, LastWriteTimeUTC: mod},
	}
	Classify(item)

	assert.Equal(t, ModeDecryptedSide, item.SyncMode)
	assert.Equal(t, OpRemove, item.DisplayOperation)
	assert.Equal(t, EntryRemoved, item.DisplayEntryType)
}

func TestClassify_AllThreeSourcesAgree_Unchanged(t *testing.T) {
	mod := mustTime("2026-01-01T00:00:00Z")
	item := &PreSync{
		DecrFileName: "x",
		LogEntry: &SyncLogEntry{
			EntryType: EntryFile, DecrFileName: "x", DecrModifiedUTC: mod,
			EncrFileName: "ENC_x", EncrModifiedUTC: mod,
		},
		DecrInfo: &FSEntry{RelativePath: "x", EntryType: EntryFile, LastWriteTimeUTC: mod, Length: 4},
		EncrInfo: &FSEntry{RelativePath: "ENC_x", EntryType: EntryFile, LastWriteTimeUTC: mod},
	}
	Classify(item)

	assert.Equal(t, ModeUnchanged, item.SyncMode)
	assert.Equal(t, OpNone, item.DisplayOperation)
}

func TestClassify_EncryptedOnlyUnknownFile_EncryptedSideAdd(t *testing.T) {
	item := &PreSync{
		EncrFileName: "ENC_new.bin",
		EncrInfo:     &FSEntry{RelativePath: "ENC_new.bin", EntryType: EntryFile},
		EncrHeader:   &EncrHeader{FileName: "new.bin", EntryType: EntryFile, Length: 3},
	}
	Classify(item)

	assert.Equal(t, ModeEncryptedSide, item.SyncMode)
	assert.Equal(t, OpAdd, item.DisplayOperation)
}

func TestClassify_OrphanLogEntryMissingEncrInfo_Inconsistent(t *testing.T) {
	item := &PreSync{
		DecrFileName: "a.txt",
		LogEntry:     &SyncLogEntry{EntryType: EntryFile, DecrFileName: "a.txt", EncrFileName: "ENC_a.txt"},
	}
	Classify(item)

	assert.Equal(t, ModeUnknown, item.SyncMode)
	assert.Equal(t, OpError, item.DisplayOperation)
	require.Error(t, item.ClassifyErr)
	assert.ErrorIs(t, item.ClassifyErr, ErrUnclassifiable)
}

// TestClassify_S7_PurgedTombstoneMatchingStaleBlob_Unchanged hand-traces the scenario where a
// decrypted file was deleted and purged once already; the second run's
// inputs exactly match what applyPurge would have recorded (the tombstone's
// encr_file_name/encr_modified_utc equal the still-present stale blob's own
// identity). This must classify as Unchanged, not re-Purge forever.
func TestClassify_S7_PurgedTombstoneMatchingStaleBlob_Unchanged(t *testing.T) {
	staleMod := mustTime("2025-06-01T00:00:00Z")
	item := &PreSync{
		DecrFileName: "deleted.txt",
		LogEntry: &SyncLogEntry{
			EntryType: EntryRemoved, DecrFileName: "deleted.txt",
			EncrFileName: "ENC_deleted.txt", EncrModifiedUTC: staleMod,
		},
		EncrInfo: &FSEntry{RelativePath: "ENC_deleted.txt", EntryType: EntryFile, LastWriteTimeUTC: staleMod},
	}
	Classify(item)

	assert.Equal(t, ModeUnchanged, item.SyncMode, "a purge tombstone matching the stale blob's identity must be idempotent")
	assert.Equal(t, OpNone, item.DisplayOperation)
}

// TestClassify_S7_StaleBlobIdentityMismatch_Purges is the run before the one
// above: the log says Removed but the recorded identity doesn't match the
// blob still sitting on the encrypted side (a deletion that never got
// propagated, or a blob that outlived its own purge record). This must
// classify as a Purge, never as an Add that would re-materialize the file.
func TestClassify_S7_StaleBlobIdentityMismatch_Purges(t *testing.T) {
	recordedMod := mustTime("2025-01-01T00:00:00Z")
	actualMod := mustTime("2025-06-01T00:00:00Z")
	item := &PreSync{
		DecrFileName: "deleted.txt",
		LogEntry: &SyncLogEntry{
			EntryType: EntryRemoved, DecrFileName: "deleted.txt",
			EncrFileName: "ENC_deleted.txt", EncrModifiedUTC: recordedMod,
		},
		EncrInfo: &FSEntry{RelativePath: "ENC_deleted.txt", EntryType: EntryFile, LastWriteTimeUTC: actualMod},
	}
	Classify(item)

	require.Equal(t, ModeEncryptedSide, item.SyncMode)
	assert.Equal(t, OpPurge, item.DisplayOperation, "must purge the stale blob, never OpAdd re-materializing it")
	assert.Equal(t, EntryPurged, item.DisplayEntryType)
}

// TestClassify_RemovedTombstoneEncrGone_Unchanged covers the simpler
// steady-state: the tombstone is recorded and the blob is genuinely gone
// (fully propagated deletion, nothing left to purge).
func TestClassify_RemovedTombstoneEncrGone_Unchanged(t *testing.T) {
	item := &PreSync{
		DecrFileName: "deleted.txt",
		LogEntry: &SyncLogEntry{
			EntryType: EntryRemoved, DecrFileName: "deleted.txt", EncrFileName: "ENC_deleted.txt",
		},
	}
	Classify(item)

	assert.Equal(t, ModeUnchanged, item.SyncMode)
	assert.Equal(t, OpNone, item.DisplayOperation)
}

func TestClassify_BothChanged_NoHeaderYetAndDecrRemoved_Match(t *testing.T) {
	mod := mustTime("2026-01-01T00:00:00Z")
	item := &PreSync{
		DecrFileName: "a.txt",
		LogEntry: &SyncLogEntry{
			EntryType: EntryFile, DecrFileName: "a.txt", DecrModifiedUTC: mod,
			EncrFileName: "ENC_a.txt", EncrModifiedUTC: mod,
		},
		EncrInfo: &FSEntry{RelativePath: "ENC_a.txt", EntryType: EntryFile, LastWriteTimeUTC: mod.Add(time.Hour)},
	}
	Classify(item)

	assert.Equal(t, ModeMatch, item.SyncMode, "decrypted-side delete already reflected on the encrypted side")
}

func TestClassify_BothChanged_HeaderAgreesWithDecr_Match(t *testing.T) {
	mod := mustTime("2026-01-01T00:00:00Z")
	newMod := mod.Add(time.Hour)
	item := &PreSync{
		DecrFileName: "a.txt",
		LogEntry: &SyncLogEntry{
			EntryType: EntryFile, DecrFileName: "a.txt", DecrModifiedUTC: mod,
			EncrFileName: "ENC_a.txt", EncrModifiedUTC: mod,
		},
		DecrInfo:   &FSEntry{RelativePath: "a.txt", EntryType: EntryFile, LastWriteTimeUTC: newMod},
		EncrInfo:   &FSEntry{RelativePath: "ENC_a.txt", EntryType: EntryFile, LastWriteTimeUTC: newMod},
		EncrHeader: &EncrHeader{FileName: "a.txt", EntryType: EntryFile, LastWriteTimeUTC: newMod},
	}
	Classify(item)

	assert.Equal(t, ModeMatch, item.SyncMode, "same change seen independently on both sides is not a conflict")
}

func TestClassify_BothChanged_HeaderDisagrees_Conflict(t *testing.T) {
	mod := mustTime("2026-01-01T00:00:00Z")
	item := &PreSync{
		DecrFileName: "a.txt",
		LogEntry: &SyncLogEntry{
			EntryType: EntryFile, DecrFileName: "a.txt", DecrModifiedUTC: mod,
			EncrFileName: "ENC_a.txt", EncrModifiedUTC: mod,
		},
		DecrInfo:   &FSEntry{RelativePath: "a.txt", EntryType: EntryFile, LastWriteTimeUTC: mod.Add(time.Hour)},
		EncrInfo:   &FSEntry{RelativePath: "ENC_a.txt", EntryType: EntryFile, LastWriteTimeUTC: mod.Add(2 * time.Hour)},
		EncrHeader: &EncrHeader{FileName: "a.txt", EntryType: EntryFile, LastWriteTimeUTC: mod.Add(2 * time.Hour)},
	}
	Classify(item)

	assert.Equal(t, ModeConflict, item.SyncMode)
	assert.Equal(t, OpNone, item.DisplayOperation, "conflicts are reported via SyncMode, not a display operation")
}

func TestClassify_S8_EmptyDirectory_DecryptedSideAdd(t *testing.T) {
	item := &PreSync{
		DecrFileName: "empty",
		DecrInfo:     &FSEntry{RelativePath: "empty", EntryType: EntryDirectory},
	}
	Classify(item)

	assert.Equal(t, ModeDecryptedSide, item.SyncMode)
	assert.Equal(t, OpAdd, item.DisplayOperation)
	assert.Equal(t, EntryDirectory, item.DisplayEntryType)
	assert.Equal(t, int64(0), item.DisplayFileLength)
}

func TestResolveFromHeader_SetsDecrFileNameAndVerifiesEncoding(t *testing.T) {
	item := &PreSync{
		EncrFileName: "ENC_a.txt",
		EncrInfo:     &FSEntry{RelativePath: "ENC_a.txt", EntryType: EntryFile},
		EncrHeader:   &EncrHeader{FileName: "a.txt", EntryType: EntryFile},
	}

	require.NoError(t, ResolveFromHeader(item, fakeNameEncoder{}))
	assert.Equal(t, "a.txt", item.DecrFileName)
}

func TestResolveFromHeader_MismatchedEncoding_Errors(t *testing.T) {
	item := &PreSync{
		EncrFileName: "ENC_wrong.txt",
		EncrInfo:     &FSEntry{RelativePath: "ENC_wrong.txt", EntryType: EntryFile},
		EncrHeader:   &EncrHeader{FileName: "a.txt", EntryType: EntryFile},
	}

	err := ResolveFromHeader(item, fakeNameEncoder{})
	assert.ErrorIs(t, err, ErrHeaderNameMismatch)
}

func TestResolveFromHeader_NoopWhenDecrFileNameAlreadyKnown(t *testing.T) {
	item := &PreSync{DecrFileName: "a.txt", EncrHeader: &EncrHeader{FileName: "b.txt"}}

	require.NoError(t, ResolveFromHeader(item, fakeNameEncoder{}))
	assert.Equal(t, "a.txt", item.DecrFileName, "must not overwrite an already-known name")
}
