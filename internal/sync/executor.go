package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tessaline/helix-sync/internal/codec"
)

// minEncryptedAdvance is the smallest allowed gap between successive
// encrypted last-write times for the same logical path, enforced to
// protect against filesystem mtime quantization making a real update look
// like no change on the next run.
const minEncryptedAdvance = time.Second

// Executor applies a single classified PreSync (C6): it is the only
// component in the pipeline that performs file I/O or appends to the log.
type Executor struct {
	decrOverlay *FSOverlay
	encrOverlay *FSOverlay
	log         *SyncLogStore
	codec       codec.Codec
	encoder     codec.NameEncoder
	key         codec.KeyMaterial
	logger      *slog.Logger
}

// NewExecutor builds an Executor over the given overlays, log, and codec
// collaborators.
func NewExecutor(
	decrOverlay, encrOverlay *FSOverlay, log *SyncLogStore,
	c codec.Codec, encoder codec.NameEncoder, key codec.KeyMaterial, logger *slog.Logger,
) *Executor {
	return &Executor{
		decrOverlay: decrOverlay,
		encrOverlay: encrOverlay,
		log:         log,
		codec:       c,
		encoder:     encoder,
		key:         key,
		logger:      logger,
	}
}

// TrySync applies item and returns its outcome. It never panics on an
// expected file-state failure — those come back as SyncResult.Err so the
// caller can continue with the rest of the ordered plan.
func (x *Executor) TrySync(ctx context.Context, item PreSync) SyncResult {
	if err := ctx.Err(); err != nil {
		return SyncResult{Item: item, Err: err}
	}

	var err error

	switch item.SyncMode {
	case ModeConflict:
		err = fmt.Errorf("%w: %s", ErrConflictUnresolved, item.DecrFileName)
	case ModeMatch, ModeUnchanged:
		err = x.applyUnchanged(item)
	case ModeDecryptedSide:
		err = x.applyDecryptedSide(item)
	case ModeEncryptedSide:
		err = x.applyEncryptedSide(item)
	default:
		err = fmt.Errorf("%w: %s", ErrUnclassifiable, item.DecrFileName)
	}

	if err != nil {
		x.logger.Warn("sync item failed",
			slog.String("decr_file_name", item.DecrFileName),
			slog.String("sync_mode", item.SyncMode.String()),
			slog.String("error", err.Error()),
		)

		return SyncResult{Item: item, Err: err}
	}

	return SyncResult{Item: item, Applied: true}
}

// applyUnchanged records a fresh log entry for a Match item without
// touching disk.
func (x *Executor) applyUnchanged(item PreSync) error {
	entry := SyncLogEntry{
		EntryType:       matchEntryType(item),
		DecrFileName:    item.DecrFileName,
		EncrFileName:    item.EncrFileName,
		DecrModifiedUTC: entryTime(item.DecrInfo),
		EncrModifiedUTC: entryTime(item.EncrInfo),
	}

	return x.log.Add(entry)
}

func matchEntryType(item PreSync) EntryType {
	if item.DecrInfo != nil {
		return item.DecrInfo.EntryType
	}

	if item.EncrHeader != nil {
		return item.EncrHeader.EntryType
	}

	return EntryRemoved
}

func entryTime(e *FSEntry) time.Time {
	if e == nil {
		return time.Time{}
	}

	return e.LastWriteTimeUTC
}

// applyDecryptedSide propagates a decrypted-side change to the encrypted
// mirror: encrypt on Add/Change, delete the ciphertext blob on Remove.
func (x *Executor) applyDecryptedSide(item PreSync) error {
	if item.DisplayOperation == OpRemove {
		if item.EncrInfo != nil && item.EncrInfo.EntryType != EntryRemoved {
			if err := x.encrOverlay.DeleteFile(*item.EncrInfo); err != nil {
				return fmt.Errorf("deleting encrypted blob for %s: %w", item.DecrFileName, err)
			}
		}

		return x.log.Add(SyncLogEntry{
			EntryType:    EntryRemoved,
			DecrFileName: item.DecrFileName,
			EncrFileName: item.EncrFileName,
		})
	}

	decrAbs := x.decrOverlay.absPath(item.DecrFileName)
	encrAbs := x.encrOverlay.absPath(item.EncrFileName)

	prevEncrMod := time.Time{}
	if item.LogEntry != nil {
		prevEncrMod = item.LogEntry.EncrModifiedUTC
	}

	opts := codec.EncryptOptions{
		StoredFileName: item.DecrFileName,
		BeforeWriteHeader: func(h codec.FileEntry) codec.FileEntry {
			h.LastWriteTimeUTC = advanceIfTooClose(h.LastWriteTimeUTC, prevEncrMod)
			return h
		},
	}

	written, err := x.codec.EncryptFile(decrAbs, encrAbs, x.key, opts)
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", item.DecrFileName, err)
	}

	if _, err := x.encrOverlay.RefreshEntry(item.EncrFileName); err != nil {
		return fmt.Errorf("refreshing encrypted entry for %s: %w", item.DecrFileName, err)
	}

	return x.log.Add(SyncLogEntry{
		EntryType:       item.DecrInfo.EntryType,
		DecrFileName:    item.DecrFileName,
		DecrModifiedUTC: item.DecrInfo.LastWriteTimeUTC,
		EncrFileName:    item.EncrFileName,
		EncrModifiedUTC: written.LastWriteTimeUTC,
	})
}

// applyEncryptedSide propagates an encrypted-side change to the decrypted
// tree, or reconciles a stale tombstoned blob via Purge.
func (x *Executor) applyEncryptedSide(item PreSync) error {
	if item.DisplayOperation == OpPurge {
		return x.applyPurge(item)
	}

	if item.DisplayOperation == OpRemove {
		if item.DecrInfo != nil && item.DecrInfo.EntryType != EntryRemoved {
			var err error
			if item.DecrInfo.EntryType == EntryDirectory {
				err = x.decrOverlay.DeleteDirectory(*item.DecrInfo, false)
			} else {
				err = x.decrOverlay.DeleteFile(*item.DecrInfo)
			}

			if err != nil {
				return fmt.Errorf("deleting decrypted entry for %s: %w", item.DecrFileName, err)
			}
		}

		return x.log.Add(SyncLogEntry{
			EntryType:    EntryRemoved,
			DecrFileName: item.DecrFileName,
			EncrFileName: item.EncrFileName,
		})
	}

	target := SyncLogEntry{
		EntryType:       headerEntryType(&item),
		DecrFileName:    item.DecrFileName,
		DecrModifiedUTC: headerTime(&item),
		EncrFileName:    item.EncrInfo.RelativePath,
		EncrModifiedUTC: item.EncrInfo.LastWriteTimeUTC,
	}

	if item.LogEntry != nil && logEntryEquals(*item.LogEntry, target) {
		return nil
	}

	conflict, err := x.caseOnlyConflict(item.DecrFileName)
	if err != nil {
		return fmt.Errorf("checking case-only conflict for %s: %w", item.DecrFileName, err)
	}

	if conflict {
		return fmt.Errorf("%w: %s", ErrCaseOnlyConflict, item.DecrFileName)
	}

	decrAbs := x.decrOverlay.absPath(item.DecrFileName)
	encrAbs := x.encrOverlay.absPath(item.EncrInfo.RelativePath)

	if err := x.codec.DecryptFile(encrAbs, decrAbs, x.key); err != nil {
		return fmt.Errorf("decrypting %s: %w", item.DecrFileName, err)
	}

	refreshed, err := x.decrOverlay.RefreshEntry(item.DecrFileName)
	if err != nil {
		return fmt.Errorf("refreshing decrypted entry for %s: %w", item.DecrFileName, err)
	}

	target.DecrModifiedUTC = refreshed.LastWriteTimeUTC

	return x.log.Add(target)
}

// applyPurge records a Removed/Removed tombstone for a stale encrypted
// blob without touching disk, matching the blob's current on-disk identity
// exactly so the next run's classification reports it as unchanged.
func (x *Executor) applyPurge(item PreSync) error {
	entry := SyncLogEntry{
		EntryType:    EntryRemoved,
		DecrFileName: item.DecrFileName,
		EncrFileName: item.EncrFileName,
	}

	if item.LogEntry != nil {
		entry.DecrModifiedUTC = item.LogEntry.DecrModifiedUTC
	}

	if item.EncrInfo != nil {
		entry.EncrFileName = item.EncrInfo.RelativePath
		entry.EncrModifiedUTC = item.EncrInfo.LastWriteTimeUTC
	}

	return x.log.Add(entry)
}

// caseOnlyConflict reports whether the decrypted directory tree already
// has a sibling entry at target's parent whose name differs from target
// only in case.
func (x *Executor) caseOnlyConflict(target string) (bool, error) {
	entries, err := x.decrOverlay.GetEntries(parentPath(target), TopOnly)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return false, nil
		}

		return false, err
	}

	for _, e := range entries {
		if e.RelativePath == target {
			continue
		}

		if strings.EqualFold(e.RelativePath, target) {
			return true, nil
		}
	}

	return false, nil
}

// logEntryEquals compares two SyncLogEntry values field by field, using
// time.Equal rather than == so a monotonic reading on one side never
// produces a spurious mismatch.
func logEntryEquals(a, b SyncLogEntry) bool {
	return a.EntryType == b.EntryType &&
		a.DecrFileName == b.DecrFileName &&
		a.EncrFileName == b.EncrFileName &&
		a.DecrModifiedUTC.Equal(b.DecrModifiedUTC) &&
		a.EncrModifiedUTC.Equal(b.EncrModifiedUTC)
}

func headerTime(item *PreSync) time.Time {
	if item.EncrHeader != nil {
		return item.EncrHeader.LastWriteTimeUTC
	}

	if item.EncrInfo != nil {
		return item.EncrInfo.LastWriteTimeUTC
	}

	return time.Time{}
}

// advanceIfTooClose enforces invariant #6: an encrypted write's timestamp
// must land at least 1s after the previous one recorded for the same path.
func advanceIfTooClose(candidate, prev time.Time) time.Time {
	if prev.IsZero() {
		return candidate
	}

	if candidate.Sub(prev) >= minEncryptedAdvance {
		return candidate
	}

	return prev.Add(minEncryptedAdvance)
}
