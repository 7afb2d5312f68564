package sync

import (
	"fmt"

	"github.com/tessaline/helix-sync/internal/codec"
)

// Classify computes decr_changed/encr_changed from item's log_entry,
// decr_info, and encr_info, then derives sync_mode and display_operation.
// It is safe to call twice on the same item: once before encr_header is
// known, and again after the engine fetches it — the second call refines
// the both-changed branch and the header-dependent display_operation cases.
func Classify(item *PreSync) {
	decrChangedVal := decrChanged(item.LogEntry, item.DecrInfo)
	encrChangedVal, inconsistent := encrChanged(item.LogEntry, item.EncrInfo)

	if inconsistent {
		item.SyncMode = ModeUnknown
		item.DisplayOperation = OpError
		item.DisplayEntryType = EntryUnknown
		item.DisplayFileLength = 0
		item.ClassifyErr = fmt.Errorf("%w: encr_info missing for non-removed log entry %s", ErrUnclassifiable, item.DecrFileName)

		return
	}

	switch {
	case !decrChangedVal && !encrChangedVal:
		item.SyncMode = ModeUnchanged
	case decrChangedVal && encrChangedVal:
		item.SyncMode = bothChangedMode(item)
	case encrChangedVal:
		item.SyncMode = ModeEncryptedSide
	case decrChangedVal:
		item.SyncMode = ModeDecryptedSide
	default:
		item.SyncMode = ModeUnknown
	}

	op, entryType, length := deriveDisplayOperation(item)
	item.DisplayOperation = op
	item.DisplayEntryType = entryType
	item.DisplayFileLength = length

	if item.SyncMode == ModeUnknown {
		item.ClassifyErr = fmt.Errorf("%w: %s", ErrUnclassifiable, item.DecrFileName)
	} else {
		item.ClassifyErr = nil
	}
}

// ResolveFromHeader fills in DecrFileName from a freshly decrypted
// EncrHeader when the record had no decrypted-side match, verifying the
// header's name re-encodes to the ciphertext filename it came from.
func ResolveFromHeader(item *PreSync, encoder codec.NameEncoder) error {
	if item.EncrHeader == nil || item.DecrFileName != "" {
		return nil
	}

	encoded, err := encoder.Encode(item.EncrHeader.FileName)
	if err != nil {
		return fmt.Errorf("re-encoding header file name %s: %w", item.EncrHeader.FileName, err)
	}

	if item.EncrInfo != nil && encoded != item.EncrInfo.RelativePath {
		return fmt.Errorf("%w: %s", ErrHeaderNameMismatch, item.EncrHeader.FileName)
	}

	item.DecrFileName = item.EncrHeader.FileName

	return nil
}

// decrChanged implements §4.4's decr_changed table. decr_info == nil is
// treated the same as an explicit Removed entry for the "absent" rows —
// otherwise a steady-state tombstone (log Removed, file long gone from the
// enumeration) would classify as changed on every run, breaking the
// find-changes-twice-is-empty property.
func decrChanged(log *SyncLogEntry, decr *FSEntry) bool {
	decrAbsent := decr == nil || decr.EntryType == EntryRemoved

	switch {
	case log == nil && decrAbsent:
		return false
	case log == nil:
		return true
	case log.EntryType == EntryRemoved && decrAbsent:
		return false
	case !decrAbsent &&
		log.EntryType == decr.EntryType &&
		log.DecrFileName == decr.RelativePath &&
		log.DecrModifiedUTC.Equal(decr.LastWriteTimeUTC):
		return false
	default:
		return true
	}
}

// encrChanged implements §4.4's encr_changed table. A log tombstone whose
// recorded encr_file_name/encr_modified_utc no longer match the still-present
// stale blob reports changed=true — this is what drives S7's purge; once
// purged the synthesized log entry matches the blob exactly and the next run
// reports unchanged. A tombstone whose blob is altogether gone reports
// changed=false.
func encrChanged(log *SyncLogEntry, encr *FSEntry) (changed bool, inconsistent bool) {
	encrAbsent := encr == nil || encr.EntryType == EntryRemoved

	switch {
	case log == nil && encrAbsent:
		return false, false
	case log == nil:
		return true, false
	case log.EntryType == EntryRemoved && encrAbsent:
		// Deletion already fully propagated: no blob left to judge, let
		// alone purge.
		return false, false
	case log.EntryType == EntryRemoved:
		if log.EncrFileName == encr.RelativePath && log.EncrModifiedUTC.Equal(encr.LastWriteTimeUTC) {
			return false, false
		}

		return true, false
	case encrAbsent:
		return false, true
	case log.EncrFileName == encr.RelativePath && log.EncrModifiedUTC.Equal(encr.LastWriteTimeUTC):
		return false, false
	default:
		return true, false
	}
}

// bothChangedMode resolves sync_mode when both sides changed: Match if the
// change was a delete already reflected on the encrypted side, or if the
// header's kind and last-write agree with the decrypted side; Conflict
// otherwise. Before encr_header is fetched this defaults to Conflict, which
// the second classification pass corrects once the header is known.
func bothChangedMode(item *PreSync) SyncMode {
	decrRemoved := item.DecrInfo == nil || item.DecrInfo.EntryType == EntryRemoved

	if decrRemoved && item.EncrHeader == nil {
		return ModeMatch
	}

	if item.EncrHeader != nil && item.DecrInfo != nil &&
		item.DecrInfo.EntryType == item.EncrHeader.EntryType &&
		item.DecrInfo.LastWriteTimeUTC.Equal(item.EncrHeader.LastWriteTimeUTC) {
		return ModeMatch
	}

	return ModeConflict
}

// deriveDisplayOperation implements §4.4's display_operation table.
func deriveDisplayOperation(item *PreSync) (DisplayOperation, EntryType, int64) {
	switch item.SyncMode {
	case ModeDecryptedSide:
		return displayForDecryptedSide(item)
	case ModeEncryptedSide:
		return displayForEncryptedSide(item)
	case ModeMatch, ModeUnchanged, ModeConflict:
		return OpNone, EntryUnknown, 0
	default:
		return OpError, EntryUnknown, 0
	}
}

func displayForDecryptedSide(item *PreSync) (DisplayOperation, EntryType, int64) {
	decrAbsent := item.DecrInfo == nil || item.DecrInfo.EntryType == EntryRemoved
	if decrAbsent {
		return OpRemove, EntryRemoved, 0
	}

	if encrSideAbsent(item) {
		return OpAdd, item.DecrInfo.EntryType, item.DecrInfo.Length
	}

	return OpChange, item.DecrInfo.EntryType, item.DecrInfo.Length
}

func displayForEncryptedSide(item *PreSync) (DisplayOperation, EntryType, int64) {
	logRemoved := item.LogEntry != nil && item.LogEntry.EntryType == EntryRemoved

	// encr_changed only fires for a Removed log entry when a stale leftover
	// blob is still present and doesn't match the tombstone. The fix is a
	// Purge: the log is rewritten to match current state, never
	// re-materialized.
	if logRemoved {
		return OpPurge, EntryPurged, 0
	}

	if encrSideAbsent(item) {
		return OpRemove, EntryRemoved, 0
	}

	decrAbsent := item.DecrInfo == nil || item.DecrInfo.EntryType == EntryRemoved
	if decrAbsent {
		return OpAdd, headerEntryType(item), headerLength(item)
	}

	return OpChange, headerEntryType(item), headerLength(item)
}

// encrSideAbsent reports whether the encrypted side, as best known (FS entry
// or decrypted header), no longer represents live content.
func encrSideAbsent(item *PreSync) bool {
	if item.EncrHeader != nil {
		return item.EncrHeader.EntryType == EntryRemoved
	}

	return item.EncrInfo == nil || item.EncrInfo.EntryType == EntryRemoved
}

func headerEntryType(item *PreSync) EntryType {
	if item.EncrHeader != nil {
		return item.EncrHeader.EntryType
	}

	if item.EncrInfo != nil {
		return item.EncrInfo.EntryType
	}

	return EntryUnknown
}

func headerLength(item *PreSync) int64 {
	if item.EncrHeader != nil {
		return item.EncrHeader.Length
	}

	if item.EncrInfo != nil {
		return item.EncrInfo.Length
	}

	return 0
}
