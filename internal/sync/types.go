// Package sync implements the three-way reconciliation engine between a
// decrypted directory tree and its encrypted mirror: the FS overlay, the
// persisted sync log, the matcher/classifier/sorter pipeline, and the
// executor that applies a classified change.
package sync

import (
	"errors"
	"time"
)

// Sentinel errors, grouped by the taxonomy bucket they belong to. Each is
// wrapped with context at the layer that detects it and checked upstream
// with errors.Is/errors.As.
var (
	// Configuration errors — fatal to the run.
	ErrDirectoryIDMismatch = errors.New("sync: encrypted and decrypted directory ids do not match")
	ErrConfigMissing       = errors.New("sync: repository header missing or unreadable")

	// Structural errors — fatal to the operation, sync continues with other items.
	ErrPathOutsideRoot = errors.New("sync: path escapes overlay root")
	ErrNotEmpty        = errors.New("sync: directory not empty")
	ErrAlreadyExists   = errors.New("sync: destination already exists")
	ErrEntryNotFound   = errors.New("sync: entry not found")

	// Integrity errors — fatal to the run.
	ErrCyclicDependency   = errors.New("sync: cyclic dependency in application order")
	ErrHeaderNameMismatch = errors.New("sync: decrypted header name does not re-encode to ciphertext name")

	// Per-item failures — reported, run continues.
	ErrCaseOnlyConflict   = errors.New("sync: case-only conflict on decrypted side")
	ErrUnclassifiable     = errors.New("sync: could not classify change")
	ErrConflictUnresolved = errors.New("sync: item is a conflict, refusing to apply without a chosen side")
)

// EntryType is the tagged kind of an FSEntry or SyncLogEntry side. It is a
// closed set — classification logic switches on it exhaustively rather than
// branching on optional fields.
type EntryType int

const (
	// EntryUnknown is the zero value and never a valid classification result.
	EntryUnknown EntryType = iota
	EntryFile
	EntryDirectory
	EntryRemoved
	EntryPurged
)

func (t EntryType) String() string {
	switch t {
	case EntryFile:
		return "File"
	case EntryDirectory:
		return "Directory"
	case EntryRemoved:
		return "Removed"
	case EntryPurged:
		return "Purged"
	default:
		return "Unknown"
	}
}

// FSEntry is a single node in an FSOverlay tree. RelativePath is always
// stored in universal ("/") form, relative to the overlay's root.
type FSEntry struct {
	RelativePath     string
	EntryType        EntryType
	LastWriteTimeUTC time.Time
	Length           int64

	parentPath string // weak back-reference; empty for the root
}

// IsPresent reports whether the entry represents live content on disk
// (a File or Directory), as opposed to a Removed/Purged tombstone.
func (e FSEntry) IsPresent() bool {
	return e.EntryType == EntryFile || e.EntryType == EntryDirectory
}

// SyncLogEntry is one immutable record in the sync log. EntryType describes
// the state being recorded; EntryRemoved encodes a tombstone and requires
// both file names to be populated with the names that used to exist.
type SyncLogEntry struct {
	EntryType       EntryType `json:"entry_type"`
	DecrFileName    string    `json:"decr_file_name"`
	DecrModifiedUTC time.Time `json:"decr_modified_utc"`
	EncrFileName    string    `json:"encr_file_name"`
	EncrModifiedUTC time.Time `json:"encr_modified_utc"`
}

// EncrHeader is the plaintext metadata recovered by decrypting only the
// header of an encrypted blob, without materializing its contents.
type EncrHeader struct {
	FileName         string
	EntryType        EntryType
	LastWriteTimeUTC time.Time
	Length           int64
}

// SyncMode classifies how a PreSync's two sides relate to the log.
type SyncMode int

const (
	ModeUnchanged SyncMode = iota
	ModeMatch
	ModeConflict
	ModeDecryptedSide
	ModeEncryptedSide
	ModeUnknown
)

func (m SyncMode) String() string {
	switch m {
	case ModeUnchanged:
		return "Unchanged"
	case ModeMatch:
		return "Match"
	case ModeConflict:
		return "Conflict"
	case ModeDecryptedSide:
		return "DecryptedSide"
	case ModeEncryptedSide:
		return "EncryptedSide"
	default:
		return "Unknown"
	}
}

// DisplayOperation is the reported, user-facing action for a classified item.
type DisplayOperation int

const (
	OpNone DisplayOperation = iota
	OpAdd
	OpRemove
	OpChange
	OpPurge
	OpError
)

func (o DisplayOperation) String() string {
	switch o {
	case OpAdd:
		return "Add"
	case OpRemove:
		return "Remove"
	case OpChange:
		return "Change"
	case OpPurge:
		return "Purge"
	case OpError:
		return "Error"
	default:
		return "None"
	}
}

// PreSync is the working record for one logical path during a sync
// invocation: the join of decrypted FS state, encrypted FS state, and the
// persisted log entry, plus the classifier's verdict.
type PreSync struct {
	DecrFileName string
	EncrFileName string

	LogEntry   *SyncLogEntry
	DecrInfo   *FSEntry
	EncrInfo   *FSEntry
	EncrHeader *EncrHeader

	SyncMode          SyncMode
	DisplayOperation  DisplayOperation
	DisplayEntryType  EntryType
	DisplayFileLength int64

	// ClassifyErr carries the reason DisplayOperation is OpError, if any.
	ClassifyErr error
}

// SyncResult is the per-item outcome of TrySync. It is never a panic: a
// failed item is reported here and the driver continues with the rest of
// the ordered plan.
type SyncResult struct {
	Item    PreSync
	Applied bool
	Err     error
}

// Plan is the ordered output of FindChanges: C3+C4+C5 applied to the
// current state of both overlays and the log.
type Plan struct {
	Items      []PreSync
	Total      int
	Added      int
	Removed    int
	Changed    int
	Purged     int
	Errored    int
	Conflicted int
}

// summarize recomputes the per-type counts from Items.
func (p *Plan) summarize() {
	p.Total = len(p.Items)
	p.Added, p.Removed, p.Changed, p.Purged, p.Errored, p.Conflicted = 0, 0, 0, 0, 0, 0

	for _, item := range p.Items {
		if item.SyncMode == ModeConflict {
			p.Conflicted++
		}

		switch item.DisplayOperation {
		case OpAdd:
			p.Added++
		case OpRemove:
			p.Removed++
		case OpChange:
			p.Changed++
		case OpPurge:
			p.Purged++
		case OpError:
			p.Errored++
		}
	}
}
