// Package codec declares the collaborator interfaces the sync engine calls
// into for per-file encryption and filename obfuscation. Key derivation,
// AEAD framing, and the header wire format live on the other side of this
// boundary and are not implemented here.
package codec

import "time"

// KeyMaterial is opaque to the sync engine: it is threaded through to a
// Codec but never inspected.
type KeyMaterial interface{}

// FileEntry is the plaintext metadata a Codec reads from or writes into an
// encrypted file's header.
type FileEntry struct {
	FileName         string
	EntryType        int // mirrors sync.EntryType's int encoding
	LastWriteTimeUTC time.Time
	Length           int64
}

// EncryptOptions controls how EncryptFile populates the header it writes.
type EncryptOptions struct {
	// StoredFileName overrides the on-disk logical name recorded in the
	// header; callers pass the decrypted relative path here since the
	// ciphertext filename itself is an opaque encoding.
	StoredFileName string
	FileVersion    int
	// BeforeWriteHeader, if set, is called with the header FileEntry is
	// about to write, allowing the caller to adjust fields (such as a
	// monotonically-advanced timestamp) before it is committed.
	BeforeWriteHeader func(FileEntry) FileEntry
}

// Codec performs per-file encryption, decryption, and header-only
// decryption. Implementations own key derivation and AEAD framing.
type Codec interface {
	EncryptFile(decrPath, encrPath string, key KeyMaterial, opts EncryptOptions) (FileEntry, error)
	DecryptFile(encrPath, decrPath string, key KeyMaterial) error
	DecryptHeader(encrPath string, key KeyMaterial) (FileEntry, error)
}

// NameEncoder deterministically maps a decrypted relative path to the
// ciphertext filename it is stored under.
type NameEncoder interface {
	Encode(decrRelativePath string) (string, error)
}
