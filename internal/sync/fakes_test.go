package sync

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tessaline/helix-sync/internal/codec"
)

// testLogger returns a quiet slog.Logger that discards output, used by
// every test in this package so failures aren't drowned in log noise.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeNameEncoder deterministically maps a decrypted relative path to an
// "ENC_"-prefixed, slash-to-underscore ciphertext name, standing in for the
// real obfuscating encoder (an out-of-scope collaborator).
type fakeNameEncoder struct {
	failOn map[string]error
}

func (f fakeNameEncoder) Encode(decrRelativePath string) (string, error) {
	if f.failOn != nil {
		if err, ok := f.failOn[decrRelativePath]; ok {
			return "", err
		}
	}

	return "ENC_" + strings.ReplaceAll(decrRelativePath, "/", "_"), nil
}

// fakeKeyMaterial satisfies codec.KeyMaterial, which is opaque by design.
type fakeKeyMaterial struct{}

// fakeCodec is a hand-written test double for codec.Codec. It copies
// plaintext bytes unchanged and keeps each written header in memory, keyed
// by encrypted path, instead of performing any real cryptography, letting
// executor/engine tests exercise the full
// encrypt/decrypt/header round trip without a real collaborator.
type fakeCodec struct {
	headers     map[string]codec.FileEntry // encrPath -> header to report from DecryptHeader
	failDecrypt map[string]error
	failEncrypt map[string]error
	failHeader  map[string]error
}

func newFakeCodec() *fakeCodec {
	return &fakeCodec{
		headers: make(map[string]codec.FileEntry),
	}
}

func (f *fakeCodec) EncryptFile(decrPath, encrPath string, _ codec.KeyMaterial, opts codec.EncryptOptions) (codec.FileEntry, error) {
	if err, ok := f.failEncrypt[encrPath]; ok {
		return codec.FileEntry{}, err
	}

	data, err := os.ReadFile(decrPath)
	if err != nil {
		return codec.FileEntry{}, fmt.Errorf("fake encrypt reading %s: %w", decrPath, err)
	}

	info, err := os.Stat(decrPath)
	if err != nil {
		return codec.FileEntry{}, fmt.Errorf("fake encrypt stat %s: %w", decrPath, err)
	}

	header := codec.FileEntry{
		FileName:         opts.StoredFileName,
		EntryType:        int(EntryFile),
		LastWriteTimeUTC: info.ModTime().UTC(),
		Length:           int64(len(data)),
	}

	if opts.BeforeWriteHeader != nil {
		header = opts.BeforeWriteHeader(header)
	}

	if err := os.WriteFile(encrPath, data, 0o600); err != nil {
		return codec.FileEntry{}, fmt.Errorf("fake encrypt writing %s: %w", encrPath, err)
	}

	if !header.LastWriteTimeUTC.IsZero() {
		if err := os.Chtimes(encrPath, header.LastWriteTimeUTC, header.LastWriteTimeUTC); err != nil {
			return codec.FileEntry{}, fmt.Errorf("fake encrypt chtimes %s: %w", encrPath, err)
		}
	}

	f.headers[encrPath] = header

	return header, nil
}

func (f *fakeCodec) DecryptFile(encrPath, decrPath string, _ codec.KeyMaterial) error {
	if err, ok := f.failDecrypt[encrPath]; ok {
		return err
	}

	data, err := os.ReadFile(encrPath)
	if err != nil {
		return fmt.Errorf("fake decrypt reading %s: %w", encrPath, err)
	}

	return os.WriteFile(decrPath, data, 0o600)
}

func (f *fakeCodec) DecryptHeader(encrPath string, _ codec.KeyMaterial) (codec.FileEntry, error) {
	if err, ok := f.failHeader[encrPath]; ok {
		return codec.FileEntry{}, err
	}

	if h, ok := f.headers[encrPath]; ok {
		return h, nil
	}

	info, err := os.Stat(encrPath)
	if err != nil {
		return codec.FileEntry{}, fmt.Errorf("fake header stat %s: %w", encrPath, err)
	}

	return codec.FileEntry{
		FileName:         info.Name(),
		EntryType:        int(EntryFile),
		LastWriteTimeUTC: info.ModTime().UTC(),
		Length:           info.Size(),
	}, nil
}

// fixedRNG is a deterministic RandomSource for depsort tests: it always
// drains the ready set front-to-back, making assertions order-stable.
type fixedRNG struct{}

func (fixedRNG) Intn(int) int { return 0 }

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}

	return t
}
