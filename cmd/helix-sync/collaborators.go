package main

import (
	"errors"

	"github.com/tessaline/helix-sync/internal/codec"
)

// errCollaboratorUnimplemented is returned by the stub Codec/NameEncoder
// below. The actual encryption codec and filename encoder are a separate
// concern from reconciliation and are wired in at the binary's build site,
// not implemented here.
var errCollaboratorUnimplemented = errors.New("helix-sync: no codec configured for this build")

// unimplementedCodec satisfies codec.Codec so the CLI skeleton compiles and
// runs against a repository header, but refuses to touch any ciphertext
// until a real implementation is linked in.
type unimplementedCodec struct{}

func (unimplementedCodec) EncryptFile(string, string, codec.KeyMaterial, codec.EncryptOptions) (codec.FileEntry, error) {
	return codec.FileEntry{}, errCollaboratorUnimplemented
}

func (unimplementedCodec) DecryptFile(string, string, codec.KeyMaterial) error {
	return errCollaboratorUnimplemented
}

func (unimplementedCodec) DecryptHeader(string, codec.KeyMaterial) (codec.FileEntry, error) {
	return codec.FileEntry{}, errCollaboratorUnimplemented
}

// unimplementedNameEncoder satisfies codec.NameEncoder for the same reason.
type unimplementedNameEncoder struct{}

func (unimplementedNameEncoder) Encode(string) (string, error) {
	return "", errCollaboratorUnimplemented
}
