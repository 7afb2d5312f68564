package sync

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/tessaline/helix-sync/internal/codec"
)

// OpenOptions configures Engine construction. Codec, NameEncoder, and
// KeyMaterial are out-of-scope collaborators threaded through unexamined.
type OpenOptions struct {
	CaseSensitive bool
	WhatIf        bool
	Codec         codec.Codec
	NameEncoder   codec.NameEncoder
	KeyMaterial   codec.KeyMaterial
	Logger        *slog.Logger
	// RandomSource seeds the dependency sorter's tie-breaking. Nil uses a
	// math/rand.Rand seeded from a crypto-random source.
	RandomSource RandomSource
}

// Engine wires C1-C6 for one directory pair: both FSOverlays, the sync log,
// the injected codec collaborators, and the dependency sorter's random
// source.
type Engine struct {
	pair      *DirectoryPair
	executor  *Executor
	encoder   codec.NameEncoder
	codecImpl codec.Codec
	key       codec.KeyMaterial
	rng       RandomSource
	logger    *slog.Logger
	header    RepositoryHeader
}

// Open acquires both directory roots as a DirectoryPair, verifies the
// encrypted header's DirectoryID matches the decrypted side's local copy,
// and loads the sync log. Any error during the paired open releases
// whatever was acquired.
func Open(decrRoot, encrRoot string, opts OpenOptions) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	header, err := readRepositoryHeader(encrRoot)
	if err != nil {
		return nil, err
	}

	localID, err := readLocalDirectoryID(decrRoot)
	if err != nil {
		return nil, err
	}

	if header.DirectoryID != localID {
		return nil, fmt.Errorf("%w: encrypted=%s decrypted=%s", ErrDirectoryIDMismatch, header.DirectoryID, localID)
	}

	pair, err := openDirectoryPair(decrRoot, encrRoot, opts.CaseSensitive, opts.WhatIf, logger)
	if err != nil {
		return nil, err
	}

	rng := opts.RandomSource
	if rng == nil {
		rng = rand.New(rand.NewSource(cryptoSeed()))
	}

	logger.Info("opened directory pair",
		slog.String("decrypted_root", decrRoot),
		slog.String("encrypted_root", encrRoot),
		slog.String("directory_id", header.DirectoryID.String()),
	)

	return &Engine{
		pair:      pair,
		executor:  NewExecutor(pair.Decr, pair.Encr, pair.Log, opts.Codec, opts.NameEncoder, opts.KeyMaterial, logger),
		encoder:   opts.NameEncoder,
		codecImpl: opts.Codec,
		key:       opts.KeyMaterial,
		rng:       rng,
		logger:    logger,
		header:    header,
	}, nil
}

// FindChanges runs the matcher, classifier, and dependency sorter over the
// pair's current state and returns an ordered, conflict-classified Plan.
func (e *Engine) FindChanges(ctx context.Context) (Plan, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}

	rawDecrEntries, err := e.pair.Decr.GetEntries("", All)
	if err != nil {
		return Plan{}, fmt.Errorf("enumerating decrypted side: %w", err)
	}

	decrEntries := make([]FSEntry, 0, len(rawDecrEntries))

	for _, entry := range rawDecrEntries {
		if entry.RelativePath == reservedSubdir || strings.HasPrefix(entry.RelativePath, reservedSubdir+"/") {
			continue
		}

		decrEntries = append(decrEntries, entry)
	}

	rawEncrEntries, err := e.pair.Encr.GetEntries("", TopOnly)
	if err != nil {
		return Plan{}, fmt.Errorf("enumerating encrypted side: %w", err)
	}

	encrEntries := make([]FSEntry, 0, len(rawEncrEntries))

	for _, entry := range rawEncrEntries {
		if entry.RelativePath == headerFileName {
			continue
		}

		encrEntries = append(encrEntries, entry)
	}

	items, err := Match(decrEntries, encrEntries, e.pair.Log.LatestEntries(), e.encoder)
	if err != nil {
		return Plan{}, fmt.Errorf("matching: %w", err)
	}

	for i := range items {
		Classify(&items[i])
	}

	if err := e.fetchHeaders(ctx, items); err != nil {
		return Plan{}, err
	}

	changed := make([]PreSync, 0, len(items))

	for _, item := range items {
		if item.SyncMode != ModeUnchanged {
			changed = append(changed, item)
		}
	}

	ordered, err := SortByDependency(changed, e.rng)
	if err != nil {
		return Plan{}, fmt.Errorf("ordering plan: %w", err)
	}

	plan := Plan{Items: ordered}
	plan.summarize()

	e.logger.Info("plan complete",
		slog.Int("total", plan.Total),
		slog.Int("added", plan.Added),
		slog.Int("removed", plan.Removed),
		slog.Int("changed", plan.Changed),
		slog.Int("purged", plan.Purged),
		slog.Int("errored", plan.Errored),
		slog.Int("conflicted", plan.Conflicted),
	)

	return plan, nil
}

// fetchHeaders decrypts the header of every item with an encrypted-side
// presence, resolves any still-unknown decrypted name from it, and
// re-classifies with the header now available.
func (e *Engine) fetchHeaders(ctx context.Context, items []PreSync) error {
	for i := range items {
		if items[i].EncrInfo == nil {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		encrAbs := e.pair.Encr.absPath(items[i].EncrInfo.RelativePath)

		header, err := e.codecImpl.DecryptHeader(encrAbs, e.key)
		if err != nil {
			e.logger.Warn("header decryption failed",
				slog.String("encr_file_name", items[i].EncrInfo.RelativePath),
				slog.String("error", err.Error()),
			)

			items[i].SyncMode = ModeUnknown
			items[i].DisplayOperation = OpError
			items[i].ClassifyErr = fmt.Errorf("decrypting header: %w", err)

			continue
		}

		items[i].EncrHeader = &EncrHeader{
			FileName:         header.FileName,
			EntryType:        EntryType(header.EntryType),
			LastWriteTimeUTC: header.LastWriteTimeUTC,
			Length:           header.Length,
		}

		if err := ResolveFromHeader(&items[i], e.encoder); err != nil {
			return fmt.Errorf("resolving header name: %w", err)
		}

		Classify(&items[i])
	}

	return nil
}

// TrySync applies a single ordered item and returns its outcome.
func (e *Engine) TrySync(ctx context.Context, item PreSync) SyncResult {
	return e.executor.TrySync(ctx, item)
}

// Reset re-reads FS state on both overlays and reloads the sync log,
// without re-validating the DirectoryID or reopening the pair.
func (e *Engine) Reset() error {
	e.pair.Decr.Reset()
	e.pair.Encr.Reset()

	return e.pair.Log.Reload()
}

// Close releases both directory handles and the log file.
func (e *Engine) Close() error {
	return e.pair.Close()
}

func cryptoSeed() int64 {
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		return 1
	}

	return int64(binary.LittleEndian.Uint64(buf[:]) &^ (1 << 63))
}
