package sync

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

// GetEntriesMode controls how deep GetEntries loads before returning.
type GetEntriesMode int

const (
	// TopOnly loads (if not already loaded) only the immediate children of
	// the requested directory.
	TopOnly GetEntriesMode = iota
	// All recursively loads every descendant before returning.
	All
)

// node is the overlay's internal representation of one FSEntry plus the
// directory bookkeeping (ordered children, lazy-load flags) described by
// FSDirectory. Files never populate the directory fields.
type node struct {
	entry FSEntry

	// children maps the case-folded lookup key to the child's canonical
	// (on-disk) relative path. Ordered traversal uses childOrder.
	children   map[string]string
	childOrder []string

	isLoaded     bool
	isLoadedDeep bool
}

// FSOverlay is a cached, path-indexed view of a directory tree. In what-if
// mode every mutator updates the in-memory tree without touching disk,
// so a dry-run reconciliation observes the same classifications a real run
// would produce.
type FSOverlay struct {
	root          string
	caseSensitive bool
	whatIf        bool
	logger        *slog.Logger

	mu    gosync.Mutex
	nodes map[string]*node // keyed by case-folded relative path; "" is the root
}

// NewOverlay opens an FSOverlay rooted at path. whatIf selects dry-run mode:
// no mutator touches disk, but the in-memory tree behaves as if it had.
func NewOverlay(rootPath string, caseSensitive, whatIf bool, logger *slog.Logger) (*FSOverlay, error) {
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("opening overlay root %s: %w", rootPath, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("overlay root %s is not a directory", rootPath)
	}

	o := &FSOverlay{
		root:          rootPath,
		caseSensitive: caseSensitive,
		whatIf:        whatIf,
		logger:        logger,
		nodes:         make(map[string]*node),
	}

	o.nodes[""] = &node{
		entry: FSEntry{RelativePath: "", EntryType: EntryDirectory, LastWriteTimeUTC: info.ModTime()},
	}

	return o, nil
}

// foldKey returns the lookup key for a universal relative path under this
// overlay's case rule.
func (o *FSOverlay) foldKey(relPath string) string {
	if o.caseSensitive {
		return relPath
	}

	return strings.ToLower(relPath)
}

// toUniversal canonicalizes an externally supplied path (absolute under the
// root, or already relative) into root-relative universal ("/") form.
// Paths outside the root are rejected.
func (o *FSOverlay) toUniversal(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(o.root, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, p)
		}

		p = rel
	}

	universal := filepath.ToSlash(p)

	clean := path.Clean(universal)
	if clean == "." {
		return "", nil
	}

	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, p)
	}

	return strings.TrimPrefix(clean, "/"), nil
}

// TryGetEntry returns the cached FSEntry for p, if present. It does not
// trigger a load; callers that need a directory's children populated must
// call GetEntries first.
func (o *FSOverlay) TryGetEntry(p string) (FSEntry, bool, error) {
	rel, err := o.toUniversal(p)
	if err != nil {
		return FSEntry{}, false, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	n, ok := o.nodes[o.foldKey(rel)]
	if !ok {
		return FSEntry{}, false, nil
	}

	return n.entry, true, nil
}

// GetEntries returns the children of the directory at p (root if p is
// empty), or in All mode every descendant flattened into one list, loading
// them from disk first if they are not already cached at the requested depth.
func (o *FSOverlay) GetEntries(p string, mode GetEntriesMode) ([]FSEntry, error) {
	rel, err := o.toUniversal(p)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	n, ok := o.nodes[o.foldKey(rel)]
	if !ok || n.entry.EntryType != EntryDirectory {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, p)
	}

	if mode == All {
		if err := o.loadDeep(rel, n); err != nil {
			return nil, err
		}

		entries := make([]FSEntry, 0)
		o.collectDeep(n, &entries)

		return entries, nil
	}

	if !n.isLoaded {
		if err := o.loadTop(rel, n); err != nil {
			return nil, err
		}
	}

	entries := make([]FSEntry, 0, len(n.childOrder))

	for _, key := range n.childOrder {
		childPath := n.children[key]
		entries = append(entries, o.nodes[o.foldKey(childPath)].entry)
	}

	return entries, nil
}

// collectDeep appends every descendant of n (files and directories alike,
// so an empty directory still surfaces as an entry) to out, depth-first.
// Caller holds o.mu.
func (o *FSOverlay) collectDeep(n *node, out *[]FSEntry) {
	for _, key := range n.childOrder {
		childPath := n.children[key]
		child := o.nodes[o.foldKey(childPath)]

		*out = append(*out, child.entry)

		if child.entry.EntryType == EntryDirectory {
			o.collectDeep(child, out)
		}
	}
}

// loadTop populates one level of children for the directory node n, whose
// universal relative path is rel. Caller holds o.mu.
func (o *FSOverlay) loadTop(rel string, n *node) error {
	absDir := o.absPath(rel)

	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", absDir, err)
	}

	n.children = make(map[string]string, len(dirEntries))
	n.childOrder = n.childOrder[:0]

	for _, de := range dirEntries {
		// Normalize to NFC so a name that arrives decomposed (accented
		// characters split into base+combining form) still folds to the
		// same identity as its precomposed spelling elsewhere in the tree.
		childRel := joinUniversal(rel, norm.NFC.String(de.Name()))

		info, err := de.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", childRel, err)
		}

		childEntry := FSEntry{
			RelativePath:     childRel,
			LastWriteTimeUTC: info.ModTime().UTC(),
			parentPath:       rel,
		}

		if de.IsDir() {
			childEntry.EntryType = EntryDirectory
		} else {
			childEntry.EntryType = EntryFile
			childEntry.Length = info.Size()
		}

		key := o.foldKey(childRel)
		if _, dup := n.children[key]; dup {
			o.logger.Warn("duplicate child name under case rule", "parent", rel, "child", de.Name())
			continue
		}

		n.children[key] = childRel
		n.childOrder = append(n.childOrder, key)

		if existing, ok := o.nodes[key]; ok {
			existing.entry = childEntry
		} else {
			o.nodes[key] = &node{entry: childEntry}
		}
	}

	n.isLoaded = true

	return nil
}

// loadDeep recursively loads every descendant of the directory node n.
func (o *FSOverlay) loadDeep(rel string, n *node) error {
	if n.isLoadedDeep {
		return nil
	}

	if !n.isLoaded {
		if err := o.loadTop(rel, n); err != nil {
			return err
		}
	}

	for _, key := range n.childOrder {
		child := o.nodes[key]
		if child.entry.EntryType == EntryDirectory {
			if err := o.loadDeep(child.entry.RelativePath, child); err != nil {
				return err
			}
		}
	}

	n.isLoadedDeep = true

	return nil
}

// RefreshEntry re-stats the file or directory at relPath and replaces the
// cached entry wholesale in the parent's child map — never mutating a
// stale entry in place, so invariant #1 (no duplicate names) cannot be
// violated by a stray double-insert.
func (o *FSOverlay) RefreshEntry(relPath string) (FSEntry, error) {
	rel, err := o.toUniversal(relPath)
	if err != nil {
		return FSEntry{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	abs := o.absPath(rel)

	info, statErr := os.Stat(abs)

	parentRel := parentOf(rel)
	parentNode, ok := o.nodes[o.foldKey(parentRel)]
	if !ok {
		return FSEntry{}, fmt.Errorf("%w: parent of %s", ErrEntryNotFound, rel)
	}

	key := o.foldKey(rel)

	if statErr != nil {
		// No longer on disk: drop it wholesale from the parent's children.
		if parentNode.children != nil {
			delete(parentNode.children, key)
			parentNode.childOrder = removeKey(parentNode.childOrder, key)
		}

		delete(o.nodes, key)

		return FSEntry{RelativePath: rel, EntryType: EntryRemoved}, nil
	}

	entry := FSEntry{
		RelativePath:     rel,
		LastWriteTimeUTC: info.ModTime().UTC(),
		parentPath:       parentRel,
	}

	if info.IsDir() {
		entry.EntryType = EntryDirectory
	} else {
		entry.EntryType = EntryFile
		entry.Length = info.Size()
	}

	if parentNode.children == nil {
		parentNode.children = make(map[string]string)
	}

	if _, existed := parentNode.children[key]; !existed {
		parentNode.children[key] = rel
		parentNode.childOrder = append(parentNode.childOrder, key)
	} else {
		parentNode.children[key] = rel
	}

	o.nodes[key] = &node{entry: entry}

	return entry, nil
}

// MoveFile relocates srcEntry to destPath. Fails if the destination already
// exists or its parent directory is missing.
func (o *FSOverlay) MoveFile(srcEntry FSEntry, destPath string) (FSEntry, error) {
	destRel, err := o.toUniversal(destPath)
	if err != nil {
		return FSEntry{}, err
	}

	o.mu.Lock()

	destKey := o.foldKey(destRel)
	if _, exists := o.nodes[destKey]; exists {
		o.mu.Unlock()
		return FSEntry{}, fmt.Errorf("%w: %s", ErrAlreadyExists, destRel)
	}

	destParentRel := parentOf(destRel)

	destParent, ok := o.nodes[o.foldKey(destParentRel)]
	if !ok {
		o.mu.Unlock()
		return FSEntry{}, fmt.Errorf("%w: destination parent %s", ErrEntryNotFound, destParentRel)
	}

	o.mu.Unlock()

	if !o.whatIf {
		if err := os.Rename(o.absPath(srcEntry.RelativePath), o.absPath(destRel)); err != nil {
			return FSEntry{}, fmt.Errorf("renaming %s to %s: %w", srcEntry.RelativePath, destRel, err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	srcKey := o.foldKey(srcEntry.RelativePath)

	if srcParent, ok := o.nodes[o.foldKey(parentOf(srcEntry.RelativePath))]; ok && srcParent.children != nil {
		delete(srcParent.children, srcKey)
		srcParent.childOrder = removeKey(srcParent.childOrder, srcKey)
	}

	delete(o.nodes, srcKey)

	newEntry := srcEntry
	newEntry.RelativePath = destRel
	newEntry.parentPath = destParentRel

	if destParent.children == nil {
		destParent.children = make(map[string]string)
	}

	destParent.children[destKey] = destRel
	destParent.childOrder = append(destParent.childOrder, destKey)

	o.nodes[destKey] = &node{entry: newEntry}

	return newEntry, nil
}

// DeleteFile removes entry's file from the tree (and, unless what-if,
// from disk).
func (o *FSOverlay) DeleteFile(entry FSEntry) error {
	return o.deleteEntry(entry, false)
}

// DeleteDirectory removes entry's directory. A non-recursive delete fails
// if the directory has any cached children.
func (o *FSOverlay) DeleteDirectory(entry FSEntry, recursive bool) error {
	o.mu.Lock()
	n, ok := o.nodes[o.foldKey(entry.RelativePath)]
	if ok && !recursive && len(n.childOrder) > 0 {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotEmpty, entry.RelativePath)
	}
	o.mu.Unlock()

	return o.deleteEntry(entry, true)
}

func (o *FSOverlay) deleteEntry(entry FSEntry, isDir bool) error {
	if !o.whatIf {
		abs := o.absPath(entry.RelativePath)

		var err error
		if isDir {
			err = os.RemoveAll(abs)
		} else {
			err = os.Remove(abs)
		}

		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting %s: %w", entry.RelativePath, err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	key := o.foldKey(entry.RelativePath)

	if parent, ok := o.nodes[o.foldKey(parentOf(entry.RelativePath))]; ok && parent.children != nil {
		delete(parent.children, key)
		parent.childOrder = removeKey(parent.childOrder, key)
	}

	delete(o.nodes, key)

	return nil
}

// WhatIfAddFile inserts a ghost FSEntry with the given length and the
// current time as last-write-time, without touching disk. Valid in any
// mode, but only useful for simulating an add in what-if runs.
func (o *FSOverlay) WhatIfAddFile(relPath string, length int64, now time.Time) (FSEntry, error) {
	rel, err := o.toUniversal(relPath)
	if err != nil {
		return FSEntry{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	parentRel := parentOf(rel)

	parent, ok := o.nodes[o.foldKey(parentRel)]
	if !ok {
		return FSEntry{}, fmt.Errorf("%w: parent of %s", ErrEntryNotFound, rel)
	}

	entry := FSEntry{
		RelativePath:     rel,
		EntryType:        EntryFile,
		Length:           length,
		LastWriteTimeUTC: now,
		parentPath:       parentRel,
	}

	key := o.foldKey(rel)

	if parent.children == nil {
		parent.children = make(map[string]string)
	}

	if _, existed := parent.children[key]; !existed {
		parent.children[key] = rel
		parent.childOrder = append(parent.childOrder, key)
	}

	o.nodes[key] = &node{entry: entry}

	return entry, nil
}

// Reset discards all cached children and reverts every directory's
// isLoaded/isLoadedDeep flags to false. The root entry itself is kept.
func (o *FSOverlay) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	root := o.nodes[""]
	o.nodes = map[string]*node{"": root}
	root.children = nil
	root.childOrder = nil
	root.isLoaded = false
	root.isLoadedDeep = false
}

func (o *FSOverlay) absPath(rel string) string {
	if rel == "" {
		return o.root
	}

	return filepath.Join(o.root, filepath.FromSlash(rel))
}

func parentOf(rel string) string {
	if rel == "" {
		return ""
	}

	idx := strings.LastIndex(rel, "/")
	if idx < 0 {
		return ""
	}

	return rel[:idx]
}

func joinUniversal(dir, name string) string {
	if dir == "" {
		return name
	}

	return dir + "/" + name
}

func removeKey(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}

	return keys
}
