package sync

import (
	"fmt"

	"github.com/tessaline/helix-sync/internal/codec"
)

// Match joins decrypted entries, encrypted entries, and the log's
// deduplicated per-name history into a PreSync record per logical path.
// decrEntries is the full recursive decrypted-side enumeration; encrEntries
// is the top-level encrypted-side enumeration with reserved files already
// excluded by the caller.
func Match(decrEntries, encrEntries []FSEntry, logEntries []SyncLogEntry, encoder codec.NameEncoder) ([]PreSync, error) {
	items := make([]PreSync, 0, len(logEntries)+len(decrEntries)+len(encrEntries))
	byDecrName := make(map[string]int, len(logEntries))

	for _, entry := range logEntries {
		idx := len(items)
		e := entry
		items = append(items, PreSync{
			DecrFileName: entry.DecrFileName,
			EncrFileName: entry.EncrFileName,
			LogEntry:     &e,
		})
		byDecrName[entry.DecrFileName] = idx
	}

	for i := range decrEntries {
		d := decrEntries[i]

		if idx, ok := byDecrName[d.RelativePath]; ok {
			items[idx].DecrInfo = &d
			continue
		}

		idx := len(items)
		items = append(items, PreSync{DecrInfo: &d})
		byDecrName[d.RelativePath] = idx
	}

	for i := range items {
		if items[i].DecrFileName != "" || items[i].DecrInfo == nil {
			continue
		}

		items[i].DecrFileName = items[i].DecrInfo.RelativePath

		encoded, err := encoder.Encode(items[i].DecrFileName)
		if err != nil {
			return nil, fmt.Errorf("encoding name for %s: %w", items[i].DecrFileName, err)
		}

		items[i].EncrFileName = encoded
	}

	byEncrName := make(map[string]int, len(items))

	for i := range items {
		if items[i].EncrFileName != "" {
			byEncrName[items[i].EncrFileName] = i
		}
	}

	for i := range encrEntries {
		e := encrEntries[i]

		if idx, ok := byEncrName[e.RelativePath]; ok {
			items[idx].EncrInfo = &e
			continue
		}

		items = append(items, PreSync{EncrFileName: e.RelativePath, EncrInfo: &e})
	}

	return items, nil
}
