package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownSections are the valid top-level table names in the config file.
var knownSections = map[string]bool{
	"pair": true, "safety": true, "logging": true,
}

// knownKeys are the valid leaf keys within each known section.
var knownKeys = map[string]map[string]bool{
	"pair": {
		"decrypted_root": true, "encrypted_root": true, "case_sensitive": true,
	},
	"safety": {
		"big_delete_threshold": true, "big_delete_percentage": true, "big_delete_min_items": true,
		"dry_run": true, "sync_dir_permissions": true, "sync_file_permissions": true,
	},
	"logging": {
		"log_level": true, "log_file": true, "log_format": true,
	},
}

// knownKeysList returns the sorted leaf key names for a section, for
// Levenshtein matching. Sorted for deterministic suggestions when two
// candidates have the same edit distance.
func knownKeysList(section string) []string {
	keys := make([]string, 0, len(knownKeys[section]))
	for k := range knownKeys[section] {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// knownSectionsList is the sorted slice form of knownSections.
var knownSectionsList = func() []string {
	keys := make([]string, 0, len(knownSections))
	for k := range knownSections {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		if err := buildKeyError(key.String()); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// buildKeyError creates a descriptive error for an unknown dotted config
// key, optionally suggesting the closest known key.
func buildKeyError(keyStr string) error {
	parts := strings.SplitN(keyStr, ".", 2)
	section := parts[0]

	if !knownSections[section] {
		suggestion := closestMatch(section, knownSectionsList)
		if suggestion != "" {
			return fmt.Errorf("unknown config section %q — did you mean %q?", section, suggestion)
		}

		return fmt.Errorf("unknown config section %q", section)
	}

	if len(parts) == 1 {
		// A bare section name with no leaf key; nothing further to check.
		return nil
	}

	leaf := parts[1]
	if knownKeys[section][leaf] {
		return nil
	}

	suggestion := closestMatch(leaf, knownKeysList(section))
	if suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s] — did you mean %q?", leaf, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", leaf, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Use single-row optimization to avoid allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// minOf returns the minimum of three integers.
func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
