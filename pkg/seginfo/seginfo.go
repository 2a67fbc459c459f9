// Package seginfo provides utilities for managing the numbered data files
// both engines keep in their data directory: Bitcask segments and LSM
// sorted tables.
//
// Filename format (Bitcask segments): a zero-padded 20-digit decimal
// segment id with suffix ".seg" — e.g. "00000000000000000001.seg". The
// id is also the file's ordering key: segment ids are assigned strictly
// ascending across the engine's lifetime, so lexicographic filename sort
// equals creation order.
//
// Filename format (LSM sorted tables): a zero-padded 20-digit decimal
// millisecond timestamp with suffix ".sst" — e.g.
// "00000000001732900000.sst". Unlike segment ids, this number is only a
// uniqueness token; table ordering comes from the manifest, never from
// the filename.
package seginfo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	// SegmentWidth is the fixed digit width of a Bitcask segment id in
	// its filename.
	SegmentWidth = 20

	// SegmentSuffix is the fixed filename suffix for Bitcask segment
	// files.
	SegmentSuffix = ".seg"

	// TableSuffix is the fixed filename suffix for LSM sorted table
	// files.
	TableSuffix = ".sst"
)

// SegmentName returns the filename for a Bitcask segment with the given id.
func SegmentName(id uint64) string {
	return fmt.Sprintf("%0*d%s", SegmentWidth, id, SegmentSuffix)
}

// ParseSegmentID extracts the segment id from a segment filename (a bare
// name, not a path).
func ParseSegmentID(filename string) (uint64, error) {
	base := strings.TrimSuffix(filename, SegmentSuffix)
	if base == filename {
		return 0, fmt.Errorf("seginfo: %q does not have suffix %q", filename, SegmentSuffix)
	}
	id, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("seginfo: failed to parse segment id from %q: %w", filename, err)
	}
	return id, nil
}

// TableName returns the filename for a new sorted table, using the
// provided millisecond timestamp as its uniqueness token.
func TableName(millisToken int64) string {
	return fmt.Sprintf("%0*d%s", SegmentWidth, millisToken, TableSuffix)
}

// ListSegments returns every "*.seg" filename in dir, sorted ascending —
// since segment ids are fixed-width zero-padded, lexicographic sort order
// equals numeric id order.
func ListSegments(dir string) ([]string, error) {
	return listSuffixed(dir, SegmentSuffix)
}

// ListTables returns every "*.sst" filename in dir. Order carries no
// meaning for sorted tables (the manifest is authoritative); callers that
// need a deterministic order for directory scans still get one.
func ListTables(dir string) ([]string, error) {
	return listSuffixed(dir, TableSuffix)
}

func listSuffixed(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), suffix) {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)
	return names, nil
}

// Path joins dir and filename — a small convenience used throughout both
// engines so the join convention stays in one place.
func Path(dir, filename string) string {
	return filepath.Join(dir, filename)
}
