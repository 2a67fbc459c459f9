// Package manifest tracks which sorted tables currently make up an LSM
// engine's on-disk state, newest first, and persists that list durably
// so a restart knows exactly which *.sst files are live versus orphaned.
package manifest

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"

	"github.com/strata-db/strata/internal/sstable"
	"github.com/strata-db/strata/pkg/errors"
	"github.com/strata-db/strata/pkg/filesys"
)

// FileName is the manifest's fixed name within an engine's data
// directory.
const FileName = "MANIFEST.txt"

// Manifest holds the live, newest-first list of table paths and a
// reader opened against each one. Every mutation rebuilds the reader
// slice and closes any reader it displaces before returning, so a
// caller never observes a stale reader for a table no longer listed.
type Manifest struct {
	mu      sync.RWMutex
	dir     string
	path    string
	tables  []string
	readers []*sstable.Reader
}

// Open loads dir's manifest file if one exists, opening a reader for
// every listed table, or starts an empty manifest if the file is
// absent (a brand-new engine instance).
func Open(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	m := &Manifest{dir: dir, path: path}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to open manifest").WithPath(path)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		reader, err := sstable.Open(line)
		if err != nil {
			m.closeReaders()
			return nil, err
		}

		m.tables = append(m.tables, line)
		m.readers = append(m.readers, reader)
	}
	if err := scanner.Err(); err != nil {
		m.closeReaders()
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to scan manifest").WithPath(path)
	}

	return m, nil
}

// AddHead opens a reader for path and prepends it to the manifest as the
// newest table, then persists the manifest atomically. Used after a
// memtable flush produces a new table.
func (m *Manifest) AddHead(path string) error {
	reader, err := sstable.Open(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.tables = append([]string{path}, m.tables...)
	m.readers = append([]*sstable.Reader{reader}, m.readers...)
	m.mu.Unlock()

	return m.StoreAtomic()
}

// Replace removes every table path in old from the manifest, closing
// their readers, and appends merged in their place as the new oldest
// table — merged already combines everything those tables held, so it
// belongs behind anything not folded into it. The manifest is persisted
// atomically before Replace returns.
func (m *Manifest) Replace(old []string, merged string) error {
	reader, err := sstable.Open(merged)
	if err != nil {
		return err
	}

	removed := make(map[string]bool, len(old))
	for _, p := range old {
		removed[p] = true
	}

	m.mu.Lock()
	var newTables []string
	var newReaders []*sstable.Reader
	var closeErr error

	for i, p := range m.tables {
		if removed[p] {
			closeErr = multierr.Append(closeErr, m.readers[i].Close())
			continue
		}
		newTables = append(newTables, p)
		newReaders = append(newReaders, m.readers[i])
	}

	newTables = append(newTables, merged)
	newReaders = append(newReaders, reader)
	m.tables = newTables
	m.readers = newReaders
	m.mu.Unlock()

	if closeErr != nil {
		return errors.NewStorageError(closeErr, errors.ErrorCodeIO, "failed to close superseded table readers")
	}

	return m.StoreAtomic()
}

// ReadersNewestFirst returns the manifest's current readers in the same
// newest-first order as the table list. The returned slice is a copy;
// mutating it does not affect the manifest.
func (m *Manifest) ReadersNewestFirst() []*sstable.Reader {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*sstable.Reader, len(m.readers))
	copy(out, m.readers)
	return out
}

// OldestN returns the paths of up to the n oldest tables, for a
// size-tiered compaction pass to merge. If fewer than n tables exist, it
// returns all of them.
func (m *Manifest) OldestN(n int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n > len(m.tables) {
		n = len(m.tables)
	}
	out := make([]string, n)
	copy(out, m.tables[len(m.tables)-n:])
	return out
}

// StoreAtomic writes the current table list, one path per line, to a
// temp file and renames it into place, then fsyncs the directory so the
// rename itself survives a crash.
func (m *Manifest) StoreAtomic() error {
	m.mu.RLock()
	var buf bytes.Buffer
	for _, t := range m.tables {
		buf.WriteString(t)
		buf.WriteByte('\n')
	}
	m.mu.RUnlock()

	if err := filesys.AtomicWriteFile(m.path, buf.Bytes()); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to publish manifest").WithPath(m.path)
	}
	if err := filesys.FsyncDir(m.dir); err != nil {
		return errors.ClassifySyncError(err, FileName, m.dir, 0)
	}

	return nil
}

// Close closes every table reader the manifest holds open.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeReaders()
}

func (m *Manifest) closeReaders() error {
	var err error
	for _, r := range m.readers {
		err = multierr.Append(err, r.Close())
	}
	return err
}
