// Package sstable implements the immutable, sorted, sparse-indexed table
// file the LSM engine flushes memtables into and compacts older tables
// down to.
//
// A table file has three parts, written in this order and never touched
// again after the writer closes it: a data block of ascending
// [klen][vlen][key][value] entries, a sparse index block recording the
// offset of every Nth data entry, and a fixed 20-byte footer locating the
// index block. Writers publish the whole file atomically (temp file,
// then rename) so a reader never observes a partially written table.
package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/strata-db/strata/pkg/errors"
	"github.com/strata-db/strata/pkg/filesys"
	"github.com/strata-db/strata/pkg/seginfo"
)

// FooterMagic identifies a well-formed table footer.
const FooterMagic uint32 = 0x53535431

// FooterSize is the fixed width of the trailing footer.
const FooterSize = 4 + 4 + 8 + 4

// ErrCorruptFooter is returned by Open when a table's footer fails its
// magic-number or integrity check. Unlike a torn tail mid-scan, this is a
// hard error: a table whose footer can't be trusted can't be searched at
// all, so the engine must refuse to serve reads from it.
var ErrCorruptFooter = fmt.Errorf("sstable: corrupt footer")

// Entry is one key/value pair written to a table. A zero-length Value
// denotes a tombstone carried through a flush or compaction; interpreting
// it as such is the calling engine's policy, not this package's.
type Entry struct {
	Key   []byte
	Value []byte
}

// Write sorts (if needed) and serializes entries into a new table file in
// dir, with one sparse index entry for every stride data entries. It
// stages the file content in a temp file via natefinch/atomic and
// renames it into place, then fsyncs dir so the rename itself survives a
// crash. It returns the table's final path.
//
// Duplicate keys are forbidden by the table format; Write reports them as
// a TableError rather than silently keeping one.
func Write(dir string, entries []Entry, stride int) (string, error) {
	if len(entries) == 0 {
		return "", errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "cannot write an empty table").
			WithField("entries").WithRule("non-empty")
	}
	if stride <= 0 {
		stride = 1
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0
	})

	for i := 1; i < len(sorted); i++ {
		if bytes.Equal(sorted[i].Key, sorted[i-1].Key) {
			return "", errors.NewTableError(nil, errors.ErrorCodeTableDuplicateKey, "duplicate key in sorted table input").
				WithDetail("key", string(sorted[i].Key))
		}
	}

	var data bytes.Buffer
	type sparseEntry struct {
		key    []byte
		offset int64
	}
	var sparse []sparseEntry

	for i, e := range sorted {
		if i%stride == 0 {
			sparse = append(sparse, sparseEntry{key: e.Key, offset: int64(data.Len())})
		}

		header := make([]byte, 8)
		binary.BigEndian.PutUint32(header[0:4], uint32(len(e.Key)))
		binary.BigEndian.PutUint32(header[4:8], uint32(len(e.Value)))
		data.Write(header)
		data.Write(e.Key)
		data.Write(e.Value)
	}

	indexStart := int64(data.Len())
	var index bytes.Buffer
	for _, s := range sparse {
		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, uint32(len(s.key)))
		index.Write(header)
		index.Write(s.key)

		offsetBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(offsetBuf, uint64(s.offset))
		index.Write(offsetBuf)
	}

	checksum := crc32.NewIEEE()
	checksum.Write(data.Bytes())
	checksum.Write(index.Bytes())

	footer := make([]byte, FooterSize)
	binary.BigEndian.PutUint32(footer[0:4], FooterMagic)
	binary.BigEndian.PutUint32(footer[4:8], uint32(len(sparse)))
	binary.BigEndian.PutUint64(footer[8:16], uint64(indexStart))
	binary.BigEndian.PutUint32(footer[16:20], checksum.Sum32())

	var full bytes.Buffer
	full.Write(data.Bytes())
	full.Write(index.Bytes())
	full.Write(footer)

	path, err := reservePath(dir)
	if err != nil {
		return "", err
	}

	if err := filesys.AtomicWriteFile(path, full.Bytes()); err != nil {
		return "", errors.NewTableError(err, errors.ErrorCodeIO, "failed to publish sorted table").WithPath(path)
	}

	if err := filesys.FsyncDir(dir); err != nil {
		return "", errors.ClassifySyncError(err, filepath.Base(path), dir, 0)
	}

	return path, nil
}

// reservePath picks a filename for a new table using the current
// millisecond timestamp as a uniqueness token, nudging forward on
// collision — two flushes or a flush racing a compaction in the same
// millisecond is rare but not impossible.
func reservePath(dir string) (string, error) {
	token := time.Now().UnixMilli()
	for i := 0; i < 1_000_000; i++ {
		path := seginfo.Path(dir, seginfo.TableName(token+int64(i)))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
	return "", fmt.Errorf("sstable: could not find a free table filename in %s", dir)
}

// indexEntry is one in-memory sparse index record.
type indexEntry struct {
	Key    []byte
	Offset int64
}

// Reader opens a table read-only and keeps its sparse index in memory.
// Its single *os.File handle is used only through ReadAt, which performs
// positional reads with no shared cursor, so a Reader is safe to use
// concurrently from many goroutines across distinct regions of the file.
type Reader struct {
	path       string
	file       *os.File
	index      []indexEntry
	indexStart int64
}

// Open parses path's footer, loads its sparse index into memory, and
// returns a Reader ready for concurrent Get/RangeIter calls. A bad footer
// is a hard error: the table is never returned to the caller.
func Open(path string) (*Reader, error) {
	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.NewTableError(err, errors.ErrorCodeIO, "failed to stat table").WithPath(path)
	}
	if info.Size() < FooterSize {
		file.Close()
		return nil, errors.NewTableError(ErrCorruptFooter, errors.ErrorCodeTableCorruptFooter, "table smaller than its footer").WithPath(path)
	}

	footer := make([]byte, FooterSize)
	if _, err := file.ReadAt(footer, info.Size()-FooterSize); err != nil {
		file.Close()
		return nil, errors.NewTableError(err, errors.ErrorCodeIO, "failed to read table footer").WithPath(path)
	}

	magic := binary.BigEndian.Uint32(footer[0:4])
	indexCount := binary.BigEndian.Uint32(footer[4:8])
	indexStart := int64(binary.BigEndian.Uint64(footer[8:16]))
	storedChecksum := binary.BigEndian.Uint32(footer[16:20])

	if magic != FooterMagic {
		file.Close()
		return nil, errors.NewTableError(ErrCorruptFooter, errors.ErrorCodeTableCorruptFooter, "bad table footer magic").WithPath(path)
	}

	bodySize := info.Size() - FooterSize
	body := make([]byte, bodySize)
	if _, err := file.ReadAt(body, 0); err != nil {
		file.Close()
		return nil, errors.NewTableError(err, errors.ErrorCodeIO, "failed to read table body").WithPath(path)
	}
	if crc32.ChecksumIEEE(body) != storedChecksum {
		file.Close()
		return nil, errors.NewTableError(ErrCorruptFooter, errors.ErrorCodeTableCorruptFooter, "table body checksum mismatch").WithPath(path)
	}

	index := make([]indexEntry, 0, indexCount)
	cursor := indexStart
	for i := uint32(0); i < indexCount; i++ {
		klen := binary.BigEndian.Uint32(body[cursor : cursor+4])
		key := make([]byte, klen)
		copy(key, body[cursor+4:cursor+4+int64(klen)])
		offset := int64(binary.BigEndian.Uint64(body[cursor+4+int64(klen) : cursor+4+int64(klen)+8]))
		index = append(index, indexEntry{Key: key, Offset: offset})
		cursor += 4 + int64(klen) + 8
	}

	return &Reader{path: path, file: file, index: index, indexStart: indexStart}, nil
}

// Close releases the reader's file handle.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Path returns the table file path this reader was opened from.
func (r *Reader) Path() string {
	return r.path
}

// floor returns the position in the data block to start scanning from to
// find key: the offset of the sparse index entry with the greatest key
// not exceeding key, or 0 if key precedes every indexed entry.
func (r *Reader) floor(key []byte) int64 {
	i := sort.Search(len(r.index), func(i int) bool {
		return bytes.Compare(r.index[i].Key, key) > 0
	})
	if i == 0 {
		return 0
	}
	return r.index[i-1].Offset
}

// Get looks up key, scanning the data block from the sparse index floor
// entry until the current key matches (hit) or exceeds key (miss, since
// the data block is sorted ascending).
func (r *Reader) Get(key []byte) ([]byte, bool, error) {
	offset := r.floor(key)

	for offset < r.indexStart {
		entryKey, value, next, ok := r.readEntryAt(offset)
		if !ok {
			return nil, false, nil
		}

		switch bytes.Compare(entryKey, key) {
		case 0:
			return value, true, nil
		case 1:
			return nil, false, nil
		}

		offset = next
	}

	return nil, false, nil
}

// Iterator streams entries from a table in ascending key order within an
// inclusive bound.
type Iterator struct {
	reader *Reader
	offset int64
	start  []byte
	end    []byte
	done   bool
}

// RangeIter returns an iterator over entries with start <= key <= end,
// both bounds inclusive. It positions itself at the sparse index floor
// entry for start so that entries between the preceding index point and
// start are correctly included in the scan rather than missed, then
// skips any entry short of start itself.
func (r *Reader) RangeIter(start, end []byte) *Iterator {
	return &Iterator{reader: r, offset: r.floor(start), start: start, end: end, done: false}
}

// All returns an iterator over every entry in the table in ascending key
// order, unbounded. Used by compaction, which needs a full scan rather
// than a key range.
func (r *Reader) All() *Iterator {
	return &Iterator{reader: r, offset: 0, done: false}
}

// Next returns the next in-range entry, or ok == false once the iterator
// is exhausted — either because the range bound was passed, or because a
// torn record ended the underlying scan cleanly.
func (it *Iterator) Next() (key, value []byte, ok bool) {
	if it.done {
		return nil, nil, false
	}

	for it.offset < it.reader.indexStart {
		entryKey, entryValue, next, readOK := it.reader.readEntryAt(it.offset)
		if !readOK {
			it.done = true
			return nil, nil, false
		}
		it.offset = next

		if it.start != nil && bytes.Compare(entryKey, it.start) < 0 {
			continue
		}
		if it.end != nil && bytes.Compare(entryKey, it.end) > 0 {
			it.done = true
			return nil, nil, false
		}

		return entryKey, entryValue, true
	}

	it.done = true
	return nil, nil, false
}

// readEntryAt decodes one data-block entry at offset using positional
// reads. A short header or payload read (the entry runs past the index
// block boundary, or the file itself was truncated) reports ok == false,
// ending the scan cleanly rather than propagating an error.
func (r *Reader) readEntryAt(offset int64) (key, value []byte, next int64, ok bool) {
	if offset+8 > r.indexStart {
		return nil, nil, 0, false
	}

	header := make([]byte, 8)
	if _, err := r.file.ReadAt(header, offset); err != nil {
		return nil, nil, 0, false
	}

	klen := binary.BigEndian.Uint32(header[0:4])
	vlen := binary.BigEndian.Uint32(header[4:8])
	payloadStart := offset + 8
	payloadEnd := payloadStart + int64(klen) + int64(vlen)
	if payloadEnd > r.indexStart {
		return nil, nil, 0, false
	}

	payload := make([]byte, int64(klen)+int64(vlen))
	if _, err := r.file.ReadAt(payload, payloadStart); err != nil {
		return nil, nil, 0, false
	}

	return payload[:klen], payload[klen:], payloadEnd, true
}

var _ io.Closer = (*Reader)(nil)
