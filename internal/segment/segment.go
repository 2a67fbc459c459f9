// Package segment implements the append-only, size-tracking segment
// writer the Bitcask engine appends records to, plus the read and replay
// paths over the resulting files.
//
// The writer owns exactly one open file handle and serializes every
// writer to it through a mutex. Readers never touch the writer's handle:
// every read or replay opens its own independent read-only handle for
// the duration of that call, which removes all file-position races
// between concurrent readers and the writer.
package segment

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/strata-db/strata/internal/record"
	"github.com/strata-db/strata/pkg/errors"
	"github.com/strata-db/strata/pkg/seginfo"
)

// Position identifies one record by the segment it lives in and the byte
// offset of its header within that segment. Positions are created once
// and never mutated; a position becomes stale, but stays valid on disk,
// once a newer record for the same key lands elsewhere.
type Position struct {
	SegmentID uint64
	Offset    int64
}

// Writer is the single append-only handle for one numbered segment file.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	dir  string
	id   uint64
	size atomic.Int64
}

// Create opens (or creates) the segment file for id in dir for
// append-only writing, initializing its tracked size from the file's
// current size on disk — so resuming a partially written segment after a
// restart starts from the correct offset rather than zero.
func Create(dir string, id uint64) (*Writer, error) {
	path := seginfo.Path(dir, seginfo.SegmentName(id))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to stat segment file").
			WithPath(path).WithSegmentID(int(id))
	}

	w := &Writer{file: file, dir: dir, id: id}
	w.size.Store(info.Size())
	return w, nil
}

// ID returns this writer's segment id.
func (w *Writer) ID() uint64 {
	return w.id
}

// Size returns the writer's current tracked size in bytes.
func (w *Writer) Size() int64 {
	return w.size.Load()
}

// Append writes one record to the end of the segment and returns the
// position of its header. Concurrent Append/AppendMany calls to the same
// writer are serialized.
func (w *Writer) Append(rec *record.Record) (Position, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	offset := w.size.Load()
	buf := rec.Encode()

	if _, err := w.file.Write(buf); err != nil {
		return Position{}, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to append record").
			WithPath(w.path()).WithSegmentID(int(w.id)).WithOffset(int(offset))
	}

	w.size.Add(int64(len(buf)))
	return Position{SegmentID: w.id, Offset: offset}, nil
}

// AppendMany writes every record in recs as one contiguous write while
// holding the writer's mutex for the whole batch, so no other writer can
// observe intermediate state. The returned positions correspond
// one-to-one with recs, each pointing at that record's own start offset
// — never the batch's start offset, which was the defect this method
// exists to rule out.
func (w *Writer) AppendMany(recs []*record.Record) ([]Position, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	positions := make([]Position, len(recs))
	cursor := w.size.Load()

	total := 0
	for _, rec := range recs {
		total += rec.Size()
	}

	buf := make([]byte, 0, total)
	for i, rec := range recs {
		positions[i] = Position{SegmentID: w.id, Offset: cursor}
		encoded := rec.Encode()
		buf = append(buf, encoded...)
		cursor += int64(len(encoded))
	}

	if _, err := w.file.Write(buf); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to append record batch").
			WithPath(w.path()).WithSegmentID(int(w.id))
	}

	w.size.Add(int64(len(buf)))
	return positions, nil
}

// Fsync flushes data and metadata to stable storage. Callers that invoke
// this on a timer treat a failure as retryable and swallow it.
func (w *Writer) Fsync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Close releases the writer's file handle. The file itself is left
// intact on disk for readers and for any later replay.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func (w *Writer) path() string {
	return seginfo.Path(w.dir, seginfo.SegmentName(w.id))
}

// ReadAt opens an independent read-only handle on segment id in dir,
// seeks to offset, decodes exactly one record, and closes the handle.
// Used for point reads where the caller already knows the position from
// the in-memory index.
func ReadAt(dir string, id uint64, offset int64) (*record.Record, error) {
	path := seginfo.Path(dir, seginfo.SegmentName(id))

	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to seek segment").
			WithPath(path).WithSegmentID(int(id)).WithOffset(int(offset))
	}

	rec, _, err := record.Decode(file)
	if err != nil {
		// A torn tail at a position the index claims is live indicates
		// the index and the file have drifted; report it as an I/O-shaped
		// storage error rather than silently returning nothing, since the
		// caller expected a readable record here.
		return nil, errors.NewStorageError(err, errors.ErrorCodeSegmentCorrupted, "record at indexed position is unreadable").
			WithPath(path).WithSegmentID(int(id)).WithOffset(int(offset))
	}

	return rec, nil
}

// Replay opens an independent read-only handle on segment id in dir and
// scans it from the start, invoking visit with each successfully
// CRC-verified record's position. Replay halts cleanly — without
// returning an error — at the first torn tail, since a torn tail at the
// end of a segment is the expected shape of an interrupted write, not a
// corruption to report.
func Replay(dir string, id uint64, visit func(pos Position, rec *record.Record) error) error {
	path := seginfo.Path(dir, seginfo.SegmentName(id))

	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}
	defer file.Close()

	var offset int64
	for {
		rec, n, err := record.Decode(file)
		if err != nil {
			// record.Decode only ever returns record.ErrTornTail; any
			// other condition here would be a programming error in the
			// codec, not something replay needs to classify further.
			return nil
		}

		if err := visit(Position{SegmentID: id, Offset: offset}, rec); err != nil {
			return err
		}

		offset += int64(n)
	}
}
