// Package wal implements the LSM engine's write-ahead log: a single
// active append-only file that every mutation is recorded to before it
// touches the memtable (fsynced per append only when the log is opened
// with fsyncOnAppend), plus the replay path used to rebuild the memtable
// after a restart and the rotation path used at flush time.
//
// The wire frame differs from internal/record's in two respects: it
// carries its own magic number so a reader resynchronizing mid-file (or
// simply detecting "this isn't a WAL") has a marker to check, which the
// Bitcask segment format doesn't need since segments are never scanned
// speculatively; and its CRC also covers the big-endian key and value
// lengths, not just the op, key, and value.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/strata-db/strata/pkg/errors"
	"github.com/strata-db/strata/pkg/filesys"
)

// Magic identifies a well-formed WAL frame.
const Magic uint32 = 0x57414C31

// FrameHeaderSize is magic(4) + crc32(4) + op(1) + klen(4) + vlen(4).
const FrameHeaderSize = 4 + 4 + 1 + 4 + 4

// ActiveFileName is the name of the single live WAL file in a data
// directory. Rotation renames it aside and opens a fresh one under this
// same name.
const ActiveFileName = "wal.log"

// Op distinguishes a put frame from a delete (tombstone) frame.
type Op byte

const (
	OpPut    Op = 0
	OpDelete Op = 1
)

// ErrTornFrame is returned by Decode for a bad magic, short read, or CRC
// mismatch. Replay treats it as the normal shape of an interrupted
// append and stops cleanly rather than propagating it.
var ErrTornFrame = fmt.Errorf("wal: torn frame")

// Log is the single active write-ahead log file for one LSM engine
// instance. Every Append is serialized through mu; Replay is only ever
// called before the engine starts taking writes, so it does not itself
// need to hold mu.
type Log struct {
	mu            sync.Mutex
	file          *os.File
	dir           string
	fsyncOnAppend bool
}

// Open opens (creating if absent) the active WAL file in dir for
// append-only writing. fsyncOnAppend controls whether every Append
// fsyncs immediately; the default is false, matching the "caller
// decides" durability policy carried over unchanged — callers that want
// stronger durability set it via options.WithWALFsyncEveryAppend.
func Open(dir string, fsyncOnAppend bool) (*Log, error) {
	path := filepath.Join(dir, ActiveFileName)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, ActiveFileName)
	}

	return &Log{file: file, dir: dir, fsyncOnAppend: fsyncOnAppend}, nil
}

func frame(op Op, key, value []byte) []byte {
	buf := make([]byte, FrameHeaderSize+len(key)+len(value))

	binary.BigEndian.PutUint32(buf[0:4], Magic)
	buf[8] = byte(op)
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(key)))
	binary.BigEndian.PutUint32(buf[13:17], uint32(len(value)))
	copy(buf[FrameHeaderSize:], key)
	copy(buf[FrameHeaderSize+len(key):], value)

	crc := crcOf(op, key, value)
	binary.BigEndian.PutUint32(buf[4:8], crc)
	return buf
}

func crcOf(op Op, key, value []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write([]byte{byte(op)})
	klen := make([]byte, 4)
	binary.BigEndian.PutUint32(klen, uint32(len(key)))
	h.Write(klen)
	vlen := make([]byte, 4)
	binary.BigEndian.PutUint32(vlen, uint32(len(value)))
	h.Write(vlen)
	h.Write(key)
	h.Write(value)
	return h.Sum32()
}

// Append writes one frame for (op, key, value) to the end of the active
// file. If the log was opened with fsyncOnAppend, the write is flushed
// to stable storage before Append returns.
func (l *Log) Append(op Op, key, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := frame(op, key, value)
	if _, err := l.file.Write(buf); err != nil {
		return errors.NewWALError(err, errors.ErrorCodeIO, "failed to append wal frame").WithPath(l.path())
	}

	if l.fsyncOnAppend {
		if err := l.file.Sync(); err != nil {
			return errors.NewWALError(err, errors.ErrorCodeIO, "failed to fsync wal frame").WithPath(l.path())
		}
	}

	return nil
}

// Decode reads exactly one frame from r, returning its op, key, value,
// and total byte length. Any bad magic, short read, or CRC mismatch
// reports ErrTornFrame.
func Decode(r io.Reader) (op Op, key, value []byte, n int, err error) {
	header := make([]byte, FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, nil, 0, ErrTornFrame
	}

	magic := binary.BigEndian.Uint32(header[0:4])
	if magic != Magic {
		return 0, nil, nil, 0, ErrTornFrame
	}

	storedCRC := binary.BigEndian.Uint32(header[4:8])
	frameOp := Op(header[8])
	klen := binary.BigEndian.Uint32(header[9:13])
	vlen := binary.BigEndian.Uint32(header[13:17])

	payload := make([]byte, int(klen)+int(vlen))
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, nil, 0, ErrTornFrame
	}

	frameKey := payload[:klen]
	frameValue := payload[klen:]
	if crcOf(frameOp, frameKey, frameValue) != storedCRC {
		return 0, nil, nil, 0, ErrTornFrame
	}

	return frameOp, frameKey, frameValue, FrameHeaderSize + len(payload), nil
}

// Replay scans the active file from offset zero, invoking consumer with
// every successfully decoded frame in order. It stops cleanly, without
// returning an error, at the first torn frame — the expected shape of a
// crash mid-append.
func (l *Log) Replay(consumer func(op Op, key, value []byte) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return errors.NewWALError(err, errors.ErrorCodeIO, "failed to seek wal for replay").WithPath(l.path())
	}
	defer l.file.Seek(0, io.SeekEnd)

	for {
		op, key, value, _, err := Decode(l.file)
		if err != nil {
			return nil
		}
		if err := consumer(op, key, value); err != nil {
			return err
		}
	}
}

// Rotate fsyncs and closes the active file, renames it aside to a
// timestamped archive name, fsyncs the directory so the rename itself
// survives a crash, then opens a fresh empty active file. It returns the
// archived file's path.
func (l *Log) Rotate() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Sync(); err != nil {
		return "", errors.NewWALError(err, errors.ErrorCodeIO, "failed to fsync wal before rotation").WithPath(l.path())
	}
	if err := l.file.Close(); err != nil {
		return "", errors.NewWALError(err, errors.ErrorCodeWALRotationFailed, "failed to close active wal").WithPath(l.path())
	}

	archivedName := fmt.Sprintf("wal-%d.log", time.Now().UnixNano())
	archivedPath := filepath.Join(l.dir, archivedName)
	if err := os.Rename(l.path(), archivedPath); err != nil {
		return "", errors.NewWALError(err, errors.ErrorCodeWALRotationFailed, "failed to archive wal").WithPath(l.path())
	}

	if err := filesys.FsyncDir(l.dir); err != nil {
		return "", errors.ClassifySyncError(err, ActiveFileName, l.dir, 0)
	}

	file, err := os.OpenFile(l.path(), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return "", errors.ClassifyFileOpenError(err, l.path(), ActiveFileName)
	}
	l.file = file

	return archivedPath, nil
}

// Fsync flushes the active file to stable storage.
func (l *Log) Fsync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Sync()
}

// Close releases the active file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func (l *Log) path() string {
	return filepath.Join(l.dir, ActiveFileName)
}
