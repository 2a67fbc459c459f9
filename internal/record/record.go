// Package record implements the single log-entry format shared by every
// on-disk writer in Strata: the Bitcask segment writer and (via a
// slightly different framing in internal/wal) the LSM write-ahead log.
//
// A record is CRC-framed so recovery can tell a complete write from a
// torn one left by a crash mid-append. The CRC is always recomputed from
// the record's own bytes during recovery — a stored CRC is never trusted
// on its own, only compared against what the bytes actually hash to.
package record

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

// Flag values distinguish a live value from a tombstone.
const (
	FlagPut       byte = 0
	FlagTombstone byte = 1
)

// HeaderSize is the fixed-width portion of every record: crc32(4) +
// flag(1) + klen(4) + vlen(4).
const HeaderSize = 4 + 1 + 4 + 4

// ErrTornTail is returned by Decode whenever a record could not be fully
// read or failed its CRC check. Every caller in this module treats
// ErrTornTail as "stop scanning here, cleanly" rather than a propagated
// failure — a torn tail is an expected artifact of an interrupted write,
// not a corruption report.
var ErrTornTail = errors.New("record: torn tail")

// Record is one log entry: a key, a value (empty for a tombstone), and
// the flag distinguishing the two.
type Record struct {
	Flag  byte
	Key   []byte
	Value []byte
}

// NewPut builds a put record for key/value.
func NewPut(key, value []byte) *Record {
	return &Record{Flag: FlagPut, Key: key, Value: value}
}

// NewTombstone builds a tombstone record for key. Its on-disk value
// length is always zero.
func NewTombstone(key []byte) *Record {
	return &Record{Flag: FlagTombstone, Key: key}
}

// IsTombstone reports whether this record marks key as deleted.
func (r *Record) IsTombstone() bool {
	return r.Flag == FlagTombstone
}

// Size returns the total number of bytes Encode will produce.
func (r *Record) Size() int {
	return HeaderSize + len(r.Key) + len(r.Value)
}

// CRC recomputes the CRC32 (IEEE / zlib polynomial) over
// (flag, key, value) in that concatenation order. This is the only CRC
// path in the package; there is no "trust the stored value" shortcut.
func (r *Record) CRC() uint32 {
	crc := crc32.NewIEEE()
	crc.Write([]byte{r.Flag})
	crc.Write(r.Key)
	crc.Write(r.Value)
	return crc.Sum32()
}

// Encode serializes the record to its on-disk byte layout:
// crc32(4) | flag(1) | klen(4) | vlen(4) | key | value, all big-endian.
func (r *Record) Encode() []byte {
	buf := make([]byte, r.Size())

	buf[4] = r.Flag
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(r.Key)))
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(r.Value)))
	copy(buf[HeaderSize:], r.Key)
	copy(buf[HeaderSize+len(r.Key):], r.Value)

	binary.BigEndian.PutUint32(buf[0:4], r.CRC())
	return buf
}

// Decode reads exactly one record from r. It returns the record, the
// total number of bytes consumed, and ErrTornTail (wrapping the
// underlying cause) for any short header, short payload, or CRC
// mismatch. Callers must stop scanning on ErrTornTail rather than retry.
func Decode(r io.Reader) (*Record, int, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, errors.Join(ErrTornTail, err)
	}

	storedCRC := binary.BigEndian.Uint32(header[0:4])
	flag := header[4]
	klen := binary.BigEndian.Uint32(header[5:9])
	vlen := binary.BigEndian.Uint32(header[9:13])

	payload := make([]byte, int(klen)+int(vlen))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, errors.Join(ErrTornTail, err)
	}

	rec := &Record{Flag: flag, Key: payload[:klen], Value: payload[klen:]}
	if rec.CRC() != storedCRC {
		return nil, 0, ErrTornTail
	}

	return rec, HeaderSize + len(payload), nil
}
