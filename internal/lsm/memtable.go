package lsm

import (
	"sort"
	"sync"
)

// tombstone is the in-memory deletion marker. It is an unexported
// pointer compared by identity, not by content, so a zero-length Put and
// a Delete never collide even though both would otherwise look like "no
// bytes" to anything comparing by value.
var tombstone = &struct{}{}

// memtable is the LSM engine's in-memory ordered table. Go's standard
// library has no ordered map, and the scale this engine targets doesn't
// justify pulling in a concurrent skip-list (see DESIGN.md): a single
// RWMutex-guarded sorted key slice plus a value map gives O(log n)
// lookup and, because mutations always happen under the lock, a put is
// logically atomic from every reader's perspective even though the
// underlying slice insert is not lock-free.
type memtable struct {
	mu          sync.RWMutex
	keys        []string
	values      map[string]any // []byte for a live value, tombstone for a delete
	approxBytes uint64
}

func newMemtable() *memtable {
	return &memtable{values: make(map[string]any)}
}

// Put installs value for key, superseding any prior value or tombstone.
func (m *memtable) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.insertIfAbsent(key)
	m.values[key] = value
	m.approxBytes += uint64(len(key) + len(value))
}

// Delete installs the tombstone marker for key.
func (m *memtable) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.insertIfAbsent(key)
	m.values[key] = tombstone
	m.approxBytes += uint64(len(key))
}

func (m *memtable) insertIfAbsent(key string) {
	i := sort.SearchStrings(m.keys, key)
	if i < len(m.keys) && m.keys[i] == key {
		return
	}
	m.keys = append(m.keys, "")
	copy(m.keys[i+1:], m.keys[i:])
	m.keys[i] = key
}

// Get returns key's value, whether it is a tombstone, and whether it is
// present in the memtable at all.
func (m *memtable) Get(key string) (value []byte, isTombstone bool, found bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, false, false
	}
	if v == any(tombstone) {
		return nil, true, true
	}
	return v.([]byte), false, true
}

// ApproxBytes returns the memtable's approximate footprint: the sum of
// key and value byte lengths across every Put and Delete applied.
func (m *memtable) ApproxBytes() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.approxBytes
}

// memtableEntry is one key's value as seen by a range scan or a flush
// snapshot.
type memtableEntry struct {
	Key         string
	Value       []byte
	IsTombstone bool
}

// Snapshot returns every entry in ascending key order, including
// tombstones.
func (m *memtable) Snapshot() []memtableEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *memtable) snapshotLocked() []memtableEntry {
	out := make([]memtableEntry, len(m.keys))
	for i, key := range m.keys {
		v := m.values[key]
		if v == any(tombstone) {
			out[i] = memtableEntry{Key: key, IsTombstone: true}
		} else {
			out[i] = memtableEntry{Key: key, Value: v.([]byte)}
		}
	}
	return out
}

// SnapshotAndClear atomically takes a full snapshot and empties the
// memtable under a single write-lock hold, so no Put or Delete can land
// between the snapshot and the clear and be lost once the WAL frame that
// recorded it is later rotated out.
func (m *memtable) SnapshotAndClear() []memtableEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.snapshotLocked()
	m.keys = nil
	m.values = make(map[string]any)
	m.approxBytes = 0
	return out
}

// Range returns entries with start <= key <= end in ascending order,
// including tombstones — the caller (Engine.Range) is responsible for
// merging these against sealed tables and suppressing tombstones from
// final results.
func (m *memtable) Range(start, end string) []memtableEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lo := sort.SearchStrings(m.keys, start)
	var out []memtableEntry
	for i := lo; i < len(m.keys); i++ {
		key := m.keys[i]
		if key > end {
			break
		}
		v := m.values[key]
		if v == any(tombstone) {
			out = append(out, memtableEntry{Key: key, IsTombstone: true})
		} else {
			out = append(out, memtableEntry{Key: key, Value: v.([]byte)})
		}
	}
	return out
}

// Clear empties the memtable. flush does not call it; it uses
// SnapshotAndClear instead.
func (m *memtable) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys = nil
	m.values = make(map[string]any)
	m.approxBytes = 0
}
