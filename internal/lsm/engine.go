// Package lsm implements the write-ahead-log-backed engine: an ordered
// memtable flushed to immutable sorted tables tracked by a manifest,
// read through a newest-first merge of the memtable and every sealed
// table, and compacted on demand by a size-tiered merge of the oldest
// tables.
package lsm

import (
	"context"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/strata-db/strata/internal/manifest"
	"github.com/strata-db/strata/internal/sstable"
	"github.com/strata-db/strata/internal/wal"
	"github.com/strata-db/strata/pkg/errors"
	"github.com/strata-db/strata/pkg/filesys"
	"github.com/strata-db/strata/pkg/kv"
	"github.com/strata-db/strata/pkg/options"
)

// Engine implements kv.Store over a write-ahead log, an in-memory
// ordered memtable, and a manifest of immutable sorted tables.
type Engine struct {
	dir                  string
	memtableByteLimit    uint64
	sparseIndexStride    int
	compactionTableCount int
	log                  *zap.SugaredLogger

	wal *wal.Log
	mt  *memtable
	mf  *manifest.Manifest

	// flushMu serializes flush against compaction's manifest mutation;
	// both rewrite the manifest's table list and must not interleave.
	flushMu sync.Mutex

	walFsyncEveryAppend bool

	started atomic.Bool
	closed  atomic.Bool
}

var _ kv.Store = (*Engine)(nil)

// New constructs an Engine from opts. The engine does no I/O until
// Start is called.
func New(opts *options.Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Engine{
		dir:                  opts.DataDir,
		memtableByteLimit:    opts.MemtableByteLimit,
		sparseIndexStride:    opts.SparseIndexStride,
		compactionTableCount: opts.CompactionTableCount,
		walFsyncEveryAppend:  opts.WALFsyncEveryAppend,
		log:                  logger.With("engine", "lsm"),
		mt:                   newMemtable(),
	}
}

// Start ensures the data directory exists, opens (or creates) the
// write-ahead log and manifest, and replays the WAL into the memtable —
// a put installs the value, a delete installs the tombstone marker.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return nil
	}

	if err := filesys.CreateDir(e.dir, 0755, true); err != nil {
		return errors.ClassifyDirectoryCreationError(err, e.dir)
	}

	log, err := wal.Open(e.dir, e.walFsyncEveryAppend)
	if err != nil {
		return err
	}
	e.wal = log

	mf, err := manifest.Open(e.dir)
	if err != nil {
		return err
	}
	e.mf = mf

	var replayed int
	err = e.wal.Replay(func(op wal.Op, key, value []byte) error {
		replayed++
		if op == wal.OpDelete {
			e.mt.Delete(string(key))
		} else {
			e.mt.Put(string(key), value)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Infow("started", "walFramesReplayed", replayed, "liveTables", len(e.mf.ReadersNewestFirst()))
	return nil
}

// Close closes the write-ahead log and every table reader the manifest
// holds open, aggregating any errors from the two.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if e.wal != nil {
		err = multierr.Append(err, e.wal.Close())
	}
	if e.mf != nil {
		err = multierr.Append(err, e.mf.Close())
	}

	return err
}

func (e *Engine) checkLifecycle() error {
	if !e.started.Load() {
		return kv.ErrNotStarted
	}
	if e.closed.Load() {
		return kv.ErrClosed
	}
	return nil
}

// Put appends a put frame to the WAL, then mutates the memtable, then
// flushes if the memtable has crossed its byte threshold.
func (e *Engine) Put(ctx context.Context, key, value []byte) error {
	if err := e.checkLifecycle(); err != nil {
		return err
	}

	if err := e.wal.Append(wal.OpPut, key, value); err != nil {
		return err
	}
	e.mt.Put(string(key), value)

	return e.maybeFlush()
}

// Delete appends a delete frame to the WAL, then installs the tombstone
// marker in the memtable, then flushes if needed.
func (e *Engine) Delete(ctx context.Context, key []byte) error {
	if err := e.checkLifecycle(); err != nil {
		return err
	}

	if err := e.wal.Append(wal.OpDelete, key, nil); err != nil {
		return err
	}
	e.mt.Delete(string(key))

	return e.maybeFlush()
}

// BatchPut appends a WAL frame and mutates the memtable for every item
// in order, so that colliding keys resolve to the last occurrence, then
// checks the flush threshold once for the whole batch.
func (e *Engine) BatchPut(ctx context.Context, items []kv.Item) (int, error) {
	if err := e.checkLifecycle(); err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	for _, item := range items {
		if err := e.wal.Append(wal.OpPut, item.Key, item.Value); err != nil {
			return 0, err
		}
		e.mt.Put(string(item.Key), item.Value)
	}

	if err := e.maybeFlush(); err != nil {
		return 0, err
	}

	return len(items), nil
}

func (e *Engine) maybeFlush() error {
	if e.memtableByteLimit > 0 && e.mt.ApproxBytes() >= e.memtableByteLimit {
		return e.flush()
	}
	return nil
}

// flush atomically snapshots and clears the memtable (so a concurrent Put
// can never land in the gap between reading and clearing it), writes the
// snapshot to a new sorted table (tombstones encoded as zero-length
// values), rotates the WAL, and prepends the new table to the manifest.
// The memtable is cleared before the table is durable, which is safe
// only because the WAL is not rotated until after the table write
// succeeds — a crash in between still has the data recoverable from the
// not-yet-rotated WAL.
func (e *Engine) flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	snapshot := e.mt.SnapshotAndClear()
	if len(snapshot) == 0 {
		return nil
	}

	entries := make([]sstable.Entry, len(snapshot))
	for i, s := range snapshot {
		if s.IsTombstone {
			entries[i] = sstable.Entry{Key: []byte(s.Key), Value: []byte{}}
		} else {
			entries[i] = sstable.Entry{Key: []byte(s.Key), Value: s.Value}
		}
	}

	path, err := sstable.Write(e.dir, entries, e.sparseIndexStride)
	if err != nil {
		return err
	}

	if _, err := e.wal.Rotate(); err != nil {
		return err
	}

	if err := e.mf.AddHead(path); err != nil {
		return err
	}

	e.log.Infow("flushed memtable", "entries", len(entries), "table", path)
	return nil
}

// Get checks the memtable first, then every sealed table newest-first. A
// zero-length value read from a table is a tombstone (tables have no
// separate flag byte; see DESIGN.md), and the first table that has any
// entry for the key — live or tombstone — determines the answer, since
// it is newer than every table behind it.
func (e *Engine) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := e.checkLifecycle(); err != nil {
		return nil, false, err
	}

	if value, isTombstone, found := e.mt.Get(string(key)); found {
		if isTombstone {
			return nil, false, nil
		}
		return value, true, nil
	}

	for _, reader := range e.mf.ReadersNewestFirst() {
		value, ok, err := reader.Get(key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			if len(value) == 0 {
				return nil, false, nil
			}
			return value, true, nil
		}
	}

	return nil, false, nil
}

// rangeCandidate is one key's value as seen from one source during a
// Range merge, tagged with that source's recency rank (0 = memtable,
// the most recent; larger = older tables).
type rangeCandidate struct {
	value       []byte
	isTombstone bool
	rank        int
}

// Range merges the memtable and every sealed table's range iterator,
// keeping for each key only the entry from the most recent source (the
// lowest rank), dropping tombstones and duplicates, and returning the
// result in ascending key order, capped at limit.
func (e *Engine) Range(ctx context.Context, start, end []byte, limit int) ([]kv.Item, error) {
	if err := e.checkLifecycle(); err != nil {
		return nil, err
	}

	winners := make(map[string]rangeCandidate)

	for _, entry := range e.mt.Range(string(start), string(end)) {
		winners[entry.Key] = rangeCandidate{value: entry.Value, isTombstone: entry.IsTombstone, rank: 0}
	}

	for i, reader := range e.mf.ReadersNewestFirst() {
		rank := i + 1
		it := reader.RangeIter(start, end)
		for {
			key, value, ok := it.Next()
			if !ok {
				break
			}
			k := string(key)
			if existing, seen := winners[k]; seen && existing.rank <= rank {
				continue
			}
			winners[k] = rangeCandidate{value: value, isTombstone: len(value) == 0, rank: rank}
		}
	}

	keys := make([]string, 0, len(winners))
	for k := range winners {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]kv.Item, 0, len(keys))
	for _, k := range keys {
		c := winners[k]
		if c.isTombstone {
			continue
		}
		items = append(items, kv.Item{Key: []byte(k), Value: c.value})
		if limit > 0 && len(items) >= limit {
			break
		}
	}

	return items, nil
}

// Compact merges the oldest compactionTableCount tables into one output
// table, applying their entries oldest-first so newer tables in the
// merged group overwrite older ones, preserving tombstones so they
// still shadow any value left in a table outside this compaction. It
// publishes the merged table via the manifest before best-effort
// deleting the superseded files, matching the required
// publish-then-delete order.
func (e *Engine) Compact(ctx context.Context) (int64, error) {
	if err := e.checkLifecycle(); err != nil {
		return 0, err
	}

	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	oldest := e.mf.OldestN(e.compactionTableCount)
	if len(oldest) < 2 {
		return 0, nil
	}

	var before int64
	for _, path := range oldest {
		if info, err := os.Stat(path); err == nil {
			before += info.Size()
		}
	}

	merged := make(map[string][]byte)
	var order []string

	// oldest[0] is the least-old of the group and oldest[len-1] is the
	// globally oldest; apply globally-oldest first so later entries in
	// this loop (from newer tables) correctly overwrite earlier ones.
	for i := len(oldest) - 1; i >= 0; i-- {
		reader, err := sstable.Open(oldest[i])
		if err != nil {
			return 0, err
		}

		it := reader.All()
		for {
			key, value, ok := it.Next()
			if !ok {
				break
			}
			k := string(key)
			if _, seen := merged[k]; !seen {
				order = append(order, k)
			}
			merged[k] = value
		}
		reader.Close()
	}

	sort.Strings(order)
	entries := make([]sstable.Entry, len(order))
	for i, k := range order {
		entries[i] = sstable.Entry{Key: []byte(k), Value: merged[k]}
	}

	mergedPath, err := sstable.Write(e.dir, entries, e.sparseIndexStride)
	if err != nil {
		return 0, err
	}

	if err := e.mf.Replace(oldest, mergedPath); err != nil {
		return 0, err
	}

	for _, path := range oldest {
		if err := os.Remove(path); err != nil {
			e.log.Warnw("failed to remove superseded table after compaction", "path", path, "error", err)
		}
	}

	var after int64
	if info, err := os.Stat(mergedPath); err == nil {
		after = info.Size()
	}

	reclaimed := before - after
	if reclaimed < 0 {
		reclaimed = 0
	}

	e.log.Infow("compaction complete", "mergedTables", len(oldest), "outputEntries", len(entries), "reclaimedBytes", reclaimed)
	return reclaimed, nil
}
