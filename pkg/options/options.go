// Package options provides data structures and functions for configuring
// a Strata store. It defines the parameters that control storage behavior,
// rotation/flush thresholds, and which engine family backs the store, so
// that both the Bitcask and LSM engines can be tuned through one
// functional-options surface.
package options

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// EngineKind selects which engine family backs a Store.
type EngineKind string

const (
	// EngineBitcask selects the append-only segment engine with an
	// in-memory key→position index.
	EngineBitcask EngineKind = "bitcask"

	// EngineLSM selects the write-ahead-log-backed memtable/sorted-table
	// engine with size-tiered compaction.
	EngineLSM EngineKind = "lsm"
)

// Options defines the configuration parameters for a Strata store.
// It provides control over storage layout, rotation/flush thresholds, and
// which engine implements the store.
type Options struct {
	// Engine selects which engine family backs the store.
	//
	// Default: EngineBitcask
	Engine EngineKind `json:"engine"`

	// Specifies the base path where all engine files are stored. Both
	// engines keep every file directly in this directory; there are no
	// subdirectories.
	//
	// Default: "/var/lib/strata"
	DataDir string `json:"dataDir"`

	// Logger receives structured log output from the engine. When nil,
	// strata.Open constructs a default production logger; an engine built
	// directly with a nil Logger logs nothing.
	Logger *zap.SugaredLogger `json:"-"`

	// SegmentByteLimit is the Bitcask rotation threshold: before each
	// write, if the write would push the active segment's tracked size past
	// this value, the engine first rotates to a new segment. Rotation is
	// not checked after a write.
	//
	// Default: 128 MiB
	SegmentByteLimit uint64 `json:"segmentByteLimit"`

	// FsyncIntervalMS is the period, in milliseconds, at which Bitcask
	// fsyncs the active segment in the background. Zero disables the
	// periodic fsync task entirely.
	//
	// Default: 20
	FsyncIntervalMS int `json:"fsyncIntervalMs"`

	// MemtableByteLimit is the LSM flush threshold: once the memtable's
	// approximate footprint (sum of key and value byte lengths) reaches or
	// exceeds this value, it is flushed to a new sorted table; a footprint
	// exactly equal to the limit also triggers a flush.
	//
	// Default: 16 MiB
	MemtableByteLimit uint64 `json:"memtableByteLimit"`

	// SparseIndexStride is the number of data entries between consecutive
	// sparse index entries in a sorted table (the LSM engine's "N").
	//
	// Default: 64
	SparseIndexStride int `json:"sparseIndexStride"`

	// WALFsyncEveryAppend enables a per-append fsync of the LSM
	// write-ahead log, trading throughput for a tighter durability
	// window than the default rotation-and-flush-only fsync policy.
	//
	// Default: false
	WALFsyncEveryAppend bool `json:"walFsyncEveryAppend"`

	// CompactionTableCount is how many of the oldest sorted tables the
	// LSM engine merges in one manual Compact call.
	//
	// Default: 3
	CompactionTableCount int `json:"compactionTableCount"`
}

// OptionFunc is a function type that modifies a Strata configuration.
type OptionFunc func(*Options)

// WithDefaultOptions applies a predefined set of default configuration
// values to the Options struct.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		*o = NewDefaultOptions()
	}
}

// WithEngine selects which engine family backs the store.
func WithEngine(kind EngineKind) OptionFunc {
	return func(o *Options) {
		if kind == EngineBitcask || kind == EngineLSM {
			o.Engine = kind
		}
	}
}

// WithDataDir sets the primary data directory.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// WithLogger sets the structured logger the engine reports through.
func WithLogger(log *zap.SugaredLogger) OptionFunc {
	return func(o *Options) {
		if log != nil {
			o.Logger = log
		}
	}
}

// WithSegmentByteLimit sets the Bitcask segment rotation threshold.
func WithSegmentByteLimit(size uint64) OptionFunc {
	return func(o *Options) {
		if size >= MinSegmentSize && size <= MaxSegmentSize {
			o.SegmentByteLimit = size
		}
	}
}

// WithFsyncIntervalMS sets the Bitcask periodic-fsync interval.
// Zero disables the periodic fsync task.
func WithFsyncIntervalMS(ms int) OptionFunc {
	return func(o *Options) {
		if ms >= 0 {
			o.FsyncIntervalMS = ms
		}
	}
}

// WithMemtableByteLimit sets the LSM memtable flush threshold.
func WithMemtableByteLimit(size uint64) OptionFunc {
	return func(o *Options) {
		if size > 0 {
			o.MemtableByteLimit = size
		}
	}
}

// WithSparseIndexStride sets the LSM sorted-table sparse index stride.
func WithSparseIndexStride(n int) OptionFunc {
	return func(o *Options) {
		if n > 0 {
			o.SparseIndexStride = n
		}
	}
}

// WithWALFsyncEveryAppend enables per-append fsync of the LSM write-ahead
// log for callers that need stronger durability than the default
// rotation-and-flush-only policy.
func WithWALFsyncEveryAppend(enabled bool) OptionFunc {
	return func(o *Options) {
		o.WALFsyncEveryAppend = enabled
	}
}

// WithCompactionTableCount sets how many of the oldest sorted tables a
// manual LSM Compact call merges.
func WithCompactionTableCount(n int) OptionFunc {
	return func(o *Options) {
		if n >= 2 {
			o.CompactionTableCount = n
		}
	}
}

// FsyncInterval returns FsyncIntervalMS as a time.Duration for the
// periodic fsync ticker.
func (o *Options) FsyncInterval() time.Duration {
	return time.Duration(o.FsyncIntervalMS) * time.Millisecond
}
