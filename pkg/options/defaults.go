package options

const (
	// DefaultDataDir is the default base directory Strata stores its data
	// files in when no other directory is specified during initialization.
	DefaultDataDir = "/var/lib/strata"

	// MinSegmentSize is the minimum allowed size for a Bitcask segment
	// file in bytes (4KiB). Kept well below DefaultSegmentByteLimit so the
	// documented default, and any realistically small rotation threshold
	// a caller passes, are accepted rather than silently rejected.
	MinSegmentSize uint64 = 4 * 1024

	// MaxSegmentSize is the maximum allowed size for a Bitcask segment
	// file in bytes (4GB).
	MaxSegmentSize uint64 = 4 * 1024 * 1024 * 1024

	// DefaultSegmentByteLimit is the default Bitcask segment rotation
	// threshold in bytes (128MiB).
	DefaultSegmentByteLimit uint64 = 128 * 1024 * 1024

	// DefaultFsyncIntervalMS is the default Bitcask periodic fsync period.
	DefaultFsyncIntervalMS = 20

	// DefaultMemtableByteLimit is the default LSM memtable flush
	// threshold in bytes (16MiB).
	DefaultMemtableByteLimit uint64 = 16 * 1024 * 1024

	// DefaultSparseIndexStride is the default number of data entries
	// between sparse index entries in a sorted table.
	DefaultSparseIndexStride = 64

	// DefaultCompactionTableCount is the default number of oldest sorted
	// tables a manual LSM Compact call merges.
	DefaultCompactionTableCount = 3
)

// defaultOptions holds the default configuration settings for a Strata store.
var defaultOptions = Options{
	Engine:               EngineBitcask,
	DataDir:              DefaultDataDir,
	SegmentByteLimit:     DefaultSegmentByteLimit,
	FsyncIntervalMS:      DefaultFsyncIntervalMS,
	MemtableByteLimit:    DefaultMemtableByteLimit,
	SparseIndexStride:    DefaultSparseIndexStride,
	CompactionTableCount: DefaultCompactionTableCount,
}

// NewDefaultOptions returns the default configuration settings for a
// Strata store.
func NewDefaultOptions() Options {
	return defaultOptions
}
