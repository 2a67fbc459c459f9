package bitcask

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/segment"
)

func Test_Index_PutGetDelete(t *testing.T) {
	t.Parallel()

	ix := newIndex()
	ix.Put("a", segment.Position{SegmentID: 1, Offset: 0})

	pos, ok := ix.Get("a")
	require.True(t, ok)
	require.Equal(t, segment.Position{SegmentID: 1, Offset: 0}, pos)

	ix.Delete("a")
	_, ok = ix.Get("a")
	require.False(t, ok)
}

func Test_Index_RangeIsAscendingAndInclusive(t *testing.T) {
	t.Parallel()

	ix := newIndex()
	ix.Put("c", segment.Position{SegmentID: 1, Offset: 1})
	ix.Put("a", segment.Position{SegmentID: 1, Offset: 2})
	ix.Put("e", segment.Position{SegmentID: 1, Offset: 3})
	ix.Put("b", segment.Position{SegmentID: 1, Offset: 4})

	got := ix.Range("a", "c", 0)
	require.Len(t, got, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{got[0].Key, got[1].Key, got[2].Key})
}

func Test_Index_RangeRespectsLimit(t *testing.T) {
	t.Parallel()

	ix := newIndex()
	for _, k := range []string{"a", "b", "c", "d"} {
		ix.Put(k, segment.Position{SegmentID: 1})
	}

	got := ix.Range("a", "z", 2)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].Key)
	require.Equal(t, "b", got[1].Key)
}

func Test_Index_SnapshotIsAscending(t *testing.T) {
	t.Parallel()

	ix := newIndex()
	ix.Put("z", segment.Position{SegmentID: 1})
	ix.Put("a", segment.Position{SegmentID: 1})

	snap := ix.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "a", snap[0].Key)
	require.Equal(t, "z", snap[1].Key)
}
