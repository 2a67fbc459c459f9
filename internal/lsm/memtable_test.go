package lsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Memtable_PutGetDelete(t *testing.T) {
	t.Parallel()

	m := newMemtable()
	m.Put("a", []byte("1"))

	value, isTombstone, found := m.Get("a")
	require.True(t, found)
	require.False(t, isTombstone)
	require.Equal(t, []byte("1"), value)

	m.Delete("a")
	_, isTombstone, found = m.Get("a")
	require.True(t, found)
	require.True(t, isTombstone)
}

func Test_Memtable_ZeroLengthPutDiffersFromDelete(t *testing.T) {
	t.Parallel()

	m := newMemtable()
	m.Put("a", []byte{})

	value, isTombstone, found := m.Get("a")
	require.True(t, found)
	require.False(t, isTombstone)
	require.Equal(t, []byte{}, value)
}

func Test_Memtable_SnapshotIsAscendingAndIncludesTombstones(t *testing.T) {
	t.Parallel()

	m := newMemtable()
	m.Put("c", []byte("3"))
	m.Put("a", []byte("1"))
	m.Delete("b")

	snap := m.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, "a", snap[0].Key)
	require.Equal(t, "b", snap[1].Key)
	require.True(t, snap[1].IsTombstone)
	require.Equal(t, "c", snap[2].Key)
}

func Test_Memtable_RangeRespectsBounds(t *testing.T) {
	t.Parallel()

	m := newMemtable()
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		m.Put(k, []byte(k))
	}

	got := m.Range("b", "d")
	require.Len(t, got, 3)
	require.Equal(t, "b", got[0].Key)
	require.Equal(t, "d", got[2].Key)
}

func Test_Memtable_ApproxBytesTracksKeyAndValueLengths(t *testing.T) {
	t.Parallel()

	m := newMemtable()
	m.Put("ab", []byte("cde"))
	require.Equal(t, uint64(5), m.ApproxBytes())

	m.Delete("xy")
	require.Equal(t, uint64(7), m.ApproxBytes())
}

func Test_Memtable_ClearEmptiesEverything(t *testing.T) {
	t.Parallel()

	m := newMemtable()
	m.Put("a", []byte("1"))
	m.Clear()

	require.Empty(t, m.Snapshot())
	require.Zero(t, m.ApproxBytes())
}

func Test_Memtable_SnapshotAndClearReturnsPriorStateThenEmpties(t *testing.T) {
	t.Parallel()

	m := newMemtable()
	m.Put("a", []byte("1"))
	m.Delete("b")

	out := m.SnapshotAndClear()
	require.Len(t, out, 2)
	require.Equal(t, "a", out[0].Key)
	require.Equal(t, []byte("1"), out[0].Value)
	require.Equal(t, "b", out[1].Key)
	require.True(t, out[1].IsTombstone)

	require.Empty(t, m.Snapshot())
	require.Zero(t, m.ApproxBytes())
}
