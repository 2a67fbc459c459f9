package sstable_test

import (
	"encoding/binary"
	"fmt"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/sstable"
	"github.com/strata-db/strata/pkg/errors"
)

func entries(n int) []sstable.Entry {
	out := make([]sstable.Entry, n)
	for i := 0; i < n; i++ {
		out[i] = sstable.Entry{
			Key:   []byte(fmt.Sprintf("key-%04d", i)),
			Value: []byte(fmt.Sprintf("value-%04d", i)),
		}
	}
	return out
}

func Test_Write_RejectsEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := sstable.Write(t.TempDir(), nil, 4)
	require.Error(t, err)
}

func Test_Write_RejectsDuplicateKeys(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := sstable.Write(dir, []sstable.Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("a"), Value: []byte("2")},
	}, 4)

	require.Error(t, err)
	require.True(t, errors.IsTableError(err))
}

func Test_RoundTrip_GetFindsEveryWrittenKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := entries(50)

	// Shuffle the input order; Write must sort it before persisting.
	shuffled := make([]sstable.Entry, len(input))
	copy(shuffled, input)
	for i, j := 0, len(shuffled)-1; i < j; i, j = i+1, j-1 {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	path, err := sstable.Write(dir, shuffled, 4)
	require.NoError(t, err)

	reader, err := sstable.Open(path)
	require.NoError(t, err)
	defer reader.Close()

	for _, e := range input {
		value, ok, err := reader.Get(e.Key)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, e.Value, value)
	}

	_, ok, err := reader.Get([]byte("not-a-real-key"))
	require.NoError(t, err)
	require.False(t, ok)

	var roundTripped []sstable.Entry
	it := reader.All()
	for {
		key, value, ok := it.Next()
		if !ok {
			break
		}
		roundTripped = append(roundTripped, sstable.Entry{Key: key, Value: value})
	}
	if diff := cmp.Diff(input, roundTripped); diff != "" {
		t.Fatalf("round-tripped entries differ from input (-want +got):\n%s", diff)
	}
}

func Test_Get_BoundaryKeysAroundEachStride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := entries(17)
	path, err := sstable.Write(dir, input, 5)
	require.NoError(t, err)

	reader, err := sstable.Open(path)
	require.NoError(t, err)
	defer reader.Close()

	// First and last entries are the hardest boundary cases for a sparse
	// index: the very first indexed key and a key past the last index
	// point.
	first, ok, err := reader.Get(input[0].Key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, input[0].Value, first)

	last, ok, err := reader.Get(input[len(input)-1].Key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, input[len(input)-1].Value, last)

	_, ok, err = reader.Get([]byte("key-0000a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_RangeIter_ReturnsInclusiveAscendingRange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := entries(30)
	path, err := sstable.Write(dir, input, 4)
	require.NoError(t, err)

	reader, err := sstable.Open(path)
	require.NoError(t, err)
	defer reader.Close()

	start := input[6].Key
	end := input[19].Key

	it := reader.RangeIter(start, end)
	var got []string
	for {
		key, _, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(key))
	}

	require.Len(t, got, 19-6+1)
	for i, k := range got {
		require.Equal(t, string(input[6+i].Key), k)
	}
}

func Test_RangeIter_StartBetweenIndexPointsIsNotMissed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := entries(40)
	// A large stride forces a range start that falls strictly between two
	// sparse index points, exercising the floor-and-skip logic rather
	// than landing exactly on an indexed key.
	path, err := sstable.Write(dir, input, 10)
	require.NoError(t, err)

	reader, err := sstable.Open(path)
	require.NoError(t, err)
	defer reader.Close()

	start := input[13].Key
	end := input[13].Key

	it := reader.RangeIter(start, end)
	key, value, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, input[13].Key, key)
	require.Equal(t, input[13].Value, value)

	_, _, ok = it.Next()
	require.False(t, ok)
}

func Test_Open_RejectsCorruptFooterMagic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := sstable.Write(dir, entries(5), 2)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	corrupted := append([]byte(nil), raw...)
	binary.BigEndian.PutUint32(corrupted[len(corrupted)-sstable.FooterSize:], 0xDEADBEEF)
	require.NoError(t, os.WriteFile(path, corrupted, 0644))

	_, err = sstable.Open(path)
	require.Error(t, err)
	require.True(t, errors.IsTableError(err))
}

func Test_Open_RejectsBodyChecksumMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := sstable.Write(dir, entries(5), 2)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	corrupted := append([]byte(nil), raw...)
	corrupted[0] ^= 0xFF
	require.NoError(t, os.WriteFile(path, corrupted, 0644))

	_, err = sstable.Open(path)
	require.Error(t, err)
}

func Test_RangeIter_StopsCleanlyOnTornRecordMidScan(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := entries(20)
	path, err := sstable.Write(dir, input, 4)
	require.NoError(t, err)

	reader, err := sstable.Open(path)
	require.NoError(t, err)
	defer reader.Close()

	// Truncate the underlying file out from under the already-opened
	// index so a mid-scan read runs past EOF, simulating a torn record.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()/2))

	it := reader.RangeIter(input[0].Key, input[len(input)-1].Key)
	var count int
	for {
		_, _, ok := it.Next()
		if !ok {
			break
		}
		count++
	}

	require.Less(t, count, len(input))
}
