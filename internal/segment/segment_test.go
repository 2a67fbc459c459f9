package segment_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/record"
	"github.com/strata-db/strata/internal/segment"
)

func Test_Writer_AppendAssignsDistinctOffsets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := segment.Create(dir, 1)
	require.NoError(t, err)
	defer w.Close()

	pos1, err := w.Append(record.NewPut([]byte("a"), []byte("1")))
	require.NoError(t, err)
	pos2, err := w.Append(record.NewPut([]byte("b"), []byte("2")))
	require.NoError(t, err)

	require.Equal(t, int64(0), pos1.Offset)
	require.Greater(t, pos2.Offset, pos1.Offset)
	require.Equal(t, w.Size(), pos2.Offset+int64(record.NewPut([]byte("b"), []byte("2")).Size()))
}

func Test_Writer_AppendManyAssignsPerRecordOffsets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := segment.Create(dir, 1)
	require.NoError(t, err)
	defer w.Close()

	recs := []*record.Record{
		record.NewPut([]byte("a"), []byte("1")),
		record.NewPut([]byte("bb"), []byte("22")),
		record.NewPut([]byte("ccc"), []byte("333")),
	}

	positions, err := w.AppendMany(recs)
	require.NoError(t, err)
	require.Len(t, positions, len(recs))

	// The regression this guards against: a prior implementation could
	// assign every item in a batch the batch's starting offset instead of
	// its own. Assert every offset is unique and strictly ascending.
	for i := 1; i < len(positions); i++ {
		require.Greater(t, positions[i].Offset, positions[i-1].Offset)
	}

	for i, pos := range positions {
		rec, err := segment.ReadAt(dir, pos.SegmentID, pos.Offset)
		require.NoError(t, err)
		require.Equal(t, recs[i].Key, rec.Key)
		require.Equal(t, recs[i].Value, rec.Value)
	}
}

func Test_Writer_ResumesSizeFromExistingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w1, err := segment.Create(dir, 1)
	require.NoError(t, err)
	_, err = w1.Append(record.NewPut([]byte("a"), []byte("1")))
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	w2, err := segment.Create(dir, 1)
	require.NoError(t, err)
	defer w2.Close()
	require.Equal(t, w1.Size(), w2.Size())
}

func Test_Replay_StopsCleanlyAtTornTail(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := segment.Create(dir, 1)
	require.NoError(t, err)

	rec1 := record.NewPut([]byte("a"), []byte("1"))
	rec2 := record.NewPut([]byte("b"), []byte("2"))
	_, err = w.Append(rec1)
	require.NoError(t, err)
	_, err = w.Append(rec2)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	path := dir + "/00000000000000000001.seg"
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-1))

	var seen []string
	err = segment.Replay(dir, 1, func(pos segment.Position, rec *record.Record) error {
		seen = append(seen, string(rec.Key))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, seen)
}

func Test_Replay_VisitsEveryIntactRecord(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := segment.Create(dir, 1)
	require.NoError(t, err)

	_, err = w.AppendMany([]*record.Record{
		record.NewPut([]byte("a"), []byte("1")),
		record.NewTombstone([]byte("b")),
		record.NewPut([]byte("c"), []byte("3")),
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var keys []string
	var flags []byte
	err = segment.Replay(dir, 1, func(pos segment.Position, rec *record.Record) error {
		keys = append(keys, string(rec.Key))
		flags = append(flags, rec.Flag)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, keys)
	require.Equal(t, []byte{record.FlagPut, record.FlagTombstone, record.FlagPut}, flags)
}
