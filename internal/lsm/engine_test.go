package lsm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/lsm"
	"github.com/strata-db/strata/pkg/kv"
	"github.com/strata-db/strata/pkg/options"
)

func newEngine(t *testing.T, dir string) *lsm.Engine {
	t.Helper()

	opts := options.NewDefaultOptions()
	opts.DataDir = dir
	opts.Engine = options.EngineLSM

	e := lsm.New(&opts)
	require.NoError(t, e.Start(context.Background()))
	return e
}

func Test_PutThenGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEngine(t, t.TempDir())
	defer e.Close()

	require.NoError(t, e.Put(ctx, []byte("foo"), []byte("bar")))

	value, ok, err := e.Get(ctx, []byte("foo"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("bar"), value)
}

func Test_BatchPutThenRange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEngine(t, t.TempDir())
	defer e.Close()

	n, err := e.BatchPut(ctx, []kv.Item{
		{Key: []byte("a"), Value: []byte("b")},
		{Key: []byte("foo"), Value: []byte("BAR2")},
		{Key: []byte("z"), Value: []byte("last")},
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	items, err := e.Range(ctx, []byte("a"), []byte("g"), 10)
	require.NoError(t, err)
	require.Equal(t, []kv.Item{
		{Key: []byte("a"), Value: []byte("b")},
		{Key: []byte("foo"), Value: []byte("BAR2")},
	}, items)
}

func Test_DeleteThenGetMisses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEngine(t, t.TempDir())
	defer e.Close()

	require.NoError(t, e.Put(ctx, []byte("k"), []byte("v")))
	require.NoError(t, e.Delete(ctx, []byte("k")))

	_, ok, err := e.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_BatchPut_LastOccurrenceWinsOnKeyCollision(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEngine(t, t.TempDir())
	defer e.Close()

	_, err := e.BatchPut(ctx, []kv.Item{
		{Key: []byte("k"), Value: []byte("first")},
		{Key: []byte("k"), Value: []byte("second")},
	})
	require.NoError(t, err)

	value, ok, err := e.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("second"), value)
}

func Test_Recovery_ReplaysWALOnRestartBeforeAnyFlush(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	e1 := newEngine(t, dir)
	require.NoError(t, e1.Put(ctx, []byte("alpha"), []byte("1")))
	require.NoError(t, e1.Put(ctx, []byte("beta"), []byte("2")))
	require.NoError(t, e1.Close())

	e2 := newEngine(t, dir)
	defer e2.Close()

	value, ok, err := e2.Get(ctx, []byte("alpha"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), value)

	value, ok, err = e2.Get(ctx, []byte("beta"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), value)
}

func Test_MergePriority_NewerTableShadowsOlderTableAcrossCompaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	opts := options.NewDefaultOptions()
	opts.DataDir = dir
	opts.Engine = options.EngineLSM
	opts.MemtableByteLimit = 1 // flush after every write

	e := lsm.New(&opts)
	require.NoError(t, e.Start(ctx))
	defer e.Close()

	require.NoError(t, e.Put(ctx, []byte("k"), []byte("old")))
	require.NoError(t, e.Put(ctx, []byte("k"), []byte("new")))

	value, ok, err := e.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("new"), value)

	_, err = e.Compact(ctx)
	require.NoError(t, err)

	value, ok, err = e.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("new"), value)
}

func Test_Compact_PreservesTombstonesAcrossMergedTables(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	opts := options.NewDefaultOptions()
	opts.DataDir = dir
	opts.Engine = options.EngineLSM
	opts.MemtableByteLimit = 1

	e := lsm.New(&opts)
	require.NoError(t, e.Start(ctx))
	defer e.Close()

	require.NoError(t, e.Put(ctx, []byte("k"), []byte("v")))
	require.NoError(t, e.Delete(ctx, []byte("k")))

	_, err := e.Compact(ctx)
	require.NoError(t, err)

	_, ok, err := e.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_Compact_NoopWhenFewerThanTwoTablesExist(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEngine(t, t.TempDir())
	defer e.Close()

	require.NoError(t, e.Put(ctx, []byte("k"), []byte("v")))

	reclaimed, err := e.Compact(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), reclaimed)
}

func Test_OperationsBeforeStartReturnErrNotStarted(t *testing.T) {
	t.Parallel()

	opts := options.NewDefaultOptions()
	opts.DataDir = t.TempDir()
	opts.Engine = options.EngineLSM
	e := lsm.New(&opts)

	_, _, err := e.Get(context.Background(), []byte("k"))
	require.ErrorIs(t, err, kv.ErrNotStarted)
}

func Test_OperationsAfterCloseReturnErrClosed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEngine(t, t.TempDir())
	require.NoError(t, e.Close())

	_, _, err := e.Get(ctx, []byte("k"))
	require.ErrorIs(t, err, kv.ErrClosed)
}
