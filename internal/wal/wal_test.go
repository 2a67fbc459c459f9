package wal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/wal"
)

type frameRecord struct {
	op    wal.Op
	key   string
	value string
}

func Test_Append_ReplayRecoversEveryFrameInOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log, err := wal.Open(dir, false)
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Append(wal.OpPut, []byte("a"), []byte("1")))
	require.NoError(t, log.Append(wal.OpPut, []byte("b"), []byte("2")))
	require.NoError(t, log.Append(wal.OpDelete, []byte("a"), nil))

	var got []frameRecord
	err = log.Replay(func(op wal.Op, key, value []byte) error {
		got = append(got, frameRecord{op: op, key: string(key), value: string(value)})
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, []frameRecord{
		{op: wal.OpPut, key: "a", value: "1"},
		{op: wal.OpPut, key: "b", value: "2"},
		{op: wal.OpDelete, key: "a", value: ""},
	}, got)
}

func Test_Replay_StopsCleanlyAtTornFrame(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log, err := wal.Open(dir, false)
	require.NoError(t, err)

	require.NoError(t, log.Append(wal.OpPut, []byte("a"), []byte("1")))
	require.NoError(t, log.Append(wal.OpPut, []byte("b"), []byte("2")))
	require.NoError(t, log.Close())

	path := filepath.Join(dir, wal.ActiveFileName)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-1))

	log2, err := wal.Open(dir, false)
	require.NoError(t, err)
	defer log2.Close()

	var keys []string
	err = log2.Replay(func(op wal.Op, key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, keys)
}

func Test_Rotate_ArchivesAndStartsFreshActiveFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log, err := wal.Open(dir, false)
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Append(wal.OpPut, []byte("a"), []byte("1")))

	archivedPath, err := log.Rotate()
	require.NoError(t, err)
	require.FileExists(t, archivedPath)

	activePath := filepath.Join(dir, wal.ActiveFileName)
	info, err := os.Stat(activePath)
	require.NoError(t, err)
	require.Zero(t, info.Size())

	require.NoError(t, log.Append(wal.OpPut, []byte("b"), []byte("2")))

	var keys []string
	err = log.Replay(func(op wal.Op, key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, keys)
}

func Test_Append_FsyncOnAppendOptionDoesNotError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log, err := wal.Open(dir, true)
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Append(wal.OpPut, []byte("a"), []byte("1")))
}
