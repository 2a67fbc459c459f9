// Package filesys provides the directory and atomic-file-publication
// helpers the storage engines need: creating the data directory, and
// durably publishing a sorted table or manifest file.
package filesys

import (
	"bytes"
	"errors"
	"os"

	"github.com/natefinch/atomic"
)

var (
	ErrIsNotDir = errors.New("path isn't a directory")
)

// AtomicWriteFile writes contents to path by staging them in a temp file
// in the same directory and renaming over the destination, so readers
// never observe a partially written file. This is the only correct way
// to publish a sorted table or a manifest: the rename is atomic, but the
// rename itself still needs FsyncDir below to be durable against a crash.
func AtomicWriteFile(path string, contents []byte) error {
	return atomic.WriteFile(path, bytes.NewReader(contents))
}

// FsyncDir fsyncs a directory's inode, which is what makes a preceding
// file creation or rename durable against a crash — fsyncing the file
// itself is not enough, the directory entry pointing at it must also hit
// stable storage.
func FsyncDir(dirPath string) error {
	dir, err := os.Open(dirPath)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}

// CreateDir creates a directory at the specified path with the given permissions.
//
// If the directory already exists:
//   - If 'force' is true, it proceeds without error.
//   - If 'force' is false, it returns an error.
//
// It also returns an error if the existing path is a file (not a directory).
func CreateDir(dirPath string, permission os.FileMode, force bool) error {
	// Get file information for the given path.
	stat, err := os.Stat(dirPath)
	// If 'force' is false and the path exists
	// return the error (indicating the directory already exists).
	if !force && !os.IsNotExist(err) {
		if err == nil {
			return os.ErrExist
		}
		return err
	}

	// If the path exists and it's not a directory, return an error.
	if stat != nil && !stat.IsDir() {
		return ErrIsNotDir
	}

	// Create all necessary parent directories if they don't exist, with the specified permissions.
	if err := os.MkdirAll(dirPath, permission); err != nil {
		return err
	}

	// Set the directory's permissions to 0755 (rwxr-xr-x), whether it was
	// just created or already existed.
	return os.Chmod(dirPath, 0755)
}
