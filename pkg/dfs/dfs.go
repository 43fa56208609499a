// Package dfs defines the distributed filesystem operations consumed by
// the rest of this repository, and a local-disk implementation of them
// suitable for single-node deployments and tests.
package dfs

import (
	"context"
	"io"
)

// DirEntry is one entry returned by Readdir.
type DirEntry struct {
	Name   string
	Length int64
	IsDir  bool
}

// Filesystem is the minimal DFS surface this repository needs: create,
// append, sync, close, length, exists, remove, rename, mkdirs, readdir.
// Rename must be atomic within a directory; append need not be atomic
// beyond individual write system calls, matching the writer side of
// pkg/commitlog, which relies on Sync for durability, not on Append being
// transactional.
type Filesystem interface {
	// Create opens path for writing, truncating it if it already exists
	// and overwrite is true, or failing if it exists and overwrite is
	// false. Parent directories must already exist.
	Create(ctx context.Context, path string, overwrite bool) (WriteHandle, error)

	// OpenAppend opens path for appending; the handle's writes land after
	// the current end of file.
	OpenAppend(ctx context.Context, path string) (WriteHandle, error)

	// Open opens path for reading from the start.
	Open(ctx context.Context, path string) (ReadHandle, error)

	// Exists reports whether path names an existing file or directory.
	Exists(ctx context.Context, path string) (bool, error)

	// Length returns the current size of the file at path.
	Length(ctx context.Context, path string) (int64, error)

	// Remove deletes the file at path. It is not an error if path does
	// not exist.
	Remove(ctx context.Context, path string) error

	// Rename moves oldPath to newPath atomically within a directory.
	Rename(ctx context.Context, oldPath, newPath string) error

	// Mkdirs creates path and all missing parents.
	Mkdirs(ctx context.Context, path string) error

	// Readdir lists the direct children of path.
	Readdir(ctx context.Context, path string) ([]DirEntry, error)
}

// WriteHandle is an open file positioned for writing.
type WriteHandle interface {
	io.Writer
	io.Closer
	// Sync issues an fsync of everything written so far. The commit-log
	// writer treats this as the durability boundary: a reader is only
	// guaranteed to observe blocks written before the last Sync.
	Sync() error
}

// ReadHandle is an open file positioned for reading.
type ReadHandle interface {
	io.Reader
	io.Closer
}
