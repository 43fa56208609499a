package dfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalFilesystem implements Filesystem against a directory on the local
// disk, rooted at basePath. It is the only Filesystem this repository
// ships; a production deployment fronts a real DFS (HDFS, S3, a QFS
// broker) behind the same interface, but none of those brokers are
// wired in here.
type LocalFilesystem struct {
	basePath string
}

// NewLocalFilesystem roots a LocalFilesystem at basePath, creating it if
// it does not already exist.
func NewLocalFilesystem(basePath string) (*LocalFilesystem, error) {
	if basePath == "" {
		return nil, fmt.Errorf("dfs: basePath must not be empty")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("dfs: failed to create root directory: %w", err)
	}
	return &LocalFilesystem{basePath: basePath}, nil
}

func (f *LocalFilesystem) resolve(path string) string {
	return filepath.Join(f.basePath, filepath.Clean("/"+path))
}

func (f *LocalFilesystem) Create(_ context.Context, path string, overwrite bool) (WriteHandle, error) {
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	full := f.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("dfs: create %s: %w", path, err)
	}
	file, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dfs: create %s: %w", path, err)
	}
	return &localWriteHandle{file: file}, nil
}

func (f *LocalFilesystem) OpenAppend(_ context.Context, path string) (WriteHandle, error) {
	full := f.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("dfs: append %s: %w", path, err)
	}
	file, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dfs: append %s: %w", path, err)
	}
	return &localWriteHandle{file: file}, nil
}

func (f *LocalFilesystem) Open(_ context.Context, path string) (ReadHandle, error) {
	file, err := os.Open(f.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("dfs: open %s: %w", path, err)
	}
	return file, nil
}

func (f *LocalFilesystem) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(f.resolve(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("dfs: exists %s: %w", path, err)
}

func (f *LocalFilesystem) Length(_ context.Context, path string) (int64, error) {
	info, err := os.Stat(f.resolve(path))
	if err != nil {
		return 0, fmt.Errorf("dfs: length %s: %w", path, err)
	}
	return info.Size(), nil
}

func (f *LocalFilesystem) Remove(_ context.Context, path string) error {
	err := os.Remove(f.resolve(path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("dfs: remove %s: %w", path, err)
	}
	return nil
}

func (f *LocalFilesystem) Rename(_ context.Context, oldPath, newPath string) error {
	full := f.resolve(newPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("dfs: rename %s -> %s: %w", oldPath, newPath, err)
	}
	if err := os.Rename(f.resolve(oldPath), full); err != nil {
		return fmt.Errorf("dfs: rename %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}

func (f *LocalFilesystem) Mkdirs(_ context.Context, path string) error {
	if err := os.MkdirAll(f.resolve(path), 0o755); err != nil {
		return fmt.Errorf("dfs: mkdirs %s: %w", path, err)
	}
	return nil
}

func (f *LocalFilesystem) Readdir(_ context.Context, path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(f.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("dfs: readdir %s: %w", path, err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("dfs: readdir %s: %w", path, err)
		}
		out = append(out, DirEntry{
			Name:   e.Name(),
			Length: info.Size(),
			IsDir:  e.IsDir(),
		})
	}
	return out, nil
}

type localWriteHandle struct {
	file *os.File
}

func (h *localWriteHandle) Write(p []byte) (int, error) { return h.file.Write(p) }
func (h *localWriteHandle) Close() error                { return h.file.Close() }
func (h *localWriteHandle) Sync() error                 { return h.file.Sync() }
