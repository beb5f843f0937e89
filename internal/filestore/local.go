package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/koustreak/dbbrowse/internal/errs"
)

// Local stores documents as files in one directory. The directory is
// created lazily on the first Write.
type Local struct {
	dir string
}

var _ Store = (*Local)(nil)

// NewLocal returns a Local rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// Dir returns the data directory.
func (l *Local) Dir() string { return l.dir }

// Ping succeeds when the directory exists or does not exist yet, and fails
// when the path is taken by something that is not a directory.
func (l *Local) Ping(_ context.Context) error {
	info, err := os.Stat(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return mapError(err, "stat data directory")
	}
	if !info.IsDir() {
		return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("%s is not a directory", l.dir))
	}
	return nil
}

// Read implements Store.
func (l *Local) Read(_ context.Context, name string) ([]byte, error) {
	path, err := l.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mapError(err, "read "+name)
	}
	return data, nil
}

// Write replaces the document atomically: temp file in the same
// directory, fsync, rename.
func (l *Local) Write(_ context.Context, name string, data []byte) error {
	path, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o700); err != nil {
		return mapError(err, "create data directory")
	}

	tmp, err := os.CreateTemp(l.dir, "."+name+".*.tmp")
	if err != nil {
		return mapError(err, "create temp file for "+name)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return mapError(err, "write "+name)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return mapError(err, "sync "+name)
	}
	if err := tmp.Close(); err != nil {
		return mapError(err, "close "+name)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return mapError(err, "replace "+name)
	}
	return nil
}

// Delete implements Store.
func (l *Local) Delete(_ context.Context, name string) error {
	path, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return mapError(err, "delete "+name)
	}
	return nil
}

// Close is a no-op.
func (l *Local) Close() error { return nil }

// path resolves name inside the directory, rejecting anything that would
// escape it.
func (l *Local) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("invalid document name %q", name))
	}
	return filepath.Join(l.dir, name), nil
}

// mapError translates filesystem errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case errors.Is(err, fs.ErrPermission):
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	default:
		return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
	}
}
