// Package fsutil holds small file helpers shared by the pipeline stages.
package fsutil

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// WriteFileAtomic replaces path with data through a temporary file in the same
// directory and a rename, so readers see either the old or the new content and
// never a partial write. An existing file keeps its permissions; a new one
// gets perm.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return writeAtomic(path, data, perm)
}

// WriteFileAtomicMode is WriteFileAtomic, but the result always has mode perm,
// whatever the mode of the file it replaces. Use it for secrets.
func WriteFileAtomicMode(path string, data []byte, perm os.FileMode) error {
	return writeAtomic(path, data, perm)
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return errors.Wrap(err, "chmod temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "replace file")
}
