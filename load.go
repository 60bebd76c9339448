package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/Gman0064/chisel/elfbin"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrPayloadRead  = errors.New("payload not readable")
)

// loadFile reads path whole and returns its permission bits alongside.
func loadFile(fsys afero.Fs, path string) ([]byte, os.FileMode, error) {
	info, err := fsys.Stat(path)
	if os.IsNotExist(err) {
		return nil, 0, errors.Wrap(ErrFileNotFound, path)
	}
	if err != nil {
		return nil, 0, errors.Wrap(err, "stat "+path)
	}
	if info.IsDir() {
		return nil, 0, errors.Wrapf(ErrFileNotFound, "%s is a directory", path)
	}
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, 0, errors.Wrap(err, "read "+path)
	}
	return raw, info.Mode().Perm(), nil
}

func loadELF(fsys afero.Fs, path string) (*elfbin.File, os.FileMode, error) {
	raw, perm, err := loadFile(fsys, path)
	if err != nil {
		return nil, 0, err
	}
	f, err := elfbin.Parse(raw)
	if err != nil {
		return nil, 0, errors.Wrap(err, "parse "+path)
	}
	return f, perm, nil
}

func readPayload(fsys afero.Fs, path string) ([]byte, error) {
	raw, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Wrapf(ErrPayloadRead, "%s: %v", path, err)
	}
	return raw, nil
}

func outputPath(input, output string) string {
	if output != "" {
		return output
	}
	return input + ".patched"
}

// writeFile writes data next to path under a temporary name and renames
// it into place, so path is either untouched or complete.
func writeFile(fsys afero.Fs, path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := afero.TempFile(fsys, filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	defer func() {
		if err != nil {
			_ = fsys.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write "+tmp.Name())
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "close "+tmp.Name())
	}
	if err = fsys.Chmod(tmp.Name(), perm); err != nil {
		return errors.Wrap(err, "chmod "+tmp.Name())
	}
	if err = fsys.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "rename to "+path)
	}
	return nil
}
