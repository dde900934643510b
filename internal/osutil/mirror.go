// Copyright 2025 The esy-build Authors
// SPDX-License-Identifier: MIT

package osutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// MirrorTree copies the contents of the directory src into the directory dst,
// like an archive-mode copy with a trailing slash on the source:
// regular files and directories are reproduced
// with their permission bits and modification times preserved,
// and symbolic links are recreated with the same target
// (the modification times of the links themselves are not preserved).
// dst must already exist.
func MirrorTree(src, dst string) error {
	// Directory times are restored after the walk,
	// since creating entries inside a directory updates its time.
	type dirTime struct {
		path    string
		modTime time.Time
	}
	var dirs []dirTime
	err := filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)

		info, err := entry.Info()
		if err != nil {
			return err
		}
		switch {
		case entry.IsDir():
			if err := MkdirPerm(target, info.Mode().Perm()); err != nil {
				return err
			}
			dirs = append(dirs, dirTime{target, info.ModTime()})
			return nil
		case info.Mode()&fs.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		case info.Mode().IsRegular():
			if err := copyRegularFile(path, target, info); err != nil {
				return err
			}
			return nil
		default:
			return fmt.Errorf("mirror %s: unsupported file type %v", path, info.Mode().Type())
		}
	})
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if err := os.Chtimes(d.path, time.Time{}, d.modTime); err != nil {
			return err
		}
	}
	return nil
}

func copyRegularFile(src, dst string, info fs.FileInfo) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm()|0o200)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err == nil {
			err = os.Chmod(dst, info.Mode().Perm())
		}
		if err == nil {
			err = os.Chtimes(dst, time.Time{}, info.ModTime())
		}
	}()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %v", src, err)
	}
	return nil
}
