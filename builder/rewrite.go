// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package builder

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"esy.sh/build/internal/detect"
	"esy.sh/build/internal/osutil"
)

// rewriteInstallTree replaces every occurrence of the staging install
// prefix with the finalized install prefix
// in the regular files under dir.
// Directories, symlinks, and files without an occurrence are untouched.
//
// Affected files are rewritten wholesale through a temporary file
// in the same directory, preserving the file mode.
// The staging and final prefixes differ in length,
// so an in-place overwrite at the found offset would corrupt files.
func rewriteInstallTree(dir, oldPrefix, newPrefix string) error {
	// Scan first, then rewrite:
	// renaming temporaries while the walk is in flight
	// could perturb directory iteration.
	var affected []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		found, err := fileContains(path, oldPrefix)
		if err != nil {
			return err
		}
		if found {
			affected = append(affected, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, path := range affected {
		if err := rewriteFile(path, oldPrefix, newPrefix); err != nil {
			return err
		}
	}
	return nil
}

// fileContains reports whether the file's contents
// contain the byte string needle.
func fileContains(path, needle string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	rf := detect.NewRefFinder(slices.Values([]string{needle}))
	if _, err := io.Copy(rf, f); err != nil {
		return false, fmt.Errorf("scan %s: %v", path, err)
	}
	return rf.Found().Has(needle), nil
}

func rewriteFile(path, oldPrefix, newPrefix string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data = bytes.ReplaceAll(data, []byte(oldPrefix), []byte(newPrefix))

	tmp := path + ".esy-rewrite"
	if err := osutil.WriteFilePerm(tmp, data, info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
