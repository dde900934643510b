// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package eject

import (
	"embed"
	"os"
	"path/filepath"

	"esy.sh/build/internal/osutil"
)

// The shell runtime and helpers bundled into every ejected tree.
// runtime.sh is the opaque shell core realizing the build protocol
// at Make-time; the others are small helpers it calls.
//
//go:embed runtime
var runtimeFiles embed.FS

// writeRuntimeAssets copies the bundled helpers into outputPath/bin.
// Shell scripts are marked executable; realpath.c is compiled
// by the Makefile's esy-root target.
func writeRuntimeAssets(outputPath string) error {
	binDir := filepath.Join(outputPath, "bin")
	if err := osutil.MkdirAllPerm(binDir, 0o755); err != nil {
		return err
	}
	entries, err := runtimeFiles.ReadDir("runtime")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		data, err := runtimeFiles.ReadFile("runtime/" + entry.Name())
		if err != nil {
			return err
		}
		perm := os.FileMode(0o644)
		if filepath.Ext(entry.Name()) != ".c" {
			perm = 0o755
		}
		if err := osutil.WriteFilePerm(filepath.Join(binDir, entry.Name()), data, perm); err != nil {
			return err
		}
	}
	return nil
}
