// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package main

import "os"

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return dir
}
