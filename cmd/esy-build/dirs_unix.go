// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

//go:build unix

package main

import "go4.org/xdgdir"

func configDir() string {
	return xdgdir.Config.Path()
}
