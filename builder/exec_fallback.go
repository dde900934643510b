// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

//go:build !unix

package builder

import "os/exec"

func setCancelFunc(c *exec.Cmd) {}
