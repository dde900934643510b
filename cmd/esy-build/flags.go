// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"path/filepath"
)

// absPathFlag is an implementation of [github.com/spf13/pflag.Value]
// that cleans its argument and resolves a relative argument
// against the working directory.
type absPathFlag string

func (f *absPathFlag) Type() string  { return "string" }
func (f absPathFlag) String() string { return string(f) }
func (f absPathFlag) Get() any       { return string(f) }

func (f *absPathFlag) Set(s string) error {
	if !filepath.IsAbs(s) {
		abs, err := filepath.Abs(s)
		if err != nil {
			return fmt.Errorf("resolve %q: %v", s, err)
		}
		s = abs
	}
	*f = absPathFlag(filepath.Clean(s))
	return nil
}
