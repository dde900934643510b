// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package sandbox

import (
	"fmt"
	"strings"
)

// FindlibConfig renders the findlib.conf contents for a build.
//
// The search path enumerates the finalized lib directory of every
// transitive dependency in depth-first post-order,
// with the build's own staging lib directory appended last
// so that self-queries during the build succeed.
// destdir points at the staging lib directory, where the build installs
// its own findlib packages.
func FindlibConfig(cfg *Config, b *Build) string {
	var entries []string
	for _, d := range dependencyPostOrder(b) {
		entries = append(entries, cfg.FinalInstallPath(d, "lib"))
	}
	selfLib := cfg.InstallPath(b, "lib")
	entries = append(entries, selfLib)

	sb := new(strings.Builder)
	fmt.Fprintf(sb, "path = %q\n", strings.Join(entries, ":"))
	fmt.Fprintf(sb, "destdir = %q\n", selfLib)
	sb.WriteString("ldconf = \"ignore\"\n")
	for _, tool := range []string{"ocamlc", "ocamldep", "ocamldoc", "ocamllex", "ocamlopt"} {
		fmt.Fprintf(sb, "%s = %q\n", tool, tool+".opt")
	}
	return sb.String()
}
