// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package sandbox

import "strings"

// NormalizeName converts a package name into an identifier
// usable as a Make target and shell variable suffix.
//
// The transformation lower-cases the name, strips "@",
// doubles every underscore, and then maps the remaining
// special characters to underscore words:
// "/" becomes "__slash__", "." becomes "__dot__", "-" becomes "_".
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "@", "")
	name = strings.ReplaceAll(name, "_", "__")
	name = strings.ReplaceAll(name, "/", "__slash__")
	name = strings.ReplaceAll(name, ".", "__dot__")
	name = strings.ReplaceAll(name, "-", "_")
	return name
}
