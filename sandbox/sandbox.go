// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

// Package sandbox defines the build graph model shared by the in-process
// and ejecting builders:
// builds, the sandbox that roots them,
// the content-addressed store path scheme,
// and the build environment composition rules.
package sandbox

import (
	"fmt"
	"strings"
)

// A Build is a node in the build DAG
// describing how to produce one package's installed artifacts.
//
// Builds are created by the manifest front-end before any call into this
// package and are immutable thereafter.
// Two builds with equal IDs must have byte-identical build inputs;
// the store's uniqueness guarantee rests on this.
type Build struct {
	// ID is a stable content hash uniquely identifying the build.
	// It is used as the directory name in the store.
	ID string
	// Name and Version are human identifiers.
	Name    string
	Version string

	// Command is the ordered sequence of shell commands to run.
	// An empty Command means the build has no build step
	// but still produces an (empty) install.
	Command []string

	// ExportedEnv maps variable names to export specifications.
	ExportedEnv map[string]ExportSpec

	// SourcePath is the path of the source tree, relative to the sandbox root.
	SourcePath string
	// MutatesSourcePath indicates the build writes into its own source tree.
	// The builder stages sources into the build tree before executing.
	MutatesSourcePath bool
	// ShouldBePersisted indicates artifacts go into the shared store.
	// Otherwise they go into the sandbox-local store.
	ShouldBePersisted bool

	// Dependencies is the ordered sequence of builds this build depends on.
	Dependencies []*Build

	// Errors holds diagnostic messages attached by the manifest front-end.
	// A build with a non-empty Errors is invalid
	// and fails the whole operation before any command runs.
	Errors []string
}

func (b *Build) String() string {
	if b.Version == "" {
		return b.Name
	}
	return b.Name + "@" + b.Version
}

// Scope determines the visibility of an exported environment variable.
type Scope string

// Export scopes.
const (
	// Local exports are visible only to the exporting build.
	Local Scope = "local"
	// Global exports are also visible to consumers of the build.
	Global Scope = "global"
)

// IsGlobal reports whether the scope is [Global].
// The empty scope defaults to [Local].
func (s Scope) IsGlobal() bool {
	return s == Global
}

// UnmarshalText validates and sets the scope from its textual form.
func (s *Scope) UnmarshalText(data []byte) error {
	switch Scope(data) {
	case "", Local:
		*s = Local
	case Global:
		*s = Global
	default:
		return fmt.Errorf("unknown export scope %q", data)
	}
	return nil
}

// MarshalText returns the textual form of the scope.
func (s Scope) MarshalText() ([]byte, error) {
	if s == "" {
		s = Local
	}
	return []byte(s), nil
}

// An ExportSpec describes a single exported environment variable.
type ExportSpec struct {
	// Value is the exported value.
	// It may reference the exporting build's own paths
	// through $cur__* placeholders.
	Value string
	// Scope determines who sees the export.
	Scope Scope
	// Exclusive means only this build may export the variable
	// in the given scope.
	Exclusive bool
	// Builtin marks variables the builder itself owns.
	// User packages may not set them.
	Builtin bool
}

// A Sandbox is the root build plus the global environment
// applied to every build in the tree.
type Sandbox struct {
	// Env seeds every build's environment, verbatim.
	Env []EnvVar
	// Root is the root of the build DAG.
	Root *Build
}

// An EnvVar is a single named environment variable.
// A null value is preserved through composition
// and omitted when the environment is rendered.
type EnvVar struct {
	Name  string
	Value Nullable[string]
}

// ManifestError reports diagnostics attached to a build by the manifest
// front-end.
type ManifestError struct {
	// ID is the failing build's id.
	ID string
	// Build is the failing build's human identifier.
	Build string
	// Messages are the attached diagnostics.
	Messages []string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("package %s: %s", e.Build, strings.Join(e.Messages, "; "))
}
