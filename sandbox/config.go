// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package sandbox

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// Placeholder strings used by the ejecting builder in place of real paths.
// Path strings built from a placeholder config are resolved at Make-time.
const (
	StorePlaceholder   = "$ESY_EJECT__STORE"
	SandboxPlaceholder = "$ESY_EJECT__SANDBOX"
	RootPlaceholder    = "$ESY_EJECT__ROOT"
)

// LocalStoreDir is the directory under the sandbox root
// that holds the store for non-persistent builds.
const LocalStoreDir = "_esy/store"

// A Config determines where a sandbox's builds read sources
// and write artifacts.
// Configs are created once per build or eject operation.
type Config struct {
	// StorePath is the directory of the shared store
	// for persistent builds.
	StorePath string
	// SandboxPath is the directory of the sandbox root.
	// Non-persistent builds store artifacts under
	// SandboxPath/_esy/store.
	SandboxPath string

	// LookupEnv looks up host environment variables that are passed
	// through to builds (such as CI).
	// If nil, [os.LookupEnv] is used.
	LookupEnv func(key string) (string, bool)
}

// NewConfig returns a config rooted at the given store and sandbox
// directories.
// Both paths must be absolute.
func NewConfig(storePath, sandboxPath string) (*Config, error) {
	if !filepath.IsAbs(storePath) {
		return nil, fmt.Errorf("store path %q is not absolute", storePath)
	}
	if !filepath.IsAbs(sandboxPath) {
		return nil, fmt.Errorf("sandbox path %q is not absolute", sandboxPath)
	}
	return &Config{
		StorePath:   filepath.ToSlash(filepath.Clean(storePath)),
		SandboxPath: filepath.ToSlash(filepath.Clean(sandboxPath)),
	}, nil
}

// EjectConfig returns the config used by the ejecting builder:
// store and sandbox paths are the literal placeholder strings
// substituted by Make on the target machine.
func EjectConfig() *Config {
	return &Config{
		StorePath:   StorePlaceholder,
		SandboxPath: SandboxPlaceholder,
	}
}

// IsEject reports whether the config uses Make-time placeholder paths
// instead of filesystem paths.
func (cfg *Config) IsEject() bool {
	return cfg.StorePath == StorePlaceholder
}

func (cfg *Config) lookupEnv(key string) (string, bool) {
	if cfg.LookupEnv != nil {
		return cfg.LookupEnv(key)
	}
	return os.LookupEnv(key)
}

// LookupEnvOrHost looks up a host environment variable
// through the config's LookupEnv hook,
// or through the process environment when the hook is nil.
func (cfg *Config) LookupEnvOrHost(key string) (string, bool) {
	return cfg.lookupEnv(key)
}

// basePath returns the store a build's artifacts belong to.
func (cfg *Config) basePath(b *Build) string {
	if b.ShouldBePersisted {
		return cfg.StorePath
	}
	return path.Join(cfg.SandboxPath, LocalStoreDir)
}

// SourcePath returns the path of the build's source tree,
// optionally extended with the given path segments.
func (cfg *Config) SourcePath(b *Build, elem ...string) string {
	return path.Join(append([]string{cfg.SandboxPath, b.SourcePath}, elem...)...)
}

// RootPath returns the working directory for the build's commands:
// the build tree if the build mutates its source path,
// the source tree otherwise.
func (cfg *Config) RootPath(b *Build, elem ...string) string {
	if b.MutatesSourcePath {
		return cfg.BuildPath(b, elem...)
	}
	return cfg.SourcePath(b, elem...)
}

// BuildPath returns the path of the build's intermediate artifact tree.
func (cfg *Config) BuildPath(b *Build, elem ...string) string {
	return path.Join(append([]string{cfg.basePath(b), "_build", b.ID}, elem...)...)
}

// InstallPath returns the path of the build's install staging tree.
// Commands write installed artifacts here;
// on success the tree is renamed to [Config.FinalInstallPath].
func (cfg *Config) InstallPath(b *Build, elem ...string) string {
	return path.Join(append([]string{cfg.basePath(b), "_insttmp", b.ID}, elem...)...)
}

// FinalInstallPath returns the published location of the build's artifacts.
// Its absence is the canonical "not built" signal for persistent builds.
func (cfg *Config) FinalInstallPath(b *Build, elem ...string) string {
	return path.Join(append([]string{cfg.basePath(b), "_install", b.ID}, elem...)...)
}

// InstallTreeSubdirectories is the fixed set of directories
// created under a build's install staging tree.
var InstallTreeSubdirectories = []string{
	"lib", "bin", "sbin", "man", "doc", "share", "stublibs", "etc",
}
