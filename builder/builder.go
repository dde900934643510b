// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

// Package builder executes a sandbox's build graph in-process,
// staging each build in the store and finalizing its artifacts atomically.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"zombiezen.com/go/log"

	"esy.sh/build/internal/osutil"
	"esy.sh/build/internal/uuid8"
	"esy.sh/build/sandbox"
	"esy.sh/build/sets"
)

// Options holds optional parameters for [New].
type Options struct {
	// Output receives the stdout and stderr of build commands.
	// If nil, output is written to [os.Stderr].
	Output io.Writer
}

// A Builder realizes builds into the store described by its config.
type Builder struct {
	cfg    *sandbox.Config
	output io.Writer
}

// New returns a new [Builder] that places artifacts according to cfg.
func New(cfg *sandbox.Config, opts *Options) *Builder {
	if opts == nil {
		opts = new(Options)
	}
	bd := &Builder{
		cfg:    cfg,
		output: opts.Output,
	}
	if bd.output == nil {
		bd.output = os.Stderr
	}
	return bd
}

// Build realizes every build reachable from the sandbox root
// in dependency order.
//
// Validation failures (cycles, manifest diagnostics, export conflicts)
// are reported before any command runs.
// A failed build fails every build that transitively depends on it;
// independent subtrees still build.
// The returned error joins the failures in post-order,
// first encountered first.
func (bd *Builder) Build(ctx context.Context, sb *sandbox.Sandbox) error {
	if err := sandbox.Validate(sb.Root); err != nil {
		return err
	}
	// Surface export conflicts for the whole graph up front
	// so no command runs against a sandbox that cannot compose.
	for b := range sandbox.PostOrder(sb.Root) {
		if _, err := sandbox.ComposeEnvironment(bd.cfg, b, sb.Env); err != nil {
			return err
		}
	}
	if err := bd.initStore(); err != nil {
		return err
	}

	// The run identifier is derived from the root build id,
	// so runs over the same sandbox correlate across invocations.
	runID := uuid8.FromBytes([]byte(sb.Root.ID))
	log.Infof(ctx, "Build run %v: realizing %s", runID, sb.Root)

	failed := make(sets.Set[string])
	var buildErrors []error
	for b := range sandbox.PostOrder(sb.Root) {
		if err := ctx.Err(); err != nil {
			buildErrors = append(buildErrors, err)
			break
		}
		skip := false
		for _, dep := range b.Dependencies {
			if failed.Has(dep.ID) {
				skip = true
				break
			}
		}
		if skip {
			log.Warnf(ctx, "Skipping %s: dependency failed", b)
			failed.Add(b.ID)
			continue
		}
		if err := bd.performBuild(ctx, sb, b); err != nil {
			log.Errorf(ctx, "Build %s failed: %v", b, err)
			failed.Add(b.ID)
			buildErrors = append(buildErrors, fmt.Errorf("build %s: %w", b, err))
			continue
		}
	}
	if len(buildErrors) > 0 {
		return errors.Join(buildErrors...)
	}
	log.Infof(ctx, "Build run %v: done", runID)
	return nil
}

// initStore creates the store skeletons for both the shared store
// and the sandbox-local store.
func (bd *Builder) initStore() error {
	roots := []string{
		bd.cfg.StorePath,
		bd.cfg.SandboxPath + "/" + sandbox.LocalStoreDir,
	}
	for _, root := range roots {
		for _, sub := range []string{"_build", "_insttmp", "_install"} {
			dir := filepath.FromSlash(root + "/" + sub)
			if err := osutil.MkdirAllPerm(dir, 0o755); err != nil {
				return fmt.Errorf("init store: %v", err)
			}
		}
	}
	return nil
}

// performBuild executes the build protocol for a single build:
// cache check, staging cleanup, skeleton creation, source staging,
// environment and findlib materialization, command execution,
// path rewrite, and the finalizing rename.
//
// Failure at any step leaves the finalized install tree absent,
// so a re-run retries the build from scratch.
func (bd *Builder) performBuild(ctx context.Context, sb *sandbox.Sandbox, b *sandbox.Build) error {
	finalInstallPath := filepath.FromSlash(bd.cfg.FinalInstallPath(b))
	if b.ShouldBePersisted {
		if info, err := os.Stat(finalInstallPath); err == nil && info.IsDir() {
			log.Debugf(ctx, "%s already present at %s", b, finalInstallPath)
			return nil
		}
	}
	log.Infof(ctx, "Building %s", b)

	buildPath := filepath.FromSlash(bd.cfg.BuildPath(b))
	installPath := filepath.FromSlash(bd.cfg.InstallPath(b))
	for _, dir := range []string{finalInstallPath, installPath, buildPath} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clean staging: %v", err)
		}
	}

	if err := osutil.MkdirAllPerm(filepath.Join(buildPath, "_esy"), 0o755); err != nil {
		return err
	}
	for _, sub := range sandbox.InstallTreeSubdirectories {
		if err := osutil.MkdirAllPerm(filepath.Join(installPath, sub), 0o755); err != nil {
			return err
		}
	}

	if b.MutatesSourcePath {
		sourcePath := filepath.FromSlash(bd.cfg.SourcePath(b))
		log.Debugf(ctx, "Staging sources of %s into %s", b, buildPath)
		if err := osutil.MirrorTree(sourcePath, buildPath); err != nil {
			return fmt.Errorf("stage sources: %v", err)
		}
	}

	env, err := sandbox.ComposeEnvironment(bd.cfg, b, sb.Env)
	if err != nil {
		return err
	}
	envFile := filepath.Join(buildPath, "_esy", "env")
	if err := osutil.WriteFilePerm(envFile, []byte(env.Render()), 0o644); err != nil {
		return err
	}
	findlibFile := filepath.Join(buildPath, "_esy", "findlib.conf")
	if err := osutil.WriteFilePerm(findlibFile, []byte(sandbox.FindlibConfig(bd.cfg, b)), 0o644); err != nil {
		return err
	}

	for i, command := range b.Command {
		log.Debugf(ctx, "Running command %d of %s: %s", i, b, command)
		if err := bd.runCommand(ctx, b, env, envFile, i, command); err != nil {
			return err
		}
	}

	if err := rewriteInstallTree(installPath, bd.cfg.InstallPath(b), bd.cfg.FinalInstallPath(b)); err != nil {
		return fmt.Errorf("rewrite install paths: %v", err)
	}

	// The commit point. The rename must be atomic:
	// staging and final trees share a parent store by construction.
	if err := os.Rename(installPath, finalInstallPath); err != nil {
		return fmt.Errorf("finalize: %v", err)
	}
	log.Infof(ctx, "Built %s: %s", b, finalInstallPath)
	return nil
}
