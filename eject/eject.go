// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

// Package eject emits a self-contained build script bundle
// (a Make-based driver plus per-package environment files)
// that replays the in-process build protocol on another machine.
package eject

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"zombiezen.com/go/log"

	"esy.sh/build/internal/osutil"
	"esy.sh/build/sandbox"
)

// makeVars rewrites the eject path placeholders
// into Make variable references for use inside the Makefile.
var makeVars = strings.NewReplacer(
	sandbox.StorePlaceholder, "$(ESY_EJECT__STORE)",
	sandbox.SandboxPlaceholder, "$(ESY_EJECT__SANDBOX)",
	sandbox.RootPlaceholder, "$(ESY_EJECT__ROOT)",
)

// Eject writes the build script bundle for the sandbox into outputPath,
// creating the directory if needed.
// Running `make build` in outputPath reproduces the in-process build
// protocol on the target machine.
// Emission is deterministic: ejecting the same sandbox twice
// produces byte-identical files.
func Eject(ctx context.Context, sb *sandbox.Sandbox, outputPath string) error {
	if err := sandbox.Validate(sb.Root); err != nil {
		return err
	}
	cfg := sandbox.EjectConfig()

	// Compose every environment and resolve every per-build directory
	// first, so export conflicts and escaping source paths surface
	// before any file is written.
	environments := make(map[string]*sandbox.Environment)
	for b := range sandbox.PostOrder(sb.Root) {
		env, err := sandbox.ComposeEnvironment(cfg, b, sb.Env)
		if err != nil {
			return err
		}
		if _, err := buildDir(outputPath, b); err != nil {
			return err
		}
		environments[b.ID] = env
	}

	log.Infof(ctx, "Ejecting %s to %s", sb.Root, outputPath)
	if err := osutil.MkdirAllPerm(outputPath, 0o755); err != nil {
		return err
	}
	if err := writeRuntimeAssets(outputPath); err != nil {
		return err
	}

	// Per-build file sets are independent of each other;
	// only the Makefile assembly below is order-sensitive.
	grp, grpCtx := errgroup.WithContext(ctx)
	for b := range sandbox.Walk(sb.Root) {
		grp.Go(func() error {
			if err := grpCtx.Err(); err != nil {
				return err
			}
			return writeBuildFiles(outputPath, cfg, b, environments[b.ID])
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}

	makefile := renderMakefile(makefileItems(cfg, sb))
	if err := osutil.WriteFilePerm(filepath.Join(outputPath, "Makefile"), []byte(makefile), 0o644); err != nil {
		return err
	}
	log.Infof(ctx, "Ejected %s", sb.Root)
	return nil
}

// buildDir returns the per-build directory inside the bundle,
// derived from the build's source path.
// Source paths come from the plan file,
// so paths that would resolve outside outputPath are rejected
// rather than written.
func buildDir(outputPath string, b *sandbox.Build) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(b.SourcePath))
	if rel == "." {
		return outputPath, nil
	}
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("eject %s: source path %q escapes the output directory", b, b.SourcePath)
	}
	return filepath.Join(outputPath, rel), nil
}

// writeBuildFiles emits eject-env, findlib.conf.in, and sandbox.sb.in
// for a single build.
func writeBuildFiles(outputPath string, cfg *sandbox.Config, b *sandbox.Build, env *sandbox.Environment) error {
	dir, err := buildDir(outputPath, b)
	if err != nil {
		return err
	}
	if err := osutil.MkdirAllPerm(dir, 0o755); err != nil {
		return err
	}
	files := []struct {
		name    string
		content string
	}{
		{"eject-env", env.Render()},
		{"findlib.conf.in", sandbox.FindlibConfig(cfg, b)},
		{"sandbox.sb.in", sandboxProfile(cfg, b)},
	}
	for _, f := range files {
		if err := osutil.WriteFilePerm(filepath.Join(dir, f.name), []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("eject %s: %v", b, err)
		}
	}
	return nil
}

// sandboxProfile renders the macOS sandbox-exec profile for a build:
// file writes are denied everywhere except the build's own trees
// and the usual scratch locations,
// and re-denied under the build root's node_modules.
func sandboxProfile(cfg *sandbox.Config, b *sandbox.Build) string {
	sb := new(strings.Builder)
	sb.WriteString("(version 1)\n")
	sb.WriteString("(allow default)\n\n")
	sb.WriteString("(deny file-write*\n  (subpath \"/\"))\n\n")
	sb.WriteString("(allow file-write*\n")
	sb.WriteString("  (literal \"/dev/null\")\n")
	sb.WriteString("  (subpath \"$TMPDIR\")\n")
	sb.WriteString("  (subpath \"$TMPDIR_GLOBAL\")\n")
	fmt.Fprintf(sb, "  (subpath %q)\n", cfg.RootPath(b))
	fmt.Fprintf(sb, "  (subpath %q)\n", cfg.BuildPath(b))
	fmt.Fprintf(sb, "  (subpath %q))\n\n", cfg.InstallPath(b))
	fmt.Fprintf(sb, "(deny file-write*\n  (subpath %q))\n", cfg.RootPath(b, "node_modules"))
	return sb.String()
}

// makefileItems assembles the Makefile:
// header variables, the public targets,
// the store and helper infrastructure,
// and one define plus three rules per build.
func makefileItems(cfg *sandbox.Config, sb *sandbox.Sandbox) []Item {
	items := []Item{
		Raw("# Generated by esy-build. Do not edit by hand."),
		Raw(""),
		Raw("SHELL := env -i /bin/bash --norc --noprofile"),
		Raw(""),
		Raw("ESY_EJECT__ROOT := $(patsubst %/,%,$(dir $(realpath $(lastword $(MAKEFILE_LIST)))))"),
		Raw("ESY_EJECT__STORE ?= $(HOME)/.esy"),
		Raw("ESY_EJECT__SANDBOX ?= $(CURDIR)"),
		Raw(""),
	}

	rootName := sandbox.NormalizeName(sb.Root.Name)
	items = append(items,
		Rule{Target: "build", Dependencies: []string{rootName + ".build"}, Phony: true},
		Rule{Target: "build-shell", Dependencies: []string{rootName + ".shell"}, Phony: true},
		Rule{Target: "clean", Dependencies: []string{rootName + ".clean"}, Phony: true},
		Rule{
			Target: "esy-store",
			Phony:  true,
			Commands: []string{
				"@mkdir -p" +
					" $(ESY_EJECT__STORE)/_build $(ESY_EJECT__STORE)/_install $(ESY_EJECT__STORE)/_insttmp" +
					" $(ESY_EJECT__SANDBOX)/_esy/store/_build $(ESY_EJECT__SANDBOX)/_esy/store/_install $(ESY_EJECT__SANDBOX)/_esy/store/_insttmp",
			},
		},
		Rule{
			Target:       "esy-root",
			Dependencies: []string{"$(ESY_EJECT__ROOT)/bin/realpath"},
			Phony:        true,
		},
		Rule{
			Target:       "$(ESY_EJECT__ROOT)/bin/realpath",
			Dependencies: []string{"$(ESY_EJECT__ROOT)/bin/realpath.c"},
			Commands:     []string{"@cc -o $@ $(ESY_EJECT__ROOT)/bin/realpath.c"},
		},
	)

	for b := range sandbox.Walk(sb.Root) {
		items = append(items, buildItems(cfg, b)...)
	}
	return items
}

// buildItems emits the shell_env define and the per-build targets
// for a single build.
func buildItems(cfg *sandbox.Config, b *sandbox.Build) []Item {
	name := sandbox.NormalizeName(b.Name)
	defineName := "shell_env_for__" + name

	buildType := "out-of-source"
	if b.MutatesSourcePath {
		buildType = "in-source"
	}
	command := "true"
	if len(b.Command) > 0 {
		command = strings.Join(b.Command, " && ")
	}
	ejectDir := "$(ESY_EJECT__ROOT)"
	if b.SourcePath != "" {
		ejectDir = "$(ESY_EJECT__ROOT)/" + path.Clean(b.SourcePath)
	}

	var ci sandbox.Nullable[string]
	if v, ok := cfg.LookupEnvOrHost("CI"); ok {
		ci = sandbox.NonNull(v)
	}

	define := Define{
		Name: defineName,
		Body: []Segment{
			Assignments{
				{Key: "CI", Value: ci},
				{Key: "TMPDIR", Value: sandbox.NonNull("$(TMPDIR)")},
				{Key: "ESY_EJECT__STORE", Value: sandbox.NonNull("$(ESY_EJECT__STORE)")},
				{Key: "ESY_EJECT__SANDBOX", Value: sandbox.NonNull("$(ESY_EJECT__SANDBOX)")},
				{Key: "ESY_EJECT__ROOT", Value: sandbox.NonNull("$(ESY_EJECT__ROOT)")},
			},
			Assignments{
				{Key: "esy_build__eject", Value: sandbox.NonNull(ejectDir)},
				{Key: "esy_build__type", Value: sandbox.NonNull(buildType)},
				{Key: "esy_build__key", Value: sandbox.NonNull(b.ID)},
				{Key: "esy_build__command", Value: sandbox.NonNull(command)},
				{Key: "esy_build__source_root", Value: sandbox.NonNull(makeVars.Replace(cfg.SourcePath(b)))},
				{Key: "esy_build__install", Value: sandbox.NonNull(makeVars.Replace(cfg.FinalInstallPath(b)))},
			},
		},
	}

	deps := []string{"esy-store", "esy-root"}
	for _, d := range b.Dependencies {
		deps = append(deps, sandbox.NormalizeName(d.Name)+".build")
	}
	runtime := func(subcommand string) string {
		return `@$(` + defineName + `) bash "$(ESY_EJECT__ROOT)/bin/runtime.sh" ` + subcommand
	}
	return []Item{
		define,
		Rule{
			Target:       name + ".build",
			Dependencies: deps,
			Phony:        true,
			Commands:     []string{runtime("esy-build")},
		},
		Rule{
			Target:       name + ".shell",
			Dependencies: deps,
			Phony:        true,
			Commands:     []string{runtime("esy-shell")},
		},
		Rule{
			Target:   name + ".clean",
			Phony:    true,
			Commands: []string{runtime("esy-clean")},
		},
	}
}
