// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/tailscale/hujson"
)

// globalConfig is the CLI configuration,
// merged from defaults, configuration files, environment, and flags
// (later sources win).
type globalConfig struct {
	Debug       bool   `json:"debug"`
	StorePath   string `json:"storePath"`
	SandboxPath string `json:"sandboxPath"`
	PlanPath    string `json:"planPath"`
}

func defaultGlobalConfig() *globalConfig {
	g := new(globalConfig)
	if home, err := os.UserHomeDir(); err == nil {
		g.StorePath = filepath.Join(home, ".esy")
	}
	if wd, err := os.Getwd(); err == nil {
		g.SandboxPath = wd
	}
	return g
}

func (g *globalConfig) mergeEnvironment() {
	if dir := os.Getenv("ESY__PREFIX"); dir != "" {
		g.StorePath = dir
	}
	if dir := os.Getenv("ESY__SANDBOX"); dir != "" {
		g.SandboxPath = dir
	}
}

// mergeFiles merges HuJSON configuration files over g,
// skipping files that do not exist.
func (g *globalConfig) mergeFiles(paths iter.Seq[string]) error {
	for path := range paths {
		huJSONData, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		jsonData, err := hujson.Standardize(huJSONData)
		if err != nil {
			return fmt.Errorf("read %s: %v", path, err)
		}
		if err := jsonv2.Unmarshal(jsonData, g, jsonv2.RejectUnknownMembers(false)); err != nil {
			return fmt.Errorf("read %s: %v", path, err)
		}
	}
	return nil
}

func (g *globalConfig) validate() error {
	if g.StorePath == "" || !filepath.IsAbs(g.StorePath) {
		return fmt.Errorf("store path %q is not absolute", g.StorePath)
	}
	if g.SandboxPath == "" || !filepath.IsAbs(g.SandboxPath) {
		return fmt.Errorf("sandbox path %q is not absolute", g.SandboxPath)
	}
	return nil
}

// planPath returns the effective build plan path:
// the configured path, or _esy/plan.json under the sandbox.
func (g *globalConfig) planPath() string {
	if g.PlanPath != "" {
		return g.PlanPath
	}
	return filepath.Join(g.SandboxPath, "_esy", "plan.json")
}

// configFilePaths returns the candidate configuration file locations,
// most specific first.
func configFilePaths() iter.Seq[string] {
	return func(yield func(string) bool) {
		if dir := configDir(); dir != "" {
			if !yield(filepath.Join(dir, "esy-build", "config.json")) {
				return
			}
		}
	}
}
