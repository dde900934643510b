// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/tailscale/hujson"

	"esy.sh/build/sandbox"
)

// A plan file is the interface the manifest front-end satisfies:
// a HuJSON document describing the sandbox's global environment
// and the build graph keyed by build id.
type planFile struct {
	Env    []planEnvVar          `json:"env"`
	Builds map[string]*planBuild `json:"builds"`
	Root   string                `json:"root"`
}

type planEnvVar struct {
	Name  string                   `json:"name"`
	Value sandbox.Nullable[string] `json:"value"`
}

type planBuild struct {
	Name              string                `json:"name"`
	Version           string                `json:"version"`
	Command           []string              `json:"command"`
	ExportedEnv       map[string]planExport `json:"exportedEnv"`
	SourcePath        string                `json:"sourcePath"`
	MutatesSourcePath bool                  `json:"mutatesSourcePath"`
	ShouldBePersisted bool                  `json:"shouldBePersisted"`
	Dependencies      []string              `json:"dependencies"`
	Errors            []string              `json:"errors"`
}

type planExport struct {
	Value     string        `json:"val"`
	Scope     sandbox.Scope `json:"scope"`
	Exclusive bool          `json:"exclusive"`
}

// loadSandbox reads and resolves the build plan into a [sandbox.Sandbox].
func (g *globalConfig) loadSandbox() (*sandbox.Sandbox, error) {
	path := g.planPath()
	huJSONData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load build plan: %w", err)
	}
	jsonData, err := hujson.Standardize(huJSONData)
	if err != nil {
		return nil, fmt.Errorf("load build plan %s: %v", path, err)
	}
	var plan planFile
	if err := jsonv2.Unmarshal(jsonData, &plan); err != nil {
		return nil, fmt.Errorf("load build plan %s: %v", path, err)
	}
	sb, err := plan.resolve()
	if err != nil {
		return nil, fmt.Errorf("load build plan %s: %v", path, err)
	}
	return sb, nil
}

// resolve links the id-keyed plan into a build graph.
// Unresolved references are an error;
// cycles are left to [sandbox.Validate].
func (plan *planFile) resolve() (*sandbox.Sandbox, error) {
	builds := make(map[string]*sandbox.Build, len(plan.Builds))
	for id, pb := range plan.Builds {
		exported := make(map[string]sandbox.ExportSpec, len(pb.ExportedEnv))
		for name, spec := range pb.ExportedEnv {
			exported[name] = sandbox.ExportSpec{
				Value:     spec.Value,
				Scope:     spec.Scope,
				Exclusive: spec.Exclusive,
			}
		}
		builds[id] = &sandbox.Build{
			ID:                id,
			Name:              pb.Name,
			Version:           pb.Version,
			Command:           pb.Command,
			ExportedEnv:       exported,
			SourcePath:        pb.SourcePath,
			MutatesSourcePath: pb.MutatesSourcePath,
			ShouldBePersisted: pb.ShouldBePersisted,
			Errors:            pb.Errors,
		}
	}
	for id, pb := range plan.Builds {
		for _, depID := range pb.Dependencies {
			dep := builds[depID]
			if dep == nil {
				return nil, fmt.Errorf("build %s: unresolved dependency %q", id, depID)
			}
			builds[id].Dependencies = append(builds[id].Dependencies, dep)
		}
	}
	root := builds[plan.Root]
	if root == nil {
		return nil, fmt.Errorf("unresolved root build %q", plan.Root)
	}

	sb := &sandbox.Sandbox{Root: root}
	for _, v := range plan.Env {
		sb.Env = append(sb.Env, sandbox.EnvVar{Name: v.Name, Value: v.Value})
	}
	return sb, nil
}
