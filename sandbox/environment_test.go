// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package sandbox

import (
	"errors"
	"strings"
	"testing"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := NewConfig("/store", "/work/project")
	if err != nil {
		t.Fatal(err)
	}
	cfg.LookupEnv = func(key string) (string, bool) { return "", false }
	return cfg
}

func TestComposeEnvironmentGroupOrder(t *testing.T) {
	cfg := testConfig(t)
	r, a, b, l := diamond()
	l.ExportedEnv = map[string]ExportSpec{
		"LEAF_ROOT": {Value: "$cur__install", Scope: Global},
	}

	env, err := ComposeEnvironment(cfg, r, []EnvVar{{Name: "SANDBOX_VAR", Value: NonNull("1")}})
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, group := range env.Groups {
		names = append(names, group.Name)
	}
	want := []string{"built-in", "sandbox", l.String(), a.String(), b.String(), r.String()}
	if len(names) != len(want) {
		t.Fatalf("group names = %q; want %q", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("group[%d] = %q; want %q", i, names[i], want[i])
		}
	}

	// The dependency groups appear exactly once even though the leaf is
	// reachable through two paths.
	count := 0
	for _, group := range env.Groups {
		if group.BuildID == l.ID {
			count++
		}
	}
	if count != 1 {
		t.Errorf("leaf contributed %d groups; want 1", count)
	}
}

func TestComposeEnvironmentCurExpansion(t *testing.T) {
	cfg := testConfig(t)
	l := &Build{
		ID:                "idL",
		Name:              "leaf",
		Version:           "1.0.0",
		ShouldBePersisted: true,
		ExportedEnv: map[string]ExportSpec{
			"LEAF_LIB": {Value: "$cur__install/lib", Scope: Global},
		},
	}
	root := &Build{ID: "idR", Name: "root", Version: "1.0.0", Dependencies: []*Build{l}}

	env, err := ComposeEnvironment(cfg, root, nil)
	if err != nil {
		t.Fatal(err)
	}
	binding, ok := findBinding(env, "LEAF_LIB")
	if !ok {
		t.Fatal("LEAF_LIB not composed")
	}
	// Dependency exports refer to the dependency's finalized install.
	if want := "/store/_install/idL/lib"; binding.Value.X != want {
		t.Errorf("LEAF_LIB = %q; want %q", binding.Value.X, want)
	}

	selfInstall, ok := findBinding(env, "cur__install")
	if !ok {
		t.Fatal("cur__install not composed")
	}
	// The build's own install points at staging until finalization.
	if want := "/work/project/_esy/store/_insttmp/idR"; selfInstall.Value.X != want {
		t.Errorf("cur__install = %q; want %q", selfInstall.Value.X, want)
	}
}

func TestComposeEnvironmentExclusiveClash(t *testing.T) {
	cfg := testConfig(t)
	a := &Build{
		ID: "idA", Name: "alpha", Version: "1.0.0",
		ExportedEnv: map[string]ExportSpec{
			"TOOL_HOME": {Value: "/a", Scope: Global, Exclusive: true},
		},
	}
	b := &Build{
		ID: "idB", Name: "beta", Version: "1.0.0",
		ExportedEnv: map[string]ExportSpec{
			"TOOL_HOME": {Value: "/b", Scope: Global, Exclusive: true},
		},
	}
	root := &Build{ID: "idR", Name: "root", Dependencies: []*Build{a, b}}

	_, err := ComposeEnvironment(cfg, root, nil)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("ComposeEnvironment = %v; want *ConflictError", err)
	}
	if conflict.Name != "TOOL_HOME" {
		t.Errorf("conflict.Name = %q; want %q", conflict.Name, "TOOL_HOME")
	}
	if conflict.First == conflict.Second {
		t.Errorf("conflict names a single contributor %q; want both", conflict.First)
	}
}

func TestComposeEnvironmentBuiltinOverride(t *testing.T) {
	cfg := testConfig(t)
	root := &Build{
		ID: "idR", Name: "root",
		ExportedEnv: map[string]ExportSpec{
			"ESY_EJECT__STORE": {Value: "/elsewhere", Scope: Local},
		},
	}
	_, err := ComposeEnvironment(cfg, root, nil)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("ComposeEnvironment = %v; want *ConflictError", err)
	}
}

func TestComposeEnvironmentSameNameNonExclusive(t *testing.T) {
	cfg := testConfig(t)
	a := &Build{
		ID: "idA", Name: "alpha",
		ExportedEnv: map[string]ExportSpec{
			"SHARED": {Value: "/a", Scope: Global},
		},
	}
	b := &Build{
		ID: "idB", Name: "beta",
		ExportedEnv: map[string]ExportSpec{
			"SHARED": {Value: "/b", Scope: Global},
		},
	}
	root := &Build{ID: "idR", Name: "root", Dependencies: []*Build{a, b}}
	if _, err := ComposeEnvironment(cfg, root, nil); err != nil {
		t.Errorf("ComposeEnvironment = %v; want <nil>", err)
	}
}

func TestComposeEnvironmentCI(t *testing.T) {
	cfg := testConfig(t)
	root := &Build{ID: "idR", Name: "root"}

	env, err := ComposeEnvironment(cfg, root, nil)
	if err != nil {
		t.Fatal(err)
	}
	ci, ok := findBinding(env, "CI")
	if !ok {
		t.Fatal("CI not composed")
	}
	if ci.Value.Valid {
		t.Errorf("CI = %v; want null when unset on host", ci.Value)
	}
	if strings.Contains(env.Render(), "export CI=") {
		t.Error("null CI rendered")
	}

	cfg.LookupEnv = func(key string) (string, bool) {
		if key == "CI" {
			return "true", true
		}
		return "", false
	}
	env, err = ComposeEnvironment(cfg, root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(env.Render(), "export CI=\"true\";") {
		t.Errorf("rendered environment missing CI:\n%s", env.Render())
	}
}

func TestRenderPathAccumulation(t *testing.T) {
	cfg := testConfig(t)
	l := &Build{
		ID: "idL", Name: "leaf", Version: "1.0.0", ShouldBePersisted: true,
		ExportedEnv: map[string]ExportSpec{
			"PATH": {Value: "$cur__install/bin", Scope: Global},
		},
	}
	a := &Build{
		ID: "idA", Name: "alpha", Version: "1.0.0", ShouldBePersisted: true,
		Dependencies: []*Build{l},
		ExportedEnv: map[string]ExportSpec{
			"PATH": {Value: "$cur__install/bin", Scope: Global},
		},
	}
	root := &Build{ID: "idR", Name: "root", Dependencies: []*Build{a}}

	env, err := ComposeEnvironment(cfg, root, nil)
	if err != nil {
		t.Fatal(err)
	}
	rendered := env.Render()
	leafLine := "export PATH=\"/store/_install/idL/bin:$PATH\";"
	alphaLine := "export PATH=\"/store/_install/idA/bin:$PATH\";"
	li := strings.Index(rendered, leafLine)
	ai := strings.Index(rendered, alphaLine)
	if li < 0 || ai < 0 {
		t.Fatalf("rendered environment missing PATH lines:\n%s", rendered)
	}
	// Deeper dependency first: sourcing sequentially leaves the shallower
	// dependency's bin earlier in the final PATH.
	if li > ai {
		t.Errorf("leaf PATH line appears after alpha PATH line:\n%s", rendered)
	}
}

func TestRenderOmitsNull(t *testing.T) {
	cfg := testConfig(t)
	root := &Build{ID: "idR", Name: "root"}
	env, err := ComposeEnvironment(cfg, root, []EnvVar{
		{Name: "PRESENT", Value: NonNull("x")},
		{Name: "ABSENT"},
	})
	if err != nil {
		t.Fatal(err)
	}
	rendered := env.Render()
	if !strings.Contains(rendered, "export PRESENT=\"x\";") {
		t.Errorf("rendered environment missing PRESENT:\n%s", rendered)
	}
	if strings.Contains(rendered, "ABSENT") {
		t.Errorf("rendered environment contains null variable:\n%s", rendered)
	}
}

func TestComposeEnvironmentDeterminism(t *testing.T) {
	cfg := testConfig(t)
	r, _, _, l := diamond()
	l.ExportedEnv = map[string]ExportSpec{
		"Z_VAR": {Value: "z", Scope: Global},
		"A_VAR": {Value: "a", Scope: Global},
		"M_VAR": {Value: "m", Scope: Global},
	}
	first, err := ComposeEnvironment(cfg, r, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		env, err := ComposeEnvironment(cfg, r, nil)
		if err != nil {
			t.Fatal(err)
		}
		if env.Render() != first.Render() {
			t.Fatalf("render not byte-stable across runs")
		}
	}
}

func findBinding(env *Environment, name string) (EnvBinding, bool) {
	for _, group := range env.Groups {
		for _, v := range group.Vars {
			if v.Name == name {
				return v, true
			}
		}
	}
	return EnvBinding{}, false
}
