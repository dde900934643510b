// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package sandbox

import (
	"fmt"
	"strings"

	"esy.sh/build/internal/xmaps"
)

// An Environment is an ordered sequence of named variable groups.
// Groups preserve provenance (which build contributed them),
// which the exclusivity and scope rules rely on.
type Environment struct {
	Groups []EnvGroup
}

// An EnvGroup is an ordered sequence of variable bindings
// contributed by a single source.
type EnvGroup struct {
	// Name is a human-readable label for the contributing source.
	Name string
	// BuildID is the id of the contributing build,
	// or empty for the built-in and sandbox groups.
	BuildID string
	// Vars are the bindings, in contribution order.
	Vars []EnvBinding
}

// An EnvBinding is a single composed environment variable.
type EnvBinding struct {
	Name      string
	Value     Nullable[string]
	Scope     Scope
	Exclusive bool
	Builtin   bool
}

// A ConflictError reports two groups exporting the same variable
// in violation of the exclusivity or built-in rules.
type ConflictError struct {
	// Name is the contested variable name.
	Name string
	// Scope is the scope in which the clash occurred.
	Scope Scope
	// First and Second are the labels of the two contributors.
	First  string
	Second string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("export conflict for %s: exported by both %s and %s", e.Name, e.First, e.Second)
}

// Group names for the fixed leading groups of a composed environment.
const (
	builtinGroupName = "built-in"
	sandboxGroupName = "sandbox"
)

// ComposeEnvironment computes the build environment for b:
//
//  1. the built-in globals (CI passed through from the host, TMPDIR, and
//     the ESY_EJECT__* variables),
//  2. the sandbox global environment, verbatim,
//  3. one group per transitive dependency in depth-first post-order
//     (deepest first, deduplicated by id) holding its global exports,
//  4. b's own local exports plus the built-in cur__* variables.
//
// $cur__* placeholders inside an export refer to the exporting build's own
// paths under cfg.
func ComposeEnvironment(cfg *Config, b *Build, global []EnvVar) (*Environment, error) {
	env := &Environment{
		Groups: []EnvGroup{
			builtinGlobals(cfg),
			sandboxGroup(global),
		},
	}
	for _, d := range dependencyPostOrder(b) {
		group := EnvGroup{
			Name:    d.String(),
			BuildID: d.ID,
		}
		r := curReplacer(cfg, d, false)
		for name, spec := range xmaps.Sorted(d.ExportedEnv) {
			if !spec.Scope.IsGlobal() {
				continue
			}
			group.Vars = append(group.Vars, EnvBinding{
				Name:      name,
				Value:     NonNull(r.Replace(spec.Value)),
				Scope:     Global,
				Exclusive: spec.Exclusive,
				Builtin:   spec.Builtin,
			})
		}
		env.Groups = append(env.Groups, group)
	}
	env.Groups = append(env.Groups, selfGroup(cfg, b))

	if err := checkConflicts(env); err != nil {
		return nil, err
	}
	return env, nil
}

// builtinGlobals is the leading group present in every composed environment.
//
// For a placeholder config, TMPDIR and ESY_EJECT__ROOT are the literal
// placeholder strings resolved at Make-time on the target machine.
// In-process, TMPDIR is passed through from the host
// and ESY_EJECT__ROOT has no referent, so both may be null.
func builtinGlobals(cfg *Config) EnvGroup {
	var ci, tmpdir, ejectRoot Nullable[string]
	if v, ok := cfg.lookupEnv("CI"); ok {
		ci = NonNull(v)
	}
	if cfg.IsEject() {
		tmpdir = NonNull("$TMPDIR")
		ejectRoot = NonNull(RootPlaceholder)
	} else if v, ok := cfg.lookupEnv("TMPDIR"); ok {
		tmpdir = NonNull(v)
	}
	builtin := func(name string, value Nullable[string]) EnvBinding {
		return EnvBinding{
			Name:    name,
			Value:   value,
			Scope:   Global,
			Builtin: true,
		}
	}
	return EnvGroup{
		Name: builtinGroupName,
		Vars: []EnvBinding{
			builtin("CI", ci),
			builtin("TMPDIR", tmpdir),
			builtin("ESY_EJECT__STORE", NonNull(cfg.StorePath)),
			builtin("ESY_EJECT__SANDBOX", NonNull(cfg.SandboxPath)),
			builtin("ESY_EJECT__ROOT", ejectRoot),
		},
	}
}

func sandboxGroup(global []EnvVar) EnvGroup {
	group := EnvGroup{Name: sandboxGroupName}
	for _, v := range global {
		group.Vars = append(group.Vars, EnvBinding{
			Name:  v.Name,
			Value: v.Value,
			Scope: Global,
		})
	}
	return group
}

// selfGroup holds b's local exports
// followed by the built-in cur__* variables describing b itself.
func selfGroup(cfg *Config, b *Build) EnvGroup {
	group := EnvGroup{
		Name:    b.String(),
		BuildID: b.ID,
	}
	r := curReplacer(cfg, b, true)
	for name, spec := range xmaps.Sorted(b.ExportedEnv) {
		if spec.Scope.IsGlobal() {
			continue
		}
		group.Vars = append(group.Vars, EnvBinding{
			Name:      name,
			Value:     NonNull(r.Replace(spec.Value)),
			Scope:     Local,
			Exclusive: spec.Exclusive,
			Builtin:   spec.Builtin,
		})
	}
	for _, v := range curVars(cfg, b, true) {
		group.Vars = append(group.Vars, EnvBinding{
			Name:    v.Name,
			Value:   v.Value,
			Scope:   Local,
			Builtin: true,
		})
	}
	return group
}

// curVars returns the cur__* variables describing build b.
// If self is true, cur__install points at the install staging tree
// (so the build's own commands and self-queries during the build succeed);
// otherwise it points at the finalized install tree.
func curVars(cfg *Config, b *Build, self bool) []EnvVar {
	install := cfg.FinalInstallPath(b)
	if self {
		install = cfg.InstallPath(b)
	}
	vars := []EnvVar{
		{Name: "cur__name", Value: NonNull(b.Name)},
		{Name: "cur__version", Value: NonNull(b.Version)},
		{Name: "cur__root", Value: NonNull(cfg.RootPath(b))},
		{Name: "cur__original_root", Value: NonNull(cfg.SourcePath(b))},
		{Name: "cur__target_dir", Value: NonNull(cfg.BuildPath(b))},
		{Name: "cur__install", Value: NonNull(install)},
	}
	for _, sub := range InstallTreeSubdirectories {
		vars = append(vars, EnvVar{
			Name:  "cur__" + sub,
			Value: NonNull(install + "/" + sub),
		})
	}
	return vars
}

// curReplacer expands $cur__* placeholders
// with the paths of the exporting build.
func curReplacer(cfg *Config, b *Build, self bool) *strings.Replacer {
	vars := curVars(cfg, b, self)
	oldnew := make([]string, 0, 2*len(vars))
	for _, v := range vars {
		oldnew = append(oldnew, "$"+v.Name, v.Value.X)
	}
	return strings.NewReplacer(oldnew...)
}

// checkConflicts enforces the exclusivity and built-in ownership rules:
// two groups exporting the same name in the same scope
// where either is exclusive is an error,
// and a non-builtin export may not collide with a builtin one.
func checkConflicts(env *Environment) error {
	type claim struct {
		group     string
		exclusive bool
	}
	type key struct {
		name  string
		scope Scope
	}
	claims := make(map[key]claim)
	builtins := make(map[string]string) // name -> group
	for _, group := range env.Groups {
		for _, v := range group.Vars {
			if v.Builtin {
				builtins[v.Name] = group.Name
			}
		}
	}
	for _, group := range env.Groups {
		for _, v := range group.Vars {
			if v.Builtin {
				continue
			}
			if firstGroup, ok := builtins[v.Name]; ok {
				return &ConflictError{
					Name:   v.Name,
					Scope:  v.Scope,
					First:  firstGroup,
					Second: group.Name,
				}
			}
			k := key{name: v.Name, scope: v.Scope}
			prev, ok := claims[k]
			if ok && prev.group != group.Name && (prev.exclusive || v.Exclusive) {
				return &ConflictError{
					Name:   v.Name,
					Scope:  v.Scope,
					First:  prev.group,
					Second: group.Name,
				}
			}
			if !ok || !prev.exclusive {
				claims[k] = claim{
					group:     group.Name,
					exclusive: v.Exclusive,
				}
			}
		}
	}
	return nil
}

// pathLikeNames accumulate rather than overwrite:
// each export is prepended to the variable's current value.
// Dependency groups are composed deepest first,
// so in the final value shallower dependencies come before deeper ones,
// matching shell ":"-separated PATH semantics.
var pathLikeNames = map[string]bool{
	"PATH":                 true,
	"MANPATH":              true,
	"OCAMLPATH":            true,
	"CAML_LD_LIBRARY_PATH": true,
}

// IsPathLike reports whether exports of the named variable accumulate
// ":"-separated entries instead of overwriting previous exports.
func IsPathLike(name string) bool {
	return pathLikeNames[name]
}

// Render produces the POSIX-shell-source-able form of the environment:
// one `export NAME="VALUE";` line per non-null variable, in composition
// order.
// Values are wrapped in double quotes without further escaping;
// front-ends that need embedded quotes must pre-escape them.
func (env *Environment) Render() string {
	sb := new(strings.Builder)
	for _, group := range env.Groups {
		for _, v := range group.Vars {
			if !v.Value.Valid {
				continue
			}
			value := v.Value.X
			if pathLikeNames[v.Name] && !strings.Contains(value, "$"+v.Name) {
				value += ":$" + v.Name
			}
			fmt.Fprintf(sb, "export %s=\"%s\";\n", v.Name, value)
		}
	}
	return sb.String()
}

// dependencyPostOrder returns b's transitive dependencies
// in depth-first post-order, deduplicated by id, excluding b itself.
func dependencyPostOrder(b *Build) []*Build {
	var deps []*Build
	for d := range PostOrder(b) {
		if d.ID != b.ID {
			deps = append(deps, d)
		}
	}
	return deps
}
