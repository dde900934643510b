// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package sandbox

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"esy.sh/build/internal/xslices"
	"esy.sh/build/sets"
)

// Walk returns a breadth-first iterator over the builds reachable from root,
// visiting each build id at most once.
// Walk order carries no semantic meaning;
// it is used for emitting per-build artifacts where order is not load-bearing.
func Walk(root *Build) iter.Seq[*Build] {
	return func(yield func(*Build) bool) {
		visited := sets.New(root.ID)
		queue := []*Build{root}
		for len(queue) > 0 {
			curr := queue[0]
			queue = queue[1:]
			if !yield(curr) {
				return
			}
			for _, dep := range curr.Dependencies {
				if !visited.Has(dep.ID) {
					visited.Add(dep.ID)
					queue = append(queue, dep)
				}
			}
		}
	}
}

// PostOrder returns a depth-first post-order iterator
// over the builds reachable from root,
// visiting each build id at most once
// and visiting all dependencies of a build before the build itself.
// This order drives build execution
// and the ordering of dependency environment groups.
//
// PostOrder assumes the graph is acyclic; call [Validate] first.
func PostOrder(root *Build) iter.Seq[*Build] {
	return func(yield func(*Build) bool) {
		visited := make(sets.Set[string])
		var visit func(b *Build) bool
		visit = func(b *Build) bool {
			if visited.Has(b.ID) {
				return true
			}
			visited.Add(b.ID)
			for _, dep := range b.Dependencies {
				if !visit(dep) {
					return false
				}
			}
			return yield(b)
		}
		visit(root)
	}
}

// TransitiveDependencies returns the builds reachable from b excluding b
// itself, in breadth-first order deduplicated by id.
func (b *Build) TransitiveDependencies() []*Build {
	var deps []*Build
	for d := range Walk(b) {
		if d.ID != b.ID {
			deps = append(deps, d)
		}
	}
	return deps
}

// A CycleError reports a dependency cycle in the build graph.
type CycleError struct {
	// Chain is the sequence of build ids forming the cycle.
	// The first and last entries are the same build.
	Chain []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Chain, " -> ")
}

// Validate checks the graph reachable from root
// before any build work is attempted.
// It reports a [*CycleError] if the graph is not a DAG
// and aggregates the [*ManifestError] of every reachable build
// whose Errors is non-empty.
func Validate(root *Build) error {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int8)
	var stack []string
	var visit func(b *Build) error
	visit = func(b *Build) error {
		switch state[b.ID] {
		case done:
			return nil
		case visiting:
			i := 0
			for ; i < len(stack) && stack[i] != b.ID; i++ {
			}
			return &CycleError{Chain: append(append([]string(nil), stack[i:]...), b.ID)}
		}
		state[b.ID] = visiting
		stack = append(stack, b.ID)
		for _, dep := range b.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = xslices.Pop(stack, 1)
		state[b.ID] = done
		return nil
	}
	if err := visit(root); err != nil {
		return err
	}

	var manifestErrors []error
	for b := range PostOrder(root) {
		if len(b.Errors) > 0 {
			manifestErrors = append(manifestErrors, &ManifestError{
				ID:       b.ID,
				Build:    b.String(),
				Messages: append([]string(nil), b.Errors...),
			})
		}
	}
	if len(manifestErrors) > 0 {
		return fmt.Errorf("invalid sandbox: %w", errors.Join(manifestErrors...))
	}
	return nil
}
