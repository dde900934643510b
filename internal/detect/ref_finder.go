// Copyright 2025 The esy-build Authors
// SPDX-License-Identifier: MIT

// Package detect finds occurrences of store path prefixes in byte streams.
package detect

import (
	"cmp"
	"iter"
	"slices"

	"esy.sh/build/sets"
)

// A RefFinder records which elements in a set of search strings
// occur in a byte stream.
// It is used to decide whether an installed file
// embeds the staging install prefix and must be rewritten.
type RefFinder struct {
	root    *refFinderNode
	threads []*refFinderNode
	found   sets.Sorted[string]
}

// NewRefFinder returns a new [RefFinder] that searches for strings from the given sequence.
func NewRefFinder(search iter.Seq[string]) *RefFinder {
	rf := new(RefFinder)
	rf.root = new(refFinderNode)
	for s := range search {
		if s == "" {
			rf.found.Add("")
			continue
		}
		rf.root.add(s)
	}
	return rf
}

// Found returns the set of references found in the written content so far.
func (rf *RefFinder) Found() *sets.Sorted[string] {
	return rf.found.Clone()
}

// Write implements [io.Writer]
// by recording any occurrences of the strings the [RefFinder] is searching for
// that are found in p.
// The bytes written to the [RefFinder] are considered a contiguous stream:
// occurrences may span multiple calls to Write.
func (rf *RefFinder) Write(p []byte) (int, error) {
	for _, b := range p {
		rf.write(b)
	}
	return len(p), nil
}

// write evaluates the next byte of the stream.
// A RefFinder maintains a set of "threads",
// which are pointers into the prefix tree built by [refFinderNode.add].
// write advances each thread by b
// and may spawn a new thread if b matches any children of rf.root.
func (rf *RefFinder) write(b byte) {
	rf.threads = append(rf.threads, rf.root)

	n := 0
	for _, curr := range rf.threads {
		i, ok := curr.find(b)
		if !ok {
			continue
		}
		next := curr.children[i]
		if next.match != "" {
			rf.found.Add(next.match)
		}
		if len(next.children) > 0 {
			rf.threads[n] = next
			n++
		}
	}
	clear(rf.threads[n:])
	rf.threads = rf.threads[:n]
}

type refFinderNode struct {
	b        byte
	match    string
	children []*refFinderNode
}

func (node *refFinderNode) find(b byte) (i int, ok bool) {
	return slices.BinarySearchFunc(node.children, b, func(child *refFinderNode, b byte) int {
		return cmp.Compare(child.b, b)
	})
}

func (node *refFinderNode) add(s string) {
	for _, b := range []byte(s) {
		if i, ok := node.find(b); ok {
			node = node.children[i]
		} else {
			newNode := &refFinderNode{b: b}
			node.children = slices.Insert(node.children, i, newNode)
			node = newNode
		}
	}
	node.match = s
}
