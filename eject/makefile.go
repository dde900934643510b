// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package eject

import (
	"strings"

	"esy.sh/build/sandbox"
)

// An Item is one element of a Makefile: [Raw], [Rule], or [Define].
type Item interface {
	item()
}

// Raw is emitted verbatim on its own line.
type Raw string

func (Raw) item() {}

// A Rule is a Make rule with a target, dependencies, and recipe commands.
// Phony targets are collected into a trailing .PHONY declaration.
type Rule struct {
	Target       string
	Dependencies []string
	Phony        bool
	Commands     []string
}

func (Rule) item() {}

// A Define is a Make define block.
// Its body is the concatenation, line by line, of its segments;
// lines are joined with backslash continuations
// so the expanded define forms a single logical line.
type Define struct {
	Name string
	Body []Segment
}

func (Define) item() {}

// A Segment contributes lines to a [Define] body.
type Segment interface {
	segment()
}

// Text contributes a verbatim line.
type Text string

func (Text) segment() {}

// Assignments contributes one KEY="value" line per non-null value.
// A null value causes the key to be omitted,
// so host-conditional variables like CI survive absence cleanly.
type Assignments []Assignment

func (Assignments) segment() {}

// An Assignment is a single key/value pair in an [Assignments] segment.
type Assignment struct {
	Key   string
	Value sandbox.Nullable[string]
}

// renderMakefile renders the items as Makefile text.
func renderMakefile(items []Item) string {
	sb := new(strings.Builder)
	var phony []string
	for _, item := range items {
		switch item := item.(type) {
		case Raw:
			sb.WriteString(string(item))
			sb.WriteString("\n")
		case Rule:
			if item.Phony {
				phony = append(phony, item.Target)
			}
			sb.WriteString(item.Target)
			sb.WriteString(":")
			for _, dep := range item.Dependencies {
				sb.WriteString(" ")
				sb.WriteString(dep)
			}
			sb.WriteString("\n")
			for _, command := range item.Commands {
				sb.WriteString("\t")
				sb.WriteString(command)
				sb.WriteString("\n")
			}
			sb.WriteString("\n")
		case Define:
			sb.WriteString("define ")
			sb.WriteString(item.Name)
			sb.WriteString("\n")
			lines := defineLines(item.Body)
			for i, line := range lines {
				sb.WriteString(line)
				if i < len(lines)-1 {
					sb.WriteString(" \\")
				}
				sb.WriteString("\n")
			}
			sb.WriteString("endef\n\n")
		}
	}
	if len(phony) > 0 {
		sb.WriteString(".PHONY:")
		for _, target := range phony {
			sb.WriteString(" ")
			sb.WriteString(target)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func defineLines(body []Segment) []string {
	var lines []string
	for _, segment := range body {
		switch segment := segment.(type) {
		case Text:
			lines = append(lines, string(segment))
		case Assignments:
			for _, a := range segment {
				if !a.Value.Valid {
					continue
				}
				lines = append(lines, a.Key+`="`+a.Value.X+`"`)
			}
		}
	}
	return lines
}
