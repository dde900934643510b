// Copyright 2025 The esy-build Authors
// SPDX-License-Identifier: MIT

package detect

import (
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var refFinderGoldens = []struct {
	s      string
	search []string
	want   []string
}{
	{"", nil, nil},
	{"", []string{""}, []string{""}},
	{"foo", []string{""}, []string{""}},
	{"foo", []string{"f"}, []string{"f"}},
	{"foo", []string{"o"}, []string{"o"}},

	{"foo", []string{"foo"}, []string{"foo"}},
	{"xfoo", []string{"foo"}, []string{"foo"}},
	{"fooy", []string{"foo"}, []string{"foo"}},
	{"xfooy", []string{"foo"}, []string{"foo"}},
	{"bar", []string{"foo"}, nil},

	{"foo", []string{"f", "foo"}, []string{"f", "foo"}},
	{"foo", []string{"o", "foo"}, []string{"foo", "o"}},

	{"foo", []string{"foo", "bar"}, []string{"foo"}},
	{"bar", []string{"foo", "bar"}, []string{"bar"}},
	{"foobar", []string{"foo", "bar"}, []string{"bar", "foo"}},

	// Overlapping occurrences, as in store prefixes sharing a parent directory.
	{"/store/_insttmp/abc/lib", []string{"/store/_insttmp/abc", "/store/_insttmp"}, []string{"/store/_insttmp", "/store/_insttmp/abc"}},
	{"aaa", []string{"aa"}, []string{"aa"}},
}

func TestRefFinder(t *testing.T) {
	for _, test := range refFinderGoldens {
		rf := NewRefFinder(slices.Values(test.search))
		if n, err := rf.Write([]byte(test.s)); n != len(test.s) || err != nil {
			t.Errorf("NewRefFinder(%q).Write(%q) = %d, %v; want %d, <nil>",
				test.search, test.s, n, err, len(test.s))
		}
		var got []string
		for x := range rf.Found().Values() {
			got = append(got, x)
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("rf := NewRefFinder(%q); rf.Write(%q); rf.Found() (-want +got):\n%s",
				test.search, test.s, diff)
		}
	}
}

func TestRefFinderSplitWrites(t *testing.T) {
	const needle = "/store/_insttmp/abc123"
	const stream = "prefix /store/_insttmp/abc123/bin/tool suffix"
	for splitAt := 0; splitAt <= len(stream); splitAt++ {
		rf := NewRefFinder(slices.Values([]string{needle}))
		rf.Write([]byte(stream[:splitAt]))
		rf.Write([]byte(stream[splitAt:]))
		if !rf.Found().Has(needle) {
			t.Errorf("split at %d: needle not found", splitAt)
		}
	}
}

func TestRefFinderOracle(t *testing.T) {
	for _, test := range refFinderGoldens {
		var want []string
		for _, substr := range test.search {
			if strings.Contains(test.s, substr) && !slices.Contains(want, substr) {
				want = append(want, substr)
			}
		}
		slices.Sort(want)
		rf := NewRefFinder(slices.Values(test.search))
		rf.Write([]byte(test.s))
		var got []string
		for x := range rf.Found().Values() {
			got = append(got, x)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("oracle mismatch for (%q, %q) (-want +got):\n%s", test.s, test.search, diff)
		}
	}
}
