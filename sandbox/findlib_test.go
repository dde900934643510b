// Copyright 2026 The esy-build Authors
// SPDX-License-Identifier: MIT

package sandbox

import (
	"strings"
	"testing"
)

func TestFindlibConfig(t *testing.T) {
	cfg, err := NewConfig("/store", "/work/project")
	if err != nil {
		t.Fatal(err)
	}
	r, a, b, l := diamond()
	for _, build := range []*Build{r, a, b, l} {
		build.ShouldBePersisted = true
	}

	got := FindlibConfig(cfg, r)
	wantPath := `path = "/store/_install/idL/lib:/store/_install/idA/lib:/store/_install/idB/lib:/store/_insttmp/idR/lib"` + "\n"
	if !strings.HasPrefix(got, wantPath) {
		t.Errorf("FindlibConfig path line:\ngot  %q\nwant prefix %q", got, wantPath)
	}
	if !strings.Contains(got, `destdir = "/store/_insttmp/idR/lib"`+"\n") {
		t.Errorf("FindlibConfig missing destdir:\n%s", got)
	}
	if !strings.Contains(got, `ldconf = "ignore"`+"\n") {
		t.Errorf("FindlibConfig missing ldconf:\n%s", got)
	}
	for _, tool := range []string{"ocamlc", "ocamldep", "ocamldoc", "ocamllex", "ocamlopt"} {
		if !strings.Contains(got, tool+` = "`+tool+`.opt"`+"\n") {
			t.Errorf("FindlibConfig missing %s:\n%s", tool, got)
		}
	}
}

func TestFindlibConfigLeaf(t *testing.T) {
	cfg, err := NewConfig("/store", "/work/project")
	if err != nil {
		t.Fatal(err)
	}
	l := &Build{ID: "idL", Name: "leaf", ShouldBePersisted: true}
	got := FindlibConfig(cfg, l)
	if !strings.HasPrefix(got, `path = "/store/_insttmp/idL/lib"`+"\n") {
		t.Errorf("FindlibConfig for leaf:\n%s", got)
	}
}
