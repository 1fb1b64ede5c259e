package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestInspectFromStdin(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(`{"grid":[{"i":11,"m":5,"n":"Frieren","img":"https://img.example/f.jpg"},{"i":400,"n":"x"}],"title":"Elves"}`))
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runInspect(cmd, nil); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Title: Elves", "Loaded: 1/100  Skipped: 1", "[11] r2 c2", "Frieren"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("nothing to see"))
	cmd.SetOut(&bytes.Buffer{})

	if err := runInspect(cmd, []string{"-"}); err == nil {
		t.Fatal("expected an error for input without grid entries")
	}
}
