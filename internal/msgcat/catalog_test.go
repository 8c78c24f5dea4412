package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedDefaults(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, err := c.Render("identity.header", map[string]any{"Username": "alice", "Rating": 1200})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "alice (1200)" {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(c.Text("help", nil), "move <uci>") {
		t.Fatalf("help text missing commands")
	}
}

func TestMissingDataKeyIsError(t *testing.T) {
	c := MustNew()
	if _, err := c.Render("identity.header", map[string]any{"Username": "alice"}); err == nil {
		t.Fatalf("expected missingkey error")
	}
	if got := c.Text("no.such.key", nil); got != "no.such.key" {
		t.Fatalf("fallback=%q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("result:\n  win: \"Victory\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := c.Text("result.win", nil); got != "Victory" {
		t.Fatalf("override not applied: %q", got)
	}
	if got := c.Text("result.loss", nil); got != "You lost!" {
		t.Fatalf("default lost: %q", got)
	}
}

func TestDuplicateOverrideKeys(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("result:\n  win: x\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestNonStringLeafRejected(t *testing.T) {
	if _, err := parseYAMLToFlat([]byte("a:\n  b: 3\n")); err == nil {
		t.Fatalf("expected error for int leaf")
	}
}
